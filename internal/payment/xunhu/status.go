package xunhu

import (
	"fmt"
	"strings"

	"github.com/hupay-bridge/internal/constants"
)

var gatewayStatusStates = map[string]string{
	constants.GatewayStatusPaid:         constants.SettlementStateSuccess,
	constants.GatewayStatusWaitPay:      constants.SettlementStatePending,
	constants.GatewayStatusCancelled:    constants.SettlementStateCancelled,
	constants.GatewayStatusRefunding:    constants.SettlementStateRefunding,
	constants.GatewayStatusRefundFailed: constants.SettlementStateRefundFailed,
}

// MapStatus 将网关状态码映射为结算语义状态
func MapStatus(code string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	state, ok := gatewayStatusStates[normalized]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrStatusUnknown, code)
	}
	return state, nil
}
