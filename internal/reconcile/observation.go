package reconcile

import (
	"github.com/hupay-bridge/internal/constants"
	"github.com/hupay-bridge/internal/payment/xunhu"
)

// ObservationFromQuery 将查单结果转换为轮询渠道的状态观测
func ObservationFromQuery(result *xunhu.QueryResult) PutInput {
	payload := make(map[string]string, len(result.Fields)+2)
	for k, v := range result.Fields {
		payload[k] = v
	}
	if payload["total_fee"] == "" && result.TotalFee != "" {
		payload["total_fee"] = result.TotalFee
	}
	if payload["transaction_id"] == "" && result.TransactionID != "" {
		payload["transaction_id"] = result.TransactionID
	}
	return PutInput{
		OrderID:        result.OrderID,
		State:          result.State,
		Source:         constants.SourceChannelPoll,
		GatewayOrderID: result.GatewayOrderID,
		RawPayload:     payload,
	}
}
