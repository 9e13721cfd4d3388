package queue

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupay-bridge/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskSettlementSucceeded 支付成功结算任务
	TaskSettlementSucceeded = constants.TaskSettlementSucceeded
	// TaskPaymentReconcile 服务端兜底查单任务
	TaskPaymentReconcile = constants.TaskPaymentReconcile
)

// SettlementSucceededPayload 支付成功结算任务载荷
type SettlementSucceededPayload struct {
	OrderID        string `json:"order_id"`
	GatewayOrderID string `json:"gateway_order_id,omitempty"`
	TransactionID  string `json:"transaction_id,omitempty"`
	TotalFee       string `json:"total_fee,omitempty"`
	Attach         string `json:"attach,omitempty"`
	Source         string `json:"source"`
	SettledAt      int64  `json:"settled_at"`
}

// PaymentReconcilePayload 兜底查单任务载荷
type PaymentReconcilePayload struct {
	OrderID string `json:"order_id"`
}

// SettlementTaskID 同一订单只允许存在一个结算任务
func SettlementTaskID(orderID string) string {
	return "settled:" + strings.TrimSpace(orderID)
}

// ReconcileTaskID 同一订单只允许存在一个兜底查单任务
func ReconcileTaskID(orderID string) string {
	return "reconcile:" + strings.TrimSpace(orderID)
}

// NewSettlementSucceededTask 创建结算任务
func NewSettlementSucceededTask(payload SettlementSucceededPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSettlementSucceeded, body), nil
}

// NewPaymentReconcileTask 创建兜底查单任务
func NewPaymentReconcileTask(payload PaymentReconcilePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPaymentReconcile, body), nil
}

// ParseSettlementSucceededPayload 解析结算任务载荷
func ParseSettlementSucceededPayload(body []byte) (SettlementSucceededPayload, error) {
	var payload SettlementSucceededPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return payload, err
	}
	if strings.TrimSpace(payload.OrderID) == "" {
		return payload, fmt.Errorf("settlement payload missing order_id")
	}
	return payload, nil
}

// ParsePaymentReconcilePayload 解析兜底查单任务载荷
func ParsePaymentReconcilePayload(body []byte) (PaymentReconcilePayload, error) {
	var payload PaymentReconcilePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return payload, err
	}
	if strings.TrimSpace(payload.OrderID) == "" {
		return payload, fmt.Errorf("reconcile payload missing order_id")
	}
	return payload, nil
}
