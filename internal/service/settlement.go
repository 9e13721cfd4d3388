package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hupay-bridge/internal/queue"
	"github.com/hupay-bridge/internal/reconcile"

	"github.com/go-resty/resty/v2"
	"github.com/hibiken/asynq"
)

// SettlementEvent 支付成功事件
type SettlementEvent struct {
	OrderID        string    `json:"order_id"`
	GatewayOrderID string    `json:"gateway_order_id,omitempty"`
	TransactionID  string    `json:"transaction_id,omitempty"`
	TotalFee       string    `json:"total_fee,omitempty"`
	Attach         string    `json:"attach,omitempty"`
	Source         string    `json:"source"`
	SettledAt      time.Time `json:"settled_at"`
}

// SettlementEventFromRecord 从状态记录构建事件
func SettlementEventFromRecord(record reconcile.Record) SettlementEvent {
	return SettlementEvent{
		OrderID:        record.OrderID,
		GatewayOrderID: record.GatewayOrderID,
		TransactionID:  record.RawPayload["transaction_id"],
		TotalFee:       record.RawPayload["total_fee"],
		Attach:         record.RawPayload["attach"],
		Source:         record.Source,
		SettledAt:      record.ObservedAt,
	}
}

// SettlementEventFromPayload 从队列任务载荷构建事件
func SettlementEventFromPayload(payload queue.SettlementSucceededPayload) SettlementEvent {
	return SettlementEvent{
		OrderID:        payload.OrderID,
		GatewayOrderID: payload.GatewayOrderID,
		TransactionID:  payload.TransactionID,
		TotalFee:       payload.TotalFee,
		Attach:         payload.Attach,
		Source:         payload.Source,
		SettledAt:      time.Unix(payload.SettledAt, 0).UTC(),
	}
}

// SettlementActivator 下游开通逻辑（如订阅激活），需自行保证幂等
type SettlementActivator interface {
	Activate(ctx context.Context, event SettlementEvent) error
}

// SettlementEnqueuer 结算任务投递
type SettlementEnqueuer interface {
	EnqueueSettlementSucceeded(payload queue.SettlementSucceededPayload, opts ...asynq.Option) error
}

// QueueSettlementHook 通过队列异步通知下游，任务以订单号去重
type QueueSettlementHook struct {
	enqueuer SettlementEnqueuer
}

// NewQueueSettlementHook 创建队列回调
func NewQueueSettlementHook(enqueuer SettlementEnqueuer) *QueueSettlementHook {
	return &QueueSettlementHook{enqueuer: enqueuer}
}

// OnSettled 投递结算任务
func (h *QueueSettlementHook) OnSettled(_ context.Context, record reconcile.Record) error {
	event := SettlementEventFromRecord(record)
	return h.enqueuer.EnqueueSettlementSucceeded(queue.SettlementSucceededPayload{
		OrderID:        event.OrderID,
		GatewayOrderID: event.GatewayOrderID,
		TransactionID:  event.TransactionID,
		TotalFee:       event.TotalFee,
		Attach:         event.Attach,
		Source:         event.Source,
		SettledAt:      event.SettledAt.Unix(),
	})
}

// DirectSettlementHook 同步调用下游，队列未启用时使用
type DirectSettlementHook struct {
	activator SettlementActivator
}

// NewDirectSettlementHook 创建同步回调
func NewDirectSettlementHook(activator SettlementActivator) *DirectSettlementHook {
	return &DirectSettlementHook{activator: activator}
}

// OnSettled 直接调用下游
func (h *DirectSettlementHook) OnSettled(ctx context.Context, record reconcile.Record) error {
	return h.activator.Activate(ctx, SettlementEventFromRecord(record))
}

// LogActivator 仅记录日志
type LogActivator struct{}

// Activate 记录支付成功事件
func (LogActivator) Activate(_ context.Context, event SettlementEvent) error {
	paymentLogger("order_id", event.OrderID).Infow("settlement_activated",
		"gateway_order_id", event.GatewayOrderID,
		"transaction_id", event.TransactionID,
		"total_fee", event.TotalFee,
		"source", event.Source,
	)
	return nil
}

// HTTPForwardActivator 将支付成功事件以 JSON 转发到下游地址
type HTTPForwardActivator struct {
	client *resty.Client
	url    string
}

// NewHTTPForwardActivator 创建转发器
func NewHTTPForwardActivator(url string, timeout time.Duration) *HTTPForwardActivator {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &HTTPForwardActivator{client: client, url: strings.TrimSpace(url)}
}

// Activate 转发事件，非 2xx 视为失败以便队列重试
func (a *HTTPForwardActivator) Activate(ctx context.Context, event SettlementEvent) error {
	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", "settled:"+event.OrderID).
		SetBody(event).
		Post(a.url)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSettlementForward, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: http %d", ErrSettlementForward, resp.StatusCode())
	}
	paymentLogger("order_id", event.OrderID).Infow("settlement_forwarded", "url", a.url, "http_status", resp.StatusCode())
	return nil
}

// NewSettlementActivator 根据配置选择下游实现
func NewSettlementActivator(forwardURL string, timeout time.Duration) SettlementActivator {
	if strings.TrimSpace(forwardURL) == "" {
		return LogActivator{}
	}
	return NewHTTPForwardActivator(forwardURL, timeout)
}
