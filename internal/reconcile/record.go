package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupay-bridge/internal/constants"
)

var (
	ErrOrderIDRequired = errors.New("reconcile order id is required")
	ErrStateInvalid    = errors.New("reconcile state invalid")
	ErrSourceInvalid   = errors.New("reconcile source invalid")
	ErrHookFailed      = errors.New("reconcile settlement hook failed")
)

// defaultSettleLease 结算回调执行权的占用时长，超时后下一次 success 观测可重新获取
const defaultSettleLease = 2 * time.Minute

// Record 订单状态记录
type Record struct {
	OrderID        string            `json:"order_id"`
	State          string            `json:"state"`
	Source         string            `json:"source"`
	ObservedAt     time.Time         `json:"observed_at"`
	GatewayOrderID string            `json:"gateway_order_id,omitempty"`
	RawPayload     map[string]string `json:"raw_payload,omitempty"`
	// SettlementDelivered 结算回调已成功执行
	SettlementDelivered bool `json:"settlement_delivered"`

	settleClaimedAt time.Time
}

// SettlementPending 已支付但结算回调尚未成功
func (r *Record) SettlementPending() bool {
	return r != nil && r.State == constants.SettlementStateSuccess && !r.SettlementDelivered
}

// claimSettlement 尝试取得结算回调执行权
func (r *Record) claimSettlement(now time.Time, lease time.Duration) bool {
	if !r.SettlementPending() {
		return false
	}
	if !r.settleClaimedAt.IsZero() && now.Sub(r.settleClaimedAt) < lease {
		return false
	}
	r.settleClaimedAt = now
	return true
}

func (r *Record) clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	cp.RawPayload = copyPayload(r.RawPayload)
	return &cp
}

// PutInput 状态写入请求
type PutInput struct {
	OrderID        string
	State          string
	Source         string
	GatewayOrderID string
	RawPayload     map[string]string
	ObservedAt     time.Time
}

// Transition 一次写入的结果
type Transition struct {
	PreviousState string // 记录不存在时为空
	Current       *Record
	Applied       bool

	claimed bool
}

// Settled 本次写入是否取得了结算回调的执行权。
// 订单为 success 且结算尚未交付、没有其他调用方持有未过期的执行权时为 true
func (t Transition) Settled() bool {
	return t.claimed
}

// Store 订单状态存储，实现必须保证单个订单的读改写是原子的
type Store interface {
	// Get 记录不存在时返回 nil, nil
	Get(ctx context.Context, orderID string) (*Record, error)
	// Put 写入状态；写入 success 且结算未交付时同时尝试取得结算执行权
	Put(ctx context.Context, input PutInput) (Transition, error)
	// MarkSettled 结算回调成功后标记已交付
	MarkSettled(ctx context.Context, orderID string) error
	// ReleaseSettlement 结算回调失败后释放执行权，下一次 success 观测会重试
	ReleaseSettlement(ctx context.Context, orderID string) error
}

// IsTerminal 判断是否为终态
func IsTerminal(state string) bool {
	switch state {
	case constants.SettlementStateSuccess,
		constants.SettlementStateCancelled,
		constants.SettlementStateRefundFailed:
		return true
	default:
		return false
	}
}

func isKnownState(state string) bool {
	switch state {
	case constants.SettlementStatePending,
		constants.SettlementStateSuccess,
		constants.SettlementStateCancelled,
		constants.SettlementStateRefunding,
		constants.SettlementStateRefundFailed:
		return true
	default:
		return false
	}
}

// shouldApply success 只接受 success；其他终态只接受终态；非终态接受任意写入
func shouldApply(previous, next string) bool {
	switch {
	case previous == "":
		return true
	case previous == constants.SettlementStateSuccess:
		return next == constants.SettlementStateSuccess
	case IsTerminal(previous):
		return IsTerminal(next)
	default:
		return true
	}
}

func normalizeInput(input PutInput) (PutInput, error) {
	input.OrderID = strings.TrimSpace(input.OrderID)
	if input.OrderID == "" {
		return input, ErrOrderIDRequired
	}
	input.State = strings.TrimSpace(input.State)
	if !isKnownState(input.State) {
		return input, fmt.Errorf("%w: %q", ErrStateInvalid, input.State)
	}
	input.Source = strings.TrimSpace(input.Source)
	if input.Source != constants.SourceChannelWebhook && input.Source != constants.SourceChannelPoll {
		return input, fmt.Errorf("%w: %q", ErrSourceInvalid, input.Source)
	}
	input.GatewayOrderID = strings.TrimSpace(input.GatewayOrderID)
	if input.ObservedAt.IsZero() {
		input.ObservedAt = time.Now()
	}
	input.ObservedAt = input.ObservedAt.UTC()
	return input, nil
}

func recordFromInput(input PutInput, previous *Record) *Record {
	record := &Record{
		OrderID:        input.OrderID,
		State:          input.State,
		Source:         input.Source,
		ObservedAt:     input.ObservedAt,
		GatewayOrderID: input.GatewayOrderID,
		RawPayload:     copyPayload(input.RawPayload),
	}
	if previous != nil {
		if record.GatewayOrderID == "" {
			record.GatewayOrderID = previous.GatewayOrderID
		}
		record.SettlementDelivered = previous.SettlementDelivered
		record.settleClaimedAt = previous.settleClaimedAt
	}
	return record
}

func copyPayload(payload map[string]string) map[string]string {
	if payload == nil {
		return nil
	}
	cp := make(map[string]string, len(payload))
	for k, v := range payload {
		cp[k] = v
	}
	return cp
}

func normalizeLookup(orderID string) (string, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return "", ErrOrderIDRequired
	}
	return orderID, nil
}
