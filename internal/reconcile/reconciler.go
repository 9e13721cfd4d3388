package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/hupay-bridge/internal/logger"
)

// SettlementHook 订单进入 success 后调用，失败时由后续的 success 观测重试
type SettlementHook interface {
	OnSettled(ctx context.Context, record Record) error
}

// HookFunc 函数形式的 SettlementHook
type HookFunc func(ctx context.Context, record Record) error

// OnSettled 调用函数本身
func (f HookFunc) OnSettled(ctx context.Context, record Record) error {
	return f(ctx, record)
}

// Reconciler 汇总回调与轮询两个渠道的状态观测
type Reconciler struct {
	store Store
	hook  SettlementHook
	now   func() time.Time
}

// NewReconciler 创建对账器，hook 可为 nil
func NewReconciler(store Store, hook SettlementHook) *Reconciler {
	return &Reconciler{store: store, hook: hook, now: time.Now}
}

// Get 查询订单状态
func (r *Reconciler) Get(ctx context.Context, orderID string) (*Record, error) {
	return r.store.Get(ctx, orderID)
}

// Observe 写入一次状态观测；success 且结算未交付时触发结算回调，成功后标记已交付
func (r *Reconciler) Observe(ctx context.Context, input PutInput) (Transition, error) {
	if input.ObservedAt.IsZero() {
		input.ObservedAt = r.now()
	}
	transition, err := r.store.Put(ctx, input)
	if err != nil {
		logger.Warnw("reconcile_put_failed",
			"order_id", input.OrderID,
			"state", input.State,
			"source", input.Source,
			"error", err,
		)
		return transition, err
	}
	if !transition.Applied {
		logger.Infow("reconcile_observation_discarded",
			"order_id", input.OrderID,
			"current_state", transition.PreviousState,
			"incoming_state", input.State,
			"source", input.Source,
		)
		return transition, nil
	}
	if transition.PreviousState != transition.Current.State {
		logger.Infow("reconcile_state_changed",
			"order_id", input.OrderID,
			"from", transition.PreviousState,
			"to", transition.Current.State,
			"source", input.Source,
		)
	}
	if !transition.Settled() {
		return transition, nil
	}
	if r.hook != nil {
		if err := r.hook.OnSettled(ctx, *transition.Current); err != nil {
			logger.Errorw("reconcile_settlement_hook_failed",
				"order_id", input.OrderID,
				"source", input.Source,
				"error", err,
			)
			if releaseErr := r.store.ReleaseSettlement(ctx, input.OrderID); releaseErr != nil {
				logger.Warnw("reconcile_settlement_release_failed", "order_id", input.OrderID, "error", releaseErr)
			}
			return transition, fmt.Errorf("%w: %v", ErrHookFailed, err)
		}
		logger.Infow("reconcile_settlement_hook_fired",
			"order_id", input.OrderID,
			"source", input.Source,
		)
	}
	if err := r.store.MarkSettled(ctx, input.OrderID); err != nil {
		// 执行权到期前不会重复触发
		logger.Errorw("reconcile_settlement_mark_failed", "order_id", input.OrderID, "error", err)
		return transition, nil
	}
	transition.Current.SettlementDelivered = true
	return transition, nil
}
