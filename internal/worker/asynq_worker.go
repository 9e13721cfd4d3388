package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupay-bridge/internal/logger"
	"github.com/hupay-bridge/internal/payment/xunhu"
	"github.com/hupay-bridge/internal/provider"
	"github.com/hupay-bridge/internal/queue"
	"github.com/hupay-bridge/internal/reconcile"
	"github.com/hupay-bridge/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskSettlementSucceeded, c.handleSettlementSucceeded)
	mux.HandleFunc(queue.TaskPaymentReconcile, c.handlePaymentReconcile)
}

func (c *Consumer) handleSettlementSucceeded(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_settlement_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	payload, err := queue.ParseSettlementSucceededPayload(task.Payload())
	if err != nil {
		logger.Warnw("worker_settlement_payload_invalid", "error", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if c.Container == nil || c.Activator == nil {
		logger.Warnw("worker_settlement_skip_activator_nil", "order_id", payload.OrderID)
		return nil
	}
	if err := c.Activator.Activate(ctx, service.SettlementEventFromPayload(payload)); err != nil {
		logger.Warnw("worker_settlement_activate_failed",
			"order_id", payload.OrderID,
			"source", payload.Source,
			"error", err,
		)
		return err
	}
	logger.Infow("worker_settlement_activated", "order_id", payload.OrderID, "source", payload.Source)
	return nil
}

func (c *Consumer) handlePaymentReconcile(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_reconcile_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	payload, err := queue.ParsePaymentReconcilePayload(task.Payload())
	if err != nil {
		logger.Warnw("worker_reconcile_payload_invalid", "error", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if c.Container == nil || c.OrderService == nil || c.Reconciler == nil {
		logger.Warnw("worker_reconcile_skip_service_nil", "order_id", payload.OrderID)
		return nil
	}
	current, err := c.Reconciler.Get(ctx, payload.OrderID)
	if err != nil {
		logger.Warnw("worker_reconcile_store_read_failed", "order_id", payload.OrderID, "error", err)
	} else if current != nil && reconcile.IsTerminal(current.State) && !current.SettlementPending() {
		logger.Debugw("worker_reconcile_skip_terminal", "order_id", payload.OrderID, "state", current.State)
		return nil
	}

	record, err := c.OrderService.SyncOrder(ctx, payload.OrderID)
	if err != nil {
		var rejected *xunhu.RejectedError
		switch {
		case errors.Is(err, xunhu.ErrGatewayUnreachable):
			logger.Warnw("worker_reconcile_gateway_unreachable", "order_id", payload.OrderID, "error", err)
			return err
		case errors.Is(err, service.ErrOrderSyncFailed):
			logger.Warnw("worker_reconcile_apply_failed", "order_id", payload.OrderID, "error", err)
			return err
		case errors.As(err, &rejected):
			logger.Warnw("worker_reconcile_rejected", "order_id", payload.OrderID, "errcode", rejected.Code, "errmsg", rejected.Message)
			return nil
		case errors.Is(err, service.ErrGatewayUnavailable):
			logger.Warnw("worker_reconcile_skip_gateway_unavailable", "order_id", payload.OrderID)
			return nil
		default:
			logger.Warnw("worker_reconcile_failed", "order_id", payload.OrderID, "error", err)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
	}
	logger.Infow("worker_reconcile_done", "order_id", payload.OrderID, "state", record.State)
	return nil
}
