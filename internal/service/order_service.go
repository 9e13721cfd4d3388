package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupay-bridge/internal/cache"
	"github.com/hupay-bridge/internal/constants"
	"github.com/hupay-bridge/internal/payment/xunhu"
	"github.com/hupay-bridge/internal/queue"
	"github.com/hupay-bridge/internal/reconcile"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// PaymentGateway 网关下单与查单
type PaymentGateway interface {
	CreateOrder(ctx context.Context, input xunhu.CreateInput) (*xunhu.CreateResult, error)
	QueryOrder(ctx context.Context, input xunhu.QueryInput) (*xunhu.QueryResult, error)
}

// ReconcileScheduler 延迟查单任务投递
type ReconcileScheduler interface {
	EnqueuePaymentReconcile(payload queue.PaymentReconcilePayload, delay time.Duration) error
}

// OrderServiceOptions 订单服务依赖
type OrderServiceOptions struct {
	Gateway        PaymentGateway
	Reconciler     *reconcile.Reconciler
	Scheduler      ReconcileScheduler
	ReconcileDelay time.Duration
	CacheTTL       time.Duration
}

// OrderService 支付订单服务
type OrderService struct {
	gateway        PaymentGateway
	reconciler     *reconcile.Reconciler
	scheduler      ReconcileScheduler
	reconcileDelay time.Duration
	cacheTTL       time.Duration
	inflight       singleflight.Group
}

// NewOrderService 创建订单服务
func NewOrderService(opts OrderServiceOptions) *OrderService {
	return &OrderService{
		gateway:        opts.Gateway,
		reconciler:     opts.Reconciler,
		scheduler:      opts.Scheduler,
		reconcileDelay: opts.ReconcileDelay,
		cacheTTL:       opts.CacheTTL,
	}
}

// CreateOrderInput 下单输入
type CreateOrderInput struct {
	OrderID     string
	Amount      string
	Title       string
	Attach      string
	ReturnURL   string
	CallbackURL string
}

// CreateOrderResult 下单结果
type CreateOrderResult struct {
	OrderID        string `json:"order_id"`
	GatewayOrderID string `json:"gateway_order_id"`
	RedirectURL    string `json:"redirect_url"`
	QRCodeURL      string `json:"qrcode_url"`
	Amount         string `json:"amount"`
	Cached         bool   `json:"cached"`
}

// CreateOrder 下单；同一订单号并发或重复下单只请求一次网关
func (s *OrderService) CreateOrder(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error) {
	orderID := strings.TrimSpace(input.OrderID)
	if orderID == "" {
		return nil, ErrOrderIDRequired
	}
	if strings.TrimSpace(input.Title) == "" {
		return nil, ErrOrderTitleRequired
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(input.Amount))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAmountInvalid, err)
	}
	amountText, err := xunhu.FormatAmount(amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAmountInvalid, err)
	}
	if s.gateway == nil {
		return nil, ErrGatewayUnavailable
	}
	log := paymentLogger("order_id", orderID, "amount", amountText)

	if snapshot, hit, err := cache.GetCreatedOrder(ctx, orderID); err != nil {
		log.Warnw("order_create_cache_read_failed", "error", err)
	} else if hit && snapshot.Amount == amountText {
		log.Infow("order_create_cache_hit")
		return &CreateOrderResult{
			OrderID:        snapshot.OrderID,
			GatewayOrderID: snapshot.GatewayOrderID,
			RedirectURL:    snapshot.RedirectURL,
			QRCodeURL:      snapshot.QRCodeURL,
			Amount:         snapshot.Amount,
			Cached:         true,
		}, nil
	}

	value, err, shared := s.inflight.Do(orderID+"|"+amountText, func() (interface{}, error) {
		created, err := s.gateway.CreateOrder(ctx, xunhu.CreateInput{
			OrderID:     orderID,
			Amount:      amount,
			Title:       strings.TrimSpace(input.Title),
			Attach:      input.Attach,
			ReturnURL:   strings.TrimSpace(input.ReturnURL),
			CallbackURL: strings.TrimSpace(input.CallbackURL),
		})
		if err != nil {
			return nil, err
		}
		result := &CreateOrderResult{
			OrderID:        orderID,
			GatewayOrderID: created.GatewayOrderID,
			RedirectURL:    created.RedirectURL,
			QRCodeURL:      created.QRCodeURL,
			Amount:         amountText,
		}
		s.afterCreate(ctx, result)
		return result, nil
	})
	if err != nil {
		var rejected *xunhu.RejectedError
		switch {
		case errors.As(err, &rejected):
			log.Warnw("order_create_rejected", "errcode", rejected.Code, "errmsg", rejected.Message)
		case errors.Is(err, xunhu.ErrGatewayUnreachable):
			log.Warnw("order_create_gateway_unreachable", "error", err)
		default:
			log.Errorw("order_create_failed", "error", err)
		}
		return nil, err
	}
	result := *value.(*CreateOrderResult)
	log.Infow("order_created", "gateway_order_id", result.GatewayOrderID, "shared", shared)
	return &result, nil
}

// afterCreate 缓存支付链接并安排兜底查单
func (s *OrderService) afterCreate(ctx context.Context, result *CreateOrderResult) {
	log := paymentLogger("order_id", result.OrderID)
	if err := cache.SetCreatedOrder(ctx, &cache.CreatedOrder{
		OrderID:        result.OrderID,
		GatewayOrderID: result.GatewayOrderID,
		RedirectURL:    result.RedirectURL,
		QRCodeURL:      result.QRCodeURL,
		Amount:         result.Amount,
		CreatedAt:      time.Now().Unix(),
	}, s.cacheTTL); err != nil {
		log.Warnw("order_create_cache_write_failed", "error", err)
	}
	if s.scheduler == nil || s.reconcileDelay <= 0 {
		return
	}
	if err := s.scheduler.EnqueuePaymentReconcile(queue.PaymentReconcilePayload{OrderID: result.OrderID}, s.reconcileDelay); err != nil {
		log.Warnw("order_reconcile_enqueue_failed", "error", err)
	}
}

// SyncOrder 主动查单一次并写入状态
func (s *OrderService) SyncOrder(ctx context.Context, orderID string) (*reconcile.Record, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, ErrOrderIDRequired
	}
	if s.gateway == nil {
		return nil, ErrGatewayUnavailable
	}
	log := paymentLogger("order_id", orderID)
	result, err := s.gateway.QueryOrder(ctx, xunhu.QueryInput{OrderID: orderID})
	if err != nil {
		log.Warnw("order_sync_query_failed", "error", err)
		return nil, err
	}
	transition, err := s.reconciler.Observe(ctx, reconcile.ObservationFromQuery(result))
	if err != nil {
		// 结算回调失败时状态已写入，返回错误让调用方或任务重试以再次触发回调
		if errors.Is(err, reconcile.ErrHookFailed) {
			log.Errorw("order_sync_settlement_failed", "state", result.State, "error", err)
		} else {
			log.Errorw("order_sync_apply_failed", "state", result.State, "error", err)
		}
		return nil, fmt.Errorf("%w: %v", ErrOrderSyncFailed, err)
	}
	log.Infow("order_synced",
		"gateway_status", result.StatusCode,
		"state", transition.Current.State,
		"applied", transition.Applied,
	)
	return transition.Current, nil
}

// Status 返回订单语义状态，未知订单视为 pending
func (s *OrderService) Status(ctx context.Context, orderID string) (string, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return "", ErrOrderIDRequired
	}
	record, err := s.reconciler.Get(ctx, orderID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStatusFetchFailed, err)
	}
	if record == nil {
		return constants.SettlementStatePending, nil
	}
	return record.State, nil
}
