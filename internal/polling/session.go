package polling

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hupay-bridge/internal/constants"
	"github.com/hupay-bridge/internal/logger"
	"github.com/hupay-bridge/internal/payment/xunhu"
	"github.com/hupay-bridge/internal/reconcile"
)

const (
	defaultInterval    = 5 * time.Second
	defaultMaxDuration = 5 * time.Minute
)

// ErrOrderIDRequired 订单号为空
var ErrOrderIDRequired = errors.New("polling order id is required")

// StatusSource 状态读取与写入
type StatusSource interface {
	Get(ctx context.Context, orderID string) (*reconcile.Record, error)
	Observe(ctx context.Context, input reconcile.PutInput) (reconcile.Transition, error)
}

// GatewayQuerier 网关查单
type GatewayQuerier interface {
	QueryOrder(ctx context.Context, input xunhu.QueryInput) (*xunhu.QueryResult, error)
}

// Config 轮询参数
type Config struct {
	Interval    time.Duration
	MaxDuration time.Duration
}

func (c Config) normalize() Config {
	if c.Interval <= 0 {
		c.Interval = defaultInterval
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = defaultMaxDuration
	}
	return c
}

// Result 轮询结果
type Result struct {
	OrderID  string
	State    string
	Terminal bool
	TimedOut bool
	Attempts int
	Record   *reconcile.Record
}

// Option 会话选项
type Option func(*Session)

// WithUpdate 每次检查后回调，用于展示进度
func WithUpdate(fn func(Result)) Option {
	return func(s *Session) {
		s.onUpdate = fn
	}
}

// Session 按固定间隔检查订单状态，直到终态或超时
type Session struct {
	source   StatusSource
	gateway  GatewayQuerier
	cfg      Config
	onUpdate func(Result)
}

// NewSession 创建轮询会话；gateway 为 nil 时只读取状态存储
func NewSession(source StatusSource, gateway GatewayQuerier, cfg Config, opts ...Option) *Session {
	s := &Session{
		source:  source,
		gateway: gateway,
		cfg:     cfg.normalize(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run 阻塞轮询。超时返回 pending 且不返回错误；ctx 取消时返回 ctx.Err()
func (s *Session) Run(ctx context.Context, orderID string) (Result, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Result{}, ErrOrderIDRequired
	}
	result := Result{OrderID: orderID, State: constants.SettlementStatePending}
	log := logger.SW("order_id", orderID)

	deadline := time.NewTimer(s.cfg.MaxDuration)
	defer deadline.Stop()
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	var seen time.Time
	for {
		result.Attempts++
		done, err := s.check(ctx, orderID, &result, &seen)
		if err != nil {
			return result, err
		}
		if s.onUpdate != nil {
			s.onUpdate(result)
		}
		if done {
			log.Infow("polling_terminal", "state", result.State, "attempts", result.Attempts)
			return result, nil
		}

		select {
		case <-ctx.Done():
			log.Infow("polling_cancelled", "attempts", result.Attempts)
			return result, ctx.Err()
		case <-deadline.C:
			log.Infow("polling_timeout", "attempts", result.Attempts, "max_duration", s.cfg.MaxDuration)
			result.State = constants.SettlementStatePending
			result.TimedOut = true
			return result, nil
		case <-ticker.C:
		}
	}
}

// check 返回是否已到达终态；仅不可重试的错误会返回 error。
// seen 为本会话上次看到或写入的观测时间：记录在此之后被其他渠道刷新过则直接复用，不再查单
func (s *Session) check(ctx context.Context, orderID string, result *Result, seen *time.Time) (bool, error) {
	record, err := s.source.Get(ctx, orderID)
	if err != nil {
		logger.Warnw("polling_store_read_failed", "order_id", orderID, "error", err)
	} else if record != nil {
		result.Record = record
		result.State = record.State
		if reconcile.IsTerminal(record.State) {
			result.Terminal = true
			return true, nil
		}
		if record.ObservedAt.After(*seen) {
			*seen = record.ObservedAt
			return false, nil
		}
	}
	if s.gateway == nil {
		return false, nil
	}

	queried, err := s.gateway.QueryOrder(ctx, xunhu.QueryInput{OrderID: orderID})
	if err != nil {
		if errors.Is(err, xunhu.ErrInvalidQuery) {
			return false, err
		}
		logger.Warnw("polling_query_failed", "order_id", orderID, "error", err)
		return false, nil
	}
	transition, err := s.source.Observe(ctx, reconcile.ObservationFromQuery(queried))
	if err != nil && !errors.Is(err, reconcile.ErrHookFailed) {
		logger.Warnw("polling_observe_failed", "order_id", orderID, "error", err)
		return false, nil
	}
	if transition.Current == nil {
		return false, nil
	}
	*seen = transition.Current.ObservedAt
	result.Record = transition.Current
	result.State = transition.Current.State
	if reconcile.IsTerminal(result.State) {
		result.Terminal = true
		return true, nil
	}
	return false, nil
}
