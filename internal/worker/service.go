package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hupay-bridge/internal/config"
	"github.com/hupay-bridge/internal/logger"
	"github.com/hupay-bridge/internal/provider"
	"github.com/hupay-bridge/internal/queue"

	"github.com/hibiken/asynq"
)

const defaultSweepInterval = time.Minute

// Service 异步队列服务
type Service struct {
	name     string
	server   *asynq.Server
	mux      *asynq.ServeMux
	consumer *Consumer
}

// NewService 创建异步队列服务
func NewService(cfg *config.QueueConfig, consumer *Consumer) (*Service, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(cfg)
	server := asynq.NewServer(opt, serverCfg)
	mux := asynq.NewServeMux()
	consumer.Register(mux)
	return &Service{
		name:     "worker",
		server:   server,
		mux:      mux,
		consumer: consumer,
	}, nil
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start 启动服务
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	return s.server.Run(s.mux)
}

// Stop 停止服务
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	_ = ctx
	s.server.Shutdown()
	return nil
}

// SweepService 周期清理内存状态存储与回调去重表
type SweepService struct {
	sweepers []provider.Sweeper
	interval time.Duration
	now      func() time.Time
	done     chan struct{}
	stopOnce sync.Once
}

// NewSweepService 创建清理服务
func NewSweepService(sweepers []provider.Sweeper, interval time.Duration) *SweepService {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &SweepService{
		sweepers: sweepers,
		interval: interval,
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

// Name 服务名称
func (s *SweepService) Name() string {
	return "sweeper"
}

// Start 阻塞运行直到 ctx 取消或 Stop
func (s *SweepService) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		case <-ticker.C:
			s.SweepOnce()
		}
	}
}

// Stop 停止清理
func (s *SweepService) Stop(_ context.Context) error {
	s.stopOnce.Do(func() { close(s.done) })
	return nil
}

// SweepOnce 执行一次清理，返回清理条数
func (s *SweepService) SweepOnce() int {
	now := s.now()
	total := 0
	for _, sweeper := range s.sweepers {
		if sweeper == nil {
			continue
		}
		total += sweeper.Sweep(now)
	}
	if total > 0 {
		logger.Infow("worker_sweep_done", "evicted", total)
	}
	return total
}
