package app

import (
	"errors"
	"time"

	"github.com/hupay-bridge/internal/cache"
	"github.com/hupay-bridge/internal/config"
	"github.com/hupay-bridge/internal/logger"
	"github.com/hupay-bridge/internal/models"
	"github.com/hupay-bridge/internal/provider"
	"github.com/hupay-bridge/internal/router"
	"github.com/hupay-bridge/internal/worker"
)

// BuildRunner 构建服务运行器
func BuildRunner(cfg *config.Config, mode string) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	mode, err := ParseMode(mode)
	if err != nil {
		return nil, err
	}

	container := provider.NewContainer(cfg)

	var services []Service

	// 初始化 HTTP 服务
	if servesHTTP(mode) {
		engine := router.SetupRouter(cfg, container)
		addr := cfg.Server.Host + ":" + cfg.Server.Port
		httpService := NewHTTPService(addr, engine, httpTimeouts(cfg.Server))
		services = append(services, httpService)
	}

	// 初始化 Worker 服务；all 模式下未启用队列时只跳过
	if runsWorker(mode, cfg.Queue.Enabled) {
		consumer := worker.NewConsumer(container)
		workerService, err := worker.NewService(&cfg.Queue, consumer)
		if err != nil {
			return nil, err
		}
		services = append(services, workerService)
	} else if mode == ModeAll {
		logger.Infow("app_worker_skipped", "reason", "queue disabled")
	}

	// 内存状态存储需要周期清理，跟随 HTTP 进程
	if servesHTTP(mode) && len(container.Sweepers) > 0 {
		services = append(services, worker.NewSweepService(container.Sweepers, cfg.Reconcile.SweepInterval()))
	}

	if len(services) == 0 {
		return nil, errors.New("no services initialized (check mode and config)")
	}

	runner := NewRunner(services...)
	runner.AddCloser("database", models.Close)
	runner.AddCloser("redis", cache.Reset)
	if container.QueueClient != nil {
		runner.AddCloser("queue_client", container.QueueClient.Close)
	}
	return runner, nil
}

func httpTimeouts(cfg config.ServerConfig) HTTPTimeouts {
	return HTTPTimeouts{
		ReadHeader: time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second,
		Read:       time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		Write:      time.Duration(cfg.WriteTimeoutSeconds) * time.Second,
		Idle:       time.Duration(cfg.IdleTimeoutSeconds) * time.Second,
	}
}

// Run 应用启动入口
func Run(opts Options) error {
	opts = normalizeOptions(opts)
	if opts.Config == nil {
		return errors.New("config is nil")
	}

	runner, err := BuildRunner(opts.Config, opts.Mode)
	if err != nil {
		return err
	}

	addr := opts.Config.Server.Host + ":" + opts.Config.Server.Port
	opts.Logger.Infow("app_start", "addr", addr, "mode", opts.Mode, "gateway", opts.Config.Gateway.String())
	return RunWithOptions(runner, opts)
}
