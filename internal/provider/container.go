package provider

import (
	"strings"
	"time"

	"github.com/hupay-bridge/internal/cache"
	"github.com/hupay-bridge/internal/config"
	"github.com/hupay-bridge/internal/constants"
	"github.com/hupay-bridge/internal/logger"
	"github.com/hupay-bridge/internal/models"
	"github.com/hupay-bridge/internal/payment/xunhu"
	"github.com/hupay-bridge/internal/queue"
	"github.com/hupay-bridge/internal/reconcile"
	"github.com/hupay-bridge/internal/repository"
	"github.com/hupay-bridge/internal/service"
)

// Sweeper 内存结构的周期清理
type Sweeper interface {
	Sweep(now time.Time) int
}

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client
	Gateway     *xunhu.Client

	// 状态存储
	Store      reconcile.Store
	Replay     reconcile.ReplayGuard
	Reconciler *reconcile.Reconciler
	Sweepers   []Sweeper

	// Repositories
	NotificationLogRepo repository.NotificationLogRepository

	// Services
	Activator              service.SettlementActivator
	CallbackService        *service.CallbackService
	OrderService           *service.OrderService
	NotificationLogService *service.NotificationLogService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
	}

	c.initGateway()
	c.initStores()
	c.initRepositories()
	c.initServices()

	return c
}

func (c *Container) initGateway() {
	client, err := xunhu.NewClient(c.Config.Gateway.ToXunhuConfig())
	if err != nil {
		// 未配置网关时仍可接收回调与查询状态，下单与查单返回不可用
		logger.Warnw("provider_init_gateway_failed", "gateway", c.Config.Gateway.String(), "error", err)
		return
	}
	c.Gateway = client
}

func (c *Container) initStores() {
	rc := c.Config.Reconcile
	backend := strings.ToLower(strings.TrimSpace(rc.Backend))
	if backend == constants.ReconcileBackendRedis {
		if client := cache.Client(); client != nil {
			c.Store = reconcile.NewRedisStore(client, cache.Prefix(), rc.TerminalRetention(), rc.PendingRetention())
			c.Replay = reconcile.NewRedisReplayGuard(client, cache.Prefix(), rc.ReplayTTL())
			logger.Infow("provider_reconcile_backend", "backend", constants.ReconcileBackendRedis)
			return
		}
		logger.Warnw("provider_reconcile_redis_unavailable", "fallback", constants.ReconcileBackendMemory)
	}
	memoryStore := reconcile.NewMemoryStore(reconcile.WithRetention(rc.TerminalRetention(), rc.PendingRetention()))
	replay := reconcile.NewMemoryReplayGuard(rc.ReplayTTL())
	c.Store = memoryStore
	c.Replay = replay
	c.Sweepers = append(c.Sweepers, memoryStore, replay)
	logger.Infow("provider_reconcile_backend", "backend", constants.ReconcileBackendMemory)
}

func (c *Container) initRepositories() {
	if models.DB == nil {
		logger.Warnw("provider_audit_repo_disabled", "reason", "database not initialized")
		return
	}
	c.NotificationLogRepo = repository.NewNotificationLogRepository(models.DB)
}

func (c *Container) initServices() {
	settlement := c.Config.Settlement
	c.Activator = service.NewSettlementActivator(settlement.ForwardURL, time.Duration(settlement.ForwardTimeoutSeconds)*time.Second)

	var hook reconcile.SettlementHook
	if c.QueueClient.Enabled() {
		hook = service.NewQueueSettlementHook(c.QueueClient)
	} else {
		hook = service.NewDirectSettlementHook(c.Activator)
	}
	c.Reconciler = reconcile.NewReconciler(c.Store, hook)

	c.CallbackService = service.NewCallbackService(service.CallbackServiceOptions{
		AppID:      c.Config.Gateway.AppID,
		AppSecret:  c.Config.Gateway.AppSecret,
		MaxSkew:    c.Config.Gateway.CallbackMaxSkew(),
		Reconciler: c.Reconciler,
		Replay:     c.Replay,
		AuditRepo:  c.NotificationLogRepo,
	})

	orderOpts := service.OrderServiceOptions{
		Reconciler:     c.Reconciler,
		ReconcileDelay: c.Config.Queue.ReconcileDelay(),
		CacheTTL:       time.Duration(settlement.OrderCacheMinutes) * time.Minute,
	}
	if c.Gateway != nil {
		orderOpts.Gateway = c.Gateway
	}
	if c.QueueClient.Enabled() {
		orderOpts.Scheduler = c.QueueClient
	}
	c.OrderService = service.NewOrderService(orderOpts)
	c.NotificationLogService = service.NewNotificationLogService(c.NotificationLogRepo)
}
