package router

import (
	"fmt"
	"strings"

	"github.com/hupay-bridge/internal/cache"
	"github.com/hupay-bridge/internal/config"
	paymenthandlers "github.com/hupay-bridge/internal/http/handlers/payment"
	"github.com/hupay-bridge/internal/logger"
	"github.com/hupay-bridge/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	paymentHandler := paymenthandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "hp"
	}
	redisClient := cache.Client()
	statusRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:status", redisPrefix),
		WindowSeconds: cfg.Security.StatusRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.StatusRateLimit.MaxRequests,
		JSONBody:      true,
	}
	createRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:create", redisPrefix),
		WindowSeconds: cfg.Security.CreateRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.CreateRateLimit.MaxRequests,
	}

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	pay := r.Group("/payment")
	{
		// 网关回调与前端轮询，响应格式固定
		pay.POST("/notify", paymentHandler.Notify)
		pay.GET("/status", RateLimitMiddleware(redisClient, statusRule, KeyByIP), paymentHandler.Status)

		pay.POST("/orders", RateLimitMiddleware(redisClient, createRule, KeyByIPAndJSONField("order_id")), paymentHandler.CreateOrder)
		pay.POST("/orders/:order_id/sync", paymentHandler.SyncOrder)
		pay.GET("/orders/:order_id/notifications", paymentHandler.OrderNotifications)
		pay.GET("/notifications", paymentHandler.ListNotifications)
	}

	// 健康检查
	r.GET("/healthz", paymentHandler.Healthz)

	return r
}
