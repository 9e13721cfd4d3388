package payment

import (
	"context"
	"net/http"
	"time"

	"github.com/hupay-bridge/internal/cache"
	"github.com/hupay-bridge/internal/models"

	"github.com/gin-gonic/gin"
)

const healthCheckTimeout = 2 * time.Second

// Healthz 健康检查，依赖异常时返回 503
func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	checks := gin.H{"gateway": h.Container != nil && h.Gateway != nil}
	healthy := true
	if cache.Enabled() {
		if err := cache.Ping(ctx); err != nil {
			requestLog(c).Warnw("healthz_redis_failed", "error", err)
			checks["redis"] = false
			healthy = false
		} else {
			checks["redis"] = true
		}
	}
	if models.DB != nil {
		sqlDB, err := models.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			requestLog(c).Warnw("healthz_database_failed", "error", err)
			checks["database"] = false
			healthy = false
		} else {
			checks["database"] = true
		}
	}
	status := http.StatusOK
	text := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		text = "degraded"
	}
	c.JSON(status, gin.H{"status": text, "checks": checks})
}
