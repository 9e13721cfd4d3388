package payment

import (
	"github.com/hupay-bridge/internal/http/handlers/shared"
	"github.com/hupay-bridge/internal/provider"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler 支付接口处理器
type Handler struct {
	*provider.Container
}

// New 创建支付处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}

func requestLog(c *gin.Context) *zap.SugaredLogger {
	return shared.RequestLog(c)
}

func respondError(c *gin.Context, code int, msg string, err error) {
	shared.RespondError(c, code, msg, err)
}
