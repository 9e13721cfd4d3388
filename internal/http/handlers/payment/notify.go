package payment

import (
	"net/http"
	"strings"
	"time"

	"github.com/hupay-bridge/internal/constants"
	"github.com/hupay-bridge/internal/service"

	"github.com/gin-gonic/gin"
)

// Notify 网关异步回调，无论处理结果如何都返回 200 success
func (h *Handler) Notify(c *gin.Context) {
	receivedAt := time.Now()
	log := requestLog(c).With(
		"client_ip", c.ClientIP(),
		"content_type", strings.TrimSpace(c.GetHeader("Content-Type")),
	)
	form, err := parseCallbackForm(c)
	if err != nil {
		log.Warnw("payment_notify_form_invalid", "error", err)
		form = map[string][]string{}
	}
	if h.Container == nil || h.CallbackService == nil {
		log.Errorw("payment_notify_service_missing")
		c.String(http.StatusOK, constants.GatewayCallbackAck)
		return
	}
	decision := h.CallbackService.Handle(c.Request.Context(), service.CallbackInput{
		Form:       form,
		ClientIP:   c.ClientIP(),
		ReceivedAt: receivedAt,
	})
	log.Infow("payment_notify_handled",
		"order_id", decision.OrderID,
		"outcome", decision.Outcome,
		"state", decision.State,
		"applied", decision.Applied,
		"settled", decision.Settled,
	)
	c.String(http.StatusOK, decision.Body)
}

func parseCallbackForm(c *gin.Context) (map[string][]string, error) {
	if err := c.Request.ParseForm(); err != nil {
		return nil, err
	}
	if len(c.Request.PostForm) > 0 {
		return c.Request.PostForm, nil
	}
	return c.Request.Form, nil
}
