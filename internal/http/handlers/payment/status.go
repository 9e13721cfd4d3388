package payment

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Status 前端轮询订单状态，返回 {"status": "..."}
func (h *Handler) Status(c *gin.Context) {
	orderID := strings.TrimSpace(c.Query("order_id"))
	if orderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "order_id is required"})
		return
	}
	state, err := h.OrderService.Status(c.Request.Context(), orderID)
	if err != nil {
		requestLog(c).Errorw("payment_status_fetch_failed", "order_id", orderID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "status unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": state})
}
