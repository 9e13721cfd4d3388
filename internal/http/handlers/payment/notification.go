package payment

import (
	"errors"
	"strconv"
	"strings"
	"time"

		"github.com/hupay-bridge/internal/http/response"
	"github.com/hupay-bridge/internal/repository"
	"github.com/hupay-bridge/internal/service"

	"github.com/gin-gonic/gin"
)

const orderNotificationLimit = 50

// ListNotifications 回调审计分页列表
func (h *Handler) ListNotifications(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = repository.NormalizePage(page, pageSize)

	receivedFrom, err := parseTimeNullable(strings.TrimSpace(c.Query("received_from")))
	if err != nil {
		respondError(c, response.CodeBadRequest, "received_from must be RFC3339", err)
		return
	}
	receivedTo, err := parseTimeNullable(strings.TrimSpace(c.Query("received_to")))
	if err != nil {
		respondError(c, response.CodeBadRequest, "received_to must be RFC3339", err)
		return
	}

	items, total, err := h.NotificationLogService.List(service.ListNotificationsInput{
		Page:          page,
		PageSize:      pageSize,
		OrderID:       c.Query("order_id"),
		Outcome:       c.Query("outcome"),
		TransactionID: c.Query("transaction_id"),
		Attach:        c.Query("attach"),
		Search:        c.Query("search"),
		ReceivedFrom:  receivedFrom,
		ReceivedTo:    receivedTo,
	})
	if err != nil {
		respondAuditError(c, err)
		return
	}
	response.SuccessWithPage(c, items, response.NewPagination(page, pageSize, total))
}

// OrderNotifications 单个订单的回调审计汇总
func (h *Handler) OrderNotifications(c *gin.Context) {
	summary, err := h.NotificationLogService.SummaryForOrder(c.Param("order_id"), orderNotificationLimit)
	if err != nil {
		respondAuditError(c, err)
		return
	}
	response.Success(c, summary)
}

func respondAuditError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrOrderIDRequired):
		respondError(c, response.CodeBadRequest, "order_id is required", nil)
	case errors.Is(err, service.ErrAuditUnavailable):
		respondError(c, response.CodeServiceUnavailable, "notification audit unavailable", err)
	default:
		respondError(c, response.CodeInternal, "notification audit query failed", err)
	}
}

func parseTimeNullable(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
