package payment

import (
	"errors"

	"github.com/hupay-bridge/internal/http/handlers/shared"
	"github.com/hupay-bridge/internal/http/response"
	"github.com/hupay-bridge/internal/payment/xunhu"
	"github.com/hupay-bridge/internal/service"

	"github.com/gin-gonic/gin"
)

// CreateOrderRequest 下单请求
type CreateOrderRequest struct {
	OrderID     string `json:"order_id" binding:"required"`
	Amount      string `json:"amount" binding:"required"`
	Title       string `json:"title" binding:"required"`
	Attach      string `json:"attach"`
	ReturnURL   string `json:"return_url"`
	CallbackURL string `json:"callback_url"`
}

var orderErrorRules = []shared.MappedError{
	{Target: service.ErrOrderIDRequired, Code: response.CodeBadRequest, Msg: "order_id is required"},
	{Target: service.ErrOrderTitleRequired, Code: response.CodeBadRequest, Msg: "title is required"},
	{Target: service.ErrAmountInvalid, Code: response.CodeBadRequest, Msg: "amount is invalid"},
	{Target: xunhu.ErrAmountInvalid, Code: response.CodeBadRequest, Msg: "amount is invalid"},
	{Target: xunhu.ErrInvalidQuery, Code: response.CodeBadRequest, Msg: "invalid query"},
	{Target: service.ErrGatewayUnavailable, Code: response.CodeServiceUnavailable, Msg: "payment gateway not configured"},
	{Target: xunhu.ErrGatewayUnreachable, Code: response.CodeBadGateway, Msg: "payment gateway unreachable"},
	{Target: xunhu.ErrResponseInvalid, Code: response.CodeBadGateway, Msg: "payment gateway response invalid"},
	{Target: xunhu.ErrSignatureInvalid, Code: response.CodeBadGateway, Msg: "payment gateway signature invalid"},
	{Target: xunhu.ErrStatusUnknown, Code: response.CodeBadGateway, Msg: "payment gateway status unknown"},
}

func respondOrderError(c *gin.Context, err error, fallbackMsg string) {
	var rejected *xunhu.RejectedError
	if errors.As(err, &rejected) {
		requestLog(c).Warnw("payment_gateway_rejected", "errcode", rejected.Code, "errmsg", rejected.Message)
		response.ErrorWithData(c, response.CodeBadGateway, "payment gateway rejected", gin.H{
			"errcode": rejected.Code,
			"errmsg":  rejected.Message,
		})
		return
	}
	shared.RespondMappedError(c, err, orderErrorRules, response.CodeInternal, fallbackMsg)
}

// CreateOrder 发起网关下单
func (h *Handler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}
	result, err := h.OrderService.CreateOrder(c.Request.Context(), service.CreateOrderInput{
		OrderID:     req.OrderID,
		Amount:      req.Amount,
		Title:       req.Title,
		Attach:      req.Attach,
		ReturnURL:   req.ReturnURL,
		CallbackURL: req.CallbackURL,
	})
	if err != nil {
		respondOrderError(c, err, "order create failed")
		return
	}
	response.Success(c, result)
}

// SyncOrder 主动查单一次并更新状态
func (h *Handler) SyncOrder(c *gin.Context) {
	record, err := h.OrderService.SyncOrder(c.Request.Context(), c.Param("order_id"))
	if err != nil {
		respondOrderError(c, err, "order sync failed")
		return
	}
	response.Success(c, record)
}
