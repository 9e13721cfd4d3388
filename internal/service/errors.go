package service

import "errors"

var (
	ErrOrderIDRequired    = errors.New("order id is required")
	ErrOrderTitleRequired = errors.New("order title is required")
	ErrAmountInvalid      = errors.New("order amount invalid")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrOrderCreateFailed  = errors.New("order create failed")
	ErrOrderSyncFailed    = errors.New("order sync failed")
	ErrStatusFetchFailed  = errors.New("order status fetch failed")
	ErrSettlementForward  = errors.New("settlement forward failed")
	ErrAuditUnavailable   = errors.New("notification audit unavailable")
)
