package repository

import "time"

// NotificationLogListFilter 回调审计列表过滤条件
type NotificationLogListFilter struct {
	Page          int
	PageSize      int
	OrderID       string
	Outcome       string
	TransactionID string
	Attach        string // 匹配原始报文中的 attach
	Search        string // 订单号模糊匹配
	ReceivedFrom  *time.Time
	ReceivedTo    *time.Time
}
