package xunhu

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotificationInvalid 回调字段缺失或格式错误
var ErrNotificationInvalid = errors.New("xunhu notification invalid")

// Notification 异步回调通知
type Notification struct {
	OrderID        string
	GatewayOrderID string
	TransactionID  string
	Title          string
	StatusCode     string
	AppID          string
	Nonce          string
	Hash           string
	Plugins        string
	Attach         string
	TotalFee       decimal.Decimal
	TotalFeeRaw    string
	Timestamp      time.Time
	Fields         map[string]string
}

// ParseNotification 解析回调表单
func ParseNotification(form map[string][]string) (*Notification, error) {
	fields := FormFields(form)
	n := &Notification{
		OrderID:        strings.TrimSpace(fields["trade_order_id"]),
		GatewayOrderID: strings.TrimSpace(fields["open_order_id"]),
		TransactionID:  strings.TrimSpace(fields["transaction_id"]),
		Title:          fields["order_title"],
		StatusCode:     strings.ToUpper(strings.TrimSpace(fields["status"])),
		AppID:          strings.TrimSpace(fields["appid"]),
		Nonce:          strings.TrimSpace(fields["nonce_str"]),
		Hash:           strings.TrimSpace(fields[FieldHash]),
		Plugins:        fields["plugins"],
		Attach:         fields["attach"],
		TotalFeeRaw:    strings.TrimSpace(fields["total_fee"]),
		Fields:         fields,
	}
	if n.OrderID == "" {
		return n, fmt.Errorf("%w: trade_order_id is required", ErrNotificationInvalid)
	}
	if n.StatusCode == "" {
		return n, fmt.Errorf("%w: status is required", ErrNotificationInvalid)
	}
	if n.Hash == "" {
		return n, fmt.Errorf("%w: hash is required", ErrNotificationInvalid)
	}
	if n.TotalFeeRaw != "" {
		fee, err := decimal.NewFromString(n.TotalFeeRaw)
		if err != nil {
			return n, fmt.Errorf("%w: total_fee %q", ErrNotificationInvalid, n.TotalFeeRaw)
		}
		n.TotalFee = fee
	}
	if raw := strings.TrimSpace(fields["time"]); raw != "" {
		seconds, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return n, fmt.Errorf("%w: time %q", ErrNotificationInvalid, raw)
		}
		n.Timestamp = time.Unix(seconds, 0)
	}
	return n, nil
}

// VerifyNotification 校验回调签名
func VerifyNotification(n *Notification, secret string) error {
	if n == nil {
		return ErrNotificationInvalid
	}
	return Verify(n.Fields, n.Hash, secret)
}

// MaskedFields 返回隐藏 hash 后的字段副本，用于日志与审计
func (n *Notification) MaskedFields() map[string]string {
	if n == nil {
		return nil
	}
	masked := make(map[string]string, len(n.Fields))
	for k, v := range n.Fields {
		if k == FieldHash && v != "" {
			masked[k] = "***"
			continue
		}
		masked[k] = v
	}
	return masked
}
