package cache

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const defaultOrderCacheTTL = 30 * time.Minute

// CreatedOrder 已成功下单的支付链接快照
// 同一订单号重复下单时直接返回，避免重复请求网关
type CreatedOrder struct {
	OrderID        string `json:"order_id"`
	GatewayOrderID string `json:"gateway_order_id"`
	RedirectURL    string `json:"redirect_url"`
	QRCodeURL      string `json:"qrcode_url"`
	Amount         string `json:"amount"`
	CreatedAt      int64  `json:"created_at"`
}

func createdOrderKey(orderID string) string {
	return fmt.Sprintf("order:created:%s", strings.TrimSpace(orderID))
}

// GetCreatedOrder 读取下单快照
func GetCreatedOrder(ctx context.Context, orderID string) (*CreatedOrder, bool, error) {
	var snapshot CreatedOrder
	hit, err := GetJSON(ctx, createdOrderKey(orderID), &snapshot)
	if err != nil || !hit {
		return nil, hit, err
	}
	return &snapshot, true, nil
}

// SetCreatedOrder 写入下单快照
func SetCreatedOrder(ctx context.Context, snapshot *CreatedOrder, ttl time.Duration) error {
	if snapshot == nil || strings.TrimSpace(snapshot.OrderID) == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultOrderCacheTTL
	}
	return SetJSON(ctx, createdOrderKey(snapshot.OrderID), snapshot, ttl)
}

