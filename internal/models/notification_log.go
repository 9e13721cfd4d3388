package models

import "time"

// NotificationLog 支付回调审计记录
type NotificationLog struct {
	ID             uint      `gorm:"primarykey" json:"id"`
	OrderID        string    `gorm:"type:varchar(64);index" json:"order_id"`
	GatewayOrderID string    `gorm:"type:varchar(64)" json:"gateway_order_id"`
	TransactionID  string    `gorm:"type:varchar(128)" json:"transaction_id"`
	Nonce          string    `gorm:"type:varchar(64)" json:"nonce"`
	StatusCode     string    `gorm:"type:varchar(8)" json:"status_code"`
	State          string    `gorm:"type:varchar(32)" json:"state"`
	Outcome        string    `gorm:"type:varchar(32);index" json:"outcome"`
	Applied        bool      `gorm:"not null;default:false" json:"applied"`
	ClientIP       string    `gorm:"type:varchar(64)" json:"client_ip"`
	Payload        StringMap `gorm:"type:text" json:"payload"` // hash 已脱敏
	ErrorMessage   string    `gorm:"type:text" json:"error_message,omitempty"`
	ReceivedAt     time.Time `gorm:"index" json:"received_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// TableName 指定表名
func (NotificationLog) TableName() string {
	return "notification_logs"
}
