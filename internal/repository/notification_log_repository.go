package repository

import (
	"strings"

	"github.com/hupay-bridge/internal/models"

	"gorm.io/gorm"
)

// NotificationLogRepository 回调审计数据访问接口
type NotificationLogRepository interface {
	Create(log *models.NotificationLog) error
	ListByOrder(orderID string, limit int) ([]models.NotificationLog, error)
	List(filter NotificationLogListFilter) ([]models.NotificationLog, int64, error)
	CountByOutcome(orderID string) (map[string]int64, error)
}

// GormNotificationLogRepository GORM 实现
type GormNotificationLogRepository struct {
	db *gorm.DB
}

// NewNotificationLogRepository 创建回调审计仓库
func NewNotificationLogRepository(db *gorm.DB) *GormNotificationLogRepository {
	return &GormNotificationLogRepository{db: db}
}

// Create 写入审计记录
func (r *GormNotificationLogRepository) Create(log *models.NotificationLog) error {
	return r.db.Create(log).Error
}

// ListByOrder 按订单获取最近的审计记录
func (r *GormNotificationLogRepository) ListByOrder(orderID string, limit int) ([]models.NotificationLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var logs []models.NotificationLog
	err := r.db.Where("order_id = ?", strings.TrimSpace(orderID)).
		Order("received_at DESC, id DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

// List 分页查询审计记录
func (r *GormNotificationLogRepository) List(filter NotificationLogListFilter) ([]models.NotificationLog, int64, error) {
	query := r.db.Model(&models.NotificationLog{})
	dialect := dialectOf(r.db)
	if orderID := strings.TrimSpace(filter.OrderID); orderID != "" {
		query = query.Where("order_id = ?", orderID)
	}
	if outcome := strings.TrimSpace(filter.Outcome); outcome != "" {
		query = query.Where("outcome = ?", outcome)
	}
	if txID := strings.TrimSpace(filter.TransactionID); txID != "" {
		query = query.Where("transaction_id = ?", txID)
	}
	if attach := strings.TrimSpace(filter.Attach); attach != "" {
		query = query.Where(payloadFieldExpr(dialect, "payload", "attach")+" = ?", attach)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		query = query.Where(containsClause(dialect, "order_id"), "%"+search+"%")
	}
	if filter.ReceivedFrom != nil {
		query = query.Where("received_at >= ?", *filter.ReceivedFrom)
	}
	if filter.ReceivedTo != nil {
		query = query.Where("received_at <= ?", *filter.ReceivedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var logs []models.NotificationLog
	query = paginate(query.Order("received_at DESC, id DESC"), filter.Page, filter.PageSize)
	if err := query.Find(&logs).Error; err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// CountByOutcome 统计订单各审计结果数量
func (r *GormNotificationLogRepository) CountByOutcome(orderID string) (map[string]int64, error) {
	type row struct {
		Outcome string
		Total   int64
	}
	var rows []row
	err := r.db.Model(&models.NotificationLog{}).
		Select("outcome, COUNT(*) AS total").
		Where("order_id = ?", strings.TrimSpace(orderID)).
		Group("outcome").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	result := make(map[string]int64, len(rows))
	for _, item := range rows {
		result[item.Outcome] = item.Total
	}
	return result, nil
}
