package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/hupay-bridge/internal/models"
	"github.com/hupay-bridge/internal/repository"
)

// NotificationLogService 回调审计查询
type NotificationLogService struct {
	repo repository.NotificationLogRepository
}

// NewNotificationLogService 创建审计查询服务
func NewNotificationLogService(repo repository.NotificationLogRepository) *NotificationLogService {
	return &NotificationLogService{repo: repo}
}

// ListNotificationsInput 审计列表查询参数
type ListNotificationsInput struct {
	Page          int
	PageSize      int
	OrderID       string
	Outcome       string
	TransactionID string
	Attach        string
	Search        string
	ReceivedFrom  *time.Time
	ReceivedTo    *time.Time
}

// NotificationSummary 单个订单的审计汇总
type NotificationSummary struct {
	OrderID  string                   `json:"order_id"`
	Outcomes map[string]int64         `json:"outcomes"`
	Recent   []models.NotificationLog `json:"recent"`
}

// List 分页查询审计记录
func (s *NotificationLogService) List(input ListNotificationsInput) ([]models.NotificationLog, int64, error) {
	if s == nil || s.repo == nil {
		return nil, 0, ErrAuditUnavailable
	}
	logs, total, err := s.repo.List(repository.NotificationLogListFilter{
		Page:          input.Page,
		PageSize:      input.PageSize,
		OrderID:       strings.TrimSpace(input.OrderID),
		Outcome:       strings.TrimSpace(input.Outcome),
		TransactionID: strings.TrimSpace(input.TransactionID),
		Attach:        strings.TrimSpace(input.Attach),
		Search:        strings.TrimSpace(input.Search),
		ReceivedFrom:  input.ReceivedFrom,
		ReceivedTo:    input.ReceivedTo,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrAuditUnavailable, err)
	}
	return logs, total, nil
}

// SummaryForOrder 返回订单最近的回调与各结果计数
func (s *NotificationLogService) SummaryForOrder(orderID string, limit int) (*NotificationSummary, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, ErrOrderIDRequired
	}
	if s == nil || s.repo == nil {
		return nil, ErrAuditUnavailable
	}
	recent, err := s.repo.ListByOrder(orderID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuditUnavailable, err)
	}
	outcomes, err := s.repo.CountByOutcome(orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuditUnavailable, err)
	}
	return &NotificationSummary{OrderID: orderID, Outcomes: outcomes, Recent: recent}, nil
}
