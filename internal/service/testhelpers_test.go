package service

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupay-bridge/internal/models"
	"github.com/hupay-bridge/internal/payment/xunhu"
	"github.com/hupay-bridge/internal/reconcile"
	"github.com/hupay-bridge/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

const (
	testAppID  = "201906120001"
	testSecret = "test-secret"
)

func setupAuditRepo(t *testing.T) (*repository.GormNotificationLogRepository, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:service_audit_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.NotificationLog{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return repository.NewNotificationLogRepository(db), db
}

type countingHook struct {
	calls   int32
	mu      sync.Mutex
	records []reconcile.Record
}

func (h *countingHook) OnSettled(_ context.Context, record reconcile.Record) error {
	atomic.AddInt32(&h.calls, 1)
	h.mu.Lock()
	h.records = append(h.records, record)
	h.mu.Unlock()
	return nil
}

func (h *countingHook) count() int {
	return int(atomic.LoadInt32(&h.calls))
}

// signedCallback 构造网关回调表单
func signedCallback(orderID, status, nonce string, sentAt time.Time) url.Values {
	fields := map[string]string{
		"trade_order_id": orderID,
		"total_fee":      "0.01",
		"transaction_id": "4200000001" + orderID,
		"open_order_id":  "20191228001",
		"order_title":    "pro plan",
		"status":         status,
		"appid":          testAppID,
		"time":           strconv.FormatInt(sentAt.Unix(), 10),
		"nonce_str":      nonce,
		"attach":         "uid=42",
	}
	fields["hash"] = xunhu.Sign(fields, testSecret)
	form := url.Values{}
	for k, v := range fields {
		form.Set(k, v)
	}
	return form
}

type fakeGateway struct {
	mu          sync.Mutex
	createCalls int
	queryCalls  int
	createDelay time.Duration
	createErr   error
	queryStatus string
	queryErr    error
}

func (g *fakeGateway) CreateOrder(_ context.Context, input xunhu.CreateInput) (*xunhu.CreateResult, error) {
	g.mu.Lock()
	g.createCalls++
	delay := g.createDelay
	err := g.createErr
	g.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	return &xunhu.CreateResult{
		GatewayOrderID: "GW-" + input.OrderID,
		QRCodeURL:      "https://api.example.com/qr/" + input.OrderID,
		RedirectURL:    "https://api.example.com/pay/" + input.OrderID,
	}, nil
}

func (g *fakeGateway) QueryOrder(_ context.Context, input xunhu.QueryInput) (*xunhu.QueryResult, error) {
	g.mu.Lock()
	g.queryCalls++
	status := g.queryStatus
	err := g.queryErr
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}
	state, mapErr := xunhu.MapStatus(status)
	if mapErr != nil {
		return nil, mapErr
	}
	return &xunhu.QueryResult{
		OrderID:        input.OrderID,
		GatewayOrderID: "GW-" + input.OrderID,
		StatusCode:     status,
		State:          state,
		TotalFee:       "0.01",
		Fields:         map[string]string{"status": status, "out_trade_order": input.OrderID},
	}, nil
}

func (g *fakeGateway) calls() (int, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.createCalls, g.queryCalls
}
