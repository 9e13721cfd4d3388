package xunhu

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

const testSecret = "test-secret"

type fakeGateway struct {
	mu       sync.Mutex
	requests []map[string]string
	handler  func(w http.ResponseWriter, fields map[string]string)
}

func (g *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	fields := FormFields(r.PostForm)
	g.mu.Lock()
	g.requests = append(g.requests, fields)
	g.mu.Unlock()
	if err := Verify(fields, fields["hash"], testSecret); err != nil {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"errcode":40029,"errmsg":"invalid hash"}`))
		return
	}
	g.handler(w, fields)
}

func (g *fakeGateway) lastRequest(t *testing.T) map[string]string {
	t.Helper()
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.requests) == 0 {
		t.Fatalf("gateway received no request")
	}
	return g.requests[len(g.requests)-1]
}

func newTestClient(t *testing.T, gw *fakeGateway) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(gw)
	t.Cleanup(srv.Close)
	client, err := NewClient(Config{
		AppID:     "201906120001",
		AppSecret: testSecret,
		BaseURL:   srv.URL,
		NotifyURL: "https://merchant.example.com/payment/notify",
		Timeout:   2 * time.Second,
	})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	return client, srv
}

func TestCreateOrderSuccess(t *testing.T) {
	gw := &fakeGateway{handler: func(w http.ResponseWriter, fields map[string]string) {
		_, _ = fmt.Fprintf(w, `{"openid":20191228001,"url_qrcode":"https://api.example.com/qr/%s","url":"https://api.example.com/pay/%s","errcode":0,"errmsg":"success!"}`,
			fields["trade_order_id"], fields["trade_order_id"])
	}}
	client, _ := newTestClient(t, gw)

	result, err := client.CreateOrder(context.Background(), CreateInput{
		OrderID: "T1",
		Amount:  decimal.RequireFromString("0.01"),
		Title:   "test",
		Attach:  "plan=pro&uid=42",
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	if result.QRCodeURL == "" && result.RedirectURL == "" {
		t.Fatalf("expected qrcode or redirect url")
	}
	if result.GatewayOrderID != "20191228001" {
		t.Fatalf("unexpected gateway order id: %s", result.GatewayOrderID)
	}

	req := gw.lastRequest(t)
	for _, key := range []string{"version", "appid", "trade_order_id", "total_fee", "title", "time", "notify_url", "nonce_str", "hash", "attach"} {
		if req[key] == "" {
			t.Fatalf("expected field %s in create request", key)
		}
	}
	if req["total_fee"] != "0.01" {
		t.Fatalf("unexpected total_fee: %s", req["total_fee"])
	}
	if _, ok := req["return_url"]; ok {
		t.Fatalf("empty return_url must not be sent")
	}
}

func TestCreateOrderNonceRegeneratedPerRequest(t *testing.T) {
	gw := &fakeGateway{handler: func(w http.ResponseWriter, fields map[string]string) {
		_, _ = w.Write([]byte(`{"openid":"1","url":"https://pay","errcode":0}`))
	}}
	client, _ := newTestClient(t, gw)
	input := CreateInput{OrderID: "T2", Amount: decimal.RequireFromString("1.5"), Title: "x"}
	if _, err := client.CreateOrder(context.Background(), input); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	first := gw.lastRequest(t)["nonce_str"]
	if _, err := client.CreateOrder(context.Background(), input); err != nil {
		t.Fatalf("second create failed: %v", err)
	}
	second := gw.lastRequest(t)["nonce_str"]
	if first == "" || first == second {
		t.Fatalf("expected fresh nonce per request, got %q and %q", first, second)
	}
	if got := gw.lastRequest(t)["total_fee"]; got != "1.50" {
		t.Fatalf("expected 1.50, got %s", got)
	}
}

func TestCreateOrderRejected(t *testing.T) {
	gw := &fakeGateway{handler: func(w http.ResponseWriter, fields map[string]string) {
		_, _ = w.Write([]byte(`{"errcode":"500","errmsg":"订单已存在"}`))
	}}
	client, _ := newTestClient(t, gw)
	_, err := client.CreateOrder(context.Background(), CreateInput{OrderID: "T3", Amount: decimal.NewFromInt(1), Title: "x"})
	if !errors.Is(err, ErrGatewayRejected) {
		t.Fatalf("expected ErrGatewayRejected, got %v", err)
	}
	var rejected *RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected RejectedError, got %T", err)
	}
	if rejected.Code != 500 || rejected.Message != "订单已存在" {
		t.Fatalf("unexpected rejection: %+v", rejected)
	}
}

func TestCreateOrderUnreachable(t *testing.T) {
	gw := &fakeGateway{handler: func(w http.ResponseWriter, fields map[string]string) {
		w.WriteHeader(http.StatusBadGateway)
	}}
	client, srv := newTestClient(t, gw)
	_, err := client.CreateOrder(context.Background(), CreateInput{OrderID: "T4", Amount: decimal.NewFromInt(1), Title: "x"})
	if !errors.Is(err, ErrGatewayUnreachable) {
		t.Fatalf("expected ErrGatewayUnreachable on 502, got %v", err)
	}

	srv.Close()
	_, err = client.CreateOrder(context.Background(), CreateInput{OrderID: "T4", Amount: decimal.NewFromInt(1), Title: "x"})
	if !errors.Is(err, ErrGatewayUnreachable) {
		t.Fatalf("expected ErrGatewayUnreachable on closed server, got %v", err)
	}
}

func TestCreateOrderAmountValidation(t *testing.T) {
	gw := &fakeGateway{handler: func(w http.ResponseWriter, fields map[string]string) {
		t.Errorf("gateway must not be called for invalid amount")
	}}
	client, _ := newTestClient(t, gw)
	for _, raw := range []string{"0", "-1", "0.001"} {
		_, err := client.CreateOrder(context.Background(), CreateInput{OrderID: "T5", Amount: decimal.RequireFromString(raw), Title: "x"})
		if !errors.Is(err, ErrAmountInvalid) {
			t.Fatalf("amount %s: expected ErrAmountInvalid, got %v", raw, err)
		}
	}
}

func TestQueryOrder(t *testing.T) {
	gw := &fakeGateway{handler: func(w http.ResponseWriter, fields map[string]string) {
		_, _ = fmt.Fprintf(w, `{"errcode":0,"errmsg":"success!","data":{"status":"WP","open_order_id":20191228001,"out_trade_order":"%s","total_amount":0.01}}`, fields["out_trade_order"])
	}}
	client, _ := newTestClient(t, gw)

	result, err := client.QueryOrder(context.Background(), QueryInput{OrderID: "T1"})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if result.State != "pending" || result.StatusCode != "WP" {
		t.Fatalf("unexpected state: %+v", result)
	}
	if result.GatewayOrderID != "20191228001" || result.OrderID != "T1" {
		t.Fatalf("unexpected ids: %+v", result)
	}
	if result.TotalFee != "0.01" {
		t.Fatalf("expected exact total fee, got %s", result.TotalFee)
	}
	req := gw.lastRequest(t)
	if req["out_trade_order"] != "T1" {
		t.Fatalf("expected out_trade_order in query request")
	}
	if _, ok := req["open_order_id"]; ok {
		t.Fatalf("open_order_id must not be sent when querying by order id")
	}
}

func TestQueryOrderUnknownStatus(t *testing.T) {
	gw := &fakeGateway{handler: func(w http.ResponseWriter, fields map[string]string) {
		_, _ = w.Write([]byte(`{"errcode":0,"data":{"status":"ZZ"}}`))
	}}
	client, _ := newTestClient(t, gw)
	_, err := client.QueryOrder(context.Background(), QueryInput{GatewayOrderID: "1"})
	if !errors.Is(err, ErrStatusUnknown) {
		t.Fatalf("expected ErrStatusUnknown, got %v", err)
	}
}

func TestQueryOrderInvalidInput(t *testing.T) {
	gw := &fakeGateway{handler: func(w http.ResponseWriter, fields map[string]string) {
		t.Errorf("gateway must not be called for invalid query")
	}}
	client, _ := newTestClient(t, gw)
	for _, input := range []QueryInput{{}, {OrderID: "T1", GatewayOrderID: "1"}, {OrderID: "  "}} {
		if _, err := client.QueryOrder(context.Background(), input); !errors.Is(err, ErrInvalidQuery) {
			t.Fatalf("input %+v: expected ErrInvalidQuery, got %v", input, err)
		}
	}
}

func TestNewClientValidatesConfig(t *testing.T) {
	if _, err := NewClient(Config{AppID: "1", BaseURL: "https://api.example.com", NotifyURL: "https://n"}); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected missing secret rejected, got %v", err)
	}
	client, err := NewClient(Config{AppID: "1", AppSecret: "s", BaseURL: "https://api.example.com/", NotifyURL: "https://n"})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	if client.cfg.QueryURL != "https://api.example.com/query" {
		t.Fatalf("unexpected default query url: %s", client.cfg.QueryURL)
	}
}

func TestFormatAmount(t *testing.T) {
	cases := map[string]string{"0.01": "0.01", "1": "1.00", "19.9": "19.90", "100.00": "100.00"}
	for raw, want := range cases {
		got, err := FormatAmount(decimal.RequireFromString(raw))
		if err != nil {
			t.Fatalf("format %s failed: %v", raw, err)
		}
		if got != want {
			t.Fatalf("format %s: want %s got %s", raw, want, got)
		}
	}
}
