package payment

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestNotifyWithoutServiceStillAcks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := New(nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/payment/notify", strings.NewReader("trade_order_id=T1&status=OD"))
	c.Request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	h.Notify(c)

	if w.Code != http.StatusOK || w.Body.String() != "success" {
		t.Fatalf("want 200 success got %d %q", w.Code, w.Body.String())
	}
}

func TestParseCallbackFormPrefersBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/payment/notify?trade_order_id=Q", strings.NewReader("trade_order_id=B"))
	c.Request.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	form, err := parseCallbackForm(c)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if got := form["trade_order_id"]; len(got) != 1 || got[0] != "B" {
		t.Fatalf("expected body value only, got %v", got)
	}
}

func TestParseTimeNullable(t *testing.T) {
	if got, err := parseTimeNullable(""); err != nil || got != nil {
		t.Fatalf("empty input want nil, got %v %v", got, err)
	}
	got, err := parseTimeNullable("2024-05-01T10:00:00Z")
	if err != nil || got == nil || got.Year() != 2024 {
		t.Fatalf("unexpected parse result: %v %v", got, err)
	}
	if _, err := parseTimeNullable("yesterday"); err == nil {
		t.Fatalf("expected parse error")
	}
}
