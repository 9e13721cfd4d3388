package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	UseClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test")
	t.Cleanup(func() { _ = Reset() })
	return mr
}

func TestCreatedOrderRoundTrip(t *testing.T) {
	mr := setupTestRedis(t)
	ctx := context.Background()

	if _, hit, err := GetCreatedOrder(ctx, "T1"); err != nil || hit {
		t.Fatalf("expected miss, hit=%v err=%v", hit, err)
	}
	snapshot := &CreatedOrder{OrderID: "T1", GatewayOrderID: "20191228001", QRCodeURL: "https://qr", Amount: "0.01"}
	if err := SetCreatedOrder(ctx, snapshot, time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if !mr.Exists("test:order:created:T1") {
		t.Fatalf("expected prefixed key")
	}
	got, hit, err := GetCreatedOrder(ctx, "T1")
	if err != nil || !hit {
		t.Fatalf("expected hit, err=%v", err)
	}
	if got.QRCodeURL != "https://qr" || got.GatewayOrderID != "20191228001" {
		t.Fatalf("unexpected snapshot: %+v", got)
	}

	mr.FastForward(2 * time.Minute)
	if _, hit, _ := GetCreatedOrder(ctx, "T1"); hit {
		t.Fatalf("expected expiry")
	}
}

func TestCacheDisabled(t *testing.T) {
	_ = Reset()
	if Enabled() {
		t.Fatalf("expected disabled cache")
	}
	if err := SetCreatedOrder(context.Background(), &CreatedOrder{OrderID: "T1"}, time.Minute); err != nil {
		t.Fatalf("disabled set must be a no-op: %v", err)
	}
	if _, hit, err := GetCreatedOrder(context.Background(), "T1"); hit || err != nil {
		t.Fatalf("disabled get must miss, hit=%v err=%v", hit, err)
	}
}
