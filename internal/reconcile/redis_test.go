package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/hupay-bridge/internal/constants"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		_, client := newTestRedis(t)
		return NewRedisStore(client, "test", 0, 0)
	})
}

func TestRedisStoreTTL(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewRedisStore(client, "test", time.Hour, 24*time.Hour)
	ctx := context.Background()

	if _, err := s.Put(ctx, PutInput{OrderID: "T1", State: constants.SettlementStatePending, Source: constants.SourceChannelPoll}); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if ttl := mr.TTL("test:order_status:T1"); ttl != 24*time.Hour {
		t.Fatalf("unexpected pending ttl: %v", ttl)
	}
	if _, err := s.Put(ctx, PutInput{OrderID: "T1", State: constants.SettlementStateSuccess, Source: constants.SourceChannelWebhook}); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if ttl := mr.TTL("test:order_status:T1"); ttl != time.Hour {
		t.Fatalf("unexpected terminal ttl: %v", ttl)
	}

	mr.FastForward(2 * time.Hour)
	record, err := s.Get(ctx, "T1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if record != nil {
		t.Fatalf("expected expired record, got %+v", record)
	}
}

func TestRedisStoreRawPayload(t *testing.T) {
	_, client := newTestRedis(t)
	s := NewRedisStore(client, "", 0, 0)
	observed := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	tr, err := s.Put(context.Background(), PutInput{
		OrderID:    "T9",
		State:      constants.SettlementStateSuccess,
		Source:     constants.SourceChannelWebhook,
		RawPayload: map[string]string{"status": "OD", "total_fee": "0.01"},
		ObservedAt: observed,
	})
	if err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if !tr.Settled() {
		t.Fatalf("expected settle transition: %+v", tr)
	}
	record, err := s.Get(context.Background(), "T9")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if record.RawPayload["total_fee"] != "0.01" || !record.ObservedAt.Equal(observed) {
		t.Fatalf("unexpected record: %+v", record)
	}
}
