package service

import (
	"context"
	"testing"
	"time"

	"github.com/hupay-bridge/internal/constants"
	"github.com/hupay-bridge/internal/payment/xunhu"
	"github.com/hupay-bridge/internal/reconcile"
	"github.com/hupay-bridge/internal/repository"
)

type callbackFixture struct {
	svc   *CallbackService
	store *reconcile.MemoryStore
	hook  *countingHook
	audit *repository.GormNotificationLogRepository
	now   time.Time
}

func newCallbackFixture(t *testing.T, maxSkew time.Duration) *callbackFixture {
	t.Helper()
	audit, _ := setupAuditRepo(t)
	store := reconcile.NewMemoryStore()
	hook := &countingHook{}
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	svc := NewCallbackService(CallbackServiceOptions{
		AppID:      testAppID,
		AppSecret:  testSecret,
		MaxSkew:    maxSkew,
		Reconciler: reconcile.NewReconciler(store, hook),
		Replay:     reconcile.NewMemoryReplayGuard(time.Hour),
		AuditRepo:  audit,
	})
	svc.now = func() time.Time { return now }
	return &callbackFixture{svc: svc, store: store, hook: hook, audit: audit, now: now}
}

func (f *callbackFixture) handle(form map[string][]string) AckDecision {
	return f.svc.Handle(context.Background(), CallbackInput{Form: form, ClientIP: "203.0.113.9"})
}

func TestCallbackSuccessSettlesOnce(t *testing.T) {
	f := newCallbackFixture(t, 0)

	first := f.handle(signedCallback("T1", "OD", "n1", f.now))
	if first.Body != "success" || first.Outcome != constants.NotificationOutcomeVerified {
		t.Fatalf("unexpected decision: %+v", first)
	}
	if !first.Applied || !first.Settled || first.State != constants.SettlementStateSuccess {
		t.Fatalf("expected settle on first success: %+v", first)
	}

	// 网关重复推送同一通知
	replayed := f.handle(signedCallback("T1", "OD", "n1", f.now))
	if replayed.Body != "success" || replayed.Outcome != constants.NotificationOutcomeReplayed || replayed.Applied {
		t.Fatalf("unexpected replay decision: %+v", replayed)
	}
	// 新随机串的重复成功通知
	again := f.handle(signedCallback("T1", "OD", "n2", f.now))
	if again.Outcome != constants.NotificationOutcomeVerified || again.Settled {
		t.Fatalf("duplicate success must not settle again: %+v", again)
	}
	if f.hook.count() != 1 {
		t.Fatalf("expected hook once, got %d", f.hook.count())
	}
	if f.hook.records[0].RawPayload["hash"] != "***" || f.hook.records[0].RawPayload["attach"] != "uid=42" {
		t.Fatalf("unexpected hook payload: %v", f.hook.records[0].RawPayload)
	}

	logs, err := f.audit.ListByOrder("T1", 10)
	if err != nil {
		t.Fatalf("list audit failed: %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("expected every callback audited, got %d", len(logs))
	}
	for _, entry := range logs {
		if entry.Payload["hash"] != "***" {
			t.Fatalf("audit payload must mask hash: %v", entry.Payload)
		}
		if entry.ClientIP != "203.0.113.9" {
			t.Fatalf("unexpected client ip: %s", entry.ClientIP)
		}
	}
}

func TestCallbackTamperedStillAcknowledged(t *testing.T) {
	f := newCallbackFixture(t, 0)
	form := signedCallback("T2", "WP", "n1", f.now)
	form.Set("status", "OD")

	decision := f.handle(form)
	if decision.Body != "success" {
		t.Fatalf("tampered callback must still be acknowledged, got %q", decision.Body)
	}
	if decision.Outcome != constants.NotificationOutcomeSignatureInvalid || decision.Applied {
		t.Fatalf("unexpected decision: %+v", decision)
	}
	if record, _ := f.store.Get(context.Background(), "T2"); record != nil {
		t.Fatalf("tampered callback must not change state: %+v", record)
	}
	if f.hook.count() != 0 {
		t.Fatalf("hook must not fire")
	}
}

func TestCallbackRejections(t *testing.T) {
	cases := []struct {
		name    string
		maxSkew time.Duration
		form    func(now time.Time) map[string][]string
		outcome string
	}{
		{
			name:    "parse failed",
			form:    func(now time.Time) map[string][]string { return map[string][]string{"status": {"OD"}} },
			outcome: constants.NotificationOutcomeParseFailed,
		},
		{
			name: "appid mismatch",
			form: func(now time.Time) map[string][]string {
				fields := map[string]string{"trade_order_id": "T3", "status": "OD", "appid": "other", "nonce_str": "x"}
				return signedForm(fields)
			},
			outcome: constants.NotificationOutcomeAppIDMismatch,
		},
		{
			name:    "stale",
			maxSkew: 5 * time.Minute,
			form: func(now time.Time) map[string][]string {
				return signedCallback("T3", "OD", "n1", now.Add(-time.Hour))
			},
			outcome: constants.NotificationOutcomeStale,
		},
		{
			name: "unknown status",
			form: func(now time.Time) map[string][]string {
				return signedCallback("T3", "XX", "n1", now)
			},
			outcome: constants.NotificationOutcomeStatusUnknown,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newCallbackFixture(t, tc.maxSkew)
			decision := f.handle(tc.form(f.now))
			if decision.Body != "success" {
				t.Fatalf("expected ack, got %q", decision.Body)
			}
			if decision.Outcome != tc.outcome || decision.Applied {
				t.Fatalf("unexpected decision: %+v", decision)
			}
			if record, _ := f.store.Get(context.Background(), "T3"); record != nil {
				t.Fatalf("state must not change: %+v", record)
			}
		})
	}
}

func TestCallbackWithinSkewAccepted(t *testing.T) {
	f := newCallbackFixture(t, 5*time.Minute)
	decision := f.handle(signedCallback("T4", "WP", "n1", f.now.Add(-2*time.Minute)))
	if decision.Outcome != constants.NotificationOutcomeVerified || decision.State != constants.SettlementStatePending {
		t.Fatalf("unexpected decision: %+v", decision)
	}
}

func TestCallbackNoDowngrade(t *testing.T) {
	f := newCallbackFixture(t, 0)
	f.handle(signedCallback("T5", "OD", "n1", f.now))
	late := f.handle(signedCallback("T5", "WP", "n2", f.now))
	if late.Outcome != constants.NotificationOutcomeVerified || late.Applied {
		t.Fatalf("late pending must be discarded: %+v", late)
	}
	if late.State != constants.SettlementStateSuccess {
		t.Fatalf("state must stay success, got %s", late.State)
	}
	record, _ := f.store.Get(context.Background(), "T5")
	if record.State != constants.SettlementStateSuccess {
		t.Fatalf("unexpected record: %+v", record)
	}
}

func signedForm(fields map[string]string) map[string][]string {
	form := make(map[string][]string, len(fields)+1)
	for k, v := range fields {
		form[k] = []string{v}
	}
	form["hash"] = []string{xunhu.Sign(fields, testSecret)}
	return form
}
