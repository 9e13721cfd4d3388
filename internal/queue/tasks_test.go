package queue

import (
	"errors"
	"testing"
	"time"
)

func TestSettlementTaskRoundTrip(t *testing.T) {
	task, err := NewSettlementSucceededTask(SettlementSucceededPayload{
		OrderID:       "Q1",
		TransactionID: "4200000001",
		TotalFee:      "0.01",
		Source:        "webhook",
		SettledAt:     1714557600,
	})
	if err != nil {
		t.Fatalf("build task failed: %v", err)
	}
	if task.Type() != TaskSettlementSucceeded {
		t.Fatalf("unexpected task type: %s", task.Type())
	}
	payload, err := ParseSettlementSucceededPayload(task.Payload())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if payload.OrderID != "Q1" || payload.TotalFee != "0.01" || payload.SettledAt != 1714557600 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestParsePayloadRequiresOrderID(t *testing.T) {
	if _, err := ParseSettlementSucceededPayload([]byte(`{"source":"poll"}`)); err == nil {
		t.Fatalf("missing order_id should fail")
	}
	if _, err := ParsePaymentReconcilePayload([]byte(`{"order_id":"  "}`)); err == nil {
		t.Fatalf("blank order_id should fail")
	}
	if _, err := ParsePaymentReconcilePayload([]byte(`not json`)); err == nil {
		t.Fatalf("invalid json should fail")
	}
}

func TestTaskIDsAreStablePerOrder(t *testing.T) {
	if SettlementTaskID(" Q2 ") != "settled:Q2" {
		t.Fatalf("unexpected settlement task id: %s", SettlementTaskID(" Q2 "))
	}
	if ReconcileTaskID("Q2") != "reconcile:Q2" {
		t.Fatalf("unexpected reconcile task id: %s", ReconcileTaskID("Q2"))
	}
}

func TestDisabledClient(t *testing.T) {
	client, err := NewClient(nil)
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	if client.Enabled() {
		t.Fatalf("nil config should give disabled client")
	}
	if err := client.EnqueueSettlementSucceeded(SettlementSucceededPayload{OrderID: "Q3"}); !errors.Is(err, ErrQueueDisabled) {
		t.Fatalf("want ErrQueueDisabled, got %v", err)
	}
	// 查单任务只是兜底，队列关闭时直接忽略
	if err := client.EnqueuePaymentReconcile(PaymentReconcilePayload{OrderID: "Q3"}, time.Minute); err != nil {
		t.Fatalf("disabled reconcile enqueue should be ignored, got %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}
