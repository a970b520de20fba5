package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/domain"
)

func waitForStats(t *testing.T, w *AlertWorker, want Stats) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if w.GetStats() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("stats never reached %+v, got %+v", want, w.GetStats())
}

func TestAlertWorkerProcessesAlerts(t *testing.T) {
	b := bus.NewChannelBus(10)
	defer b.Close()

	w := NewAlertWorker(b)
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	event := domain.VerdictEvent{
		CaseID:       "CASE-11AA22BB",
		IsFraudulent: true,
		FraudType:    domain.FraudMoneyLaundering,
		RiskLevel:    domain.RiskCritical,
		FinalScore:   0.93,
	}
	payload, _ := json.Marshal(event)
	if err := b.Publish(context.Background(), domain.TopicAlert, payload); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	waitForStats(t, w, Stats{AlertsProcessed: 1})
}

func TestAlertWorkerCountsMalformedEvents(t *testing.T) {
	b := bus.NewChannelBus(10)
	defer b.Close()

	w := NewAlertWorker(b)
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := b.Publish(context.Background(), domain.TopicAlert, []byte("{corrupt")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	waitForStats(t, w, Stats{MalformedEvents: 1})
}

func TestAlertWorkerStopsCleanly(t *testing.T) {
	b := bus.NewChannelBus(10)
	defer b.Close()

	w := NewAlertWorker(b)
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	payload, _ := json.Marshal(domain.VerdictEvent{CaseID: "CASE-DEAD0000"})
	if err := b.Publish(context.Background(), domain.TopicAlert, payload); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if got := w.GetStats(); got.AlertsProcessed != 0 {
		t.Errorf("expected no alerts after stop, got %+v", got)
	}
}
