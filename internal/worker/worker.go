// Package worker consumes fraud alerts from the event bus and routes
// them to the operations log. It is the in-process stand-in for a
// downstream case-management consumer.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// AlertWorker subscribes to the alert topic and processes fraud alerts
// asynchronously.
type AlertWorker struct {
	bus domain.EventBus

	subscription domain.Subscription
	cancel       context.CancelFunc

	processed atomic.Int64
	malformed atomic.Int64
}

// NewAlertWorker creates an alert worker over the event bus.
func NewAlertWorker(bus domain.EventBus) *AlertWorker {
	return &AlertWorker{bus: bus}
}

// Start subscribes to the alert topic. Publish-only buses cannot be
// consumed from; the caller decides whether that is fatal.
func (w *AlertWorker) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	sub, err := w.bus.Subscribe(ctx, domain.TopicAlert, w.handleAlert)
	if err != nil {
		cancel()
		return err
	}
	w.subscription = sub

	slog.Info("alert worker started", "topic", domain.TopicAlert)
	return nil
}

// handleAlert processes one fraud alert.
func (w *AlertWorker) handleAlert(ctx context.Context, msg *domain.Message) error {
	var event domain.VerdictEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		w.malformed.Add(1)
		slog.Error("malformed alert payload", "message_id", msg.ID, "error", err)
		return err
	}

	w.processed.Add(1)
	slog.Warn("fraud alert",
		"case_id", event.CaseID,
		"transaction_id", event.TransactionID,
		"user_id", event.UserID,
		"fraud_type", event.FraudType,
		"risk_level", event.RiskLevel,
		"final_score", event.FinalScore,
	)
	return nil
}

// Stop unsubscribes and stops processing.
func (w *AlertWorker) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}
	if w.subscription != nil {
		if err := w.subscription.Unsubscribe(); err != nil {
			return err
		}
		w.subscription = nil
	}
	slog.Info("alert worker stopped")
	return nil
}

// Stats reports worker counters.
type Stats struct {
	AlertsProcessed int64 `json:"alertsProcessed"`
	MalformedEvents int64 `json:"malformedEvents"`
}

// GetStats returns current worker statistics.
func (w *AlertWorker) GetStats() Stats {
	return Stats{
		AlertsProcessed: w.processed.Load(),
		MalformedEvents: w.malformed.Load(),
	}
}
