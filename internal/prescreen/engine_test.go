package prescreen

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(4)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if err := engine.LoadRules(BuiltinRules()); err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	return engine
}

func TestScreenFiresMatchingRules(t *testing.T) {
	engine := newTestEngine(t)

	tx := &domain.Transaction{
		ID:               "TX-001",
		UserID:           "user-123",
		Amount:           15000,
		Currency:         "USD",
		MerchantCategory: "jewelry",
		Type:             domain.TypeCreditCard,
		Timestamp:        time.Date(2025, 6, 1, 3, 30, 0, 0, time.UTC),
	}

	signals := engine.Screen(context.Background(), tx, 0)

	want := []string{
		"Amount exceeds high-value threshold",
		"Transaction outside normal hours",
		"High-risk merchant category",
	}
	if !reflect.DeepEqual(signals, want) {
		t.Errorf("expected %v, got %v", want, signals)
	}
}

func TestScreenCleanTransactionFiresNothing(t *testing.T) {
	engine := newTestEngine(t)

	tx := &domain.Transaction{
		ID:               "TX-002",
		UserID:           "user-123",
		Amount:           42.50,
		Currency:         "USD",
		MerchantCategory: "grocery",
		Type:             domain.TypeCreditCard,
		Timestamp:        time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC),
	}

	if signals := engine.Screen(context.Background(), tx, 1); len(signals) != 0 {
		t.Errorf("expected no signals, got %v", signals)
	}
}

func TestScreenVelocityRule(t *testing.T) {
	engine := newTestEngine(t)

	tx := &domain.Transaction{
		Amount:    100,
		Currency:  "USD",
		Type:      domain.TypeCreditCard,
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	signals := engine.Screen(context.Background(), tx, 8)
	want := []string{"Rapid transaction velocity"}
	if !reflect.DeepEqual(signals, want) {
		t.Errorf("expected %v, got %v", want, signals)
	}
}

func TestScreenStructuringBand(t *testing.T) {
	engine := newTestEngine(t)

	tx := &domain.Transaction{
		Amount:    9500,
		Currency:  "USD",
		Type:      domain.TypeWireTransfer,
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	signals := engine.Screen(context.Background(), tx, 0)
	want := []string{"Amount just below reporting threshold"}
	if !reflect.DeepEqual(signals, want) {
		t.Errorf("expected %v, got %v", want, signals)
	}
}

func TestLoadRuleRejectsNonBoolean(t *testing.T) {
	engine, err := NewEngine(4)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	err = engine.LoadRule(Rule{ID: "bad", Expression: `amount * 2.0`, Signal: "x", Enabled: true})
	if err == nil {
		t.Fatal("expected compile rejection for non-boolean expression")
	}
}

func TestLoadRuleRejectsInvalidExpression(t *testing.T) {
	engine, err := NewEngine(4)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	if err := engine.LoadRule(Rule{ID: "broken", Expression: `amount >>`, Signal: "x", Enabled: true}); err == nil {
		t.Fatal("expected compile error")
	}
}

func TestReloadRulesReplacesSet(t *testing.T) {
	engine := newTestEngine(t)
	if engine.RulesCount() != len(BuiltinRules()) {
		t.Fatalf("expected %d rules, got %d", len(BuiltinRules()), engine.RulesCount())
	}

	err := engine.ReloadRules([]Rule{
		{ID: "only", Expression: `currency == "EUR"`, Signal: "Euro transaction", Enabled: true},
		{ID: "disabled", Expression: `true`, Signal: "never", Enabled: false},
	})
	if err != nil {
		t.Fatalf("ReloadRules: %v", err)
	}
	if engine.RulesCount() != 1 {
		t.Errorf("expected 1 rule after reload, got %d", engine.RulesCount())
	}
}

func TestAnnotateDoesNotMutateOriginal(t *testing.T) {
	features := map[string]interface{}{"amount": 100.0}

	annotated := Annotate(features, []string{"High-risk merchant category"})
	if _, ok := features["derived_signals"]; ok {
		t.Error("original map was mutated")
	}
	signals, ok := annotated["derived_signals"].([]string)
	if !ok || len(signals) != 1 {
		t.Errorf("unexpected annotation: %v", annotated)
	}

	if got := Annotate(features, nil); !reflect.DeepEqual(got, features) {
		t.Error("empty signals should return the original map")
	}
}
