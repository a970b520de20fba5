package similarity

import (
	"context"
	"math"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/llm"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(filepath.Join(t.TempDir(), "vectors.db"))
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSeedThenSearchReturnsExactMatchFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := Seed(ctx, store); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	// Query with the exact vector of a seeded pattern. It must come back
	// first with a near-perfect score.
	query := llm.DeterministicVector(seedText(SeedPatterns[1]))
	cases, degraded := store.Search(ctx, query, 3, 0.0)
	if degraded {
		t.Fatal("local search should never degrade")
	}
	if len(cases) == 0 {
		t.Fatal("expected matches")
	}
	if cases[0].PatternID != "fraud_002" {
		t.Errorf("expected fraud_002 first, got %s", cases[0].PatternID)
	}
	if math.Abs(cases[0].SimilarityScore-1.0) > 1e-5 {
		t.Errorf("expected near-perfect score, got %v", cases[0].SimilarityScore)
	}
	if cases[0].FraudType != domain.FraudAccountTakeover {
		t.Errorf("expected account_takeover, got %s", cases[0].FraudType)
	}

	// Descending order.
	for i := 1; i < len(cases); i++ {
		if cases[i].SimilarityScore > cases[i-1].SimilarityScore {
			t.Errorf("results out of order at %d: %v > %v", i, cases[i].SimilarityScore, cases[i-1].SimilarityScore)
		}
	}
}

func TestSearchHonorsThresholdAndLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := Seed(ctx, store); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	query := llm.DeterministicVector(seedText(SeedPatterns[0]))

	cases, _ := store.Search(ctx, query, 2, 0.0)
	if len(cases) > 2 {
		t.Errorf("limit 2 returned %d cases", len(cases))
	}

	// A threshold just under a perfect score keeps only the exact match.
	cases, _ = store.Search(ctx, query, 10, 0.999)
	if len(cases) != 1 || cases[0].PatternID != "fraud_001" {
		t.Errorf("expected only the exact match, got %+v", cases)
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	c := domain.StoredFraudCase{
		CaseID:    "CASE-AB12CD34",
		FraudType: domain.FraudCard,
		Vector:    llm.DeterministicVector("confirmed case"),
		Metadata:  map[string]interface{}{"description": "confirmed card fraud", "severity": "high"},
	}
	for i := 0; i < 3; i++ {
		if err := store.Upsert(ctx, c); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	stats, err := store.Statistics(ctx)
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if stats.TotalPatterns != 1 {
		t.Errorf("expected 1 pattern after repeated upsert, got %d", stats.TotalPatterns)
	}
	if stats.Dimension != domain.EmbeddingDimension || stats.Metric != "cosine" {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestUpsertRejectsWrongDimension(t *testing.T) {
	store := newTestStore(t)

	err := store.Upsert(context.Background(), domain.StoredFraudCase{
		CaseID: "bad",
		Vector: make([]float32, 10),
	})
	if err == nil {
		t.Fatal("expected dimension error")
	}
}

func TestLocalStoreReloadsFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.db")
	ctx := context.Background()

	store, err := NewLocalStore(path)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	if err := Seed(ctx, store); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	store.Close()

	reopened, err := NewLocalStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	stats, err := reopened.Statistics(ctx)
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if stats.TotalPatterns != len(SeedPatterns) {
		t.Errorf("expected %d patterns after reload, got %d", len(SeedPatterns), stats.TotalPatterns)
	}

	query := llm.DeterministicVector(seedText(SeedPatterns[3]))
	cases, _ := reopened.Search(ctx, query, 1, 0.0)
	if len(cases) != 1 || cases[0].PatternID != "fraud_004" {
		t.Errorf("expected fraud_004 after reload, got %+v", cases)
	}
}

func TestQdrantSearchDegradesToFallback(t *testing.T) {
	// Point at a port nothing listens on; the constructor is bypassed so
	// no collection bootstrap happens.
	store := &QdrantStore{
		baseURL:    "http://127.0.0.1:1",
		collection: "fraud_patterns",
		client:     &http.Client{Timeout: time.Second},
	}

	cases, degraded := store.Search(context.Background(), llm.DeterministicVector("query"), 5, 0.7)
	if !degraded {
		t.Fatal("expected degraded result")
	}
	if len(cases) != 2 || cases[0].PatternID != "fraud_001" || cases[1].PatternID != "fraud_005" {
		t.Errorf("unexpected fallback cases: %+v", cases)
	}

	stats, err := store.Statistics(context.Background())
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if stats.TotalPatterns != fallbackStats.TotalPatterns {
		t.Errorf("expected fallback stats, got %+v", stats)
	}
}
