package similarity

import (
	"container/heap"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// LocalStore is a brute-force vector index backed by SQLite BLOBs.
// Vectors are normalized on insert and held in memory, so search is a
// dot-product scan returning exact cosine scores. At the pattern counts
// this service sees that is sub-millisecond.
type LocalStore struct {
	db *sql.DB

	mu    sync.RWMutex
	cases map[string]localCase
}

type localCase struct {
	fraudType   domain.FraudType
	description string
	severity    string
	vector      []float32 // normalized
}

// NewLocalStore opens (or creates) the SQLite-backed store at path and
// loads existing vectors into memory.
func NewLocalStore(path string) (*LocalStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open local vector store: %w", err)
	}

	s := &LocalStore{db: db, cases: make(map[string]localCase)}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate local vector store: %w", err)
	}
	if err := s.loadAll(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load local vector store: %w", err)
	}
	return s, nil
}

func (s *LocalStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS fraud_patterns (
			case_id     TEXT PRIMARY KEY,
			fraud_type  TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			severity    TEXT NOT NULL DEFAULT '',
			embedding   BLOB NOT NULL,
			dimensions  INTEGER NOT NULL
		)
	`)
	return err
}

func (s *LocalStore) loadAll() error {
	rows, err := s.db.Query("SELECT case_id, fraud_type, description, severity, embedding, dimensions FROM fraud_patterns")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id, fraudType, description, severity string
		var blob []byte
		var dims int
		if err := rows.Scan(&id, &fraudType, &description, &severity, &blob, &dims); err != nil {
			return err
		}
		s.cases[id] = localCase{
			fraudType:   domain.FraudType(fraudType),
			description: description,
			severity:    severity,
			vector:      blobToFloat32(blob, dims),
		}
	}
	return rows.Err()
}

// Upsert stores a case, overwriting any previous vector for the same ID.
func (s *LocalStore) Upsert(ctx context.Context, c domain.StoredFraudCase) error {
	if len(c.Vector) != domain.EmbeddingDimension {
		return fmt.Errorf("%w: expected %d dimensions, got %d", domain.ErrValidation, domain.EmbeddingDimension, len(c.Vector))
	}

	normalized := normalize(c.Vector)
	description, severity := caseMetadata(c.Metadata)

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fraud_patterns (case_id, fraud_type, description, severity, embedding, dimensions)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(case_id) DO UPDATE SET
			fraud_type=excluded.fraud_type, description=excluded.description,
			severity=excluded.severity, embedding=excluded.embedding, dimensions=excluded.dimensions
	`, c.CaseID, string(c.FraudType), description, severity, float32ToBlob(normalized), len(normalized))
	if err != nil {
		return fmt.Errorf("failed to upsert pattern %s: %w", c.CaseID, err)
	}

	s.cases[c.CaseID] = localCase{
		fraudType:   c.FraudType,
		description: description,
		severity:    severity,
		vector:      normalized,
	}
	return nil
}

// Search scans all stored vectors and returns the top matches above the
// score threshold in descending score order. The local scan cannot lose
// connectivity, so degraded is always false.
func (s *LocalStore) Search(ctx context.Context, vector []float32, limit int, scoreThreshold float64) ([]domain.SimilarCase, bool) {
	if limit <= 0 {
		limit = 5
	}
	query := normalize(vector)

	s.mu.RLock()
	h := &minHeap{}
	heap.Init(h)
	for id, c := range s.cases {
		if len(c.vector) != len(query) {
			continue
		}
		score := dotProduct(query, c.vector)
		if score < scoreThreshold {
			continue
		}
		sc := domain.SimilarCase{
			PatternID:       id,
			FraudType:       c.fraudType,
			Description:     c.description,
			Severity:        c.severity,
			SimilarityScore: score,
		}
		if h.Len() < limit {
			heap.Push(h, sc)
		} else if score > (*h)[0].SimilarityScore {
			(*h)[0] = sc
			heap.Fix(h, 0)
		}
	}
	s.mu.RUnlock()

	results := make([]domain.SimilarCase, h.Len())
	for i := len(results) - 1; i >= 0; i-- {
		results[i] = heap.Pop(h).(domain.SimilarCase)
	}
	return results, false
}

// Statistics reports the live pattern count.
func (s *LocalStore) Statistics(ctx context.Context) (*domain.StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &domain.StoreStats{
		TotalPatterns: len(s.cases),
		Dimension:     domain.EmbeddingDimension,
		Metric:        "cosine",
	}, nil
}

// Mode reports the live variant.
func (s *LocalStore) Mode() domain.BackendMode { return domain.ModeLive }

// Close releases the backing database.
func (s *LocalStore) Close() error { return s.db.Close() }

// minHeap keeps the current top-K with the minimum at the root.
type minHeap []domain.SimilarCase

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return h[i].SimilarityScore < h[j].SimilarityScore }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(domain.SimilarCase)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func caseMetadata(meta map[string]interface{}) (description, severity string) {
	if meta == nil {
		return "", ""
	}
	if v, ok := meta["description"].(string); ok {
		description = v
	}
	if v, ok := meta["severity"].(string); ok {
		severity = v
	}
	return description, severity
}

func normalize(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)

	out := make([]float32, len(v))
	if norm == 0 {
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dotProduct(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func float32ToBlob(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func blobToFloat32(b []byte, dims int) []float32 {
	v := make([]float32, dims)
	for i := 0; i < dims && i*4+4 <= len(b); i++ {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
