package domain

import "context"

// EmbeddingDimension is the fixed vector dimension of the similarity
// store. It is set at store creation and never changes for the store's
// lifetime.
const EmbeddingDimension = 384

// StoredFraudCase is a confirmed fraud case persisted for future
// similarity lookups. Never mutated after insertion; re-upserting the
// same CaseID overwrites.
type StoredFraudCase struct {
	CaseID    string                 `json:"caseId"`
	FraudType FraudType              `json:"fraudType"`
	Vector    []float32              `json:"-"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// StoreStats summarizes the similarity store's backing index.
type StoreStats struct {
	TotalPatterns int    `json:"totalPatterns"`
	Dimension     int    `json:"vectorDimension"`
	Metric        string `json:"distanceMetric"`
}

// SimilarityStore is a vector index of known fraud patterns.
//
// Search fails soft: on store-connectivity errors it returns a fixed
// fallback sequence with degraded=true so callers can distinguish
// "no matches" from "store unreachable".
type SimilarityStore interface {
	Search(ctx context.Context, vector []float32, limit int, scoreThreshold float64) (cases []SimilarCase, degraded bool)
	Upsert(ctx context.Context, c StoredFraudCase) error
	Statistics(ctx context.Context) (*StoreStats, error)

	Mode() BackendMode
	Close() error
}

// VectorStoreConfig selects and configures a similarity store variant.
type VectorStoreConfig struct {
	// Driver is "qdrant" or "local".
	Driver string

	// Qdrant settings
	QdrantURL    string
	QdrantAPIKey string
	Collection   string

	// Local (SQLite-backed) settings
	LocalPath string
}
