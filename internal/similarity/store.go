// Package similarity maintains the vector index of known fraud
// patterns. Two variants exist: a Qdrant collection for cluster
// deployments and a SQLite-backed exact scan for single-node ones.
package similarity

import (
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// NewStore creates the configured similarity store variant.
func NewStore(cfg domain.VectorStoreConfig) (domain.SimilarityStore, error) {
	switch cfg.Driver {
	case "qdrant":
		return NewQdrantStore(cfg)
	case "local", "":
		return NewLocalStore(cfg.LocalPath)
	default:
		return nil, fmt.Errorf("unknown vector store driver: %s", cfg.Driver)
	}
}
