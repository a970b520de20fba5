package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Kestrel caches computed embeddings by text digest and finished
// verdicts by transaction id, and keeps velocity counters.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// GetEmbedding retrieves a cached embedding vector for a text digest.
	GetEmbedding(ctx context.Context, digest string) ([]float32, error)

	// SetEmbedding caches an embedding vector under a text digest.
	SetEmbedding(ctx context.Context, digest string, vector []float32, ttl time.Duration) error

	// IncrementCounter atomically increments a counter and returns the
	// new value. Used for per-user velocity in a trailing window.
	IncrementCounter(ctx context.Context, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}
