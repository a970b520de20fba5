package domain

import (
	"context"
	"time"
)

// Repository is the audit-trail store: every analyzed transaction and
// every verdict is persisted for review and history lookups.
type Repository interface {
	SaveTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, txID string) (*Transaction, error)

	// GetRecentTransactions returns the user's most recent transactions,
	// newest first, truncated to limit. Used as pattern-analysis context.
	GetRecentTransactions(ctx context.Context, userID string, limit int) ([]*Transaction, error)

	// CountTransactionsSince returns the user's transaction count in a
	// trailing window. Feeds the prescreen velocity feature.
	CountTransactionsSince(ctx context.Context, userID string, since time.Time) (int64, error)

	SaveVerdict(ctx context.Context, txID, caseID string, result *AnalysisResult) error
	GetVerdict(ctx context.Context, caseID string) (*AnalysisResult, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
