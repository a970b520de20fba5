// Package repository provides the audit-trail persistence layer.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveTransaction stores an analyzed transaction.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx == nil || tx.ID == "" {
		return fmt.Errorf("%w: transaction id is required", ErrInvalidInput)
	}

	metadata, _ := json.Marshal(tx.Metadata)

	query := `
		INSERT INTO transactions (
			id, user_id, amount, currency, type,
			merchant_name, merchant_category, location,
			ip_address, device_id, timestamp, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tx.UserID, tx.Amount, tx.Currency, string(tx.Type),
		tx.MerchantName, tx.MerchantCategory, tx.Location,
		tx.IPAddress, tx.DeviceID, tx.Timestamp.UTC(),
		string(metadata), time.Now().UTC(),
	)
	return err
}

// GetTransaction retrieves a transaction by ID.
func (r *SQLRepository) GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error) {
	query := `
		SELECT id, user_id, amount, currency, type,
			   merchant_name, merchant_category, location,
			   ip_address, device_id, timestamp, metadata
		FROM transactions
		WHERE id = ?
	`

	tx, err := scanTransaction(r.db.QueryRowContext(ctx, r.rebind(query), txID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return tx, err
}

// GetRecentTransactions returns the user's most recent transactions,
// newest first.
func (r *SQLRepository) GetRecentTransactions(ctx context.Context, userID string, limit int) ([]*domain.Transaction, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT id, user_id, amount, currency, type,
			   merchant_name, merchant_category, location,
			   ip_address, device_id, timestamp, metadata
		FROM transactions
		WHERE user_id = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

// CountTransactionsSince returns the user's transaction count in a
// trailing window.
func (r *SQLRepository) CountTransactionsSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM transactions WHERE user_id = ? AND timestamp >= ?`

	var count int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), userID, since.UTC()).Scan(&count)
	return count, err
}

// SaveVerdict stores an analysis result under its case ID. Idempotent:
// re-saving the same case overwrites.
func (r *SQLRepository) SaveVerdict(ctx context.Context, txID, caseID string, result *domain.AnalysisResult) error {
	if caseID == "" {
		return fmt.Errorf("%w: case id is required", ErrInvalidInput)
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis result: %w", err)
	}

	fraudulent := 0
	if result.Verdict.IsFraudulent {
		fraudulent = 1
	}

	query := `
		INSERT INTO verdicts (
			case_id, tx_id, is_fraudulent, fraud_type, risk_level, confidence, result, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(case_id) DO UPDATE SET
			tx_id = excluded.tx_id,
			is_fraudulent = excluded.is_fraudulent,
			fraud_type = excluded.fraud_type,
			risk_level = excluded.risk_level,
			confidence = excluded.confidence,
			result = excluded.result
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		caseID, txID, fraudulent,
		string(result.Verdict.FraudType), string(result.Verdict.RiskLevel),
		result.Verdict.ConfidenceScore, string(payload), time.Now().UTC(),
	)
	return err
}

// GetVerdict retrieves a stored analysis result by case ID.
func (r *SQLRepository) GetVerdict(ctx context.Context, caseID string) (*domain.AnalysisResult, error) {
	query := `SELECT result FROM verdicts WHERE case_id = ?`

	var payload string
	err := r.db.QueryRowContext(ctx, r.rebind(query), caseID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var result domain.AnalysisResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("failed to decode stored result: %w", err)
	}
	return &result, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var txType, metadata string

	err := row.Scan(
		&tx.ID, &tx.UserID, &tx.Amount, &tx.Currency, &txType,
		&tx.MerchantName, &tx.MerchantCategory, &tx.Location,
		&tx.IPAddress, &tx.DeviceID, &tx.Timestamp, &metadata,
	)
	if err != nil {
		return nil, err
	}

	tx.Type = domain.TransactionType(txType)
	if metadata != "" {
		json.Unmarshal([]byte(metadata), &tx.Metadata)
	}
	return &tx, nil
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
