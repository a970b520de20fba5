package repository

// Schema definitions for the Kestrel audit store.
// Compatible with both SQLite and PostgreSQL.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    amount REAL NOT NULL,
    currency TEXT NOT NULL,
    type TEXT NOT NULL,
    merchant_name TEXT,
    merchant_category TEXT,
    location TEXT,
    ip_address TEXT,
    device_id TEXT,
    timestamp TIMESTAMP NOT NULL,
    metadata TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id);
CREATE INDEX IF NOT EXISTS idx_transactions_user_time ON transactions(user_id, timestamp);
`

const schemaVerdicts = `
CREATE TABLE IF NOT EXISTS verdicts (
    case_id TEXT PRIMARY KEY,
    tx_id TEXT NOT NULL,
    is_fraudulent INTEGER NOT NULL,
    fraud_type TEXT NOT NULL,
    risk_level TEXT NOT NULL,
    confidence REAL NOT NULL,
    result TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_verdicts_tx ON verdicts(tx_id);
CREATE INDEX IF NOT EXISTS idx_verdicts_fraudulent ON verdicts(is_fraudulent);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaVerdicts,
	}
}
