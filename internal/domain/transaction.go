package domain

import (
	"fmt"
	"time"
)

// TransactionType enumerates the supported payment rails.
type TransactionType string

const (
	TypeCreditCard     TransactionType = "credit_card"
	TypeWireTransfer   TransactionType = "wire_transfer"
	TypeACH            TransactionType = "ach"
	TypeCrypto         TransactionType = "crypto"
	TypeCashWithdrawal TransactionType = "cash_withdrawal"
)

// ValidTransactionType reports whether t is a known transaction type.
func ValidTransactionType(t TransactionType) bool {
	switch t {
	case TypeCreditCard, TypeWireTransfer, TypeACH, TypeCrypto, TypeCashWithdrawal:
		return true
	}
	return false
}

// Transaction is an incoming transaction to be scored.
// It is immutable once received; the engine never mutates it.
type Transaction struct {
	ID     string `json:"transactionId"`
	UserID string `json:"userId"`

	Amount   float64         `json:"amount"`
	Currency string          `json:"currency"`
	Type     TransactionType `json:"transactionType"`

	// Optional context
	MerchantName     string `json:"merchantName,omitempty"`
	MerchantCategory string `json:"merchantCategory,omitempty"`
	Location         string `json:"location,omitempty"`
	IPAddress        string `json:"ipAddress,omitempty"`
	DeviceID         string `json:"deviceId,omitempty"`

	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Validate checks the invariants enforced at the request boundary.
func (t *Transaction) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("%w: transactionId is required", ErrValidation)
	}
	if t.UserID == "" {
		return fmt.Errorf("%w: userId is required", ErrValidation)
	}
	if t.Amount < 0 {
		return fmt.Errorf("%w: amount must be non-negative", ErrValidation)
	}
	if !ValidTransactionType(t.Type) {
		return fmt.Errorf("%w: unknown transaction type %q", ErrValidation, t.Type)
	}
	return nil
}

// EmbeddingText serializes a transaction into the free-text form used
// for embedding generation and similarity search.
func (t *Transaction) EmbeddingText() string {
	merchant := t.MerchantName
	if merchant == "" {
		merchant = "Unknown"
	}
	location := t.Location
	if location == "" {
		location = "Unknown"
	}
	return fmt.Sprintf(
		"Transaction: %s\nAmount: %.2f %s\nMerchant: %s\nLocation: %s\nTime: %s",
		t.Type, t.Amount, t.Currency, merchant, location,
		t.Timestamp.UTC().Format(time.RFC3339),
	)
}

// Features flattens the transaction into the feature map handed to the
// ensemble analyzer. Prescreen-derived features are merged in later.
func (t *Transaction) Features() map[string]interface{} {
	f := map[string]interface{}{
		"transaction_id":   t.ID,
		"user_id":          t.UserID,
		"amount":           t.Amount,
		"currency":         t.Currency,
		"transaction_type": string(t.Type),
		"timestamp":        t.Timestamp.UTC().Format(time.RFC3339),
	}
	if t.MerchantName != "" {
		f["merchant_name"] = t.MerchantName
	}
	if t.MerchantCategory != "" {
		f["merchant_category"] = t.MerchantCategory
	}
	if t.Location != "" {
		f["location"] = t.Location
	}
	if t.IPAddress != "" {
		f["ip_address"] = t.IPAddress
	}
	if t.DeviceID != "" {
		f["device_id"] = t.DeviceID
	}
	return f
}

// HistoricalTransaction is a compact view of a past transaction used as
// context for pattern analysis. At most the last 10 are sent upstream.
type HistoricalTransaction struct {
	Amount   float64 `json:"amount"`
	Merchant string  `json:"merchant"`
	Time     string  `json:"time"`
}
