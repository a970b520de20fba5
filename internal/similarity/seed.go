package similarity

import (
	"context"
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/llm"
)

// SeedPattern is a known fraud typology loaded into an empty store so
// similarity search is meaningful from the first request.
type SeedPattern struct {
	PatternID   string
	FraudType   domain.FraudType
	Description string
	Severity    string
}

// SeedPatterns are the baseline fraud typologies.
var SeedPatterns = []SeedPattern{
	{
		PatternID:   "fraud_001",
		FraudType:   domain.FraudCard,
		Description: "Multiple small transactions followed by large purchase, card testing pattern",
		Severity:    "high",
	},
	{
		PatternID:   "fraud_002",
		FraudType:   domain.FraudAccountTakeover,
		Description: "Sudden change in location with high-value electronics purchases",
		Severity:    "critical",
	},
	{
		PatternID:   "fraud_003",
		FraudType:   domain.FraudIdentityTheft,
		Description: "New account with immediate large transactions to untested merchants",
		Severity:    "high",
	},
	{
		PatternID:   "fraud_004",
		FraudType:   domain.FraudMoneyLaundering,
		Description: "Structured transactions just below reporting thresholds",
		Severity:    "critical",
	},
	{
		PatternID:   "fraud_005",
		FraudType:   domain.FraudSyntheticIdentity,
		Description: "Credit profile built rapidly with small purchases then bust-out spending",
		Severity:    "high",
	},
}

// seedText is the canonical text a pattern is embedded from. Shared by
// seeding and tests so vectors stay comparable.
func seedText(p SeedPattern) string {
	return fmt.Sprintf("Fraud pattern: %s. Type: %s. Severity: %s.", p.Description, p.FraudType, p.Severity)
}

// Seed loads the baseline patterns into the store using deterministic
// vectors. Upserts are idempotent, so seeding an already-populated
// store is harmless.
func Seed(ctx context.Context, store domain.SimilarityStore) error {
	for _, p := range SeedPatterns {
		c := domain.StoredFraudCase{
			CaseID:    p.PatternID,
			FraudType: p.FraudType,
			Vector:    llm.DeterministicVector(seedText(p)),
			Metadata: map[string]interface{}{
				"description": p.Description,
				"severity":    p.Severity,
			},
		}
		if err := store.Upsert(ctx, c); err != nil {
			return fmt.Errorf("failed to seed pattern %s: %w", p.PatternID, err)
		}
	}
	return nil
}
