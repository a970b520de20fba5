package domain

// FraudType enumerates the fraud categories the engine can label.
type FraudType string

const (
	FraudIdentityTheft     FraudType = "identity_theft"
	FraudCard              FraudType = "card_fraud"
	FraudMoneyLaundering   FraudType = "money_laundering"
	FraudAccountTakeover   FraudType = "account_takeover"
	FraudSyntheticIdentity FraudType = "synthetic_identity"
	FraudPhishing          FraudType = "phishing"
	FraudDocument          FraudType = "document_fraud"
	FraudUnknown           FraudType = "unknown"
)

// RiskLevel is the monotonic risk tier derived from the final fraud score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// SimilarCase is an immutable snapshot of a known fraud pattern returned
// by the similarity store at query time.
type SimilarCase struct {
	PatternID       string    `json:"patternId"`
	FraudType       FraudType `json:"fraudType"`
	Description     string    `json:"description"`
	Severity        string    `json:"severity"`
	SimilarityScore float64   `json:"similarityScore"`
}

// FraudVerdict is the fusion engine's output: one calibrated decision
// per analysis request. Constructed once, never mutated.
type FraudVerdict struct {
	IsFraudulent       bool               `json:"isFraudulent"`
	ConfidenceScore    float64            `json:"confidenceScore"`
	FraudType          FraudType          `json:"fraudType"`
	RiskLevel          RiskLevel          `json:"riskLevel"`
	Reasons            []string           `json:"reasons"`
	RecommendedActions []string           `json:"recommendedActions"`
	ComponentScores    map[string]float64 `json:"componentScores"`
}

// AnalysisResult is the full response assembled by the orchestrator:
// the verdict plus the supporting evidence that produced it.
type AnalysisResult struct {
	Verdict      FraudVerdict           `json:"verdict"`
	SimilarCases []SimilarCase          `json:"similarCases"`
	Details      map[string]interface{} `json:"analysisDetails"`
}

// MaxReasons caps the number of reasons carried on a verdict.
const MaxReasons = 5
