// Package fusion reduces the collaborator signals into one fraud
// verdict. Decide is a pure function of its three inputs and never
// fails; callers substitute neutral values when a signal source is
// entirely missing.
package fusion

import (
	"fmt"
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Fixed fusion weights. Hand-picked constants preserved for score
// compatibility; tunable, not calibrated. The similarity term carries
// its own pre-scaled bonus, so the weighted sum is bounded by
// 0.50 + 0.35 + 0.15*0.15.
const (
	weightEnsemble   = 0.50
	weightPattern    = 0.35
	weightSimilarity = 0.15

	// similarityBonus is applied whenever at least one similar case
	// exists; the match count and scores do not change it.
	similarityBonus = 0.15

	// fraudThreshold is strict: a final score of exactly 0.70 is not
	// fraudulent.
	fraudThreshold = 0.70
)

// Risk tier boundaries, closed on the lower end, checked in descending
// order.
const (
	criticalThreshold = 0.90
	highThreshold     = 0.75
	mediumThreshold   = 0.50
)

var approvedActions = []string{
	"Transaction approved",
	"Continue monitoring",
}

var immediateActions = []string{
	"Block transaction",
	"Freeze account pending investigation",
	"Contact customer via verified phone number",
}

var standardActions = []string{
	"Create fraud investigation case",
	"Review recent transaction history",
	"Verify customer identity",
	"Check for similar patterns in other accounts",
}

const regulatoryAction = "File Suspicious Activity Report (SAR)"

// Decide computes the final fraud verdict from the three collaborator
// signals. Pure and total: every branch has a defined default.
func Decide(ensemble *domain.EnsembleOpinion, pattern *domain.PatternOpinion, similarCases []domain.SimilarCase) domain.FraudVerdict {
	ensembleTerm := domain.Clamp(ensemble.FraudProbability)

	patternConfidence := domain.Clamp(pattern.Confidence)
	patternTerm := patternConfidence
	if !pattern.IsSuspicious {
		patternTerm = 1 - patternConfidence
	}

	similarityTerm := 0.0
	if len(similarCases) > 0 {
		similarityTerm = similarityBonus
	}

	finalScore := weightEnsemble*ensembleTerm + weightPattern*patternTerm + weightSimilarity*similarityTerm
	isFraudulent := finalScore > fraudThreshold

	verdict := domain.FraudVerdict{
		IsFraudulent:    isFraudulent,
		ConfidenceScore: round2((domain.Clamp(ensemble.Confidence) + patternConfidence) / 2),
		FraudType:       fraudType(isFraudulent, similarCases),
		RiskLevel:       riskLevel(finalScore),
		Reasons:         reasons(ensemble.RiskFactors, pattern.Anomalies, len(similarCases)),
		ComponentScores: map[string]float64{
			"ensemble":   ensembleTerm,
			"pattern":    patternTerm,
			"similarity": similarityTerm,
			"final":      finalScore,
		},
	}
	verdict.RecommendedActions = recommendedActions(isFraudulent, verdict.RiskLevel, verdict.FraudType)
	return verdict
}

// riskLevel maps the final score onto the four tiers. Monotonic and
// deterministic; first matching tier wins.
func riskLevel(score float64) domain.RiskLevel {
	switch {
	case score >= criticalThreshold:
		return domain.RiskCritical
	case score >= highThreshold:
		return domain.RiskHigh
	case score >= mediumThreshold:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

// fraudType labels the verdict from the similar cases: the most
// frequent type wins, ties broken by first occurrence in the input
// sequence. Without similar cases the label defaults to card_fraud,
// and a non-fraudulent verdict keeps whichever label was derived.
func fraudType(isFraudulent bool, similarCases []domain.SimilarCase) domain.FraudType {
	if len(similarCases) == 0 {
		return domain.FraudCard
	}

	counts := make(map[domain.FraudType]int)
	var order []domain.FraudType
	for _, c := range similarCases {
		if counts[c.FraudType] == 0 {
			order = append(order, c.FraudType)
		}
		counts[c.FraudType]++
	}

	best := order[0]
	for _, t := range order[1:] {
		if counts[t] > counts[best] {
			best = t
		}
	}
	return best
}

// reasons merges risk factors and anomalies first-seen, appends the
// similarity note, deduplicates and caps at MaxReasons.
func reasons(riskFactors, anomalies []string, similarCount int) []string {
	var out []string
	seen := make(map[string]bool)

	add := func(r string) {
		if r == "" || seen[r] || len(out) >= domain.MaxReasons {
			return
		}
		seen[r] = true
		out = append(out, r)
	}

	for _, r := range riskFactors {
		add(r)
	}
	for _, a := range anomalies {
		add(a)
	}
	if similarCount > 0 {
		add(fmt.Sprintf("Similar to %d known fraud patterns", similarCount))
	}
	return out
}

func recommendedActions(isFraudulent bool, level domain.RiskLevel, fraudType domain.FraudType) []string {
	if !isFraudulent {
		return append([]string(nil), approvedActions...)
	}

	var actions []string
	if level == domain.RiskHigh || level == domain.RiskCritical {
		actions = append(actions, immediateActions...)
	}
	actions = append(actions, standardActions...)
	if fraudType == domain.FraudMoneyLaundering {
		actions = append(actions, regulatoryAction)
	}
	return actions
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
