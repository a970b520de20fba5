package fusion

import (
	"fmt"
	"math"
	"reflect"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func ensembleOpinion(prob, conf float64, riskFactors ...string) *domain.EnsembleOpinion {
	return &domain.EnsembleOpinion{
		FraudProbability: prob,
		Confidence:       conf,
		RiskFactors:      riskFactors,
	}
}

func patternOpinion(suspicious bool, conf float64, anomalies ...string) *domain.PatternOpinion {
	return &domain.PatternOpinion{
		IsSuspicious: suspicious,
		Confidence:   conf,
		Anomalies:    anomalies,
		Parsed:       true,
	}
}

func similarCase(fraudType domain.FraudType) domain.SimilarCase {
	return domain.SimilarCase{PatternID: "p", FraudType: fraudType, SimilarityScore: 0.8}
}

func TestDecideHighRiskScenario(t *testing.T) {
	verdict := Decide(
		ensembleOpinion(0.85, 0.92),
		patternOpinion(true, 0.82),
		[]domain.SimilarCase{similarCase(domain.FraudCard)},
	)

	final := verdict.ComponentScores["final"]
	if math.Abs(final-0.7345) > 1e-9 {
		t.Errorf("expected final score 0.7345, got %v", final)
	}
	if !verdict.IsFraudulent {
		t.Error("expected fraudulent verdict")
	}
	if verdict.RiskLevel != domain.RiskMedium {
		t.Errorf("expected medium risk at 0.7345, got %v", verdict.RiskLevel)
	}
	if verdict.ConfidenceScore != 0.87 {
		t.Errorf("expected confidence 0.87, got %v", verdict.ConfidenceScore)
	}
	if verdict.FraudType != domain.FraudCard {
		t.Errorf("expected card_fraud, got %v", verdict.FraudType)
	}
}

func TestDecideLegitimateScenario(t *testing.T) {
	verdict := Decide(
		ensembleOpinion(0.1, 0.6),
		patternOpinion(false, 0.9),
		nil,
	)

	final := verdict.ComponentScores["final"]
	if math.Abs(final-0.085) > 1e-9 {
		t.Errorf("expected final score 0.085, got %v", final)
	}
	if verdict.IsFraudulent {
		t.Error("expected legitimate verdict")
	}
	if verdict.RiskLevel != domain.RiskLow {
		t.Errorf("expected low risk, got %v", verdict.RiskLevel)
	}
	want := []string{"Transaction approved", "Continue monitoring"}
	if !reflect.DeepEqual(verdict.RecommendedActions, want) {
		t.Errorf("expected %v, got %v", want, verdict.RecommendedActions)
	}
}

func TestRiskLevelBoundaries(t *testing.T) {
	tests := []struct {
		score float64
		want  domain.RiskLevel
	}{
		{0.4999, domain.RiskLow},
		{0.50, domain.RiskMedium},
		{0.7499, domain.RiskMedium},
		{0.75, domain.RiskHigh},
		{0.8999, domain.RiskHigh},
		{0.90, domain.RiskCritical},
		{1.0, domain.RiskCritical},
		{0.0, domain.RiskLow},
	}
	for _, tt := range tests {
		if got := riskLevel(tt.score); got != tt.want {
			t.Errorf("riskLevel(%v) = %v, want %v", tt.score, got, tt.want)
		}
	}
}

func TestFraudThresholdIsStrict(t *testing.T) {
	// 0.5*1.0 + 0.35*0.5714... is awkward to pin exactly, so drive the
	// boundary through the pattern term: suspicious with confidence 1.0
	// and probability 0.70 lands exactly on the threshold.
	exactly := Decide(ensembleOpinion(0.70, 0.8), patternOpinion(true, 1.0), nil)
	if exactly.IsFraudulent {
		t.Errorf("score %v should not be fraudulent", exactly.ComponentScores["final"])
	}

	above := Decide(ensembleOpinion(0.7002, 0.8), patternOpinion(true, 1.0), nil)
	if !above.IsFraudulent {
		t.Errorf("score %v should be fraudulent", above.ComponentScores["final"])
	}
}

func TestDecideClampsOutOfRangeInputs(t *testing.T) {
	verdict := Decide(ensembleOpinion(1.7, 1.2), patternOpinion(true, 2.0), nil)

	final := verdict.ComponentScores["final"]
	if final < 0 || final > 1 {
		t.Errorf("final score out of range: %v", final)
	}
	if verdict.ConfidenceScore < 0 || verdict.ConfidenceScore > 1 {
		t.Errorf("confidence out of range: %v", verdict.ConfidenceScore)
	}
}

func TestFraudTypeMostFrequentWithFirstSeenTieBreak(t *testing.T) {
	tests := []struct {
		name  string
		cases []domain.SimilarCase
		want  domain.FraudType
	}{
		{"empty defaults to card_fraud", nil, domain.FraudCard},
		{
			"majority wins",
			[]domain.SimilarCase{
				similarCase(domain.FraudMoneyLaundering),
				similarCase(domain.FraudAccountTakeover),
				similarCase(domain.FraudAccountTakeover),
			},
			domain.FraudAccountTakeover,
		},
		{
			"tie broken by first occurrence",
			[]domain.SimilarCase{
				similarCase(domain.FraudIdentityTheft),
				similarCase(domain.FraudCard),
				similarCase(domain.FraudCard),
				similarCase(domain.FraudIdentityTheft),
			},
			domain.FraudIdentityTheft,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fraudType(true, tt.cases); got != tt.want {
				t.Errorf("fraudType = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReasonsDeduplicatedAndCapped(t *testing.T) {
	verdict := Decide(
		ensembleOpinion(0.9, 0.9, "Velocity spike", "New device", "Velocity spike", "Odd hours"),
		patternOpinion(true, 0.9, "New device", "Amount spike", "Location change", "Merchant risk"),
		[]domain.SimilarCase{similarCase(domain.FraudCard)},
	)

	if len(verdict.Reasons) > domain.MaxReasons {
		t.Fatalf("reasons exceed cap: %v", verdict.Reasons)
	}
	seen := make(map[string]bool)
	for _, r := range verdict.Reasons {
		if seen[r] {
			t.Errorf("duplicate reason %q", r)
		}
		seen[r] = true
	}

	want := []string{"Velocity spike", "New device", "Odd hours", "Amount spike", "Location change"}
	if !reflect.DeepEqual(verdict.Reasons, want) {
		t.Errorf("expected first-seen order %v, got %v", want, verdict.Reasons)
	}
}

func TestReasonsIncludeSimilarityNote(t *testing.T) {
	verdict := Decide(
		ensembleOpinion(0.9, 0.9, "Velocity spike"),
		patternOpinion(true, 0.9),
		[]domain.SimilarCase{similarCase(domain.FraudCard), similarCase(domain.FraudCard)},
	)

	found := false
	for _, r := range verdict.Reasons {
		if r == "Similar to 2 known fraud patterns" {
			found = true
		}
	}
	if !found {
		t.Errorf("similarity note missing from %v", verdict.Reasons)
	}
}

func TestRecommendedActionsOrdering(t *testing.T) {
	// Critical fraud: immediate actions precede the standard checklist.
	verdict := Decide(
		ensembleOpinion(1.0, 0.95, "Extreme risk"),
		patternOpinion(true, 1.0),
		[]domain.SimilarCase{similarCase(domain.FraudCard)},
	)
	if verdict.RiskLevel != domain.RiskCritical {
		t.Fatalf("expected critical risk, got %v (score %v)", verdict.RiskLevel, verdict.ComponentScores["final"])
	}

	want := append(append([]string{}, immediateActions...), standardActions...)
	if !reflect.DeepEqual(verdict.RecommendedActions, want) {
		t.Errorf("expected %v, got %v", want, verdict.RecommendedActions)
	}
}

func TestRecommendedActionsMediumFraudSkipsImmediate(t *testing.T) {
	verdict := Decide(
		ensembleOpinion(0.85, 0.92),
		patternOpinion(true, 0.82),
		[]domain.SimilarCase{similarCase(domain.FraudCard)},
	)
	if verdict.RiskLevel != domain.RiskMedium || !verdict.IsFraudulent {
		t.Fatalf("expected medium-risk fraud, got %v", verdict.RiskLevel)
	}
	if !reflect.DeepEqual(verdict.RecommendedActions, standardActions) {
		t.Errorf("expected standard checklist only, got %v", verdict.RecommendedActions)
	}
}

func TestRecommendedActionsMoneyLaunderingAppendsSAR(t *testing.T) {
	verdict := Decide(
		ensembleOpinion(0.95, 0.9),
		patternOpinion(true, 0.95),
		[]domain.SimilarCase{
			similarCase(domain.FraudMoneyLaundering),
			similarCase(domain.FraudMoneyLaundering),
			similarCase(domain.FraudCard),
		},
	)
	if verdict.FraudType != domain.FraudMoneyLaundering {
		t.Fatalf("expected money_laundering, got %v", verdict.FraudType)
	}

	last := verdict.RecommendedActions[len(verdict.RecommendedActions)-1]
	if last != regulatoryAction {
		t.Errorf("expected SAR filing last, got %q", last)
	}
}

func TestDecideNeutralSubstitution(t *testing.T) {
	// When every ensemble model fails, the orchestrator substitutes the
	// neutral opinion; fusion must still produce a bounded verdict.
	neutral := domain.NeutralEnsembleOpinion()
	verdict := Decide(&neutral, patternOpinion(true, 0.82), nil)

	final := verdict.ComponentScores["final"]
	want := 0.5*0.5 + 0.35*0.82
	if math.Abs(final-want) > 1e-9 {
		t.Errorf("expected final %v, got %v", want, final)
	}
	if verdict.IsFraudulent {
		t.Error("neutral substitution should not flag fraud")
	}
}

func TestFinalScoreAlwaysInRange(t *testing.T) {
	for _, prob := range []float64{0, 0.25, 0.5, 0.75, 1} {
		for _, conf := range []float64{0, 0.5, 1} {
			for _, suspicious := range []bool{true, false} {
				for _, n := range []int{0, 3} {
					cases := make([]domain.SimilarCase, n)
					for i := range cases {
						cases[i] = similarCase(domain.FraudCard)
					}
					v := Decide(ensembleOpinion(prob, conf), patternOpinion(suspicious, conf), cases)
					f := v.ComponentScores["final"]
					if f < 0 || f > 1 {
						t.Fatalf("final score %v out of range for %s",
							f, fmt.Sprintf("prob=%v conf=%v suspicious=%v n=%d", prob, conf, suspicious, n))
					}
				}
			}
		}
	}
}
