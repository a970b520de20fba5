package pattern

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/fusion"
	"github.com/opensource-finance/kestrel/internal/llm"
)

type scriptedVision struct {
	textResponse  string
	imageResponse string
	err           error
}

func (s *scriptedVision) Generate(ctx context.Context, prompt string) (string, error) {
	return s.textResponse, s.err
}

func (s *scriptedVision) GenerateWithImage(ctx context.Context, prompt string, image []byte) (string, error) {
	return s.imageResponse, s.err
}

func (s *scriptedVision) Mode() domain.BackendMode { return domain.ModeLive }

func sampleTransaction() *domain.Transaction {
	return &domain.Transaction{
		ID:               "TX-001",
		UserID:           "user-123",
		Amount:           15000,
		Currency:         "USD",
		MerchantName:     "Luxury Goods Inc",
		MerchantCategory: "jewelry",
		Location:         "Dubai, UAE",
		Timestamp:        time.Date(2025, 6, 1, 3, 30, 0, 0, time.UTC),
		Type:             domain.TypeCreditCard,
	}
}

func TestAnalyzeTransactionPatternParsed(t *testing.T) {
	backend := &scriptedVision{
		textResponse: `Based on the history: {"is_suspicious": true, "confidence": 0.88, "anomalies": ["Amount spike"], "risk_factors": ["New location"], "explanation": "Amount far above baseline"}`,
	}
	analyzer := NewAnalyzer(backend)

	opinion := analyzer.AnalyzeTransactionPattern(context.Background(), sampleTransaction(), nil)
	if !opinion.Parsed {
		t.Fatal("expected parsed opinion")
	}
	if !opinion.IsSuspicious || opinion.Confidence != 0.88 {
		t.Errorf("unexpected opinion: %+v", opinion)
	}
	if len(opinion.Anomalies) != 1 || opinion.Anomalies[0] != "Amount spike" {
		t.Errorf("unexpected anomalies: %v", opinion.Anomalies)
	}
	if opinion.Explanation != "Amount far above baseline" {
		t.Errorf("unexpected explanation: %q", opinion.Explanation)
	}
}

func TestAnalyzeTransactionPatternUnparsable(t *testing.T) {
	backend := &scriptedVision{textResponse: "The pattern looks concerning but I cannot quantify it."}
	analyzer := NewAnalyzer(backend)

	opinion := analyzer.AnalyzeTransactionPattern(context.Background(), sampleTransaction(), nil)
	if opinion.Parsed {
		t.Error("expected unparsed opinion")
	}
	if opinion.Raw == "" {
		t.Error("expected raw text preserved")
	}
	if opinion.IsSuspicious {
		t.Error("unparsed opinion should not be suspicious")
	}
	if opinion.Confidence != 0.5 {
		t.Errorf("unparsed opinion should keep neutral confidence 0.5, got %v", opinion.Confidence)
	}
}

func TestUnparsableOpinionDoesNotInflateVerdict(t *testing.T) {
	backend := &scriptedVision{textResponse: "I am fairly sure something is off here, hard to say what."}
	analyzer := NewAnalyzer(backend)

	opinion := analyzer.AnalyzeTransactionPattern(context.Background(), sampleTransaction(), nil)
	verdict := fusion.Decide(&domain.EnsembleOpinion{FraudProbability: 0.8, Confidence: 0.9}, opinion, nil)

	if got := verdict.ComponentScores["pattern"]; got != 0.5 {
		t.Errorf("expected neutral pattern term 0.5, got %v", got)
	}
	if got := verdict.ComponentScores["final"]; math.Abs(got-0.575) > 1e-9 {
		t.Errorf("expected final score 0.575, got %v", got)
	}
	if verdict.IsFraudulent {
		t.Error("an unquantified pattern opinion must not tip the verdict to fraud")
	}
}

func TestAnalyzeTransactionPatternBackendFailure(t *testing.T) {
	analyzer := NewAnalyzer(&llm.DegradedVision{})

	opinion := analyzer.AnalyzeTransactionPattern(context.Background(), sampleTransaction(), []domain.HistoricalTransaction{
		{Amount: 120, Merchant: "Grocery Store", Time: "2025-05-28 14:10"},
	})

	if !opinion.IsSuspicious {
		t.Error("fallback opinion should be suspicious")
	}
	if opinion.Confidence != 0.82 {
		t.Errorf("expected fallback confidence 0.82, got %v", opinion.Confidence)
	}
	if len(opinion.Anomalies) != 3 {
		t.Errorf("expected 3 fallback anomalies, got %v", opinion.Anomalies)
	}
	if opinion.Explanation == "" {
		t.Error("fallback opinion should carry an explanation")
	}
}

func TestAnalyzeDocumentParsed(t *testing.T) {
	backend := &scriptedVision{
		imageResponse: `{"is_fraudulent": true, "confidence": 0.95, "fraud_indicators": ["Font mismatch"], "authenticity_score": 0.2, "recommendations": ["Reject document"]}`,
	}
	analyzer := NewAnalyzer(backend)

	opinion := analyzer.AnalyzeDocument(context.Background(), []byte("fake-image"), "passport")
	if !opinion.Parsed || !opinion.IsFraudulent {
		t.Fatalf("unexpected opinion: %+v", opinion)
	}
	if opinion.AuthenticityScore != 0.2 {
		t.Errorf("expected authenticity 0.2, got %v", opinion.AuthenticityScore)
	}
}

func TestAnalyzeDocumentUnparsable(t *testing.T) {
	backend := &scriptedVision{imageResponse: "The scan quality is too poor to assess."}
	analyzer := NewAnalyzer(backend)

	opinion := analyzer.AnalyzeDocument(context.Background(), []byte("img"), "invoice")
	if opinion.Parsed {
		t.Error("expected unparsed opinion")
	}
	if opinion.IsFraudulent {
		t.Error("unparsed document opinion should not be fraudulent")
	}
	if opinion.Confidence != 0.5 || opinion.AuthenticityScore != 0.5 {
		t.Errorf("unparsed document opinion should keep neutral defaults, got %+v", opinion)
	}
}

func TestAnalyzeDocumentBackendFailure(t *testing.T) {
	analyzer := NewAnalyzer(&llm.DegradedVision{})

	opinion := analyzer.AnalyzeDocument(context.Background(), []byte("img"), "drivers_license")
	if opinion.IsFraudulent {
		t.Error("fallback document opinion should not be fraudulent")
	}
	if opinion.Confidence != 0.91 || opinion.AuthenticityScore != 0.94 {
		t.Errorf("unexpected fallback opinion: %+v", opinion)
	}
	if len(opinion.FraudIndicators) != 0 {
		t.Errorf("fallback opinion should report no fraud indicators, got %v", opinion.FraudIndicators)
	}
	want := []string{"Document appears authentic", "No further action required"}
	if len(opinion.Recommendations) != 2 || opinion.Recommendations[0] != want[0] || opinion.Recommendations[1] != want[1] {
		t.Errorf("unexpected fallback recommendations: %v", opinion.Recommendations)
	}
}

func TestExplainFallsBackDeterministically(t *testing.T) {
	analyzer := NewAnalyzer(&llm.DegradedVision{})

	verdict := &domain.FraudVerdict{
		IsFraudulent:    true,
		ConfidenceScore: 0.81,
		RiskLevel:       domain.RiskHigh,
		Reasons:         []string{"High fraud probability detected by AI ensemble"},
	}
	text := analyzer.Explain(context.Background(), verdict)
	if !strings.Contains(text, "fraudulent") || !strings.Contains(text, "high") {
		t.Errorf("unexpected explanation: %q", text)
	}
}
