// Package ensemble queries N independent text-generation models with
// the same structured prompt and reduces their opinions into one.
package ensemble

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/llm"
)

const systemInstruction = "You are an expert fraud detection AI."

const promptTemplate = `Analyze this financial transaction for fraud:

%s

Provide:
1. Fraud probability (0-1)
2. Key risk factors
3. Confidence level

Respond in JSON format with keys "fraud_probability", "confidence", "risk_factors".`

// Agreement variance thresholds. Below highAgreementVariance the models
// effectively concur; above mediumAgreementVariance they diverge.
const (
	highAgreementVariance   = 0.01
	mediumAgreementVariance = 0.05
)

// Analyzer fans one structured query out to multiple models and
// reduces the surviving answers.
type Analyzer struct {
	backend    domain.ChatBackend
	maxWorkers int
}

// NewAnalyzer creates an ensemble analyzer over the chat backend.
func NewAnalyzer(backend domain.ChatBackend, maxWorkers int) *Analyzer {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}
	return &Analyzer{backend: backend, maxWorkers: maxWorkers}
}

// modelVerdict is the structured block expected from each model.
// Fields are prefilled with neutral defaults so keys a model omits
// keep the documented fallback values.
type modelVerdict struct {
	FraudProbability float64  `json:"fraud_probability"`
	Confidence       float64  `json:"confidence"`
	RiskFactors      []string `json:"risk_factors"`
}

// Analyze queries every named model concurrently and reduces the
// results. A model that errors or returns no structured block is
// dropped from the reduction and recorded with an error marker; only
// when every model fails does the call fail with ErrAllModelsFailed.
func (a *Analyzer) Analyze(ctx context.Context, features map[string]interface{}, models []string) (*domain.EnsembleOpinion, error) {
	if len(models) == 0 {
		return nil, fmt.Errorf("%w: no models configured", domain.ErrAllModelsFailed)
	}

	serialized, err := json.MarshalIndent(features, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize features: %w", err)
	}
	prompt := fmt.Sprintf(promptTemplate, serialized)

	assessments := make([]domain.ModelAssessment, len(models))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, a.maxWorkers)

	for i, model := range models {
		wg.Add(1)
		go func(idx int, model string) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			assessments[idx] = a.queryModel(ctx, model, prompt)
		}(i, model)
	}

	wg.Wait()

	return reduce(assessments, models)
}

// queryModel runs one model round trip and parses the structured block.
func (a *Analyzer) queryModel(ctx context.Context, model, prompt string) domain.ModelAssessment {
	text, err := a.backend.Complete(ctx, model, systemInstruction, prompt)
	if err != nil {
		slog.Warn("ensemble model failed", "model", model, "error", err)
		return domain.ModelAssessment{Model: model, Err: err.Error()}
	}

	verdict := modelVerdict{FraudProbability: 0.5, Confidence: 0.7}
	if !llm.DecodeJSONBlock(text, &verdict) {
		slog.Warn("ensemble model returned no structured block", "model", model)
		return domain.ModelAssessment{Model: model, Err: domain.ErrUnparsableResponse.Error()}
	}

	return domain.ModelAssessment{
		Model:            model,
		FraudProbability: domain.Clamp(verdict.FraudProbability),
		Confidence:       domain.Clamp(verdict.Confidence),
		RiskFactors:      verdict.RiskFactors,
	}
}

// reduce folds per-model assessments into one ensemble opinion.
func reduce(assessments []domain.ModelAssessment, models []string) (*domain.EnsembleOpinion, error) {
	var probs, confs []float64
	var riskFactors []string
	seen := make(map[string]bool)

	for _, m := range assessments {
		if m.Err != "" {
			continue
		}
		probs = append(probs, m.FraudProbability)
		confs = append(confs, m.Confidence)
		for _, rf := range m.RiskFactors {
			if !seen[rf] {
				seen[rf] = true
				riskFactors = append(riskFactors, rf)
			}
		}
	}

	if len(probs) == 0 {
		return nil, domain.ErrAllModelsFailed
	}

	avgProb := mean(probs)
	opinion := &domain.EnsembleOpinion{
		FraudProbability: avgProb,
		Confidence:       mean(confs),
		IsFraudulent:     avgProb > 0.7,
		RiskFactors:      riskFactors,
		ModelsUsed:       models,
		Agreement:        agreement(probs),
		PerModel:         assessments,
	}
	return opinion, nil
}

func mean(vals []float64) float64 {
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// agreement classifies the variance of per-model probabilities.
func agreement(probs []float64) domain.AgreementLevel {
	if len(probs) == 0 {
		return domain.AgreementUnknown
	}
	m := mean(probs)
	variance := 0.0
	for _, p := range probs {
		variance += (p - m) * (p - m)
	}
	variance /= float64(len(probs))

	switch {
	case variance < highAgreementVariance:
		return domain.AgreementHigh
	case variance < mediumAgreementVariance:
		return domain.AgreementMedium
	default:
		return domain.AgreementLow
	}
}
