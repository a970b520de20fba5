// Package engine orchestrates the full analysis pipeline: prescreen,
// concurrent collaborator fan-out, fusion, case creation and event
// publication. The engine degrades signal-by-signal and only fails a
// request outright on validation errors.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/ensemble"
	"github.com/opensource-finance/kestrel/internal/fusion"
	"github.com/opensource-finance/kestrel/internal/pattern"
	"github.com/opensource-finance/kestrel/internal/prescreen"
	"github.com/opensource-finance/kestrel/internal/workflow"
)

const (
	// Similarity search parameters for transaction analysis.
	similarSearchLimit     = 5
	similarSearchThreshold = 0.7

	// Document analysis searches a narrower neighborhood.
	documentSearchLimit = 3

	// A fraudulent document opinion below this confidence does not open
	// an investigation.
	documentWorkflowThreshold = 0.7

	// Pattern-analysis context depth.
	historyLimit = 10

	// Trailing window for the per-user velocity counter.
	velocityWindow = time.Hour

	embeddingTTL = 24 * time.Hour
)

// Engine wires the collaborators into the analysis pipeline.
type Engine struct {
	ensemble   *ensemble.Analyzer
	pattern    *pattern.Analyzer
	prescreen  *prescreen.Engine
	dispatcher *workflow.Dispatcher

	embedder domain.EmbeddingBackend
	store    domain.SimilarityStore
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus

	models []string
}

// Deps holds the collaborators the engine orchestrates.
type Deps struct {
	Ensemble   *ensemble.Analyzer
	Pattern    *pattern.Analyzer
	Prescreen  *prescreen.Engine
	Dispatcher *workflow.Dispatcher

	Embedder domain.EmbeddingBackend
	Store    domain.SimilarityStore
	Repo     domain.Repository
	Cache    domain.Cache
	Bus      domain.EventBus

	// EnsembleModels are the model names fanned out per analysis.
	EnsembleModels []string
}

// New creates the analysis engine.
func New(deps Deps) *Engine {
	return &Engine{
		ensemble:   deps.Ensemble,
		pattern:    deps.Pattern,
		prescreen:  deps.Prescreen,
		dispatcher: deps.Dispatcher,
		embedder:   deps.Embedder,
		store:      deps.Store,
		repo:       deps.Repo,
		cache:      deps.Cache,
		bus:        deps.Bus,
		models:     deps.EnsembleModels,
	}
}

// AnalyzeTransaction runs the full scoring pipeline for one transaction.
// Collaborator failures degrade individual signals; only validation
// errors fail the call.
func (e *Engine) AnalyzeTransaction(ctx context.Context, tx *domain.Transaction) (*domain.AnalysisResult, error) {
	start := time.Now()

	if err := tx.Validate(); err != nil {
		return nil, err
	}
	if tx.Timestamp.IsZero() {
		t := *tx
		t.Timestamp = time.Now().UTC()
		tx = &t
	}

	// Deterministic prescreen before any model call
	velocity := e.velocityCount(ctx, tx.UserID)
	signals := e.prescreen.Screen(ctx, tx, velocity)
	features := prescreen.Annotate(tx.Features(), signals)

	var (
		wg              sync.WaitGroup
		ensembleOpinion domain.EnsembleOpinion
		patternOpinion  *domain.PatternOpinion
		similarCases    []domain.SimilarCase
		searchDegraded  bool
		vector          []float32
	)

	wg.Add(3)

	go func() {
		defer wg.Done()
		opinion, err := e.ensemble.Analyze(ctx, features, e.models)
		if err != nil {
			slog.Warn("ensemble unavailable, substituting neutral opinion",
				"transaction_id", tx.ID, "error", err)
			ensembleOpinion = domain.NeutralEnsembleOpinion()
			return
		}
		ensembleOpinion = *opinion
	}()

	go func() {
		defer wg.Done()
		patternOpinion = e.pattern.AnalyzeTransactionPattern(ctx, tx, e.history(ctx, tx.UserID))
	}()

	go func() {
		defer wg.Done()
		vec, err := e.embed(ctx, tx.EmbeddingText())
		if err != nil {
			slog.Warn("embedding unavailable, skipping similarity search",
				"transaction_id", tx.ID, "error", err)
			return
		}
		vector = vec
		similarCases, searchDegraded = e.store.Search(ctx, vec, similarSearchLimit, similarSearchThreshold)
	}()

	wg.Wait()

	verdict := fusion.Decide(&ensembleOpinion, patternOpinion, similarCases)
	caseID := newCaseID("CASE")

	var descriptor *domain.WorkflowDescriptor
	if verdict.IsFraudulent {
		priority := domain.PriorityMedium
		if verdict.RiskLevel == domain.RiskCritical {
			priority = domain.PriorityHigh
		}
		descriptor = e.dispatcher.CreateInvestigation(ctx, domain.CaseData{
			CaseID:        caseID,
			TransactionID: tx.ID,
			UserID:        tx.UserID,
			FraudType:     verdict.FraudType,
			RiskLevel:     verdict.RiskLevel,
			Confidence:    verdict.ConfidenceScore,
		}, priority)

		// Learn the confirmed case for future similarity lookups
		if vector != nil {
			err := e.store.Upsert(ctx, domain.StoredFraudCase{
				CaseID:    caseID,
				FraudType: verdict.FraudType,
				Vector:    vector,
				Metadata: map[string]interface{}{
					"transaction_id": tx.ID,
					"severity":       string(verdict.RiskLevel),
					"description":    strings.Join(verdict.Reasons, "; "),
				},
			})
			if err != nil {
				slog.Warn("failed to index fraud case", "case_id", caseID, "error", err)
			}
		}
	}

	explanation := e.pattern.Explain(ctx, &verdict)

	result := &domain.AnalysisResult{
		Verdict:      verdict,
		SimilarCases: similarCases,
		Details: map[string]interface{}{
			"caseId":           caseID,
			"transactionId":    tx.ID,
			"explanation":      explanation,
			"derivedSignals":   signals,
			"velocityCount":    velocity,
			"ensembleAnalysis": ensembleOpinion,
			"patternAnalysis":  patternOpinion,
			"searchDegraded":   searchDegraded,
			"processingMs":     time.Since(start).Milliseconds(),
		},
	}
	if descriptor != nil {
		result.Details["workflow"] = descriptor
	}

	e.persist(ctx, tx, caseID, result)
	e.publish(ctx, caseID, tx, &verdict)

	slog.Info("transaction analyzed",
		"transaction_id", tx.ID,
		"case_id", caseID,
		"is_fraudulent", verdict.IsFraudulent,
		"risk_level", verdict.RiskLevel,
		"final_score", verdict.ComponentScores["final"],
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return result, nil
}

// DocumentResult is the outcome of a document fraud analysis.
type DocumentResult struct {
	CaseID          string                     `json:"caseId"`
	Analysis        domain.DocumentOpinion     `json:"documentAnalysis"`
	SimilarPatterns []domain.SimilarCase       `json:"similarPatterns"`
	Workflow        *domain.WorkflowDescriptor `json:"workflow,omitempty"`
}

// AnalyzeDocument inspects a document image for fraud. An investigation
// is opened only for confident fraudulent opinions.
func (e *Engine) AnalyzeDocument(ctx context.Context, image []byte, documentType string) (*DocumentResult, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: document image is required", domain.ErrValidation)
	}
	if documentType == "" {
		documentType = "unknown"
	}

	opinion := e.pattern.AnalyzeDocument(ctx, image, documentType)
	caseID := newCaseID("DOC")

	var similar []domain.SimilarCase
	text := fmt.Sprintf("Document fraud analysis: type=%s fraudulent=%t indicators=%s",
		documentType, opinion.IsFraudulent, strings.Join(opinion.FraudIndicators, "; "))
	if vec, err := e.embed(ctx, text); err == nil {
		similar, _ = e.store.Search(ctx, vec, documentSearchLimit, similarSearchThreshold)
	} else {
		slog.Warn("embedding unavailable for document analysis", "case_id", caseID, "error", err)
	}

	var descriptor *domain.WorkflowDescriptor
	if opinion.IsFraudulent && opinion.Confidence > documentWorkflowThreshold {
		descriptor = e.dispatcher.CreateInvestigation(ctx, domain.CaseData{
			CaseID:       caseID,
			FraudType:    domain.FraudIdentityTheft,
			RiskLevel:    domain.RiskHigh,
			Confidence:   opinion.Confidence,
			DocumentType: documentType,
		}, domain.PriorityHigh)

		event := domain.VerdictEvent{
			CaseID:       caseID,
			IsFraudulent: true,
			FraudType:    domain.FraudIdentityTheft,
			RiskLevel:    domain.RiskHigh,
			FinalScore:   opinion.Confidence,
		}
		e.publishEvent(ctx, domain.TopicAlert, event)
	}

	return &DocumentResult{
		CaseID:          caseID,
		Analysis:        *opinion,
		SimilarPatterns: similar,
		Workflow:        descriptor,
	}, nil
}

// SearchSimilar embeds the query text and searches the pattern index.
func (e *Engine) SearchSimilar(ctx context.Context, query string, limit int, threshold float64) ([]domain.SimilarCase, bool, error) {
	if strings.TrimSpace(query) == "" {
		return nil, false, fmt.Errorf("%w: query is required", domain.ErrValidation)
	}
	if limit <= 0 {
		limit = similarSearchLimit
	}
	if threshold <= 0 {
		threshold = similarSearchThreshold
	}

	vec, err := e.embed(ctx, query)
	if err != nil {
		return nil, false, err
	}
	cases, degraded := e.store.Search(ctx, vec, limit, threshold)
	return cases, degraded, nil
}

// PatternStatistics reports the similarity store's index statistics.
func (e *Engine) PatternStatistics(ctx context.Context) (*domain.StoreStats, error) {
	return e.store.Statistics(ctx)
}

// Investigation reports a workflow's progress.
func (e *Engine) Investigation(ctx context.Context, workflowID string) *domain.WorkflowDescriptor {
	return e.dispatcher.GetInvestigation(ctx, workflowID)
}

// velocityCount increments the user's trailing-window counter, falling
// back to a repository count when the cache is unavailable.
func (e *Engine) velocityCount(ctx context.Context, userID string) int64 {
	count, err := e.cache.IncrementCounter(ctx, "velocity:"+userID, velocityWindow)
	if err == nil {
		return count
	}
	slog.Warn("velocity counter unavailable, counting from repository", "user_id", userID, "error", err)

	n, err := e.repo.CountTransactionsSince(ctx, userID, time.Now().Add(-velocityWindow))
	if err != nil {
		slog.Warn("repository velocity count failed", "user_id", userID, "error", err)
		return 0
	}
	return n + 1
}

// history loads the user's recent transactions as pattern context.
// Users with no stored history get a representative baseline so the
// pattern analyzer always has something to compare against.
func (e *Engine) history(ctx context.Context, userID string) []domain.HistoricalTransaction {
	recent, err := e.repo.GetRecentTransactions(ctx, userID, historyLimit)
	if err != nil {
		slog.Warn("history lookup failed", "user_id", userID, "error", err)
		return baselineHistory()
	}
	if len(recent) == 0 {
		return baselineHistory()
	}

	out := make([]domain.HistoricalTransaction, 0, len(recent))
	for _, tx := range recent {
		merchant := tx.MerchantName
		if merchant == "" {
			merchant = "Unknown"
		}
		out = append(out, domain.HistoricalTransaction{
			Amount:   tx.Amount,
			Merchant: merchant,
			Time:     tx.Timestamp.UTC().Format("2006-01-02 15:04"),
		})
	}
	return out
}

func baselineHistory() []domain.HistoricalTransaction {
	return []domain.HistoricalTransaction{
		{Amount: 45.20, Merchant: "Coffee Shop", Time: "2025-11-10 08:30"},
		{Amount: 120.00, Merchant: "Grocery Store", Time: "2025-11-09 18:00"},
		{Amount: 35.50, Merchant: "Gas Station", Time: "2025-11-08 12:00"},
		{Amount: 89.99, Merchant: "Online Retailer", Time: "2025-11-07 20:00"},
		{Amount: 250.00, Merchant: "Restaurant", Time: "2025-11-06 19:30"},
	}
}

// embed returns the embedding for text, consulting the digest cache
// before calling the backend.
func (e *Engine) embed(ctx context.Context, text string) ([]float32, error) {
	digest := textDigest(text)
	if vec, err := e.cache.GetEmbedding(ctx, digest); err == nil && vec != nil {
		return vec, nil
	}

	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := e.cache.SetEmbedding(ctx, digest, vec, embeddingTTL); err != nil {
		slog.Warn("failed to cache embedding", "error", err)
	}
	return vec, nil
}

// persist writes the audit trail. Persistence failures are logged and
// never fail the analysis.
func (e *Engine) persist(ctx context.Context, tx *domain.Transaction, caseID string, result *domain.AnalysisResult) {
	if err := e.repo.SaveTransaction(ctx, tx); err != nil {
		slog.Error("failed to save transaction", "transaction_id", tx.ID, "error", err)
	}
	if err := e.repo.SaveVerdict(ctx, tx.ID, caseID, result); err != nil {
		slog.Error("failed to save verdict", "case_id", caseID, "error", err)
	}
}

// publish fans the verdict out; fraudulent verdicts also raise an alert.
func (e *Engine) publish(ctx context.Context, caseID string, tx *domain.Transaction, verdict *domain.FraudVerdict) {
	event := domain.VerdictEvent{
		CaseID:        caseID,
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		IsFraudulent:  verdict.IsFraudulent,
		FraudType:     verdict.FraudType,
		RiskLevel:     verdict.RiskLevel,
		FinalScore:    verdict.ComponentScores["final"],
	}

	e.publishEvent(ctx, domain.TopicVerdict, event)
	if verdict.IsFraudulent {
		e.publishEvent(ctx, domain.TopicAlert, event)
	}
}

func (e *Engine) publishEvent(ctx context.Context, topic string, event domain.VerdictEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal verdict event", "case_id", event.CaseID, "error", err)
		return
	}
	if err := e.bus.Publish(ctx, topic, payload); err != nil {
		slog.Error("failed to publish event", "topic", topic, "case_id", event.CaseID, "error", err)
	}
}

func newCaseID(prefix string) string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
	return prefix + "-" + id[:8]
}

func textDigest(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
