// Package api exposes the analysis pipeline over HTTP.
package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/engine"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/workflow"
)

// Modes reports each collaborator's construction-time variant for the
// health surface.
type Modes struct {
	Chat     domain.BackendMode `json:"chat"`
	Vision   domain.BackendMode `json:"vision"`
	Embedder domain.BackendMode `json:"embedder"`
	Workflow domain.BackendMode `json:"workflow"`
	Store    domain.BackendMode `json:"vectorStore"`
}

// Handler holds dependencies for API handlers.
type Handler struct {
	engine     *engine.Engine
	dispatcher *workflow.Dispatcher
	repo       domain.Repository
	cache      domain.Cache
	bus        domain.EventBus
	modes      Modes
	version    string
}

// NewHandler creates a new API handler.
func NewHandler(eng *engine.Engine, dispatcher *workflow.Dispatcher, repo domain.Repository, cache domain.Cache, bus domain.EventBus, modes Modes, version string) *Handler {
	return &Handler{
		engine:     eng,
		dispatcher: dispatcher,
		repo:       repo,
		cache:      cache,
		bus:        bus,
		modes:      modes,
		version:    version,
	}
}

// AnalyzeTransaction handles POST /analyze/transaction.
func (h *Handler) AnalyzeTransaction(w http.ResponseWriter, r *http.Request) {
	var tx domain.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	result, err := h.engine.AnalyzeTransaction(r.Context(), &tx)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		slog.Error("transaction analysis failed", "transaction_id", tx.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "analysis failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// DocumentRequest is the request body for POST /analyze/document.
type DocumentRequest struct {
	// Image is the base64-encoded document image.
	Image        string `json:"image"`
	DocumentType string `json:"documentType"`
}

// AnalyzeDocument handles POST /analyze/document.
func (h *Handler) AnalyzeDocument(w http.ResponseWriter, r *http.Request) {
	var req DocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	image, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "image must be base64-encoded",
		})
		return
	}

	result, err := h.engine.AnalyzeDocument(r.Context(), image, req.DocumentType)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		slog.Error("document analysis failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "analysis failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// WorkflowRequest is the request body for POST /workflows.
type WorkflowRequest struct {
	domain.CaseData
	Priority string `json:"priority"`
}

// CreateWorkflow handles POST /workflows.
func (h *Handler) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req WorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.CaseID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "caseId is required",
		})
		return
	}

	descriptor := h.dispatcher.CreateInvestigation(r.Context(), req.CaseData, req.Priority)
	writeJSON(w, http.StatusCreated, descriptor)
}

// GetWorkflow handles GET /workflows/{id}.
func (h *Handler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "id")
	if workflowID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "workflow id is required",
		})
		return
	}

	descriptor := h.engine.Investigation(r.Context(), workflowID)
	writeJSON(w, http.StatusOK, descriptor)
}

// SimilarPatterns handles GET /patterns/similar.
func (h *Handler) SimilarPatterns(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		query = r.URL.Query().Get("text")
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	threshold, _ := strconv.ParseFloat(r.URL.Query().Get("threshold"), 64)

	matches, degraded, err := h.engine.SearchSimilar(r.Context(), query, limit, threshold)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "query parameter q is required",
			})
			return
		}
		slog.Error("similarity search failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "similarity search failed",
		})
		return
	}

	if matches == nil {
		matches = []domain.SimilarCase{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"matches":  matches,
		"degraded": degraded,
	})
}

// PatternStatistics handles GET /patterns/statistics.
func (h *Handler) PatternStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.PatternStatistics(r.Context())
	if err != nil {
		slog.Error("statistics lookup failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "statistics unavailable",
		})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GetVerdict handles GET /verdicts/{caseId}.
func (h *Handler) GetVerdict(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseId")
	if caseID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "case id is required",
		})
		return
	}

	result, err := h.repo.GetVerdict(r.Context(), caseID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "verdict not found",
			})
			return
		}
		slog.Error("verdict lookup failed", "case_id", caseID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "verdict lookup failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// DemoSampleTransaction handles POST /demo/sample-transaction: it
// fabricates a transaction for the requested profile and runs it
// through the full pipeline.
func (h *Handler) DemoSampleTransaction(w http.ResponseWriter, r *http.Request) {
	tx := sampleTransaction(r.URL.Query().Get("profile"))

	result, err := h.engine.AnalyzeTransaction(r.Context(), tx)
	if err != nil {
		slog.Error("demo analysis failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "analysis failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transaction": tx,
		"analysis":    result,
	})
}

// sampleTransaction builds a demo transaction for a profile: "fraud",
// "suspicious", or anything else for a normal one.
func sampleTransaction(profile string) *domain.Transaction {
	id := "TX-" + strings.ToUpper(uuid.New().String()[:8])

	switch profile {
	case "fraud":
		return &domain.Transaction{
			ID:               id,
			UserID:           "demo-user",
			Amount:           15000.00,
			Currency:         "USD",
			Type:             domain.TypeCreditCard,
			MerchantName:     "Electronics Store",
			MerchantCategory: "electronics",
			Location:         "Tokyo, Japan",
			IPAddress:        "203.0.113.42",
			DeviceID:         "new-device-unknown",
			Timestamp:        time.Now().UTC().Truncate(24 * time.Hour).Add(3*time.Hour + 30*time.Minute),
		}
	case "suspicious":
		return &domain.Transaction{
			ID:               id,
			UserID:           "demo-user",
			Amount:           2500.00,
			Currency:         "USD",
			Type:             domain.TypeWireTransfer,
			MerchantName:     "Unknown Recipient",
			MerchantCategory: "wire_service",
			Location:         "Unknown",
			IPAddress:        "198.51.100.123",
			Timestamp:        time.Now().UTC(),
		}
	default:
		return &domain.Transaction{
			ID:               id,
			UserID:           "demo-user",
			Amount:           45.99,
			Currency:         "USD",
			Type:             domain.TypeCreditCard,
			MerchantName:     "Coffee Shop",
			MerchantCategory: "food_beverage",
			Location:         "New York, USA",
			IPAddress:        "192.0.2.1",
			DeviceID:         "regular-device-123",
			Timestamp:        time.Now().UTC(),
		}
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	components := map[string]string{}

	if err := h.repo.Ping(r.Context()); err != nil {
		status = "degraded"
		components["repository"] = "unavailable"
	} else {
		components["repository"] = "ok"
	}

	if err := h.cache.Ping(r.Context()); err != nil {
		status = "degraded"
		components["cache"] = "unavailable"
	} else {
		components["cache"] = "ok"
	}

	if err := h.bus.Ping(r.Context()); err != nil {
		status = "degraded"
		components["eventBus"] = "unavailable"
	} else {
		components["eventBus"] = "ok"
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     status,
		"version":    h.version,
		"components": components,
		"backends":   h.modes,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
