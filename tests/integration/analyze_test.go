//go:build integration
// +build integration

// Package integration provides end-to-end tests for a running Kestrel
// instance.
//
// These tests exercise the COMPLETE analysis pipeline:
//
//	Transaction → Prescreen → Ensemble + Pattern + Similarity → Fusion → Verdict
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// The target instance is selected via KESTREL_TEST_URL (default
// http://localhost:8080). Without backend credentials the instance runs
// its degraded collaborators, which is fine: verdict structure, audit
// trail and workflow surfaces behave identically.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

func baseURL() string {
	if url := os.Getenv("KESTREL_TEST_URL"); url != "" {
		return url
	}
	return "http://localhost:8080"
}

// AnalyzeRequest is the transaction sent to POST /analyze/transaction.
type AnalyzeRequest struct {
	TransactionID    string  `json:"transactionId"`
	UserID           string  `json:"userId"`
	Amount           float64 `json:"amount"`
	Currency         string  `json:"currency"`
	TransactionType  string  `json:"transactionType"`
	MerchantName     string  `json:"merchantName,omitempty"`
	MerchantCategory string  `json:"merchantCategory,omitempty"`
	Location         string  `json:"location,omitempty"`
	Timestamp        string  `json:"timestamp,omitempty"`
}

// AnalyzeResponse is what POST /analyze/transaction returns.
type AnalyzeResponse struct {
	Verdict struct {
		IsFraudulent       bool               `json:"isFraudulent"`
		ConfidenceScore    float64            `json:"confidenceScore"`
		FraudType          string             `json:"fraudType"`
		RiskLevel          string             `json:"riskLevel"`
		Reasons            []string           `json:"reasons"`
		RecommendedActions []string           `json:"recommendedActions"`
		ComponentScores    map[string]float64 `json:"componentScores"`
	} `json:"verdict"`
	SimilarCases []map[string]any `json:"similarCases"`
	Details      map[string]any   `json:"analysisDetails"`
}

func analyze(t *testing.T, req AnalyzeRequest) AnalyzeResponse {
	t.Helper()

	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}

	httpReq, err := http.NewRequest("POST", baseURL()+"/analyze/transaction", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, string(respBody))
	}

	var result AnalyzeResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, string(respBody))
	}
	return result
}

func TestTransactionAnalysis_VerdictShape(t *testing.T) {
	req := AnalyzeRequest{
		TransactionID:    fmt.Sprintf("TX-INT-%d", time.Now().UnixNano()),
		UserID:           "integration-user-001",
		Amount:           15000,
		Currency:         "USD",
		TransactionType:  "wire_transfer",
		MerchantName:     "Global Exports Ltd",
		MerchantCategory: "wire_service",
		Location:         "Lagos, NG",
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
	}

	result := analyze(t, req)

	switch result.Verdict.RiskLevel {
	case "low", "medium", "high", "critical":
	default:
		t.Errorf("Invalid risk level: %q", result.Verdict.RiskLevel)
	}

	if result.Verdict.ConfidenceScore < 0 || result.Verdict.ConfidenceScore > 1 {
		t.Errorf("Confidence out of range: %.2f", result.Verdict.ConfidenceScore)
	}
	if len(result.Verdict.Reasons) > 5 {
		t.Errorf("Reasons exceed cap: %d", len(result.Verdict.Reasons))
	}
	if len(result.Verdict.RecommendedActions) == 0 {
		t.Error("Expected recommended actions")
	}

	final, ok := result.Verdict.ComponentScores["final"]
	if !ok {
		t.Fatal("Missing final component score")
	}
	if result.Verdict.IsFraudulent != (final > 0.70) {
		t.Errorf("Verdict inconsistent with final score %.4f", final)
	}

	caseID, _ := result.Details["caseId"].(string)
	if caseID == "" {
		t.Fatal("Missing caseId in analysis details")
	}

	// Verdict must be retrievable afterwards
	resp, err := http.Get(baseURL() + "/verdicts/" + caseID)
	if err != nil {
		t.Fatalf("Verdict lookup failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 for verdict lookup, got %d", resp.StatusCode)
	}

	t.Logf("✓ Analysis complete: case=%s fraud=%v risk=%s score=%.4f",
		caseID, result.Verdict.IsFraudulent, result.Verdict.RiskLevel, final)
}

func TestTransactionAnalysis_Validation(t *testing.T) {
	req := AnalyzeRequest{
		// Missing transactionId and userId
		Amount:          100,
		Currency:        "USD",
		TransactionType: "credit_card",
	}

	body, _ := json.Marshal(req)
	resp, err := http.Post(baseURL()+"/analyze/transaction", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing identifiers, got %d", resp.StatusCode)
	}
}

func TestPatternEndpoints(t *testing.T) {
	resp, err := http.Get(baseURL() + "/patterns/statistics")
	if err != nil {
		t.Fatalf("Statistics request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 for statistics, got %d", resp.StatusCode)
	}

	var stats struct {
		TotalPatterns int    `json:"totalPatterns"`
		Dimension     int    `json:"vectorDimension"`
		Metric        string `json:"distanceMetric"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("Failed to decode statistics: %v", err)
	}
	if stats.TotalPatterns < 5 {
		t.Errorf("Expected at least the 5 seed patterns, got %d", stats.TotalPatterns)
	}
	if stats.Dimension != 384 {
		t.Errorf("Expected 384-dimensional index, got %d", stats.Dimension)
	}

	simResp, err := http.Get(baseURL() + "/patterns/similar?q=card+testing+pattern&limit=3")
	if err != nil {
		t.Fatalf("Similarity request failed: %v", err)
	}
	defer simResp.Body.Close()
	if simResp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 for similarity search, got %d", simResp.StatusCode)
	}
}

func TestHealthEndpoint(t *testing.T) {
	resp, err := http.Get(baseURL() + "/health")
	if err != nil {
		t.Fatalf("Health request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 for health, got %d", resp.StatusCode)
	}

	var health struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode health: %v", err)
	}
	if health.Status != "healthy" && health.Status != "degraded" {
		t.Errorf("Unexpected health status %q", health.Status)
	}

	t.Logf("✓ Instance healthy: status=%s version=%s", health.Status, health.Version)
}
