// Package workflow creates and tracks case-investigation workflows
// through the external workflow backend, degrading to canned
// descriptors when the backend is unconfigured or unreachable.
package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// LiveBackend talks to the workflow orchestration service.
type LiveBackend struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewBackend selects the workflow collaborator variant once at startup.
func NewBackend(cfg domain.BackendsConfig) domain.WorkflowBackend {
	if cfg.WorkflowAPIKey == "" {
		return &DegradedBackend{}
	}
	timeout := time.Duration(cfg.WorkflowTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &LiveBackend{
		apiKey:  cfg.WorkflowAPIKey,
		baseURL: cfg.WorkflowBaseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// CreateWorkflow registers a new investigation workflow.
func (b *LiveBackend) CreateWorkflow(ctx context.Context, spec domain.WorkflowSpec) (*domain.WorkflowDescriptor, error) {
	body, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal workflow spec: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/workflows", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+b.apiKey)
	req.Header.Set("Content-Type", "application/json")

	return b.roundTrip(req)
}

// GetWorkflow fetches a workflow's progress.
func (b *LiveBackend) GetWorkflow(ctx context.Context, workflowID string) (*domain.WorkflowDescriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/workflows/"+workflowID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+b.apiKey)

	return b.roundTrip(req)
}

func (b *LiveBackend) roundTrip(req *http.Request) (*domain.WorkflowDescriptor, error) {
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCollaboratorUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("%w: workflow backend returned %d", domain.ErrCollaboratorUnavailable, resp.StatusCode)
	}

	var descriptor domain.WorkflowDescriptor
	if err := json.Unmarshal(respBody, &descriptor); err != nil {
		return nil, fmt.Errorf("failed to decode workflow descriptor: %w", err)
	}
	return &descriptor, nil
}

// Mode reports the live variant.
func (b *LiveBackend) Mode() domain.BackendMode { return domain.ModeLive }

// DegradedBackend fabricates plausible descriptors so the workflow
// surface stays exercisable without a backend credential.
type DegradedBackend struct{}

// CreateWorkflow returns a canned freshly-initiated descriptor.
func (d *DegradedBackend) CreateWorkflow(ctx context.Context, spec domain.WorkflowSpec) (*domain.WorkflowDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	desc := cannedDescriptor(newWorkflowID(), spec.CaseID, spec.Priority)
	return desc, nil
}

// GetWorkflow returns a canned in-progress descriptor for the ID.
func (d *DegradedBackend) GetWorkflow(ctx context.Context, workflowID string) (*domain.WorkflowDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	desc := cannedDescriptor(workflowID, "", domain.PriorityHigh)
	desc.Status = "in_progress"
	return desc, nil
}

// Mode reports the degraded variant.
func (d *DegradedBackend) Mode() domain.BackendMode { return domain.ModeDegraded }

func newWorkflowID() string {
	hex := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
	return "WF-" + hex[:12]
}

func cannedDescriptor(workflowID, caseID, priority string) *domain.WorkflowDescriptor {
	now := time.Now().UTC()
	return &domain.WorkflowDescriptor{
		WorkflowID:          workflowID,
		CaseID:              caseID,
		Status:              "initiated",
		Priority:            priority,
		StepsCompleted:      []string{StepRiskAssessment},
		CurrentStep:         StepTransactionAnalysis,
		NextSteps:           []string{StepCustomerVerification, StepComplianceCheck, StepDecisionRecommendation},
		EstimatedCompletion: now.Add(2 * time.Hour),
		AssignedTo:          "fraud_team_alpha",
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}
