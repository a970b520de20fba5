package workflow

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

type scriptedBackend struct {
	created    *domain.WorkflowSpec
	descriptor *domain.WorkflowDescriptor
	err        error
}

func (s *scriptedBackend) CreateWorkflow(ctx context.Context, spec domain.WorkflowSpec) (*domain.WorkflowDescriptor, error) {
	s.created = &spec
	return s.descriptor, s.err
}

func (s *scriptedBackend) GetWorkflow(ctx context.Context, workflowID string) (*domain.WorkflowDescriptor, error) {
	return s.descriptor, s.err
}

func (s *scriptedBackend) Mode() domain.BackendMode { return domain.ModeLive }

func testCase() domain.CaseData {
	return domain.CaseData{
		CaseID:        "CASE-AB12CD34",
		TransactionID: "TX-001",
		UserID:        "user-123",
		FraudType:     domain.FraudCard,
		RiskLevel:     domain.RiskHigh,
		Confidence:    0.87,
	}
}

func TestCreateInvestigationBuildsFixedChecklist(t *testing.T) {
	backend := &scriptedBackend{descriptor: &domain.WorkflowDescriptor{WorkflowID: "WF-REMOTE000001", Status: "initiated"}}
	dispatcher := NewDispatcher(backend)

	descriptor := dispatcher.CreateInvestigation(context.Background(), testCase(), domain.PriorityHigh)
	if descriptor.WorkflowID != "WF-REMOTE000001" {
		t.Errorf("expected backend descriptor, got %+v", descriptor)
	}

	if backend.created == nil {
		t.Fatal("expected a workflow spec")
	}
	spec := backend.created
	if spec.WorkflowType != "fraud_investigation" || spec.CaseID != "CASE-AB12CD34" {
		t.Errorf("unexpected spec: %+v", spec)
	}

	wantSteps := []string{
		StepRiskAssessment,
		StepTransactionAnalysis,
		StepCustomerVerification,
		StepComplianceCheck,
		StepDecisionRecommendation,
		StepCaseClosure,
	}
	if len(spec.Steps) != len(wantSteps) {
		t.Fatalf("expected %d steps, got %d", len(wantSteps), len(spec.Steps))
	}
	for i, name := range wantSteps {
		if spec.Steps[i].Name != name {
			t.Errorf("step %d: expected %s, got %s", i, name, spec.Steps[i].Name)
		}
	}
	if spec.Steps[2].Type != "manual_review" || !spec.Steps[2].RequiresApproval {
		t.Errorf("customer verification should be manual with approval: %+v", spec.Steps[2])
	}
	if spec.Steps[5].Type != "manual_review" {
		t.Errorf("case closure should be manual: %+v", spec.Steps[5])
	}
}

func TestCreateInvestigationDegradesOnBackendFailure(t *testing.T) {
	backend := &scriptedBackend{err: domain.ErrCollaboratorUnavailable}
	dispatcher := NewDispatcher(backend)

	descriptor := dispatcher.CreateInvestigation(context.Background(), testCase(), domain.PriorityUrgent)
	if descriptor == nil {
		t.Fatal("expected canned descriptor")
	}
	if !strings.HasPrefix(descriptor.WorkflowID, "WF-") || len(descriptor.WorkflowID) != 15 {
		t.Errorf("unexpected workflow id %q", descriptor.WorkflowID)
	}
	if descriptor.Status != "initiated" {
		t.Errorf("expected initiated, got %s", descriptor.Status)
	}
	if descriptor.CurrentStep != StepTransactionAnalysis {
		t.Errorf("expected current step %s, got %s", StepTransactionAnalysis, descriptor.CurrentStep)
	}
	if descriptor.AssignedTo != "fraud_team_alpha" {
		t.Errorf("unexpected assignee %s", descriptor.AssignedTo)
	}
	if remaining := time.Until(descriptor.EstimatedCompletion); remaining < time.Hour || remaining > 3*time.Hour {
		t.Errorf("unexpected completion estimate %v", descriptor.EstimatedCompletion)
	}
}

func TestGetInvestigationDegradesOnBackendFailure(t *testing.T) {
	dispatcher := NewDispatcher(&scriptedBackend{err: domain.ErrCollaboratorUnavailable})

	descriptor := dispatcher.GetInvestigation(context.Background(), "WF-123456789ABC")
	if descriptor.WorkflowID != "WF-123456789ABC" {
		t.Errorf("expected requested id echoed, got %s", descriptor.WorkflowID)
	}
	if descriptor.Status != "in_progress" {
		t.Errorf("expected in_progress, got %s", descriptor.Status)
	}
}

func TestDegradedBackendDescriptors(t *testing.T) {
	backend := &DegradedBackend{}

	descriptor, err := backend.CreateWorkflow(context.Background(), domain.WorkflowSpec{CaseID: "CASE-1", Priority: domain.PriorityHigh})
	if err != nil {
		t.Fatalf("CreateWorkflow: %v", err)
	}
	if descriptor.CaseID != "CASE-1" || descriptor.Priority != domain.PriorityHigh {
		t.Errorf("unexpected descriptor: %+v", descriptor)
	}
	if len(descriptor.StepsCompleted) != 1 || descriptor.StepsCompleted[0] != StepRiskAssessment {
		t.Errorf("unexpected completed steps: %v", descriptor.StepsCompleted)
	}
	if backend.Mode() != domain.ModeDegraded {
		t.Error("expected degraded mode")
	}
}
