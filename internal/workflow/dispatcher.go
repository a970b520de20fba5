package workflow

import (
	"context"
	"log/slog"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Investigation step names, in checklist order.
const (
	StepRiskAssessment         = "initial_risk_assessment"
	StepTransactionAnalysis    = "transaction_analysis"
	StepCustomerVerification   = "customer_verification"
	StepComplianceCheck        = "compliance_check"
	StepDecisionRecommendation = "decision_recommendation"
	StepCaseClosure            = "case_closure"
)

// investigationSteps is the fixed six-step checklist. Ordering never
// depends on case content; only priority and routing metadata vary.
var investigationSteps = []domain.WorkflowStep{
	{Name: StepRiskAssessment, Type: "automated"},
	{Name: StepTransactionAnalysis, Type: "automated"},
	{Name: StepCustomerVerification, Type: "manual_review", RequiresApproval: true},
	{Name: StepComplianceCheck, Type: "automated", Frameworks: []string{"AML", "KYC"}},
	{Name: StepDecisionRecommendation, Type: "automated"},
	{Name: StepCaseClosure, Type: "manual_review", RequiresApproval: true},
}

// Dispatcher builds investigation specs and shields callers from
// backend failures.
type Dispatcher struct {
	backend domain.WorkflowBackend
}

// NewDispatcher creates a dispatcher over the workflow backend.
func NewDispatcher(backend domain.WorkflowBackend) *Dispatcher {
	return &Dispatcher{backend: backend}
}

// Steps returns a copy of the investigation checklist.
func (d *Dispatcher) Steps() []domain.WorkflowStep {
	return append([]domain.WorkflowStep(nil), investigationSteps...)
}

// CreateInvestigation opens an investigation workflow for the case.
// Backend failures degrade to a canned descriptor so a fraud verdict is
// never lost to workflow-service downtime.
func (d *Dispatcher) CreateInvestigation(ctx context.Context, caseData domain.CaseData, priority string) *domain.WorkflowDescriptor {
	if priority == "" {
		priority = domain.PriorityMedium
	}

	spec := domain.WorkflowSpec{
		WorkflowType: "fraud_investigation",
		CaseID:       caseData.CaseID,
		Priority:     priority,
		Steps:        d.Steps(),
		Metadata: map[string]interface{}{
			"transaction_id": caseData.TransactionID,
			"user_id":        caseData.UserID,
			"fraud_type":     string(caseData.FraudType),
			"risk_level":     string(caseData.RiskLevel),
			"confidence":     caseData.Confidence,
		},
	}

	descriptor, err := d.backend.CreateWorkflow(ctx, spec)
	if err != nil {
		slog.Warn("workflow backend unavailable, using canned descriptor",
			"case_id", caseData.CaseID, "error", err)
		return cannedDescriptor(newWorkflowID(), caseData.CaseID, priority)
	}
	return descriptor
}

// GetInvestigation reports a workflow's progress. Backend failures
// degrade to a canned in-progress descriptor.
func (d *Dispatcher) GetInvestigation(ctx context.Context, workflowID string) *domain.WorkflowDescriptor {
	descriptor, err := d.backend.GetWorkflow(ctx, workflowID)
	if err != nil {
		slog.Warn("workflow lookup degraded", "workflow_id", workflowID, "error", err)
		desc := cannedDescriptor(workflowID, "", domain.PriorityHigh)
		desc.Status = "in_progress"
		return desc
	}
	return descriptor
}

// Mode reports the underlying backend variant.
func (d *Dispatcher) Mode() domain.BackendMode { return d.backend.Mode() }
