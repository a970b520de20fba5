package domain

import "time"

// Workflow priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// WorkflowStep is one step of an investigation checklist.
type WorkflowStep struct {
	Name             string   `json:"name"`
	Type             string   `json:"type"` // "automated" or "manual_review"
	RequiresApproval bool     `json:"requiresApproval,omitempty"`
	Frameworks       []string `json:"regulatoryFrameworks,omitempty"`
}

// WorkflowSpec is the request sent to the workflow backend.
type WorkflowSpec struct {
	WorkflowType string                 `json:"workflowType"`
	CaseID       string                 `json:"caseId"`
	Priority     string                 `json:"priority"`
	Steps        []WorkflowStep         `json:"steps"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// WorkflowDescriptor describes an investigation workflow's progress.
type WorkflowDescriptor struct {
	WorkflowID          string    `json:"workflowId"`
	CaseID              string    `json:"caseId,omitempty"`
	Status              string    `json:"status"`
	Priority            string    `json:"priority,omitempty"`
	StepsCompleted      []string  `json:"stepsCompleted"`
	CurrentStep         string    `json:"currentStep"`
	NextSteps           []string  `json:"nextSteps,omitempty"`
	PendingSteps        []string  `json:"pendingSteps,omitempty"`
	EstimatedCompletion time.Time `json:"estimatedCompletion,omitempty"`
	AssignedTo          string    `json:"assignedTo,omitempty"`
	CreatedAt           time.Time `json:"createdAt,omitempty"`
	UpdatedAt           time.Time `json:"updatedAt,omitempty"`
}

// CaseData is the routing metadata attached to an investigation case.
type CaseData struct {
	CaseID        string                 `json:"caseId"`
	TransactionID string                 `json:"transactionId,omitempty"`
	UserID        string                 `json:"userId,omitempty"`
	FraudType     FraudType              `json:"fraudType,omitempty"`
	RiskLevel     RiskLevel              `json:"riskLevel,omitempty"`
	Confidence    float64                `json:"confidence,omitempty"`
	DocumentType  string                 `json:"documentType,omitempty"`
	Extra         map[string]interface{} `json:"extra,omitempty"`
}
