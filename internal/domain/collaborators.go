package domain

import "context"

// BackendMode tells the health surface whether a collaborator was
// constructed against its live backend or its degraded fallback.
// The choice is made once at construction; call sites are unconditional.
type BackendMode string

const (
	ModeLive     BackendMode = "live"
	ModeDegraded BackendMode = "degraded"
)

// ChatBackend is a text-generation collaborator. The core expects to
// find one structured block somewhere in the returned text and tolerates
// free text around it.
type ChatBackend interface {
	// Complete sends a system instruction and user prompt to the named
	// model and returns the generated text.
	Complete(ctx context.Context, model, system, prompt string) (string, error)

	Mode() BackendMode
}

// VisionBackend is a multimodal collaborator. Prompts carry their own
// instruction preamble; Generate is text-only, GenerateWithImage embeds
// image bytes alongside the prompt.
type VisionBackend interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateWithImage(ctx context.Context, prompt string, image []byte) (string, error)

	Mode() BackendMode
}

// EmbeddingBackend turns free text into a fixed-length vector.
type EmbeddingBackend interface {
	// Embed returns a vector of the backend's fixed dimension.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension is the fixed length of every vector Embed returns.
	Dimension() int

	Mode() BackendMode
}

// WorkflowBackend creates and reports case-investigation workflows.
type WorkflowBackend interface {
	CreateWorkflow(ctx context.Context, spec WorkflowSpec) (*WorkflowDescriptor, error)
	GetWorkflow(ctx context.Context, workflowID string) (*WorkflowDescriptor, error)

	Mode() BackendMode
}
