package interfaces

import (
	"context"
	"errors"

	"github.com/ternarybob/prospector/internal/models"
)

// ErrWorkflowUnavailable marks an infrastructure-level failure of the durable
// workflow engine, as opposed to an enrichment failure inside a workflow run.
// The scheduler falls back to inline execution when it sees this error.
var ErrWorkflowUnavailable = errors.New("workflow engine unavailable")

// PipelineOptions carries per-invocation options into the research pipeline.
type PipelineOptions struct {
	APIKey           string
	SkipVerification bool
}

// ResearchPipeline executes enrichment for one prospect. Implementations may
// perform arbitrary network I/O and take up to the full invocation budget;
// they must honor ctx cancellation.
type ResearchPipeline interface {
	ExecuteResearch(ctx context.Context, input models.ProspectInput, opts PipelineOptions) (*models.ResearchResult, error)
}

// WorkflowRequest is the payload handed to the durable workflow engine.
type WorkflowRequest struct {
	Workflow string               `json:"workflow"`
	JobID    string               `json:"job_id"`
	ItemID   string               `json:"item_id"`
	Input    models.ProspectInput `json:"input"`
	Options  PipelineOptions      `json:"options"`
}

// WorkflowEngine delegates execution to an external durable workflow runtime
// and returns the enrichment result from the completed run. Infrastructure
// failures (endpoint down, 5xx, transport errors) are reported as (wrapped)
// ErrWorkflowUnavailable so callers can fall back to inline execution;
// enrichment failures inside a run come back as ordinary errors.
type WorkflowEngine interface {
	RunWorkflow(ctx context.Context, req WorkflowRequest) (*models.ResearchResult, error)
}

// CompletionNotifier delivers a fire-and-forget notification when a job
// reaches completed status. Implementations must not block the caller.
type CompletionNotifier interface {
	NotifyJobCompleted(job *models.Job)
}

// Message is a single turn in an LLM conversation.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// LLMService generates chat completions for prospect summarization.
type LLMService interface {
	Chat(ctx context.Context, messages []Message) (string, error)
	HealthCheck(ctx context.Context) error
	Close() error
}
