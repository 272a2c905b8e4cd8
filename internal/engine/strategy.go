package engine

import (
	"context"
	"errors"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/models"
)

// ExecutionStrategy runs enrichment for a single claimed item. The two
// implementations are semantically equivalent; they differ only in where the
// work executes.
type ExecutionStrategy interface {
	Name() string
	Execute(ctx context.Context, item *models.ResearchItem, opts interfaces.PipelineOptions) (*models.ResearchResult, error)
}

// InlineStrategy runs the research pipeline in-process.
type InlineStrategy struct {
	pipeline interfaces.ResearchPipeline
}

// NewInlineStrategy creates the in-process strategy.
func NewInlineStrategy(pipeline interfaces.ResearchPipeline) *InlineStrategy {
	return &InlineStrategy{pipeline: pipeline}
}

func (s *InlineStrategy) Name() string { return "inline" }

func (s *InlineStrategy) Execute(ctx context.Context, item *models.ResearchItem, opts interfaces.PipelineOptions) (*models.ResearchResult, error) {
	return s.pipeline.ExecuteResearch(ctx, item.NormalizedInput(), opts)
}

// WorkflowStrategy delegates to the external durable workflow engine.
type WorkflowStrategy struct {
	engine   interfaces.WorkflowEngine
	workflow string
}

// NewWorkflowStrategy creates the durable-workflow strategy.
func NewWorkflowStrategy(engine interfaces.WorkflowEngine, workflow string) *WorkflowStrategy {
	return &WorkflowStrategy{engine: engine, workflow: workflow}
}

func (s *WorkflowStrategy) Name() string { return "workflow" }

func (s *WorkflowStrategy) Execute(ctx context.Context, item *models.ResearchItem, opts interfaces.PipelineOptions) (*models.ResearchResult, error) {
	return s.engine.RunWorkflow(ctx, interfaces.WorkflowRequest{
		Workflow: s.workflow,
		JobID:    item.JobID,
		ItemID:   item.ID,
		Input:    item.NormalizedInput(),
		Options:  opts,
	})
}

// FallbackStrategy tries the primary strategy and falls back to the
// secondary only on ErrWorkflowUnavailable. Enrichment failures propagate
// unchanged: an item that failed research once should fail, not silently
// run twice through two strategies.
type FallbackStrategy struct {
	primary   ExecutionStrategy
	secondary ExecutionStrategy
	logger    arbor.ILogger
}

// NewFallbackStrategy combines two strategies with infrastructure-failure fallback.
func NewFallbackStrategy(primary, secondary ExecutionStrategy, logger arbor.ILogger) *FallbackStrategy {
	return &FallbackStrategy{primary: primary, secondary: secondary, logger: logger}
}

func (s *FallbackStrategy) Name() string {
	return s.primary.Name() + "+" + s.secondary.Name()
}

func (s *FallbackStrategy) Execute(ctx context.Context, item *models.ResearchItem, opts interfaces.PipelineOptions) (*models.ResearchResult, error) {
	result, err := s.primary.Execute(ctx, item, opts)
	if err == nil {
		return result, nil
	}
	if !errors.Is(err, interfaces.ErrWorkflowUnavailable) {
		return nil, err
	}

	s.logger.Warn().
		Str("item_id", item.ID).
		Str("primary", s.primary.Name()).
		Str("fallback", s.secondary.Name()).
		Err(err).
		Msg("Primary execution strategy unavailable, falling back")

	return s.secondary.Execute(ctx, item, opts)
}

// StrategySelector chooses the execution strategy for a job. The durable
// path applies when the job opts in via settings or the owner is on the
// workflow allow list; everyone else runs inline.
type StrategySelector struct {
	inline        ExecutionStrategy
	durable       ExecutionStrategy
	workflowUsers map[string]bool
}

// NewStrategySelector builds the selector. durable may be nil when no
// workflow engine is configured; every job then runs inline.
func NewStrategySelector(inline, durable ExecutionStrategy, workflowUsers []string) *StrategySelector {
	users := make(map[string]bool, len(workflowUsers))
	for _, u := range workflowUsers {
		users[u] = true
	}
	return &StrategySelector{
		inline:        inline,
		durable:       durable,
		workflowUsers: users,
	}
}

// Select returns the strategy for the given job.
func (s *StrategySelector) Select(job *models.Job) ExecutionStrategy {
	if s.durable == nil {
		return s.inline
	}
	if job.Settings.UseDurableWorkflow || s.workflowUsers[job.UserID] {
		return s.durable
	}
	return s.inline
}
