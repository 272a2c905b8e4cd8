package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/common"
	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/models"
)

// apiKeyKVKey is the key under which the user-supplied LLM API key is stored
// in the key/value store.
const apiKeyKVKey = "anthropic_api_key"

// ProcessResult is the outcome of one process-next invocation. Everything a
// polling client needs to decide whether to call again is in here; per-item
// failures are reported inside the result, not as transport errors.
type ProcessResult struct {
	Item      *models.ResearchItem `json:"item,omitempty"`
	JobStatus models.JobStatus     `json:"job_status"`
	Progress  models.Progress      `json:"progress"`
	HasMore   bool                 `json:"has_more"`
	Message   string               `json:"message,omitempty"`
}

// Processor drives research jobs one item at a time. It holds no state of
// its own: every decision is re-derived from the store, so any number of
// processes can run concurrently and a crashed caller is invisible to
// correctness.
type Processor struct {
	jobs     interfaces.JobStorage
	items    interfaces.ItemStorage
	kv       interfaces.KeyValueStorage
	selector *StrategySelector
	notifier interfaces.CompletionNotifier
	config   common.EngineConfig
	logger   arbor.ILogger

	// now is swappable for tests
	now func() time.Time
}

// NewProcessor creates a job processor.
func NewProcessor(
	jobs interfaces.JobStorage,
	items interfaces.ItemStorage,
	kv interfaces.KeyValueStorage,
	selector *StrategySelector,
	notifier interfaces.CompletionNotifier,
	config common.EngineConfig,
	logger arbor.ILogger,
) *Processor {
	return &Processor{
		jobs:     jobs,
		items:    items,
		kv:       kv,
		selector: selector,
		notifier: notifier,
		config:   config,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ProcessNext performs one unit of work for the job: select the next item,
// claim it, execute enrichment, record the outcome, and report progress.
// It is safe to call concurrently from any number of clients; the claim
// protocol guarantees at most one active executor per item.
func (p *Processor) ProcessNext(ctx context.Context, jobID, userID string) (*ProcessResult, error) {
	job, err := p.jobs.GetJob(ctx, jobID, userID)
	if err != nil {
		return nil, err
	}

	// Terminal and paused jobs return a stable snapshot. Repeated calls on
	// a completed job never re-fire the completion notification.
	if !job.Status.IsActive() {
		return p.snapshot(job, false, fmt.Sprintf("job is %s", job.Status)), nil
	}

	if job.Status == models.JobStatusPending {
		if _, err := p.jobs.MarkJobProcessing(ctx, job.ID, p.now()); err != nil {
			return nil, err
		}
		job.Status = models.JobStatusProcessing
	}

	item, err := p.selectNext(ctx, job)
	if err != nil {
		return nil, err
	}

	if item == nil {
		return p.finishOrWait(ctx, job)
	}

	claimed, won, err := p.items.ClaimItem(ctx, item, p.now())
	if err != nil {
		return nil, err
	}
	if !won {
		// Normal under concurrent polling: another caller got there first
		return p.snapshot(job, true, "item claimed by another worker, retry"), nil
	}

	result := p.execute(ctx, job, claimed)

	if err := p.recordOutcome(ctx, claimed, result); err != nil {
		return nil, err
	}

	job, err = p.jobs.RefreshJobCounters(ctx, job.ID)
	if err != nil {
		return nil, err
	}

	processResult, err := p.afterItem(ctx, job, claimed, result)
	if err != nil {
		return nil, err
	}

	p.pace(ctx, job, processResult.HasMore)

	return processResult, nil
}

// selectNext picks the next workable item in strict priority order:
// pending, then stale processing, then retryable failed.
func (p *Processor) selectNext(ctx context.Context, job *models.Job) (*models.ResearchItem, error) {
	item, err := p.items.NextPending(ctx, job.ID, job.UserID)
	if err != nil || item != nil {
		return item, err
	}

	staleBefore := p.now().Add(-p.config.StaleThresholdDuration())
	item, err = p.items.NextStale(ctx, job.ID, job.UserID, staleBefore)
	if err != nil || item != nil {
		if item != nil {
			p.logger.Warn().
				Str("item_id", item.ID).
				Str("job_id", job.ID).
				Msg("Reclaiming stale item abandoned by a previous caller")
		}
		return item, err
	}

	return p.items.NextRetryable(ctx, job.ID, job.UserID, p.config.MaxRetries)
}

// finishOrWait handles the no-item-selectable case. Completion is asserted
// only on a positive zero from the remaining count; a failed count query is
// a hard error, never a guess.
func (p *Processor) finishOrWait(ctx context.Context, job *models.Job) (*ProcessResult, error) {
	remaining, err := p.items.CountRemaining(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("cannot confirm remaining work for job %s: %w", job.ID, err)
	}

	if remaining > 0 {
		// Items are still processing inside their claim window. Keep the
		// client polling so a stale claim gets reclaimed.
		return p.snapshot(job, true, "waiting on in-flight items"), nil
	}

	return p.finalize(ctx, job)
}

// finalize completes the job. The conditional update makes one caller the
// winner; only the winner fires the completion notification.
func (p *Processor) finalize(ctx context.Context, job *models.Job) (*ProcessResult, error) {
	job, err := p.jobs.RefreshJobCounters(ctx, job.ID)
	if err != nil {
		return nil, err
	}

	won, err := p.jobs.FinalizeJobCompleted(ctx, job.ID, p.now())
	if err != nil {
		return nil, err
	}

	job.Status = models.JobStatusCompleted
	if won && p.notifier != nil {
		p.notifier.NotifyJobCompleted(job)
	}

	return p.snapshot(job, false, "all prospects processed"), nil
}

type executionOutcome struct {
	result *models.ResearchResult
	err    error
}

// execute runs enrichment for the claimed item under the invocation budget.
func (p *Processor) execute(ctx context.Context, job *models.Job, item *models.ResearchItem) executionOutcome {
	execCtx, cancel := context.WithTimeout(ctx, p.config.ProcessTimeoutDuration())
	defer cancel()

	strategy := p.selector.Select(job)
	opts := interfaces.PipelineOptions{
		APIKey:           p.resolveAPIKey(execCtx),
		SkipVerification: job.Settings.SkipVerification,
	}

	p.logger.Debug().
		Str("item_id", item.ID).
		Str("job_id", job.ID).
		Str("strategy", strategy.Name()).
		Int("retry_count", item.RetryCount).
		Msg("Executing research")

	result, err := strategy.Execute(execCtx, item, opts)
	return executionOutcome{result: result, err: err}
}

// recordOutcome persists the item's result or classified failure. Both
// writes are conditional on this caller still holding the claim.
func (p *Processor) recordOutcome(ctx context.Context, item *models.ResearchItem, outcome executionOutcome) error {
	claimedAt := *item.ProcessingStartedAt

	if outcome.err == nil {
		if err := p.items.MarkItemCompleted(ctx, item.ID, claimedAt, outcome.result, p.now()); err != nil {
			return err
		}
		item.Status = models.ItemStatusCompleted
		item.Result = outcome.result
		item.ErrorMessage = ""
		return nil
	}

	classification := ClassifyError(outcome.err)
	p.logger.Warn().
		Str("item_id", item.ID).
		Str("code", string(classification.Code)).
		Err(outcome.err).
		Msg("Research failed")

	if err := p.items.MarkItemFailed(ctx, item.ID, claimedAt, classification.Message(), p.now()); err != nil {
		return err
	}
	item.Status = models.ItemStatusFailed
	item.ErrorMessage = classification.Message()
	return nil
}

// afterItem recomputes progress and finalizes the job when nothing workable
// remains. A job whose items have all reached completed or exhausted their
// retries terminates here, on the same call that processed the last item.
func (p *Processor) afterItem(ctx context.Context, job *models.Job, item *models.ResearchItem, outcome executionOutcome) (*ProcessResult, error) {
	remaining, err := p.items.CountRemaining(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("cannot confirm remaining work for job %s: %w", job.ID, err)
	}
	retryable, err := p.items.CountRetryableFailed(ctx, job.ID, p.config.MaxRetries)
	if err != nil {
		return nil, err
	}

	if remaining == 0 && retryable == 0 {
		result, err := p.finalize(ctx, job)
		if err != nil {
			return nil, err
		}
		result.Item = item
		return result, nil
	}

	result := p.snapshot(job, true, "")
	result.Item = item
	if outcome.err != nil {
		result.Message = ClassifyError(outcome.err).UserMessage
	}
	return result, nil
}

// pace applies the configured inter-prospect delay before returning, so a
// tight polling loop does not hammer the data sources.
func (p *Processor) pace(ctx context.Context, job *models.Job, hasMore bool) {
	if !hasMore {
		return
	}

	delayMs := job.Settings.DelayBetweenProspectsMs
	if delayMs <= 0 {
		delayMs = p.config.DefaultDelayMs
	}
	if delayMs <= 0 {
		return
	}

	select {
	case <-ctx.Done():
	case <-time.After(time.Duration(delayMs) * time.Millisecond):
	}
}

func (p *Processor) snapshot(job *models.Job, hasMore bool, message string) *ProcessResult {
	return &ProcessResult{
		JobStatus: job.Status,
		Progress: models.Progress{
			Completed: job.CompletedCount,
			Total:     job.TotalProspects,
			Failed:    job.FailedCount,
		},
		HasMore: hasMore,
		Message: message,
	}
}

func (p *Processor) resolveAPIKey(ctx context.Context) string {
	if p.kv == nil {
		return ""
	}
	key, err := p.kv.Get(ctx, apiKeyKVKey)
	if err != nil {
		return ""
	}
	return key
}
