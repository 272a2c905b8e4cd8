package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/prospector/internal/models"
)

// ErrJobNotFound is returned when a job does not exist or is not visible to
// the requesting owner.
var ErrJobNotFound = errors.New("job not found")

// ErrItemNotFound is returned when an item lookup matches no row.
var ErrItemNotFound = errors.New("item not found")

// ErrKeyNotFound is returned by KeyValueStorage when a key does not exist.
var ErrKeyNotFound = errors.New("key not found")

// ListOptions controls pagination and filtering for list queries.
type ListOptions struct {
	Limit  int
	Offset int
	Status string // comma-separated statuses, empty for all
}

// JobStorage persists research jobs. All reads that serve user requests are
// scoped to (jobID, userID) so ownership is enforced at the query level.
type JobStorage interface {
	// CreateJob inserts the job and its items in one transaction.
	CreateJob(ctx context.Context, job *models.Job, items []*models.ResearchItem) error

	GetJob(ctx context.Context, jobID, userID string) (*models.Job, error)
	ListJobs(ctx context.Context, userID string, opts *ListOptions) ([]*models.Job, error)
	CountJobs(ctx context.Context, userID string) (int, error)
	CountJobsByStatus(ctx context.Context, userID string, status models.JobStatus) (int, error)

	// ListActiveJobs returns all pending/processing jobs across owners.
	// Used only by the internal poller.
	ListActiveJobs(ctx context.Context) ([]*models.Job, error)

	// MarkJobProcessing transitions pending -> processing and stamps
	// started_at. Returns false if the job was not pending.
	MarkJobProcessing(ctx context.Context, jobID string, at time.Time) (bool, error)

	// FinalizeJobCompleted transitions pending/processing -> completed and
	// stamps completed_at. Returns true only for the caller that won the
	// transition, so completion side effects fire exactly once.
	FinalizeJobCompleted(ctx context.Context, jobID string, at time.Time) (bool, error)

	// SetJobStatus applies a control transition (pause/cancel/resume).
	// Transition legality is the caller's responsibility.
	SetJobStatus(ctx context.Context, jobID string, status models.JobStatus) error

	// ResetJob reverts the job to pending, clears started_at/completed_at,
	// and reverts all non-completed items to pending with retry_count=0.
	ResetJob(ctx context.Context, jobID string) error

	// RefreshJobCounters recomputes completed/failed counters from the item
	// rows and returns the fresh job.
	RefreshJobCounters(ctx context.Context, jobID string) (*models.Job, error)

	DeleteJob(ctx context.Context, jobID string) error
}

// ItemStorage persists research items and implements the claim protocol.
type ItemStorage interface {
	GetItem(ctx context.Context, itemID string) (*models.ResearchItem, error)
	ListItems(ctx context.Context, jobID string, opts *ListOptions) ([]*models.ResearchItem, int, error)

	// Selection queries, each scoped to (jobID, userID) and ordered by
	// item_index. All return (nil, nil) when no row qualifies.
	NextPending(ctx context.Context, jobID, userID string) (*models.ResearchItem, error)
	NextStale(ctx context.Context, jobID, userID string, olderThan time.Time) (*models.ResearchItem, error)
	NextRetryable(ctx context.Context, jobID, userID string, maxRetries int) (*models.ResearchItem, error)

	// ClaimItem performs the conditional update that grants exclusive
	// execution rights: status moves to processing only if the row still has
	// the status (and, for stale reclaims, the processing_started_at)
	// observed at selection time. Returns the refreshed row and true when
	// the claim was won; (nil, false, nil) when another caller won the race.
	ClaimItem(ctx context.Context, observed *models.ResearchItem, at time.Time) (*models.ResearchItem, bool, error)

	// MarkItemCompleted records a successful result. The update is
	// conditional on the row still carrying this caller's claim
	// (status=processing with the given claim timestamp), so a caller whose
	// claim was reclaimed as stale cannot clobber the newer outcome.
	MarkItemCompleted(ctx context.Context, itemID string, claimedAt time.Time, result *models.ResearchResult, completedAt time.Time) error

	// MarkItemFailed records a classified failure, conditional on the same
	// claim check as MarkItemCompleted.
	MarkItemFailed(ctx context.Context, itemID string, claimedAt time.Time, errorMessage string, failedAt time.Time) error

	// CountRemaining returns the number of pending + processing items.
	// Completion must only ever be asserted on a positive zero from here.
	CountRemaining(ctx context.Context, jobID string) (int, error)

	CountPending(ctx context.Context, jobID string) (int, error)
	CountRetryableFailed(ctx context.Context, jobID string, maxRetries int) (int, error)

	// AverageDurationMs returns the mean processing duration of completed
	// items, or 0 when none have completed. Used for remaining-time estimates.
	AverageDurationMs(ctx context.Context, jobID string) (int64, error)
}

// KeyValuePair is a stored key/value entry (API keys, service variables).
type KeyValuePair struct {
	Key       string    `json:"key" badgerhold:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// KeyValueStorage stores service variables such as API keys.
type KeyValueStorage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	GetAll(ctx context.Context) (map[string]string, error)
}

// StorageManager aggregates the storage backends.
type StorageManager interface {
	JobStorage() JobStorage
	ItemStorage() ItemStorage
	KeyValueStorage() KeyValueStorage
	Close() error
}
