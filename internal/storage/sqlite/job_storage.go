package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/models"
)

// unixToTime converts Unix timestamp to time.Time
func unixToTime(unix int64) time.Time {
	return time.Unix(unix, 0).UTC()
}

// nullableUnix converts an optional timestamp to sql.NullInt64
func nullableUnix(t *time.Time) sql.NullInt64 {
	var n sql.NullInt64
	if t != nil && !t.IsZero() {
		n.Valid = true
		n.Int64 = t.Unix()
	}
	return n
}

// statusFilter expands a comma-separated status list into a SQL IN clause.
// Returns ("", nil) when no filter applies.
func statusFilter(statuses string) (string, []interface{}) {
	parts := strings.Split(statuses, ",")
	args := make([]interface{}, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			args = append(args, trimmed)
		}
	}
	if len(args) == 0 {
		return "", nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(args)), ",")
	return fmt.Sprintf("status IN (%s)", placeholders), args
}

// JobStorage implements SQLite storage for research jobs
type JobStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewJobStorage creates a new job storage instance
func NewJobStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

const jobColumns = `id, user_id, name, status, total_prospects, completed_count,
	failed_count, skipped_count, settings_json, created_at, started_at, completed_at`

// CreateJob inserts the job and all of its items in one transaction, so a
// partially written batch can never be observed
func (s *JobStorage) CreateJob(ctx context.Context, job *models.Job, items []*models.ResearchItem) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("invalid job: %w", err)
	}

	settingsJSON, err := job.Settings.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize settings: %w", err)
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO research_jobs (
			id, user_id, name, status, total_prospects, completed_count,
			failed_count, skipped_count, settings_json, created_at, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.UserID,
		job.Name,
		string(job.Status),
		job.TotalProspects,
		job.CompletedCount,
		job.FailedCount,
		job.SkippedCount,
		settingsJSON,
		job.CreatedAt.Unix(),
		nullableUnix(job.StartedAt),
		nullableUnix(job.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO research_items (
			id, job_id, user_id, item_index, status, input_json,
			prospect_name, prospect_company, prospect_address,
			prospect_city, prospect_state, prospect_zip,
			retry_count, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare item insert: %w", err)
	}
	defer stmt.Close()

	for _, item := range items {
		inputJSON, err := item.Input.ToJSON()
		if err != nil {
			return fmt.Errorf("failed to serialize input for item %d: %w", item.ItemIndex, err)
		}

		_, err = stmt.ExecContext(ctx,
			item.ID,
			item.JobID,
			item.UserID,
			item.ItemIndex,
			string(item.Status),
			inputJSON,
			item.Name,
			item.Company,
			item.Address,
			item.City,
			item.State,
			item.Zip,
			item.RetryCount,
			item.CreatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert item %d: %w", item.ItemIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit job: %w", err)
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("user_id", job.UserID).
		Int("items", len(items)).
		Msg("Research job created")

	return nil
}

// GetJob retrieves a job scoped to its owner
func (s *JobStorage) GetJob(ctx context.Context, jobID, userID string) (*models.Job, error) {
	row := s.db.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM research_jobs WHERE id = ? AND user_id = ?`,
		jobID, userID)
	return scanJob(row)
}

// ListJobs returns the owner's jobs newest first
func (s *JobStorage) ListJobs(ctx context.Context, userID string, opts *interfaces.ListOptions) ([]*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM research_jobs WHERE user_id = ?`
	args := []interface{}{userID}

	if opts != nil && opts.Status != "" {
		clause, filterArgs := statusFilter(opts.Status)
		if clause != "" {
			query += " AND " + clause
			args = append(args, filterArgs...)
		}
	}

	query += " ORDER BY created_at DESC, id DESC"

	if opts != nil && opts.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := s.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// CountJobs returns the owner's total job count
func (s *JobStorage) CountJobs(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM research_jobs WHERE user_id = ?`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return count, nil
}

// CountJobsByStatus returns the owner's job count in one status
func (s *JobStorage) CountJobsByStatus(ctx context.Context, userID string, status models.JobStatus) (int, error) {
	var count int
	err := s.db.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM research_jobs WHERE user_id = ? AND status = ?`,
		userID, string(status)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs by status: %w", err)
	}
	return count, nil
}

// ListActiveJobs returns all pending/processing jobs across owners
func (s *JobStorage) ListActiveJobs(ctx context.Context) ([]*models.Job, error) {
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM research_jobs
		 WHERE status IN ('pending', 'processing')
		 ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// MarkJobProcessing transitions pending -> processing. The status predicate
// makes the update a no-op when another caller already made the transition.
func (s *JobStorage) MarkJobProcessing(ctx context.Context, jobID string, at time.Time) (bool, error) {
	result, err := s.db.db.ExecContext(ctx, `
		UPDATE research_jobs
		SET status = 'processing', started_at = ?
		WHERE id = ? AND status = 'pending'`,
		at.Unix(), jobID)
	if err != nil {
		return false, fmt.Errorf("failed to mark job processing: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// FinalizeJobCompleted transitions an active job to completed. Exactly one
// concurrent caller observes true; the rest see the row already finalized.
func (s *JobStorage) FinalizeJobCompleted(ctx context.Context, jobID string, at time.Time) (bool, error) {
	result, err := s.db.db.ExecContext(ctx, `
		UPDATE research_jobs
		SET status = 'completed', completed_at = ?
		WHERE id = ? AND status IN ('pending', 'processing')`,
		at.Unix(), jobID)
	if err != nil {
		return false, fmt.Errorf("failed to finalize job: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	if affected > 0 {
		s.logger.Info().Str("job_id", jobID).Msg("Research job completed")
	}
	return affected > 0, nil
}

// SetJobStatus applies a control transition without predicates. Transition
// legality is checked by the handler before calling.
func (s *JobStorage) SetJobStatus(ctx context.Context, jobID string, status models.JobStatus) error {
	result, err := s.db.db.ExecContext(ctx,
		`UPDATE research_jobs SET status = ? WHERE id = ?`,
		string(status), jobID)
	if err != nil {
		return fmt.Errorf("failed to set job status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return interfaces.ErrJobNotFound
	}
	return nil
}

// ResetJob reverts the job to pending and re-queues every non-completed item.
// Completed results are preserved; failed and in-flight items start over with
// a clean retry budget.
func (s *JobStorage) ResetJob(ctx context.Context, jobID string) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE research_jobs
		SET status = 'pending', started_at = NULL, completed_at = NULL
		WHERE id = ?`, jobID)
	if err != nil {
		return fmt.Errorf("failed to reset job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return interfaces.ErrJobNotFound
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE research_items
		SET status = 'pending', retry_count = 0, error_message = NULL,
		    processing_started_at = NULL, processing_completed_at = NULL,
		    processing_duration_ms = NULL, last_retry_at = NULL
		WHERE job_id = ? AND status != 'completed'`, jobID)
	if err != nil {
		return fmt.Errorf("failed to reset items: %w", err)
	}

	// Counters follow the item rows
	if err := refreshCountersTx(ctx, tx, jobID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reset: %w", err)
	}

	s.logger.Info().Str("job_id", jobID).Msg("Research job reset to pending")
	return nil
}

// RefreshJobCounters recomputes the aggregate counters from the item rows
// and returns the fresh job
func (s *JobStorage) RefreshJobCounters(ctx context.Context, jobID string) (*models.Job, error) {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := refreshCountersTx(ctx, tx, jobID); err != nil {
		return nil, err
	}

	row := tx.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM research_jobs WHERE id = ?`, jobID)
	job, err := scanJob(row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit counter refresh: %w", err)
	}
	return job, nil
}

// DeleteJob removes a job; item rows cascade
func (s *JobStorage) DeleteJob(ctx context.Context, jobID string) error {
	result, err := s.db.db.ExecContext(ctx,
		`DELETE FROM research_jobs WHERE id = ?`, jobID)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return interfaces.ErrJobNotFound
	}

	s.logger.Info().Str("job_id", jobID).Msg("Research job deleted")
	return nil
}

func refreshCountersTx(ctx context.Context, tx *sql.Tx, jobID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE research_jobs
		SET completed_count = (SELECT COUNT(*) FROM research_items WHERE job_id = ? AND status = 'completed'),
		    failed_count = (SELECT COUNT(*) FROM research_items WHERE job_id = ? AND status = 'failed')
		WHERE id = ?`, jobID, jobID, jobID)
	if err != nil {
		return fmt.Errorf("failed to refresh counters: %w", err)
	}
	return nil
}

// rowScanner covers both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var (
		job          models.Job
		status       string
		settingsJSON sql.NullString
		createdAt    int64
		startedAt    sql.NullInt64
		completedAt  sql.NullInt64
	)

	err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.Name,
		&status,
		&job.TotalProspects,
		&job.CompletedCount,
		&job.FailedCount,
		&job.SkippedCount,
		&settingsJSON,
		&createdAt,
		&startedAt,
		&completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, interfaces.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	job.Status = models.JobStatus(status)
	job.CreatedAt = unixToTime(createdAt)

	if settingsJSON.Valid {
		settings, err := models.JobSettingsFromJSON(settingsJSON.String)
		if err != nil {
			return nil, err
		}
		job.Settings = settings
	}
	if startedAt.Valid {
		t := unixToTime(startedAt.Int64)
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := unixToTime(completedAt.Int64)
		job.CompletedAt = &t
	}

	return &job, nil
}
