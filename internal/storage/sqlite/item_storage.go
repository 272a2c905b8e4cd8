package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/models"
)

// ItemStorage implements SQLite storage for research items, including the
// conditional-update claim protocol
type ItemStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewItemStorage creates a new item storage instance
func NewItemStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.ItemStorage {
	return &ItemStorage{
		db:     db,
		logger: logger,
	}
}

const itemColumns = `id, job_id, user_id, item_index, status, input_json,
	prospect_name, prospect_company, prospect_address, prospect_city, prospect_state, prospect_zip,
	retry_count, processing_started_at, processing_completed_at, processing_duration_ms,
	error_message, last_retry_at, result_json, created_at`

// GetItem retrieves a single item by id
func (s *ItemStorage) GetItem(ctx context.Context, itemID string) (*models.ResearchItem, error) {
	row := s.db.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM research_items WHERE id = ?`, itemID)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, interfaces.ErrItemNotFound
	}
	return item, err
}

// ListItems returns a page of the job's items in index order plus the total count
func (s *ItemStorage) ListItems(ctx context.Context, jobID string, opts *interfaces.ListOptions) ([]*models.ResearchItem, int, error) {
	countQuery := `SELECT COUNT(*) FROM research_items WHERE job_id = ?`
	query := `SELECT ` + itemColumns + ` FROM research_items WHERE job_id = ?`
	args := []interface{}{jobID}
	countArgs := []interface{}{jobID}

	if opts != nil && opts.Status != "" {
		clause, filterArgs := statusFilter(opts.Status)
		if clause != "" {
			query += " AND " + clause
			countQuery += " AND " + clause
			args = append(args, filterArgs...)
			countArgs = append(countArgs, filterArgs...)
		}
	}

	var total int
	if err := s.db.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count items: %w", err)
	}

	query += " ORDER BY item_index ASC"
	if opts != nil && opts.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := s.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var items []*models.ResearchItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	return items, total, rows.Err()
}

// NextPending returns the lowest-index pending item, or (nil, nil) when none
func (s *ItemStorage) NextPending(ctx context.Context, jobID, userID string) (*models.ResearchItem, error) {
	row := s.db.db.QueryRowContext(ctx, `
		SELECT `+itemColumns+` FROM research_items
		WHERE job_id = ? AND user_id = ? AND status = 'pending'
		ORDER BY item_index ASC LIMIT 1`, jobID, userID)
	return scanOptionalItem(row)
}

// NextStale returns the lowest-index processing item whose claim is older
// than the threshold, or (nil, nil) when none
func (s *ItemStorage) NextStale(ctx context.Context, jobID, userID string, olderThan time.Time) (*models.ResearchItem, error) {
	row := s.db.db.QueryRowContext(ctx, `
		SELECT `+itemColumns+` FROM research_items
		WHERE job_id = ? AND user_id = ? AND status = 'processing'
		  AND processing_started_at IS NOT NULL AND processing_started_at < ?
		ORDER BY item_index ASC LIMIT 1`, jobID, userID, olderThan.Unix())
	return scanOptionalItem(row)
}

// NextRetryable returns the lowest-index failed item with retries left,
// or (nil, nil) when none
func (s *ItemStorage) NextRetryable(ctx context.Context, jobID, userID string, maxRetries int) (*models.ResearchItem, error) {
	row := s.db.db.QueryRowContext(ctx, `
		SELECT `+itemColumns+` FROM research_items
		WHERE job_id = ? AND user_id = ? AND status = 'failed' AND retry_count < ?
		ORDER BY item_index ASC LIMIT 1`, jobID, userID, maxRetries)
	return scanOptionalItem(row)
}

// ClaimItem attempts the conditional update that grants exclusive execution
// rights. The precondition is the status observed at selection time; for a
// stale reclaim (observed status = processing) the observed claim timestamp
// is part of the precondition too, so two reclaimers cannot both win.
//
// retry_count is set at claim time per the observed status: a retry of a
// failed item increments it, every other claim resets it to zero.
func (s *ItemStorage) ClaimItem(ctx context.Context, observed *models.ResearchItem, at time.Time) (*models.ResearchItem, bool, error) {
	query := `
		UPDATE research_items
		SET status = 'processing',
		    processing_started_at = ?,
		    processing_completed_at = NULL,
		    processing_duration_ms = NULL,
		    retry_count = CASE WHEN status = 'failed' THEN retry_count + 1 ELSE 0 END,
		    last_retry_at = CASE WHEN status = 'failed' THEN ? ELSE last_retry_at END
		WHERE id = ? AND status = ?`
	args := []interface{}{at.Unix(), at.Unix(), observed.ID, string(observed.Status)}

	if observed.Status == models.ItemStatusProcessing {
		if observed.ProcessingStartedAt == nil {
			return nil, false, fmt.Errorf("cannot reclaim item %s: no observed claim timestamp", observed.ID)
		}
		query += ` AND processing_started_at = ?`
		args = append(args, observed.ProcessingStartedAt.Unix())
	}

	result, err := s.db.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("failed to claim item: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	if affected == 0 {
		// Another caller changed the row between selection and claim
		return nil, false, nil
	}

	claimed, err := s.GetItem(ctx, observed.ID)
	if err != nil {
		return nil, false, err
	}

	s.logger.Debug().
		Str("item_id", claimed.ID).
		Str("job_id", claimed.JobID).
		Int("retry_count", claimed.RetryCount).
		Msg("Item claimed")

	return claimed, true, nil
}

// MarkItemCompleted records a successful result. The update carries the
// caller's claim timestamp as a precondition: if the item was reclaimed as
// stale and re-executed, this caller's late write affects zero rows instead
// of clobbering the newer outcome.
func (s *ItemStorage) MarkItemCompleted(ctx context.Context, itemID string, claimedAt time.Time, result *models.ResearchResult, completedAt time.Time) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to serialize result: %w", err)
	}

	durationMs := completedAt.Sub(claimedAt).Milliseconds()
	verified := 0
	if result.Verified {
		verified = 1
	}

	res, err := s.db.db.ExecContext(ctx, `
		UPDATE research_items
		SET status = 'completed',
		    processing_completed_at = ?,
		    processing_duration_ms = ?,
		    error_message = NULL,
		    result_json = ?,
		    score = ?,
		    tier = ?,
		    verified = ?
		WHERE id = ? AND status = 'processing' AND processing_started_at = ?`,
		completedAt.Unix(), durationMs, string(resultJSON),
		result.Score, result.Tier, verified,
		itemID, claimedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to mark item completed: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		s.logger.Warn().
			Str("item_id", itemID).
			Msg("Completion write lost claim: item was reclaimed after staleness threshold")
	}
	return nil
}

// MarkItemFailed records a classified failure, under the same claim
// precondition as MarkItemCompleted. retry_count is untouched here; it is
// advanced at claim time.
func (s *ItemStorage) MarkItemFailed(ctx context.Context, itemID string, claimedAt time.Time, errorMessage string, failedAt time.Time) error {
	res, err := s.db.db.ExecContext(ctx, `
		UPDATE research_items
		SET status = 'failed',
		    processing_completed_at = ?,
		    processing_duration_ms = ?,
		    error_message = ?,
		    last_retry_at = ?
		WHERE id = ? AND status = 'processing' AND processing_started_at = ?`,
		failedAt.Unix(), failedAt.Sub(claimedAt).Milliseconds(), errorMessage, failedAt.Unix(),
		itemID, claimedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to mark item failed: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		s.logger.Warn().
			Str("item_id", itemID).
			Msg("Failure write lost claim: item was reclaimed after staleness threshold")
	}
	return nil
}

// CountRemaining returns pending + processing. Job completion is asserted
// only on a positive zero from this query.
func (s *ItemStorage) CountRemaining(ctx context.Context, jobID string) (int, error) {
	var count int
	err := s.db.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM research_items
		WHERE job_id = ? AND status IN ('pending', 'processing')`, jobID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count remaining items: %w", err)
	}
	return count, nil
}

// CountPending returns the number of pending items
func (s *ItemStorage) CountPending(ctx context.Context, jobID string) (int, error) {
	var count int
	err := s.db.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM research_items
		WHERE job_id = ? AND status = 'pending'`, jobID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending items: %w", err)
	}
	return count, nil
}

// CountRetryableFailed returns the number of failed items with retries left
func (s *ItemStorage) CountRetryableFailed(ctx context.Context, jobID string, maxRetries int) (int, error) {
	var count int
	err := s.db.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM research_items
		WHERE job_id = ? AND status = 'failed' AND retry_count < ?`, jobID, maxRetries).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count retryable items: %w", err)
	}
	return count, nil
}

// AverageDurationMs returns the mean processing duration of completed items
func (s *ItemStorage) AverageDurationMs(ctx context.Context, jobID string) (int64, error) {
	var avg sql.NullFloat64
	err := s.db.db.QueryRowContext(ctx, `
		SELECT AVG(processing_duration_ms) FROM research_items
		WHERE job_id = ? AND status = 'completed' AND processing_duration_ms IS NOT NULL`,
		jobID).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("failed to average durations: %w", err)
	}
	if !avg.Valid {
		return 0, nil
	}
	return int64(avg.Float64), nil
}

func scanOptionalItem(row *sql.Row) (*models.ResearchItem, error) {
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return item, err
}

func scanItem(row rowScanner) (*models.ResearchItem, error) {
	var (
		item        models.ResearchItem
		status      string
		inputJSON   sql.NullString
		company     sql.NullString
		address     sql.NullString
		city        sql.NullString
		state       sql.NullString
		zip         sql.NullString
		startedAt   sql.NullInt64
		completedAt sql.NullInt64
		durationMs  sql.NullInt64
		errMsg      sql.NullString
		lastRetryAt sql.NullInt64
		resultJSON  sql.NullString
		createdAt   int64
	)

	err := row.Scan(
		&item.ID,
		&item.JobID,
		&item.UserID,
		&item.ItemIndex,
		&status,
		&inputJSON,
		&item.Name,
		&company,
		&address,
		&city,
		&state,
		&zip,
		&item.RetryCount,
		&startedAt,
		&completedAt,
		&durationMs,
		&errMsg,
		&lastRetryAt,
		&resultJSON,
		&createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan item: %w", err)
	}

	item.Status = models.ItemStatus(status)
	item.Company = company.String
	item.Address = address.String
	item.City = city.String
	item.State = state.String
	item.Zip = zip.String
	item.ErrorMessage = errMsg.String
	item.CreatedAt = unixToTime(createdAt)

	if inputJSON.Valid {
		input, err := models.ProspectInputFromJSON(inputJSON.String)
		if err != nil {
			return nil, err
		}
		item.Input = input
	}
	if startedAt.Valid {
		t := unixToTime(startedAt.Int64)
		item.ProcessingStartedAt = &t
	}
	if completedAt.Valid {
		t := unixToTime(completedAt.Int64)
		item.ProcessingCompletedAt = &t
	}
	if durationMs.Valid {
		item.ProcessingDurationMs = durationMs.Int64
	}
	if lastRetryAt.Valid {
		t := unixToTime(lastRetryAt.Int64)
		item.LastRetryAt = &t
	}
	if resultJSON.Valid && resultJSON.String != "" {
		var result models.ResearchResult
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return nil, fmt.Errorf("failed to deserialize result: %w", err)
		}
		item.Result = &result
	}

	return &item, nil
}
