// -----------------------------------------------------------------------
// Research Job - one row per user-submitted batch of prospects
// -----------------------------------------------------------------------

package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a research job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusPaused     JobStatus = "paused"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsTerminal returns true for statuses that never transition except via reset.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusCancelled
}

// IsActive returns true if the job can accept ProcessNext calls.
func (s JobStatus) IsActive() bool {
	return s == JobStatusPending || s == JobStatusProcessing
}

// Valid reports whether s is a known job status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusPaused,
		JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo enforces the control-endpoint transition rules.
// Terminal states only accept a reset back to pending.
func (s JobStatus) CanTransitionTo(target JobStatus) bool {
	if !target.Valid() {
		return false
	}
	if s.IsTerminal() {
		return target == JobStatusPending
	}
	switch s {
	case JobStatusPending, JobStatusProcessing:
		return target == JobStatusPaused || target == JobStatusCancelled || target == JobStatusPending
	case JobStatusPaused:
		return target == JobStatusProcessing || target == JobStatusPending || target == JobStatusCancelled
	case JobStatusFailed:
		return target == JobStatusPending || target == JobStatusCancelled
	}
	return false
}

// JobSettings holds per-job configuration supplied at submission time.
// Zero values fall back to the engine defaults.
type JobSettings struct {
	DelayBetweenProspectsMs int  `json:"delay_between_prospects_ms,omitempty"`
	UseDurableWorkflow      bool `json:"use_durable_workflow,omitempty"`
	SkipVerification        bool `json:"skip_verification,omitempty"`
}

// ToJSON serializes settings for storage.
func (s JobSettings) ToJSON() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job settings: %w", err)
	}
	return string(data), nil
}

// JobSettingsFromJSON deserializes settings from storage.
func JobSettingsFromJSON(data string) (JobSettings, error) {
	var s JobSettings
	if data == "" {
		return s, nil
	}
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return s, fmt.Errorf("failed to unmarshal job settings: %w", err)
	}
	return s, nil
}

// Job represents a batch research job. Aggregate counters are eventually
// consistent with the item rows; they are refreshed after each item mutation
// and must never be the basis for asserting completion.
type Job struct {
	ID             string      `json:"id"`
	UserID         string      `json:"user_id"`
	Name           string      `json:"name"`
	Status         JobStatus   `json:"status"`
	TotalProspects int         `json:"total_prospects"`
	CompletedCount int         `json:"completed_count"`
	FailedCount    int         `json:"failed_count"`
	SkippedCount   int         `json:"skipped_count"`
	Settings       JobSettings `json:"settings"`
	CreatedAt      time.Time   `json:"created_at"`
	StartedAt      *time.Time  `json:"started_at,omitempty"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
}

// NewJob creates a pending job for the given owner.
func NewJob(userID, name string, settings JobSettings) *Job {
	return &Job{
		ID:        "job_" + uuid.New().String(),
		UserID:    userID,
		Name:      name,
		Status:    JobStatusPending,
		Settings:  settings,
		CreatedAt: time.Now().UTC(),
	}
}

// Progress is the snapshot returned to polling clients.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
	Failed    int `json:"failed"`
}

// Percentage returns the fraction of finished items (completed + failed) as 0-100.
func (p Progress) Percentage() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Completed+p.Failed) / float64(p.Total) * 100
}

// Validate checks job invariants before persistence.
func (j *Job) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if j.UserID == "" {
		return fmt.Errorf("job user ID is required")
	}
	if j.Name == "" {
		return fmt.Errorf("job name is required")
	}
	if !j.Status.Valid() {
		return fmt.Errorf("invalid job status: %s", j.Status)
	}
	if j.CompletedCount+j.FailedCount+j.SkippedCount > j.TotalProspects {
		return fmt.Errorf("job counters exceed total prospects")
	}
	return nil
}
