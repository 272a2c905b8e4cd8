// -----------------------------------------------------------------------
// Research Item - one row per prospect within a job
// -----------------------------------------------------------------------

package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ItemStatus represents the lifecycle state of a single prospect task.
type ItemStatus string

const (
	ItemStatusPending    ItemStatus = "pending"
	ItemStatusProcessing ItemStatus = "processing"
	ItemStatusCompleted  ItemStatus = "completed"
	ItemStatusFailed     ItemStatus = "failed"
)

// Valid reports whether s is a known item status.
func (s ItemStatus) Valid() bool {
	switch s {
	case ItemStatusPending, ItemStatusProcessing, ItemStatusCompleted, ItemStatusFailed:
		return true
	}
	return false
}

// ProspectInput holds the identifying fields for one prospect.
type ProspectInput struct {
	Name    string `json:"name"`
	Company string `json:"company,omitempty"`
	Address string `json:"address,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Zip     string `json:"zip,omitempty"`
}

// IsEmpty returns true if no identifying field is set.
func (p ProspectInput) IsEmpty() bool {
	return strings.TrimSpace(p.Name) == "" && strings.TrimSpace(p.Company) == ""
}

// ToJSON serializes the input for storage.
func (p ProspectInput) ToJSON() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to marshal prospect input: %w", err)
	}
	return string(data), nil
}

// ProspectInputFromJSON deserializes a prospect input from storage.
func ProspectInputFromJSON(data string) (ProspectInput, error) {
	var p ProspectInput
	if data == "" {
		return p, nil
	}
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return p, fmt.Errorf("failed to unmarshal prospect input: %w", err)
	}
	return p, nil
}

// ResearchResult is the payload produced by the enrichment pipeline.
// The engine treats it as opaque and only persists it.
type ResearchResult struct {
	Score    float64  `json:"score"`
	Tier     string   `json:"tier"`
	Summary  string   `json:"summary,omitempty"`
	Verified bool     `json:"verified"`
	Sources  []string `json:"sources,omitempty"`
}

// ResearchItem represents one prospect's research task within a job.
type ResearchItem struct {
	ID        string     `json:"id"`
	JobID     string     `json:"job_id"`
	UserID    string     `json:"user_id"`
	ItemIndex int        `json:"item_index"`
	Status    ItemStatus `json:"status"`

	// Structured input payload.
	Input ProspectInput `json:"input"`

	// Denormalized copies of the input fields. These survive even if the
	// serialization layer drops optional fields from the structured payload.
	Name    string `json:"prospect_name,omitempty"`
	Company string `json:"prospect_company,omitempty"`
	Address string `json:"prospect_address,omitempty"`
	City    string `json:"prospect_city,omitempty"`
	State   string `json:"prospect_state,omitempty"`
	Zip     string `json:"prospect_zip,omitempty"`

	RetryCount            int        `json:"retry_count"`
	ProcessingStartedAt   *time.Time `json:"processing_started_at,omitempty"`
	ProcessingCompletedAt *time.Time `json:"processing_completed_at,omitempty"`
	ProcessingDurationMs  int64      `json:"processing_duration_ms,omitempty"`
	ErrorMessage          string     `json:"error_message,omitempty"`
	LastRetryAt           *time.Time `json:"last_retry_at,omitempty"`

	Result *ResearchResult `json:"result,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewResearchItem creates a pending item for the given job.
func NewResearchItem(jobID, userID string, index int, input ProspectInput) *ResearchItem {
	return &ResearchItem{
		ID:        "item_" + uuid.New().String(),
		JobID:     jobID,
		UserID:    userID,
		ItemIndex: index,
		Status:    ItemStatusPending,
		Input:     input,
		Name:      input.Name,
		Company:   input.Company,
		Address:   input.Address,
		City:      input.City,
		State:     input.State,
		Zip:       input.Zip,
		CreatedAt: time.Now().UTC(),
	}
}

// NormalizedInput reconciles the structured payload with the denormalized
// columns, preferring the structured payload field by field and falling back
// to the columns. Both representations must be merged before the pipeline
// runs; neither is authoritative on its own.
func (i *ResearchItem) NormalizedInput() ProspectInput {
	merged := i.Input
	if strings.TrimSpace(merged.Name) == "" {
		merged.Name = i.Name
	}
	if strings.TrimSpace(merged.Company) == "" {
		merged.Company = i.Company
	}
	if strings.TrimSpace(merged.Address) == "" {
		merged.Address = i.Address
	}
	if strings.TrimSpace(merged.City) == "" {
		merged.City = i.City
	}
	if strings.TrimSpace(merged.State) == "" {
		merged.State = i.State
	}
	if strings.TrimSpace(merged.Zip) == "" {
		merged.Zip = i.Zip
	}
	return merged
}
