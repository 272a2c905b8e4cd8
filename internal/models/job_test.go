package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobStatusTransitions(t *testing.T) {
	tests := []struct {
		from    JobStatus
		to      JobStatus
		allowed bool
	}{
		{JobStatusPending, JobStatusPaused, true},
		{JobStatusPending, JobStatusCancelled, true},
		{JobStatusProcessing, JobStatusPaused, true},
		{JobStatusProcessing, JobStatusCancelled, true},
		{JobStatusPaused, JobStatusProcessing, true},
		{JobStatusPaused, JobStatusPending, true},
		{JobStatusPaused, JobStatusCompleted, false},
		{JobStatusFailed, JobStatusPending, true},
		{JobStatusCompleted, JobStatusPending, true},
		{JobStatusCompleted, JobStatusPaused, false},
		{JobStatusCancelled, JobStatusPending, true},
		{JobStatusCancelled, JobStatusProcessing, false},
		{JobStatusPending, JobStatus("exploded"), false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}

func TestJobStatusPredicates(t *testing.T) {
	assert.True(t, JobStatusPending.IsActive())
	assert.True(t, JobStatusProcessing.IsActive())
	assert.False(t, JobStatusPaused.IsActive())
	assert.False(t, JobStatusCompleted.IsActive())

	assert.True(t, JobStatusCompleted.IsTerminal())
	assert.True(t, JobStatusCancelled.IsTerminal())
	assert.False(t, JobStatusFailed.IsTerminal())
}

func TestProgressPercentage(t *testing.T) {
	assert.Equal(t, float64(0), Progress{}.Percentage())
	assert.Equal(t, float64(50), Progress{Completed: 1, Failed: 1, Total: 4}.Percentage())
	assert.Equal(t, float64(100), Progress{Completed: 3, Failed: 1, Total: 4}.Percentage())
}

func TestJobValidate(t *testing.T) {
	job := NewJob("user-1", "batch", JobSettings{})
	job.TotalProspects = 2
	assert.NoError(t, job.Validate())

	job.CompletedCount = 2
	job.FailedCount = 1
	assert.Error(t, job.Validate())

	job = NewJob("", "batch", JobSettings{})
	assert.Error(t, job.Validate())
}
