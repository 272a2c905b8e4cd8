package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProspectInputIsEmpty(t *testing.T) {
	assert.True(t, ProspectInput{}.IsEmpty())
	assert.True(t, ProspectInput{City: "Chicago", State: "IL"}.IsEmpty())
	assert.True(t, ProspectInput{Name: "   "}.IsEmpty())
	assert.False(t, ProspectInput{Name: "Jane Donor"}.IsEmpty())
	assert.False(t, ProspectInput{Company: "Acme Foundation"}.IsEmpty())
}

func TestNormalizedInputMergesDenormalizedColumns(t *testing.T) {
	item := NewResearchItem("job_1", "user-1", 0, ProspectInput{Name: "Jane Donor"})

	// Simulate a storage round trip that dropped optional payload fields but
	// kept the denormalized columns
	item.Input = ProspectInput{Name: "Jane Donor"}
	item.City = "Chicago"
	item.State = "IL"

	merged := item.NormalizedInput()
	assert.Equal(t, "Jane Donor", merged.Name)
	assert.Equal(t, "Chicago", merged.City)
	assert.Equal(t, "IL", merged.State)
}

func TestNormalizedInputPrefersStructuredPayload(t *testing.T) {
	item := NewResearchItem("job_1", "user-1", 0, ProspectInput{Name: "Jane Donor", City: "Evanston"})
	item.City = "Chicago"

	merged := item.NormalizedInput()
	assert.Equal(t, "Evanston", merged.City)
}

func TestNewResearchItemDefaults(t *testing.T) {
	item := NewResearchItem("job_1", "user-1", 3, ProspectInput{Name: "Jane Donor", Company: "Acme"})

	assert.Equal(t, ItemStatusPending, item.Status)
	assert.Equal(t, 3, item.ItemIndex)
	assert.Equal(t, 0, item.RetryCount)
	assert.Equal(t, "Jane Donor", item.Name)
	assert.Equal(t, "Acme", item.Company)
	assert.NotEmpty(t, item.ID)
}
