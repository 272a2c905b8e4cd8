package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/models"
)

func testItem(name string) *models.ResearchItem {
	return models.NewResearchItem("job_test", "user-1", 0, models.ProspectInput{Name: name})
}

func TestFallbackStrategyUsesPrimaryResult(t *testing.T) {
	primary := &stubStrategy{name: "workflow", results: map[string]*models.ResearchResult{
		"Alice": {Score: 77, Tier: "A"},
	}}
	secondary := &stubStrategy{name: "inline"}
	fallback := NewFallbackStrategy(primary, secondary, arbor.NewLogger())

	result, err := fallback.Execute(context.Background(), testItem("Alice"), interfaces.PipelineOptions{})
	require.NoError(t, err)
	assert.Equal(t, float64(77), result.Score)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, secondary.calls)
}

func TestFallbackStrategyFallsBackOnUnavailable(t *testing.T) {
	primary := &stubStrategy{name: "workflow", failures: map[string]error{
		"Alice": fmt.Errorf("%w: connect: connection refused", interfaces.ErrWorkflowUnavailable),
	}}
	secondary := &stubStrategy{name: "inline", results: map[string]*models.ResearchResult{
		"Alice": {Score: 40, Tier: "B"},
	}}
	fallback := NewFallbackStrategy(primary, secondary, arbor.NewLogger())

	result, err := fallback.Execute(context.Background(), testItem("Alice"), interfaces.PipelineOptions{})
	require.NoError(t, err)
	assert.Equal(t, float64(40), result.Score)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, secondary.calls)
}

func TestFallbackStrategyPropagatesEnrichmentErrors(t *testing.T) {
	enrichmentErr := errors.New("edgar search failed")
	primary := &stubStrategy{name: "workflow", failures: map[string]error{"Alice": enrichmentErr}}
	secondary := &stubStrategy{name: "inline"}
	fallback := NewFallbackStrategy(primary, secondary, arbor.NewLogger())

	_, err := fallback.Execute(context.Background(), testItem("Alice"), interfaces.PipelineOptions{})
	assert.ErrorIs(t, err, enrichmentErr)

	// An item that failed research must not silently run a second time
	assert.Equal(t, 0, secondary.calls)
}

func TestStrategySelector(t *testing.T) {
	inline := &stubStrategy{name: "inline"}
	durable := &stubStrategy{name: "workflow"}

	selector := NewStrategySelector(inline, durable, []string{"power-user"})

	plain := models.NewJob("user-1", "batch", models.JobSettings{})
	assert.Equal(t, "inline", selector.Select(plain).Name())

	optedIn := models.NewJob("user-1", "batch", models.JobSettings{UseDurableWorkflow: true})
	assert.Equal(t, "workflow", selector.Select(optedIn).Name())

	allowListed := models.NewJob("power-user", "batch", models.JobSettings{})
	assert.Equal(t, "workflow", selector.Select(allowListed).Name())
}

func TestStrategySelectorWithoutDurableEngine(t *testing.T) {
	inline := &stubStrategy{name: "inline"}
	selector := NewStrategySelector(inline, nil, nil)

	// Even an opted-in job runs inline when no workflow engine is configured
	optedIn := models.NewJob("user-1", "batch", models.JobSettings{UseDurableWorkflow: true})
	assert.Equal(t, "inline", selector.Select(optedIn).Name())
}
