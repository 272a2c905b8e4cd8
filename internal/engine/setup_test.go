package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/common"
	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/models"
	"github.com/ternarybob/prospector/internal/storage/sqlite"
)

// stubStrategy scripts enrichment outcomes per prospect name.
type stubStrategy struct {
	name     string
	results  map[string]*models.ResearchResult
	failures map[string]error
	calls    int
	execute  func(ctx context.Context, item *models.ResearchItem, opts interfaces.PipelineOptions) (*models.ResearchResult, error)
}

func (s *stubStrategy) Name() string {
	if s.name != "" {
		return s.name
	}
	return "stub"
}

func (s *stubStrategy) Execute(ctx context.Context, item *models.ResearchItem, opts interfaces.PipelineOptions) (*models.ResearchResult, error) {
	s.calls++
	if s.execute != nil {
		return s.execute(ctx, item, opts)
	}
	name := item.NormalizedInput().Name
	if err, ok := s.failures[name]; ok {
		return nil, err
	}
	if result, ok := s.results[name]; ok {
		return result, nil
	}
	return &models.ResearchResult{Score: 50, Tier: "B"}, nil
}

// recordingNotifier counts completion notifications.
type recordingNotifier struct {
	count int
	last  *models.Job
}

func (n *recordingNotifier) NotifyJobCompleted(job *models.Job) {
	n.count++
	n.last = job
}

type testEnv struct {
	jobs      interfaces.JobStorage
	items     interfaces.ItemStorage
	strategy  *stubStrategy
	notifier  *recordingNotifier
	processor *Processor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := arbor.NewLogger()
	db, err := sqlite.NewSQLiteDB(logger, &common.SQLiteConfig{
		Path:          filepath.Join(t.TempDir(), "engine_test.db"),
		CacheSizeMB:   16,
		BusyTimeoutMS: 5000,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	jobs := sqlite.NewJobStorage(db, logger)
	items := sqlite.NewItemStorage(db, logger)

	strategy := &stubStrategy{
		results:  map[string]*models.ResearchResult{},
		failures: map[string]error{},
	}
	notifier := &recordingNotifier{}

	config := common.EngineConfig{
		MaxRetries:     3,
		StaleThreshold: "10m",
		DefaultDelayMs: 0,
		ProcessTimeout: "5s",
	}

	processor := NewProcessor(jobs, items, nil,
		NewStrategySelector(strategy, nil, nil), notifier, config, logger)

	return &testEnv{
		jobs:      jobs,
		items:     items,
		strategy:  strategy,
		notifier:  notifier,
		processor: processor,
	}
}

// seedJob creates a pending job whose prospects are named "P0", "P1", ...
func (e *testEnv) seedJob(t *testing.T, userID string, names ...string) (*models.Job, []*models.ResearchItem) {
	t.Helper()

	job := models.NewJob(userID, "engine test batch", models.JobSettings{})
	job.TotalProspects = len(names)

	items := make([]*models.ResearchItem, 0, len(names))
	for i, name := range names {
		items = append(items, models.NewResearchItem(job.ID, userID, i, models.ProspectInput{Name: name}))
	}

	require.NoError(t, e.jobs.CreateJob(context.Background(), job, items))
	return job, items
}

// failItem drives an item through claim/fail cycles so it ends failed with
// retry_count = times-1.
func (e *testEnv) failItem(t *testing.T, item *models.ResearchItem, times int) *models.ResearchItem {
	t.Helper()
	ctx := context.Background()

	observed := item
	for i := 0; i < times; i++ {
		claimed, won, err := e.items.ClaimItem(ctx, observed, e.processor.now())
		require.NoError(t, err)
		require.True(t, won)
		require.NoError(t, e.items.MarkItemFailed(ctx, claimed.ID, *claimed.ProcessingStartedAt,
			"unknown: scripted failure", e.processor.now()))
		observed, err = e.items.GetItem(ctx, claimed.ID)
		require.NoError(t, err)
	}
	return observed
}

var errScripted = errors.New("scripted enrichment failure")
