package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/models"
)

func TestCreateAndGetJob(t *testing.T) {
	jobs, _ := newTestStores(t)
	ctx := context.Background()

	job, items := seedJob(t, jobs, "user-1", 3)
	require.Len(t, items, 3)

	got, err := jobs.GetJob(ctx, job.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, models.JobStatusPending, got.Status)
	assert.Equal(t, 3, got.TotalProspects)
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.CompletedAt)
}

func TestGetJobEnforcesOwnership(t *testing.T) {
	jobs, _ := newTestStores(t)
	ctx := context.Background()

	job, _ := seedJob(t, jobs, "user-1", 1)

	_, err := jobs.GetJob(ctx, job.ID, "user-2")
	assert.ErrorIs(t, err, interfaces.ErrJobNotFound)

	_, err = jobs.GetJob(ctx, "job_missing", "user-1")
	assert.ErrorIs(t, err, interfaces.ErrJobNotFound)
}

func TestListJobsFiltersByStatus(t *testing.T) {
	jobs, _ := newTestStores(t)
	ctx := context.Background()

	seedJob(t, jobs, "user-1", 1)
	jobB, _ := seedJob(t, jobs, "user-1", 1)
	seedJob(t, jobs, "user-2", 1)

	require.NoError(t, jobs.SetJobStatus(ctx, jobB.ID, models.JobStatusPaused))

	all, err := jobs.ListJobs(ctx, "user-1", &interfaces.ListOptions{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	paused, err := jobs.ListJobs(ctx, "user-1", &interfaces.ListOptions{Limit: 10, Status: "paused"})
	require.NoError(t, err)
	require.Len(t, paused, 1)
	assert.Equal(t, jobB.ID, paused[0].ID)

	count, err := jobs.CountJobs(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	pendingCount, err := jobs.CountJobsByStatus(ctx, "user-1", models.JobStatusPending)
	require.NoError(t, err)
	assert.Equal(t, 1, pendingCount)
}

func TestListActiveJobsSpansOwners(t *testing.T) {
	jobs, _ := newTestStores(t)
	ctx := context.Background()

	jobA, _ := seedJob(t, jobs, "user-1", 1)
	jobB, _ := seedJob(t, jobs, "user-2", 1)
	jobC, _ := seedJob(t, jobs, "user-1", 1)

	_, err := jobs.MarkJobProcessing(ctx, jobB.ID, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, jobs.SetJobStatus(ctx, jobC.ID, models.JobStatusCancelled))

	active, err := jobs.ListActiveJobs(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)

	ids := []string{active[0].ID, active[1].ID}
	assert.Contains(t, ids, jobA.ID)
	assert.Contains(t, ids, jobB.ID)
}

func TestMarkJobProcessingOnlyFromPending(t *testing.T) {
	jobs, _ := newTestStores(t)
	ctx := context.Background()

	job, _ := seedJob(t, jobs, "user-1", 1)
	now := time.Now().UTC()

	won, err := jobs.MarkJobProcessing(ctx, job.ID, now)
	require.NoError(t, err)
	assert.True(t, won)

	// Already processing: the predicate makes this a no-op
	won, err = jobs.MarkJobProcessing(ctx, job.ID, now)
	require.NoError(t, err)
	assert.False(t, won)

	got, err := jobs.GetJob(ctx, job.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusProcessing, got.Status)
	require.NotNil(t, got.StartedAt)
	assert.Equal(t, now.Unix(), got.StartedAt.Unix())
}

func TestFinalizeJobCompletedSingleWinner(t *testing.T) {
	jobs, _ := newTestStores(t)
	ctx := context.Background()

	job, _ := seedJob(t, jobs, "user-1", 1)
	now := time.Now().UTC()

	winner, err := jobs.FinalizeJobCompleted(ctx, job.ID, now)
	require.NoError(t, err)
	assert.True(t, winner)

	// Second finalization attempt must not win
	winner, err = jobs.FinalizeJobCompleted(ctx, job.ID, now)
	require.NoError(t, err)
	assert.False(t, winner)

	got, err := jobs.GetJob(ctx, job.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
}

func TestSetJobStatusMissingJob(t *testing.T) {
	jobs, _ := newTestStores(t)
	err := jobs.SetJobStatus(context.Background(), "job_missing", models.JobStatusPaused)
	assert.ErrorIs(t, err, interfaces.ErrJobNotFound)
}

func TestResetJobRequeuesNonCompletedItems(t *testing.T) {
	jobs, items := newTestStores(t)
	ctx := context.Background()
	now := time.Now().UTC()

	job, seeded := seedJob(t, jobs, "user-1", 3)

	// Item 0 completes, item 1 fails twice, item 2 is left mid-claim
	claimed, won, err := items.ClaimItem(ctx, seeded[0], now)
	require.NoError(t, err)
	require.True(t, won)
	require.NoError(t, items.MarkItemCompleted(ctx, claimed.ID, *claimed.ProcessingStartedAt,
		&models.ResearchResult{Score: 80, Tier: "A"}, now.Add(time.Second)))

	failed := seeded[1]
	for i := 0; i < 2; i++ {
		claimed, won, err = items.ClaimItem(ctx, failed, now)
		require.NoError(t, err)
		require.True(t, won)
		require.NoError(t, items.MarkItemFailed(ctx, claimed.ID, *claimed.ProcessingStartedAt, "timeout", now.Add(time.Second)))
		failed, err = items.GetItem(ctx, claimed.ID)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, failed.RetryCount)

	_, won, err = items.ClaimItem(ctx, seeded[2], now)
	require.NoError(t, err)
	require.True(t, won)

	require.NoError(t, jobs.ResetJob(ctx, job.ID))

	got, err := jobs.GetJob(ctx, job.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, got.Status)
	assert.Nil(t, got.StartedAt)
	assert.Equal(t, 1, got.CompletedCount)
	assert.Equal(t, 0, got.FailedCount)

	// Completed result survives the reset
	item0, err := items.GetItem(ctx, seeded[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.ItemStatusCompleted, item0.Status)
	require.NotNil(t, item0.Result)

	// Failed and in-flight items start over with a clean retry budget
	for _, id := range []string{seeded[1].ID, seeded[2].ID} {
		item, err := items.GetItem(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.ItemStatusPending, item.Status)
		assert.Equal(t, 0, item.RetryCount)
		assert.Nil(t, item.ProcessingStartedAt)
		assert.Empty(t, item.ErrorMessage)
	}
}

func TestRefreshJobCounters(t *testing.T) {
	jobs, items := newTestStores(t)
	ctx := context.Background()
	now := time.Now().UTC()

	job, seeded := seedJob(t, jobs, "user-1", 2)

	claimed, won, err := items.ClaimItem(ctx, seeded[0], now)
	require.NoError(t, err)
	require.True(t, won)
	require.NoError(t, items.MarkItemCompleted(ctx, claimed.ID, *claimed.ProcessingStartedAt,
		&models.ResearchResult{Score: 50, Tier: "B"}, now.Add(time.Second)))

	claimed, won, err = items.ClaimItem(ctx, seeded[1], now)
	require.NoError(t, err)
	require.True(t, won)
	require.NoError(t, items.MarkItemFailed(ctx, claimed.ID, *claimed.ProcessingStartedAt, "rate_limited", now.Add(time.Second)))

	fresh, err := jobs.RefreshJobCounters(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.CompletedCount)
	assert.Equal(t, 1, fresh.FailedCount)
}

func TestDeleteJobCascadesToItems(t *testing.T) {
	jobs, items := newTestStores(t)
	ctx := context.Background()

	job, seeded := seedJob(t, jobs, "user-1", 2)

	require.NoError(t, jobs.DeleteJob(ctx, job.ID))

	_, err := jobs.GetJob(ctx, job.ID, "user-1")
	assert.ErrorIs(t, err, interfaces.ErrJobNotFound)

	_, err = items.GetItem(ctx, seeded[0].ID)
	assert.ErrorIs(t, err, interfaces.ErrItemNotFound)

	assert.ErrorIs(t, jobs.DeleteJob(ctx, job.ID), interfaces.ErrJobNotFound)
}
