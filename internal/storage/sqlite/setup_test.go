package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/common"
	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/models"
)

func newTestDB(t *testing.T) *SQLiteDB {
	t.Helper()

	config := &common.SQLiteConfig{
		Path:          filepath.Join(t.TempDir(), "test.db"),
		CacheSizeMB:   16,
		BusyTimeoutMS: 5000,
		WALMode:       false,
	}

	db, err := NewSQLiteDB(arbor.NewLogger(), config)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestStores(t *testing.T) (interfaces.JobStorage, interfaces.ItemStorage) {
	t.Helper()
	db := newTestDB(t)
	logger := arbor.NewLogger()
	return NewJobStorage(db, logger), NewItemStorage(db, logger)
}

// seedJob creates a pending job with n pending items and persists it.
func seedJob(t *testing.T, jobs interfaces.JobStorage, userID string, n int) (*models.Job, []*models.ResearchItem) {
	t.Helper()

	job := models.NewJob(userID, "test batch", models.JobSettings{})
	job.TotalProspects = n

	items := make([]*models.ResearchItem, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, models.NewResearchItem(job.ID, userID, i, models.ProspectInput{
			Name:  "Prospect " + string(rune('A'+i)),
			City:  "Springfield",
			State: "IL",
		}))
	}

	require.NoError(t, jobs.CreateJob(context.Background(), job, items))
	return job, items
}
