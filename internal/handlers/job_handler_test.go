package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/common"
	"github.com/ternarybob/prospector/internal/engine"
	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/models"
	"github.com/ternarybob/prospector/internal/storage/sqlite"
)

// stubPipeline always succeeds with a fixed result.
type stubPipeline struct{}

func (p *stubPipeline) ExecuteResearch(ctx context.Context, input models.ProspectInput, opts interfaces.PipelineOptions) (*models.ResearchResult, error) {
	return &models.ResearchResult{Score: 60, Tier: "B", Verified: true, Sources: []string{"edgar"}}, nil
}

func newTestJobHandler(t *testing.T) *JobHandler {
	t.Helper()

	logger := arbor.NewLogger()
	db, err := sqlite.NewSQLiteDB(logger, &common.SQLiteConfig{
		Path:          filepath.Join(t.TempDir(), "handler_test.db"),
		CacheSizeMB:   16,
		BusyTimeoutMS: 5000,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	jobs := sqlite.NewJobStorage(db, logger)
	items := sqlite.NewItemStorage(db, logger)

	selector := engine.NewStrategySelector(engine.NewInlineStrategy(&stubPipeline{}), nil, nil)
	processor := engine.NewProcessor(jobs, items, nil, selector, nil, common.EngineConfig{
		MaxRetries:     3,
		StaleThreshold: "10m",
		ProcessTimeout: "5s",
	}, logger)

	return NewJobHandler(jobs, items, processor, logger)
}

func authedRequest(method, target string, body []byte, userID string) *http.Request {
	var r *http.Request
	if body != nil {
		r = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	return r.WithContext(WithUserID(r.Context(), userID))
}

func createJob(t *testing.T, h *JobHandler, userID string, prospects ...string) string {
	t.Helper()

	inputs := make([]map[string]string, 0, len(prospects))
	for _, name := range prospects {
		inputs = append(inputs, map[string]string{"name": name})
	}
	body, err := json.Marshal(map[string]interface{}{
		"name":      "test batch",
		"prospects": inputs,
	})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	h.CreateJobHandler(w, authedRequest(http.MethodPost, "/api/jobs", body, userID))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.ID)
	return resp.ID
}

func TestCreateJobHandler(t *testing.T) {
	h := newTestJobHandler(t)

	body, _ := json.Marshal(map[string]interface{}{
		"name": "spring gala prospects",
		"prospects": []map[string]string{
			{"name": "Jane Donor", "city": "Chicago", "state": "IL"},
			{"name": "John Philanthropist"},
		},
		"settings": map[string]interface{}{"delay_between_prospects_ms": 500},
	})

	w := httptest.NewRecorder()
	h.CreateJobHandler(w, authedRequest(http.MethodPost, "/api/jobs", body, "user-1"))

	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		ID             string          `json:"id"`
		Status         string          `json:"status"`
		TotalProspects int             `json:"total_prospects"`
		Progress       models.Progress `json:"progress"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "pending", resp.Status)
	assert.Equal(t, 2, resp.TotalProspects)
	assert.Equal(t, 2, resp.Progress.Total)
}

func TestCreateJobHandlerValidation(t *testing.T) {
	h := newTestJobHandler(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing name", `{"prospects":[{"name":"Jane"}]}`},
		{"empty prospects", `{"name":"batch","prospects":[]}`},
		{"prospect without identity", `{"name":"batch","prospects":[{"city":"Chicago"}]}`},
		{"malformed json", `{"name":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.CreateJobHandler(w, authedRequest(http.MethodPost, "/api/jobs", []byte(tt.body), "user-1"))
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestGetJobHandlerNotFound(t *testing.T) {
	h := newTestJobHandler(t)

	w := httptest.NewRecorder()
	h.GetJobHandler(w, authedRequest(http.MethodGet, "/api/jobs/job_missing", nil, "user-1"), "job_missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetJobHandlerHidesOtherUsersJobs(t *testing.T) {
	h := newTestJobHandler(t)

	jobID := createJob(t, h, "user-1", "Jane Donor")

	w := httptest.NewRecorder()
	h.GetJobHandler(w, authedRequest(http.MethodGet, "/api/jobs/"+jobID, nil, "user-2"), jobID)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProcessNextHandlerDrivesJobToCompletion(t *testing.T) {
	h := newTestJobHandler(t)

	jobID := createJob(t, h, "user-1", "Jane Donor")

	w := httptest.NewRecorder()
	h.ProcessNextHandler(w, authedRequest(http.MethodPost, "/api/jobs/"+jobID+"/process", nil, "user-1"), jobID)
	require.Equal(t, http.StatusOK, w.Code)

	var result engine.ProcessResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.False(t, result.HasMore)
	assert.Equal(t, models.JobStatusCompleted, result.JobStatus)
	assert.Equal(t, 1, result.Progress.Completed)
}

func TestListJobsHandler(t *testing.T) {
	h := newTestJobHandler(t)

	createJob(t, h, "user-1", "Jane Donor")
	createJob(t, h, "user-1", "John Philanthropist")
	createJob(t, h, "user-2", "Someone Else")

	w := httptest.NewRecorder()
	h.ListJobsHandler(w, authedRequest(http.MethodGet, "/api/jobs", nil, "user-1"))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Jobs  []json.RawMessage `json:"jobs"`
		Total int               `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Jobs, 2)
	assert.Equal(t, 2, resp.Total)
}

func TestPatchJobHandlerTransitions(t *testing.T) {
	h := newTestJobHandler(t)

	jobID := createJob(t, h, "user-1", "Jane Donor")

	// pending -> paused
	w := httptest.NewRecorder()
	h.PatchJobHandler(w, authedRequest(http.MethodPatch, "/api/jobs/"+jobID,
		[]byte(`{"status":"paused"}`), "user-1"), jobID)
	require.Equal(t, http.StatusOK, w.Code)

	// paused -> completed is not a legal control transition
	w = httptest.NewRecorder()
	h.PatchJobHandler(w, authedRequest(http.MethodPatch, "/api/jobs/"+jobID,
		[]byte(`{"status":"completed"}`), "user-1"), jobID)
	assert.Equal(t, http.StatusConflict, w.Code)

	// paused -> pending resumes from the start of the queue
	w = httptest.NewRecorder()
	h.PatchJobHandler(w, authedRequest(http.MethodPatch, "/api/jobs/"+jobID,
		[]byte(`{"status":"pending"}`), "user-1"), jobID)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "pending", resp.Status)

	// unknown status is rejected outright
	w = httptest.NewRecorder()
	h.PatchJobHandler(w, authedRequest(http.MethodPatch, "/api/jobs/"+jobID,
		[]byte(`{"status":"exploded"}`), "user-1"), jobID)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPatchJobHandlerResetAfterCompletion(t *testing.T) {
	h := newTestJobHandler(t)

	jobID := createJob(t, h, "user-1", "Jane Donor")

	// Drive to completion
	w := httptest.NewRecorder()
	h.ProcessNextHandler(w, authedRequest(http.MethodPost, "/api/jobs/"+jobID+"/process", nil, "user-1"), jobID)
	require.Equal(t, http.StatusOK, w.Code)

	// Terminal jobs accept only a reset back to pending
	w = httptest.NewRecorder()
	h.PatchJobHandler(w, authedRequest(http.MethodPatch, "/api/jobs/"+jobID,
		[]byte(`{"status":"paused"}`), "user-1"), jobID)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = httptest.NewRecorder()
	h.PatchJobHandler(w, authedRequest(http.MethodPatch, "/api/jobs/"+jobID,
		[]byte(`{"status":"pending"}`), "user-1"), jobID)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Status   string          `json:"status"`
		Progress models.Progress `json:"progress"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "pending", resp.Status)
	// The completed item survives the reset
	assert.Equal(t, 1, resp.Progress.Completed)
}

func TestListItemsHandler(t *testing.T) {
	h := newTestJobHandler(t)

	jobID := createJob(t, h, "user-1", "Jane Donor", "John Philanthropist")

	w := httptest.NewRecorder()
	h.ListItemsHandler(w, authedRequest(http.MethodGet, "/api/jobs/"+jobID+"/items", nil, "user-1"), jobID)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Items []models.ResearchItem `json:"items"`
		Total int                   `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, 0, resp.Items[0].ItemIndex)

	// Other owners see a 404, not an empty list
	w = httptest.NewRecorder()
	h.ListItemsHandler(w, authedRequest(http.MethodGet, "/api/jobs/"+jobID+"/items", nil, "user-2"), jobID)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteJobHandler(t *testing.T) {
	h := newTestJobHandler(t)

	jobID := createJob(t, h, "user-1", "Jane Donor")

	// Other owners cannot delete
	w := httptest.NewRecorder()
	h.DeleteJobHandler(w, authedRequest(http.MethodDelete, "/api/jobs/"+jobID, nil, "user-2"), jobID)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	h.DeleteJobHandler(w, authedRequest(http.MethodDelete, "/api/jobs/"+jobID, nil, "user-1"), jobID)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.GetJobHandler(w, authedRequest(http.MethodGet, "/api/jobs/"+jobID, nil, "user-1"), jobID)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
