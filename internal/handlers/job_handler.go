package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/engine"
	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/models"
)

// maxProspectsPerJob caps batch size so one submission cannot monopolize the
// data-source rate budget.
const maxProspectsPerJob = 1000

var validate = validator.New()

// JobHandler serves the research job API.
type JobHandler struct {
	jobs      interfaces.JobStorage
	items     interfaces.ItemStorage
	processor *engine.Processor
	logger    arbor.ILogger
}

// NewJobHandler creates the job API handler.
func NewJobHandler(jobs interfaces.JobStorage, items interfaces.ItemStorage, processor *engine.Processor, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		jobs:      jobs,
		items:     items,
		processor: processor,
		logger:    logger,
	}
}

// createJobRequest is the POST /api/jobs payload.
type createJobRequest struct {
	Name      string                 `json:"name" validate:"required,min=1,max=200"`
	Prospects []models.ProspectInput `json:"prospects" validate:"required,min=1"`
	Settings  models.JobSettings     `json:"settings"`
}

// jobResponse is the job representation returned by list and detail views.
type jobResponse struct {
	*models.Job
	Progress             models.Progress `json:"progress"`
	ProgressPercent      float64         `json:"progress_percent"`
	EstimatedRemainingMs int64           `json:"estimated_remaining_ms,omitempty"`
}

func (h *JobHandler) toResponse(job *models.Job) *jobResponse {
	progress := models.Progress{
		Completed: job.CompletedCount,
		Total:     job.TotalProspects,
		Failed:    job.FailedCount,
	}
	return &jobResponse{
		Job:             job,
		Progress:        progress,
		ProgressPercent: progress.Percentage(),
	}
}

// CreateJobHandler handles POST /api/jobs.
func (h *JobHandler) CreateJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	userID := UserID(r.Context())

	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		return
	}
	if err := validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}
	if len(req.Prospects) > maxProspectsPerJob {
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("Too many prospects: maximum %d per job", maxProspectsPerJob))
		return
	}
	for i, prospect := range req.Prospects {
		if prospect.IsEmpty() {
			WriteError(w, http.StatusBadRequest, fmt.Sprintf("Prospect %d has no name or company", i))
			return
		}
	}

	job := models.NewJob(userID, strings.TrimSpace(req.Name), req.Settings)
	job.TotalProspects = len(req.Prospects)

	items := make([]*models.ResearchItem, 0, len(req.Prospects))
	for i, prospect := range req.Prospects {
		items = append(items, models.NewResearchItem(job.ID, userID, i, prospect))
	}

	if err := h.jobs.CreateJob(r.Context(), job, items); err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to create job")
		WriteError(w, http.StatusInternalServerError, "Failed to create job")
		return
	}

	WriteJSON(w, http.StatusCreated, h.toResponse(job))
}

// ListJobsHandler handles GET /api/jobs.
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	userID := UserID(r.Context())
	page, pageSize := GetPaginationParams(r)

	opts := &interfaces.ListOptions{
		Limit:  pageSize,
		Offset: page * pageSize,
		Status: r.URL.Query().Get("status"),
	}

	jobs, err := h.jobs.ListJobs(r.Context(), userID, opts)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list jobs")
		WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	total, err := h.jobs.CountJobs(r.Context(), userID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to count jobs")
		return
	}

	responses := make([]*jobResponse, 0, len(jobs))
	for _, job := range jobs {
		responses = append(responses, h.toResponse(job))
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  responses,
		"total": total,
		"page":  page,
	})
}

// GetJobStatsHandler handles GET /api/jobs/stats.
func (h *JobHandler) GetJobStatsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	userID := UserID(r.Context())

	stats := make(map[string]int)
	for _, status := range []models.JobStatus{
		models.JobStatusPending, models.JobStatusProcessing, models.JobStatusPaused,
		models.JobStatusCompleted, models.JobStatusFailed, models.JobStatusCancelled,
	} {
		count, err := h.jobs.CountJobsByStatus(r.Context(), userID, status)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "Failed to compute stats")
			return
		}
		stats[string(status)] = count
	}

	total, err := h.jobs.CountJobs(r.Context(), userID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to compute stats")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"total":     total,
		"by_status": stats,
	})
}

// GetJobHandler handles GET /api/jobs/{id}.
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	userID := UserID(r.Context())

	job, err := h.jobs.GetJob(r.Context(), jobID, userID)
	if err != nil {
		h.writeJobError(w, err)
		return
	}

	response := h.toResponse(job)

	// Estimate remaining time from the average completed-item duration
	if job.Status.IsActive() {
		remaining, err := h.items.CountRemaining(r.Context(), jobID)
		if err == nil && remaining > 0 {
			if avg, err := h.items.AverageDurationMs(r.Context(), jobID); err == nil && avg > 0 {
				response.EstimatedRemainingMs = avg * int64(remaining)
			}
		}
	}

	WriteJSON(w, http.StatusOK, response)
}

// ListItemsHandler handles GET /api/jobs/{id}/items.
func (h *JobHandler) ListItemsHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	userID := UserID(r.Context())

	// Ownership check before exposing items
	if _, err := h.jobs.GetJob(r.Context(), jobID, userID); err != nil {
		h.writeJobError(w, err)
		return
	}

	page, pageSize := GetPaginationParams(r)
	opts := &interfaces.ListOptions{
		Limit:  pageSize,
		Offset: page * pageSize,
		Status: r.URL.Query().Get("status"),
	}

	items, total, err := h.items.ListItems(r.Context(), jobID, opts)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to list items")
		WriteError(w, http.StatusInternalServerError, "Failed to list items")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"total": total,
		"page":  page,
	})
}

// ProcessNextHandler handles POST /api/jobs/{id}/process. This is the
// polling endpoint that drives a job forward one item at a time.
func (h *JobHandler) ProcessNextHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	userID := UserID(r.Context())

	result, err := h.processor.ProcessNext(r.Context(), jobID, userID)
	if err != nil {
		h.writeJobError(w, err)
		return
	}

	// Per-item failures are inside the result; the transport succeeds
	WriteJSON(w, http.StatusOK, result)
}

// patchJobRequest is the PATCH /api/jobs/{id} payload.
type patchJobRequest struct {
	Status models.JobStatus `json:"status"`
}

// PatchJobHandler handles PATCH /api/jobs/{id}: pause, resume, cancel, and
// reset. Reset (terminal -> pending) re-queues all non-completed items.
func (h *JobHandler) PatchJobHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	userID := UserID(r.Context())

	var req patchJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		return
	}
	if !req.Status.Valid() {
		WriteError(w, http.StatusBadRequest, "Invalid status: "+string(req.Status))
		return
	}

	job, err := h.jobs.GetJob(r.Context(), jobID, userID)
	if err != nil {
		h.writeJobError(w, err)
		return
	}

	if !job.Status.CanTransitionTo(req.Status) {
		WriteError(w, http.StatusConflict,
			fmt.Sprintf("Cannot transition job from %s to %s", job.Status, req.Status))
		return
	}

	if req.Status == models.JobStatusPending {
		// Reset: re-queue failed and in-flight items with a clean retry budget
		err = h.jobs.ResetJob(r.Context(), jobID)
	} else {
		err = h.jobs.SetJobStatus(r.Context(), jobID, req.Status)
	}
	if err != nil {
		h.writeJobError(w, err)
		return
	}

	job, err = h.jobs.GetJob(r.Context(), jobID, userID)
	if err != nil {
		h.writeJobError(w, err)
		return
	}

	h.logger.Info().
		Str("job_id", jobID).
		Str("status", string(job.Status)).
		Msg("Job status changed")

	WriteJSON(w, http.StatusOK, h.toResponse(job))
}

// DeleteJobHandler handles DELETE /api/jobs/{id}.
func (h *JobHandler) DeleteJobHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	userID := UserID(r.Context())

	if _, err := h.jobs.GetJob(r.Context(), jobID, userID); err != nil {
		h.writeJobError(w, err)
		return
	}

	if err := h.jobs.DeleteJob(r.Context(), jobID); err != nil {
		h.writeJobError(w, err)
		return
	}

	WriteSuccess(w, "Job deleted")
}

func (h *JobHandler) writeJobError(w http.ResponseWriter, err error) {
	if errors.Is(err, interfaces.ErrJobNotFound) {
		WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	h.logger.Error().Err(err).Msg("Job operation failed")
	WriteError(w, http.StatusInternalServerError, "Internal error")
}
