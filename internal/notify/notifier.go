// Package notify delivers job-completion notifications.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/models"
)

// Notifier implements CompletionNotifier. With a webhook URL configured it
// POSTs a job summary; otherwise it only logs. Delivery runs in a goroutine
// and is fire-and-forget: the engine has already finalized the job and must
// not block or fail on notification trouble.
type Notifier struct {
	webhookURL string
	httpClient *http.Client
	logger     arbor.ILogger
}

// New creates a notifier. webhookURL may be empty.
func New(webhookURL string, timeout time.Duration, logger arbor.ILogger) *Notifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type completionPayload struct {
	Event          string `json:"event"`
	JobID          string `json:"job_id"`
	UserID         string `json:"user_id"`
	Name           string `json:"name"`
	TotalProspects int    `json:"total_prospects"`
	CompletedCount int    `json:"completed_count"`
	FailedCount    int    `json:"failed_count"`
	CompletedAt    int64  `json:"completed_at,omitempty"`
}

// NotifyJobCompleted sends the completion event. Never blocks the caller.
func (n *Notifier) NotifyJobCompleted(job *models.Job) {
	n.logger.Info().
		Str("job_id", job.ID).
		Str("user_id", job.UserID).
		Int("completed", job.CompletedCount).
		Int("failed", job.FailedCount).
		Msg("Research job completed, sending notification")

	if n.webhookURL == "" {
		return
	}

	payload := completionPayload{
		Event:          "job.completed",
		JobID:          job.ID,
		UserID:         job.UserID,
		Name:           job.Name,
		TotalProspects: job.TotalProspects,
		CompletedCount: job.CompletedCount,
		FailedCount:    job.FailedCount,
	}
	if job.CompletedAt != nil {
		payload.CompletedAt = job.CompletedAt.Unix()
	}

	go n.deliver(payload)
}

func (n *Notifier) deliver(payload completionPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Warn().Err(err).Msg("Failed to serialize completion notification")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), n.httpClient.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		n.logger.Warn().Err(err).Msg("Failed to build completion notification request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		n.logger.Warn().Err(err).Str("job_id", payload.JobID).Msg("Completion notification delivery failed")
		return
	}
	resp.Body.Close()

	if resp.StatusCode >= 300 {
		n.logger.Warn().
			Int("status", resp.StatusCode).
			Str("job_id", payload.JobID).
			Msg("Completion notification rejected by webhook")
	}
}
