// Package workflow is the HTTP client for the external durable workflow
// engine. Each run executes the same enrichment as the inline path, but
// inside a runtime that survives process restarts.
package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/models"
)

// Client implements the WorkflowEngine interface against the workflow
// service's HTTP API.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     arbor.ILogger
}

// NewClient creates a workflow engine client.
func NewClient(endpoint string, timeout time.Duration, logger arbor.ILogger) *Client {
	return &Client{
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// runResponse is the workflow service's reply. Exactly one of data/error is
// populated for a completed run.
type runResponse struct {
	Data  *models.ResearchResult `json:"data,omitempty"`
	Error string                 `json:"error,omitempty"`
}

// RunWorkflow starts a run and waits for its result. Transport failures and
// 5xx responses wrap ErrWorkflowUnavailable so the caller can fall back to
// inline execution; an error reported by the run itself is an enrichment
// failure and passes through unchanged.
func (c *Client) RunWorkflow(ctx context.Context, req interfaces.WorkflowRequest) (*models.ResearchResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize workflow request: %w", err)
	}

	url := c.endpoint + "/api/workflows/run"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build workflow request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrWorkflowUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", interfaces.ErrWorkflowUnavailable, err)
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: workflow service returned %d", interfaces.ErrWorkflowUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("workflow run rejected with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var runResp runResponse
	if err := json.Unmarshal(body, &runResp); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", interfaces.ErrWorkflowUnavailable, err)
	}

	if runResp.Error != "" {
		return nil, fmt.Errorf("workflow run failed: %s", runResp.Error)
	}
	if runResp.Data == nil {
		return nil, fmt.Errorf("workflow run returned neither data nor error")
	}

	c.logger.Debug().
		Str("item_id", req.ItemID).
		Str("workflow", req.Workflow).
		Msg("Workflow run completed")

	return runResp.Data, nil
}
