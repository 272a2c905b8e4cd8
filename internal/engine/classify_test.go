package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/prospector/internal/httpclient"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		expectCode    ErrorCode
		expectRetry   bool
		expectBackoff time.Duration
	}{
		{
			name:        "context deadline",
			err:         context.DeadlineExceeded,
			expectCode:  ErrorCodeTimeout,
			expectRetry: true,
		},
		{
			name:        "wrapped deadline",
			err:         fmt.Errorf("edgar search: %w", context.DeadlineExceeded),
			expectCode:  ErrorCodeTimeout,
			expectRetry: true,
		},
		{
			name:        "invalid input sentinel",
			err:         fmt.Errorf("%w: prospect has no name or company", ErrInvalidInput),
			expectCode:  ErrorCodeInvalidInput,
			expectRetry: false,
		},
		{
			name:          "http 429 with retry hint",
			err:           &httpclient.StatusError{StatusCode: 429, URL: "https://api.example.org", RetryAfter: 90 * time.Second},
			expectCode:    ErrorCodeRateLimited,
			expectRetry:   true,
			expectBackoff: 90 * time.Second,
		},
		{
			name:          "http 429 without retry hint",
			err:           &httpclient.StatusError{StatusCode: 429, URL: "https://api.example.org"},
			expectCode:    ErrorCodeRateLimited,
			expectRetry:   true,
			expectBackoff: 30 * time.Second,
		},
		{
			name:        "http 503",
			err:         &httpclient.StatusError{StatusCode: 503, URL: "https://api.example.org"},
			expectCode:  ErrorCodeUpstreamUnavailable,
			expectRetry: true,
		},
		{
			name:        "http 404",
			err:         &httpclient.StatusError{StatusCode: 404, URL: "https://api.example.org"},
			expectCode:  ErrorCodeInvalidInput,
			expectRetry: false,
		},
		{
			name:        "serialized timeout text",
			err:         errors.New("workflow run: request timeout after 30s"),
			expectCode:  ErrorCodeTimeout,
			expectRetry: true,
		},
		{
			name:        "serialized rate limit text",
			err:         errors.New("too many requests"),
			expectCode:  ErrorCodeRateLimited,
			expectRetry: true,
		},
		{
			name:        "connection refused text",
			err:         errors.New("dial tcp 127.0.0.1:9090: connection refused"),
			expectCode:  ErrorCodeUpstreamUnavailable,
			expectRetry: true,
		},
		{
			name:        "unrecognized error",
			err:         errors.New("something odd happened"),
			expectCode:  ErrorCodeUnknown,
			expectRetry: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ClassifyError(tt.err)
			assert.Equal(t, tt.expectCode, c.Code)
			assert.Equal(t, tt.expectRetry, c.Retryable)
			if tt.expectBackoff > 0 {
				assert.Equal(t, tt.expectBackoff, c.RetryAfter)
			}
			assert.NotEmpty(t, c.UserMessage)
		})
	}
}

func TestClassificationMessage(t *testing.T) {
	c := ClassifyError(context.DeadlineExceeded)
	assert.Equal(t, "timeout: research timed out; it will be retried automatically", c.Message())
}
