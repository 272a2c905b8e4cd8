package engine

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/ternarybob/prospector/internal/httpclient"
)

// ErrorCode is the classification bucket for an execution failure.
type ErrorCode string

const (
	ErrorCodeTimeout             ErrorCode = "timeout"
	ErrorCodeRateLimited         ErrorCode = "rate_limited"
	ErrorCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrorCodeInvalidInput        ErrorCode = "invalid_input"
	ErrorCodeUnknown             ErrorCode = "unknown"
)

// ErrInvalidInput marks enrichment failures caused by the prospect input
// itself. Pipelines wrap it so classification can separate bad data from
// infrastructure trouble.
var ErrInvalidInput = errors.New("invalid prospect input")

// Classification is the operator-facing description of a failure. It is
// persisted as the item's error message. The Retryable flag is advisory:
// retry eligibility is governed by the retry counter alone, the
// classification exists for visibility.
type Classification struct {
	Code        ErrorCode
	UserMessage string
	Retryable   bool
	RetryAfter  time.Duration
}

// Message returns the string persisted to the item row.
func (c Classification) Message() string {
	return string(c.Code) + ": " + c.UserMessage
}

// ClassifyError maps an execution error into the failure taxonomy.
func ClassifyError(err error) Classification {
	if err == nil {
		return Classification{Code: ErrorCodeUnknown, UserMessage: "no error", Retryable: false}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Classification{
			Code:        ErrorCodeTimeout,
			UserMessage: "research timed out; it will be retried automatically",
			Retryable:   true,
		}
	}

	if errors.Is(err, ErrInvalidInput) {
		return Classification{
			Code:        ErrorCodeInvalidInput,
			UserMessage: "prospect data is incomplete or malformed; fix the input and reset the job",
			Retryable:   false,
		}
	}

	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == 429:
			return Classification{
				Code:        ErrorCodeRateLimited,
				UserMessage: "a data source is rate limiting requests; retrying after a delay",
				Retryable:   true,
				RetryAfter:  retryAfterOrDefault(statusErr.RetryAfter),
			}
		case statusErr.StatusCode >= 500:
			return Classification{
				Code:        ErrorCodeUpstreamUnavailable,
				UserMessage: "a data source is temporarily unavailable",
				Retryable:   true,
			}
		case statusErr.StatusCode >= 400:
			return Classification{
				Code:        ErrorCodeInvalidInput,
				UserMessage: "a data source rejected the request for this prospect",
				Retryable:   false,
			}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return Classification{
				Code:        ErrorCodeTimeout,
				UserMessage: "research timed out; it will be retried automatically",
				Retryable:   true,
			}
		}
		return Classification{
			Code:        ErrorCodeUpstreamUnavailable,
			UserMessage: "could not reach a data source",
			Retryable:   true,
		}
	}

	// Fallback string matching for errors that cross process boundaries
	// (workflow runs serialize errors to text).
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return Classification{
			Code:        ErrorCodeTimeout,
			UserMessage: "research timed out; it will be retried automatically",
			Retryable:   true,
		}
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests"):
		return Classification{
			Code:        ErrorCodeRateLimited,
			UserMessage: "a data source is rate limiting requests; retrying after a delay",
			Retryable:   true,
			RetryAfter:  retryAfterOrDefault(0),
		}
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "service unavailable"):
		return Classification{
			Code:        ErrorCodeUpstreamUnavailable,
			UserMessage: "could not reach a data source",
			Retryable:   true,
		}
	}

	return Classification{
		Code:        ErrorCodeUnknown,
		UserMessage: "research failed: " + err.Error(),
		Retryable:   true,
	}
}

func retryAfterOrDefault(hint time.Duration) time.Duration {
	if hint > 0 {
		return hint
	}
	return 30 * time.Second
}
