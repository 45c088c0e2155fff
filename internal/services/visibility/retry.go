package visibility

import (
	"strings"
	"time"
)

// RetryPolicy defines backoff behavior for rate-limited oracle calls.
// Non-rate-limit errors are never retried.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts before degrading to the
	// unusable sentinel.
	MaxAttempts int

	// BaseDelay doubles on each attempt.
	BaseDelay time.Duration

	// Offset is a small fixed addition to every backoff.
	Offset time.Duration
}

// NewDefaultRetryPolicy returns the standard policy: 5 attempts with
// 2^attempt + 1 second waits.
func NewDefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		Offset:      time.Second,
	}
}

// Backoff computes the wait before the next attempt (attempt is zero-based).
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	return p.BaseDelay<<uint(attempt) + p.Offset
}

// IsRateLimitError checks whether an error is a rate-limit condition,
// recognized by provider-specific markers in the error text.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "429") ||
		strings.Contains(strings.ToLower(errStr), "rate_limit") ||
		strings.Contains(errStr, "RESOURCE_EXHAUSTED") ||
		strings.Contains(errStr, "quota")
}
