package forwarder

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"time"
)

const (
	defaultMaxAttempts = 3
	backoffBase        = 200 * time.Millisecond
	backoffCap         = 5 * time.Second
)

// RetryableError wraps the last error from a failed retry sequence
// (spec §4.4 "returns success or the last error wrapped as a tagged
// result").
type RetryableError struct {
	Attempts int
	Err      error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("forwarder: failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *RetryableError) Unwrap() error { return e.Err }

// RetryWithExponentialBackoff invokes fn up to maxAttempts times,
// retrying on network error or 5xx with base·2^(attempt-1)±jitter delay
// between attempts (spec §4.4). maxAttempts<=0 is treated as 1.
func RetryWithExponentialBackoff(ctx context.Context, maxAttempts int, fn func(ctx context.Context, attempt int) (*http.Response, error)) (*http.Response, error) {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	var lastResp *http.Response

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := fn(ctx, attempt)
		if err == nil && (resp == nil || resp.StatusCode < 500) {
			return resp, nil
		}

		lastResp = resp
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("forwarder: upstream returned %d", resp.StatusCode)
		}

		if attempt == maxAttempts {
			break
		}

		delay := backoffDelay(attempt)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	if lastResp != nil && lastResp.StatusCode >= 500 {
		return lastResp, &RetryableError{Attempts: maxAttempts, Err: lastErr}
	}
	return nil, &RetryableError{Attempts: maxAttempts, Err: lastErr}
}

func backoffDelay(attempt int) time.Duration {
	base := backoffBase * time.Duration(1<<uint(attempt-1))
	if base > backoffCap {
		base = backoffCap
	}
	jitter := time.Duration(rand.Int63n(int64(base) / 2))
	return base/2 + jitter
}

// MaxAttemptsFor implements spec §4.4's replica-aware attempt budget:
// buckets participating in replication get a single attempt so the
// failover path is reached promptly.
func MaxAttemptsFor(hasReplicas, isReplica bool) int {
	if hasReplicas || isReplica {
		return 1
	}
	return defaultMaxAttempts
}
