package reliability

import (
	"context"
	"errors"
	"time"
)

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsRetryableProviderCode classifies retryable upstream realtime error codes
// as reported by the speech provider websocket streams.
func IsRetryableProviderCode(code string) bool {
	switch code {
	case "rate_limited", "resource_exhausted", "queue_overflow", "internal_error", "error":
		return true
	default:
		return false
	}
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}

// RetryOnce runs fn and, when it fails with a retryable error according to
// classify, waits for delay and runs it one more time. Session errors must
// stay bounded: a turn either recovers on the second attempt or ends.
func RetryOnce(ctx context.Context, delay time.Duration, classify func(error) bool, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if classify != nil && !classify(err) {
		return err
	}
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fn()
}
