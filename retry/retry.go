// Package retry wraps fallible network operations with bounded retry,
// exponential backoff and jitter. Jitter exists specifically to avoid
// synchronized retry storms when many calls fail at the same time.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"net/url"
	"time"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 2 * time.Second
	DefaultMaxDelay    = 10 * time.Second
)

// Policy controls how an operation is retried. The zero value is not
// usable; construct with NewPolicy or fill every field.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Logger      *slog.Logger

	// sleep is swapped out in tests
	sleep func(ctx context.Context, d time.Duration) error
}

func NewPolicy(maxAttempts int, baseDelay, maxDelay time.Duration, logger *slog.Logger) *Policy {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		MaxDelay:    maxDelay,
		Logger:      logger,
		sleep:       sleepCtx,
	}
}

// Do runs fn until it succeeds, fails with a non-retryable error, or
// MaxAttempts is exhausted. The last error is returned on exhaustion.
func (p *Policy) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !Retryable(err) {
			p.Logger.Debug("non-retryable error, giving up", "op", op, "error", err)
			return err
		}

		if attempt == p.MaxAttempts-1 {
			break
		}

		delay := p.backoff(attempt)
		p.Logger.Warn("retryable error, backing off",
			"op", op,
			"attempt", attempt+1,
			"maxAttempts", p.MaxAttempts,
			"delay", delay,
			"error", err)

		if err := p.sleep(ctx, delay); err != nil {
			return err
		}
	}

	return lastErr
}

// backoff computes min(base * 2^attempt, max) plus a random jitter in
// [0, delay/4].
func (p *Policy) backoff(attempt int) time.Duration {
	delay := p.BaseDelay << uint(attempt)
	if delay > p.MaxDelay || delay <= 0 {
		delay = p.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	return delay + jitter
}

// StatusError is an HTTP response with a non-2xx status code.
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// Retryable reports whether err is worth retrying: network I/O errors,
// timeouts and HTTP 5xx are; HTTP 4xx and malformed-input errors are
// not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}

	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
