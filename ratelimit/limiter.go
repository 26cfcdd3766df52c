// Package ratelimit implements sliding-window admission control for
// outbound API calls. Unlike a fixed-delay throttle, the window adapts
// to bursty call patterns while still guaranteeing the hard cap.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter bounds calls to maxRequests within a trailing window.
type Limiter struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	stamps      []time.Time

	now func() time.Time
}

// Stats is a point-in-time snapshot of the limiter.
type Stats struct {
	RequestsInWindow int
	MaxRequests      int
	Window           time.Duration
	Remaining        int
}

func NewLimiter(maxRequests int, window time.Duration) *Limiter {
	return &Limiter{
		maxRequests: maxRequests,
		window:      window,
		stamps:      make([]time.Time, 0, maxRequests),
		now:         time.Now,
	}
}

// Acquire blocks until issuing another call would not exceed the
// limiter's cap, then records the call. It returns early only if the
// context is canceled while waiting. Each call independently
// re-evaluates the window, so it is safe to call in a tight loop.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.evict(now)

	if len(l.stamps) >= l.maxRequests {
		oldest := l.stamps[0]
		wait := oldest.Add(l.window).Sub(now)
		if wait > 0 {
			if err := l.sleep(ctx, wait); err != nil {
				return err
			}
			now = l.now()
			l.evict(now)
		}
	}

	l.stamps = append(l.stamps, now)
	return nil
}

// GetStats reports current window occupancy after evicting expired
// timestamps.
func (l *Limiter) GetStats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.evict(l.now())

	remaining := l.maxRequests - len(l.stamps)
	if remaining < 0 {
		remaining = 0
	}
	return Stats{
		RequestsInWindow: len(l.stamps),
		MaxRequests:      l.maxRequests,
		Window:           l.window,
		Remaining:        remaining,
	}
}

// evict drops all timestamps older than now - window. Caller holds mu.
func (l *Limiter) evict(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.stamps) && l.stamps[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[i:]...)
	}
}

func (l *Limiter) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
