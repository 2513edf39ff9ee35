package clients

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/cartsync/pkg/metrics"
)

// CapacityLimiter paces requests using the capacity metadata the catalog
// API reports on every response. Unlike a local token bucket, it never
// refills on its own clock: Remaining and BucketSize mirror the latest
// observed values, and ResetAt is only known when the API sends a
// retry-after hint.
type CapacityLimiter struct {
	mu         sync.Mutex
	remaining  int
	bucketSize int
	resetAt    time.Time
	waits      int64

	// recheckAfterWait re-evaluates capacity after waking instead of
	// proceeding unconditionally. Off by default: the observed API
	// behavior is to trust the reset window and let the next Update
	// restore accurate state.
	recheckAfterWait bool

	logger *zap.Logger
}

// RateLimitState is a copy of the limiter's current state
type RateLimitState struct {
	Remaining  int       `json:"remaining"`
	BucketSize int       `json:"bucket_size"`
	ResetAt    time.Time `json:"reset_at,omitempty"`
	Waits      int64     `json:"waits"`
}

// NewCapacityLimiter creates a limiter with no observed state. The first
// Acquire always proceeds; capacity is only known after the first Update.
func NewCapacityLimiter(recheckAfterWait bool, logger *zap.Logger) *CapacityLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CapacityLimiter{
		recheckAfterWait: recheckAfterWait,
		logger:           logger.With(zap.String("component", "rate_limiter")),
	}
}

// Acquire blocks until Remaining > 1 or the reset instant has passed.
// When capacity is exhausted and the reset lies in the future, it sleeps
// exactly until ResetAt and then proceeds without re-checking; the next
// response's Update corrects any drift. Context cancellation aborts the
// wait with the context error.
func (cl *CapacityLimiter) Acquire(ctx context.Context) error {
	for {
		cl.mu.Lock()
		remaining := cl.remaining
		resetAt := cl.resetAt
		cl.mu.Unlock()

		now := time.Now()
		if remaining > 1 || !resetAt.After(now) {
			return nil
		}

		wait := resetAt.Sub(now)

		cl.mu.Lock()
		cl.waits++
		cl.mu.Unlock()

		cl.logger.Debug("capacity exhausted, waiting for reset",
			zap.Int("remaining", remaining),
			zap.Duration("wait", wait))

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}

		metrics.RateLimitWaitSeconds.Observe(wait.Seconds())

		if !cl.recheckAfterWait {
			return nil
		}
	}
}

// Update sets the observed capacity verbatim from the latest response.
// retryAfter, when positive, schedules the reset instant at now+retryAfter.
// Pure state mutation; never fails.
func (cl *CapacityLimiter) Update(remaining, bucketSize int, retryAfter time.Duration) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	cl.remaining = remaining
	cl.bucketSize = bucketSize
	if retryAfter > 0 {
		cl.resetAt = time.Now().Add(retryAfter)
	}
}

// State returns a copy of the current limiter state
func (cl *CapacityLimiter) State() RateLimitState {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	return RateLimitState{
		Remaining:  cl.remaining,
		BucketSize: cl.bucketSize,
		ResetAt:    cl.resetAt,
		Waits:      cl.waits,
	}
}
