package clients

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/cartsync/pkg/config"
	"github.com/ajitpratap0/cartsync/pkg/errors"
	"github.com/ajitpratap0/cartsync/pkg/metrics"
	stringpool "github.com/ajitpratap0/cartsync/pkg/strings"
)

// Transport abstracts catalog query execution so the executor can be
// driven by the HTTP client in production and by fakes in tests.
type Transport interface {
	Execute(ctx context.Context, query string, variables map[string]interface{}) (*Response, error)
}

// Executor sends catalog queries with capacity pacing and bounded
// exponential backoff. Every attempt acquires the limiter first, and
// capacity metadata from each response, failed or not, feeds back into
// the limiter. A response carrying an application-level error list
// counts as a failed attempt even though the transport reported no
// error.
type Executor struct {
	transport Transport
	limiter   *CapacityLimiter
	breaker   *CircuitBreaker
	metrics   *metrics.SyncMetrics

	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration

	logger *zap.Logger
}

// NewExecutor wires a transport to the limiter and retry policy. The
// circuit breaker is only installed when the config enables it; with
// the breaker off, the attempt budget is exactly cfg.MaxRetries.
func NewExecutor(transport Transport, limiter *CapacityLimiter, m *metrics.SyncMetrics, cfg *config.ReliabilityConfig, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{
		transport:   transport,
		limiter:     limiter,
		metrics:     m,
		maxAttempts: cfg.MaxRetries,
		baseDelay:   cfg.BaseDelay(),
		maxDelay:    cfg.MaxDelay(),
		logger:      logger.With(zap.String("component", "executor")),
	}
	if e.maxAttempts < 1 {
		e.maxAttempts = 1
	}
	if cfg.CircuitBreaker {
		e.breaker = NewCircuitBreaker(e.logger)
	}
	return e
}

// Do runs one logical request through the attempt loop. It returns the
// first successful response, or an exhausted-retries error wrapping the
// final cause once the attempt budget is spent. Context cancellation
// aborts immediately without consuming the remaining budget.
func (e *Executor) Do(ctx context.Context, query string, variables map[string]interface{}) (*Response, error) {
	var lastErr error

	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		if err := e.limiter.Acquire(ctx); err != nil {
			return nil, err
		}

		e.metrics.IncAPICalls()

		resp, err := e.send(ctx, query, variables)
		if resp != nil && resp.RateLimit != nil {
			rl := resp.RateLimit
			e.limiter.Update(rl.Remaining(), rl.Limit, rl.RetryAfter)
		}
		if err == nil && resp.HasErrors() {
			err = errors.New(errors.ErrorTypeQuery, "catalog API returned errors").
				WithDetail("errors", resp.ErrorMessages())
		}
		if err == nil {
			return resp, nil
		}

		lastErr = err
		e.metrics.IncErrors()
		e.logger.Warn("catalog request failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", e.maxAttempts),
			zap.Error(err))

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == e.maxAttempts {
			break
		}

		delay := Backoff(e.baseDelay, e.maxDelay, attempt)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return nil, errors.Wrap(lastErr, errors.ErrorTypeExhaustedRetries,
		stringpool.Sprintf("request failed after %d attempts", e.maxAttempts)).
		WithDetail("attempts", e.maxAttempts)
}

// send routes the request through the breaker when one is installed.
func (e *Executor) send(ctx context.Context, query string, variables map[string]interface{}) (*Response, error) {
	if e.breaker == nil {
		return e.transport.Execute(ctx, query, variables)
	}
	var resp *Response
	err := e.breaker.Execute(func() error {
		var execErr error
		resp, execErr = e.transport.Execute(ctx, query, variables)
		return execErr
	})
	return resp, err
}

// Backoff returns the delay before the attempt following the given one:
// the base delay doubled per completed attempt, capped at max. Attempts
// below 1 are treated as the first attempt.
func Backoff(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(base) * math.Pow(2, float64(attempt-1))
	if delay > float64(max) {
		return max
	}
	return time.Duration(delay)
}
