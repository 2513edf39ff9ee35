package clients

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/cartsync/pkg/config"
	"github.com/ajitpratap0/cartsync/pkg/errors"
	"github.com/ajitpratap0/cartsync/pkg/metrics"
)

// scriptedTransport plays back a fixed sequence of results, repeating
// the last one once the script runs out.
type scriptedTransport struct {
	mu      sync.Mutex
	calls   int
	results []scriptedResult
}

type scriptedResult struct {
	resp *Response
	err  error
}

func (s *scriptedTransport) Execute(_ context.Context, _ string, _ map[string]interface{}) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.calls
	s.calls++
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	r := s.results[i]
	return r.resp, r.err
}

func (s *scriptedTransport) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func fastReliability(maxRetries int) *config.ReliabilityConfig {
	return &config.ReliabilityConfig{
		MaxRetries:  maxRetries,
		BaseDelayMs: 1,
		MaxDelayMs:  5,
	}
}

func TestBackoff(t *testing.T) {
	base := time.Second
	max := 30 * time.Second

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{10, 30 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Backoff(base, max, tt.attempt), "attempt %d", tt.attempt)
	}

	// Delays never shrink as attempts accumulate.
	prev := time.Duration(0)
	for attempt := 1; attempt <= 12; attempt++ {
		delay := Backoff(base, max, attempt)
		assert.GreaterOrEqual(t, delay, prev)
		assert.LessOrEqual(t, delay, max)
		prev = delay
	}
}

func TestExecutorDo(t *testing.T) {
	t.Run("succeeds on first attempt", func(t *testing.T) {
		transport := &scriptedTransport{results: []scriptedResult{
			{resp: &Response{}},
		}}
		m := metrics.NewSyncMetrics()
		e := NewExecutor(transport, NewCapacityLimiter(false, nil), m, fastReliability(3), nil)

		resp, err := e.Do(context.Background(), "query {}", nil)
		require.NoError(t, err)
		require.NotNil(t, resp)

		snap := m.Snapshot()
		assert.EqualValues(t, 1, snap.APICalls)
		assert.EqualValues(t, 0, snap.Errors)
		assert.Equal(t, 1, transport.callCount())
	})

	t.Run("fails twice then succeeds", func(t *testing.T) {
		transport := &scriptedTransport{results: []scriptedResult{
			{err: errors.New(errors.ErrorTypeTransient, "boom")},
			{err: errors.New(errors.ErrorTypeTransient, "boom again")},
			{resp: &Response{}},
		}}
		m := metrics.NewSyncMetrics()
		e := NewExecutor(transport, NewCapacityLimiter(false, nil), m, fastReliability(3), nil)

		resp, err := e.Do(context.Background(), "query {}", nil)
		require.NoError(t, err)
		require.NotNil(t, resp)

		snap := m.Snapshot()
		assert.EqualValues(t, 3, snap.APICalls)
		assert.EqualValues(t, 2, snap.Errors)
		assert.Equal(t, 3, transport.callCount())
	})

	t.Run("exhausts the attempt budget", func(t *testing.T) {
		transport := &scriptedTransport{results: []scriptedResult{
			{err: errors.New(errors.ErrorTypeTransient, "down")},
		}}
		m := metrics.NewSyncMetrics()
		e := NewExecutor(transport, NewCapacityLimiter(false, nil), m, fastReliability(3), nil)

		resp, err := e.Do(context.Background(), "query {}", nil)
		require.Error(t, err)
		assert.Nil(t, resp)
		assert.True(t, errors.IsType(err, errors.ErrorTypeExhaustedRetries))

		snap := m.Snapshot()
		assert.EqualValues(t, 3, snap.APICalls)
		assert.EqualValues(t, 3, snap.Errors)
	})

	t.Run("application error list counts as a failed attempt", func(t *testing.T) {
		failed := &Response{Errors: []QueryError{{Message: "field does not exist"}}}
		transport := &scriptedTransport{results: []scriptedResult{
			{resp: failed},
		}}
		m := metrics.NewSyncMetrics()
		e := NewExecutor(transport, NewCapacityLimiter(false, nil), m, fastReliability(2), nil)

		_, err := e.Do(context.Background(), "query {}", nil)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeExhaustedRetries))

		snap := m.Snapshot()
		assert.EqualValues(t, 2, snap.APICalls)
		assert.EqualValues(t, 2, snap.Errors)
	})

	t.Run("response metadata feeds the limiter", func(t *testing.T) {
		transport := &scriptedTransport{results: []scriptedResult{
			{resp: &Response{RateLimit: &RateLimitInfo{Used: 35, Limit: 40}}},
		}}
		limiter := NewCapacityLimiter(false, nil)
		e := NewExecutor(transport, limiter, metrics.NewSyncMetrics(), fastReliability(3), nil)

		_, err := e.Do(context.Background(), "query {}", nil)
		require.NoError(t, err)

		state := limiter.State()
		assert.Equal(t, 5, state.Remaining)
		assert.Equal(t, 40, state.BucketSize)
	})

	t.Run("throttled response paces the retry", func(t *testing.T) {
		throttled := &Response{RateLimit: &RateLimitInfo{Used: 40, Limit: 40, RetryAfter: 40 * time.Millisecond}}
		transport := &scriptedTransport{results: []scriptedResult{
			{resp: throttled, err: errors.New(errors.ErrorTypeThrottled, "throttled")},
			{resp: &Response{RateLimit: &RateLimitInfo{Used: 1, Limit: 40}}},
		}}
		limiter := NewCapacityLimiter(false, nil)
		e := NewExecutor(transport, limiter, metrics.NewSyncMetrics(), fastReliability(3), nil)

		start := time.Now()
		_, err := e.Do(context.Background(), "query {}", nil)
		require.NoError(t, err)

		assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
		assert.EqualValues(t, 1, limiter.State().Waits)
	})

	t.Run("context cancellation stops retrying", func(t *testing.T) {
		transport := &scriptedTransport{results: []scriptedResult{
			{err: errors.New(errors.ErrorTypeTransient, "down")},
		}}
		cfg := &config.ReliabilityConfig{MaxRetries: 5, BaseDelayMs: 10000, MaxDelayMs: 10000}
		e := NewExecutor(transport, NewCapacityLimiter(false, nil), metrics.NewSyncMetrics(), cfg, nil)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		_, err := e.Do(ctx, "query {}", nil)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 1, transport.callCount())
	})
}

func TestExecutorWithBreaker(t *testing.T) {
	transport := &scriptedTransport{results: []scriptedResult{
		{resp: &Response{}},
	}}
	cfg := fastReliability(3)
	cfg.CircuitBreaker = true
	e := NewExecutor(transport, NewCapacityLimiter(false, nil), metrics.NewSyncMetrics(), cfg, nil)
	require.NotNil(t, e.breaker)

	_, err := e.Do(context.Background(), "query {}", nil)
	require.NoError(t, err)
	assert.Equal(t, StateClosed, e.breaker.State())
}
