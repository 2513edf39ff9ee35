package clients

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ajitpratap0/cartsync/pkg/errors"
)

func testBreaker(cfg BreakerConfig) *CircuitBreaker {
	return NewCircuitBreakerWithConfig(cfg, zap.NewNop())
}

var errDown = errors.New(errors.ErrorTypeTransient, "remote down")

func failing() error { return errDown }
func succeeding() error { return nil }

// primeWindow records successes so the windowed failure rate stays
// below one half while the consecutive-failure paths are exercised.
func primeWindow(cb *CircuitBreaker, n int) {
	for i := 0; i < n; i++ {
		cb.RecordSuccess()
	}
}

func TestCircuitStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half_open", StateHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(99).String())
}

func TestCircuitBreakerOpensOnColdFailure(t *testing.T) {
	// With an empty window a single failure is a 100% failure rate.
	cb := testBreaker(BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Cooldown:         time.Minute,
		HalfOpenLimit:    5,
	})

	require.Error(t, cb.Execute(failing))
	assert.Equal(t, StateOpen, cb.State())

	invoked := false
	err := cb.Execute(func() error {
		invoked = true
		return nil
	})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeThrottled))
	assert.False(t, invoked)
}

func TestCircuitBreakerConsecutiveThreshold(t *testing.T) {
	cb := testBreaker(BreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Cooldown:         time.Minute,
		HalfOpenLimit:    5,
	})
	primeWindow(cb, 10)

	require.Error(t, cb.Execute(failing))
	require.Error(t, cb.Execute(failing))
	assert.Equal(t, StateClosed, cb.State(), "below the threshold the circuit stays closed")

	require.Error(t, cb.Execute(failing))
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreakerSuccessResetsFailureRun(t *testing.T) {
	cb := testBreaker(BreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Cooldown:         time.Minute,
		HalfOpenLimit:    5,
	})
	primeWindow(cb, 10)

	require.Error(t, cb.Execute(failing))
	require.Error(t, cb.Execute(failing))
	require.NoError(t, cb.Execute(succeeding))
	require.Error(t, cb.Execute(failing))
	require.Error(t, cb.Execute(failing))

	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerRecovery(t *testing.T) {
	cb := testBreaker(BreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Cooldown:         20 * time.Millisecond,
		HalfOpenLimit:    5,
	})

	require.Error(t, cb.Execute(failing))
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(40 * time.Millisecond)

	// First probe transitions open -> half-open; the second success
	// closes the circuit.
	require.NoError(t, cb.Execute(succeeding))
	assert.Equal(t, StateHalfOpen, cb.State())
	require.NoError(t, cb.Execute(succeeding))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := testBreaker(BreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Cooldown:         20 * time.Millisecond,
		HalfOpenLimit:    5,
	})

	require.Error(t, cb.Execute(failing))
	time.Sleep(40 * time.Millisecond)

	require.Error(t, cb.Execute(failing))
	assert.Equal(t, StateOpen, cb.State())

	err := cb.Execute(succeeding)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeThrottled))
}

func TestCircuitBreakerHalfOpenProbeLimit(t *testing.T) {
	cb := testBreaker(BreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 100,
		Cooldown:         20 * time.Millisecond,
		HalfOpenLimit:    2,
	})

	require.Error(t, cb.Execute(failing))
	time.Sleep(40 * time.Millisecond)

	assert.True(t, cb.Allow())
	assert.True(t, cb.Allow())
	assert.False(t, cb.Allow(), "probe limit reached")
}
