package clients

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/cartsync/pkg/errors"
)

// Default breaker tuning. The executor installs the breaker only when
// the reliability config asks for it, so these are not user-facing knobs.
const (
	breakerFailureThreshold = 5
	breakerSuccessThreshold = 2
	breakerCooldown         = 30 * time.Second
	breakerHalfOpenLimit    = 5
	breakerWindowBucket     = 10 * time.Second
	breakerWindowSpan       = 60 * time.Second
)

// BreakerConfig tunes the breaker state machine.
type BreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that opens the
	// circuit from closed.
	FailureThreshold int32
	// SuccessThreshold is the consecutive-success count that closes the
	// circuit from half-open.
	SuccessThreshold int32
	// Cooldown is how long an open circuit rejects before probing.
	Cooldown time.Duration
	// HalfOpenLimit caps the probe requests admitted while half-open.
	HalfOpenLimit int32
}

func defaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: breakerFailureThreshold,
		SuccessThreshold: breakerSuccessThreshold,
		Cooldown:         breakerCooldown,
		HalfOpenLimit:    breakerHalfOpenLimit,
	}
}

// CircuitState is the state of a circuit breaker.
type CircuitState int32

const (
	// StateClosed allows all requests through
	StateClosed CircuitState = iota
	// StateOpen rejects requests until the cooldown elapses
	StateOpen
	// StateHalfOpen admits a limited number of probe requests
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreaker protects the catalog API from request storms during
// outages. It opens after a run of consecutive failures or when the
// windowed failure rate passes one half, rejects requests for a
// cooldown, then admits a few probes before closing again.
type CircuitBreaker struct {
	cfg    BreakerConfig
	logger *zap.Logger

	state           int32
	lastStateChange time.Time
	nextRetryTime   time.Time

	consecutiveFailures  int32
	consecutiveSuccesses int32

	window          *failureWindow
	halfOpenCounter int32

	mu sync.RWMutex
}

// NewCircuitBreaker creates a breaker in the closed state with default
// tuning.
func NewCircuitBreaker(logger *zap.Logger) *CircuitBreaker {
	return NewCircuitBreakerWithConfig(defaultBreakerConfig(), logger)
}

// NewCircuitBreakerWithConfig creates a breaker in the closed state.
func NewCircuitBreakerWithConfig(cfg BreakerConfig, logger *zap.Logger) *CircuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CircuitBreaker{
		cfg:             cfg,
		logger:          logger.With(zap.String("component", "circuit_breaker")),
		state:           int32(StateClosed),
		lastStateChange: time.Now(),
		window:          newFailureWindow(breakerWindowBucket, breakerWindowSpan),
	}
}

// Execute runs fn under breaker protection. When the circuit is open it
// returns a throttled error without invoking fn.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.Allow() {
		return errors.New(errors.ErrorTypeThrottled, "circuit breaker is open").
			WithDetail("retry_at", cb.retryTime().Format(time.RFC3339))
	}

	err := fn()
	if err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

// Allow reports whether a request may proceed right now.
func (cb *CircuitBreaker) Allow() bool {
	switch CircuitState(atomic.LoadInt32(&cb.state)) {
	case StateClosed:
		return true
	case StateOpen:
		if time.Now().After(cb.retryTime()) {
			cb.transitionToHalfOpen()
			return cb.allowHalfOpen()
		}
		return false
	case StateHalfOpen:
		return cb.allowHalfOpen()
	default:
		return false
	}
}

// RecordSuccess feeds a successful request into the state machine. In
// half-open, enough consecutive successes close the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.window.record(true)

	switch CircuitState(atomic.LoadInt32(&cb.state)) {
	case StateClosed:
		atomic.StoreInt32(&cb.consecutiveFailures, 0)
	case StateHalfOpen:
		if atomic.AddInt32(&cb.consecutiveSuccesses, 1) >= cb.cfg.SuccessThreshold {
			cb.transitionToClosed()
		}
	}
}

// RecordFailure feeds a failed request into the state machine. In
// half-open, a single failure reopens the circuit.
func (cb *CircuitBreaker) RecordFailure() {
	cb.window.record(false)

	switch CircuitState(atomic.LoadInt32(&cb.state)) {
	case StateClosed:
		failures := atomic.AddInt32(&cb.consecutiveFailures, 1)
		if failures >= cb.cfg.FailureThreshold || cb.window.failureRate() > 0.5 {
			cb.transitionToOpen()
		}
	case StateHalfOpen:
		cb.transitionToOpen()
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	return CircuitState(atomic.LoadInt32(&cb.state))
}

func (cb *CircuitBreaker) retryTime() time.Time {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.nextRetryTime
}

func (cb *CircuitBreaker) allowHalfOpen() bool {
	if atomic.LoadInt32(&cb.halfOpenCounter) >= cb.cfg.HalfOpenLimit {
		return false
	}
	atomic.AddInt32(&cb.halfOpenCounter, 1)
	return true
}

func (cb *CircuitBreaker) transitionToOpen() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !atomic.CompareAndSwapInt32(&cb.state, int32(StateHalfOpen), int32(StateOpen)) {
		atomic.CompareAndSwapInt32(&cb.state, int32(StateClosed), int32(StateOpen))
	}
	cb.lastStateChange = time.Now()
	cb.nextRetryTime = time.Now().Add(cb.cfg.Cooldown)
	atomic.StoreInt32(&cb.consecutiveSuccesses, 0)
	atomic.StoreInt32(&cb.halfOpenCounter, 0)

	cb.logger.Warn("circuit breaker opened",
		zap.Time("retry_at", cb.nextRetryTime),
		zap.Int32("consecutive_failures", atomic.LoadInt32(&cb.consecutiveFailures)))
}

func (cb *CircuitBreaker) transitionToHalfOpen() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if atomic.CompareAndSwapInt32(&cb.state, int32(StateOpen), int32(StateHalfOpen)) {
		cb.lastStateChange = time.Now()
		atomic.StoreInt32(&cb.consecutiveFailures, 0)
		atomic.StoreInt32(&cb.consecutiveSuccesses, 0)
		atomic.StoreInt32(&cb.halfOpenCounter, 0)
		cb.logger.Info("circuit breaker half-open")
	}
}

func (cb *CircuitBreaker) transitionToClosed() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if atomic.CompareAndSwapInt32(&cb.state, int32(StateHalfOpen), int32(StateClosed)) {
		cb.lastStateChange = time.Now()
		atomic.StoreInt32(&cb.consecutiveFailures, 0)
		atomic.StoreInt32(&cb.halfOpenCounter, 0)
		cb.logger.Info("circuit breaker closed")
	}
}

// failureWindow tracks request outcomes over a sliding time window so
// the breaker can react to failure rate, not just failure runs.
type failureWindow struct {
	requests      []int64
	failures      []int64
	bucketSize    time.Duration
	currentBucket int
	lastUpdate    time.Time
	mu            sync.Mutex
}

func newFailureWindow(bucketSize, span time.Duration) *failureWindow {
	n := int(span / bucketSize)
	return &failureWindow{
		requests:   make([]int64, n),
		failures:   make([]int64, n),
		bucketSize: bucketSize,
		lastUpdate: time.Now(),
	}
}

func (fw *failureWindow) record(success bool) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	fw.advance()
	fw.requests[fw.currentBucket]++
	if !success {
		fw.failures[fw.currentBucket]++
	}
}

// advance rotates expired buckets forward. Caller holds the lock.
func (fw *failureWindow) advance() {
	elapsed := time.Since(fw.lastUpdate)
	if elapsed < fw.bucketSize {
		return
	}
	steps := int(elapsed / fw.bucketSize)
	if steps > len(fw.requests) {
		steps = len(fw.requests)
	}
	for i := 0; i < steps; i++ {
		fw.currentBucket = (fw.currentBucket + 1) % len(fw.requests)
		fw.requests[fw.currentBucket] = 0
		fw.failures[fw.currentBucket] = 0
	}
	fw.lastUpdate = time.Now()
}

func (fw *failureWindow) failureRate() float64 {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	var total, failed int64
	for i := range fw.requests {
		total += fw.requests[i]
		failed += fw.failures[i]
	}
	if total == 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
