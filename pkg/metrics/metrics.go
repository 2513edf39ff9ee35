// Package metrics provides performance tracking and observability for
// cartsync using Prometheus metrics alongside an in-process counter set
// that is snapshotted into every sync report.
//
// # Overview
//
// The metrics package provides:
//   - SyncMetrics: atomic per-engine counters surfaced in sync reports
//   - Prometheus-compatible collectors with automatic registration
//   - Timer utility for stage duration measurement
//   - Thread-safe metric recording
//
// # Basic Usage
//
//	m := metrics.NewSyncMetrics()
//	m.IncAPICalls()
//	m.IncDBQueries("products")
//
//	timer := metrics.NewTimer("fetch_products")
//	fetchProducts()
//	duration := timer.Stop()
//
//	snap := m.Snapshot()
//	fmt.Println(snap.APICalls, snap.DBQueries)
//
// # Metric Types
//
// Counter: Monotonically increasing values (e.g., total API calls)
// Gauge: Values that can go up or down (e.g., heap usage)
// Histogram: Distribution of values (e.g., sync durations)
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SyncMetrics holds the monotonic counters for one engine instance. Counters
// only reset via Reset, which the engine calls at the start of a run so each
// report reflects a single sync. All methods are safe for concurrent use.
type SyncMetrics struct {
	apiCalls      int64
	dbQueries     int64
	errors        int64
	cacheHits     int64
	cacheMisses   int64
	totalProducts int64
	totalVariants int64
}

// NewSyncMetrics creates a zeroed counter set
func NewSyncMetrics() *SyncMetrics {
	return &SyncMetrics{}
}

// IncAPICalls counts one request attempt against the remote catalog
func (m *SyncMetrics) IncAPICalls() {
	atomic.AddInt64(&m.apiCalls, 1)
	APICallsTotal.Inc()
}

// IncErrors counts one failed operation
func (m *SyncMetrics) IncErrors() {
	atomic.AddInt64(&m.errors, 1)
	ErrorsTotal.Inc()
}

// IncDBQueries counts one executed sink statement
func (m *SyncMetrics) IncDBQueries(table string) {
	atomic.AddInt64(&m.dbQueries, 1)
	DBQueriesTotal.WithLabelValues(table).Inc()
}

// IncCacheHit counts a cache hit for the named cache
func (m *SyncMetrics) IncCacheHit(cache string) {
	atomic.AddInt64(&m.cacheHits, 1)
	CacheEventsTotal.WithLabelValues(cache, "hit").Inc()
}

// IncCacheMiss counts a cache miss for the named cache
func (m *SyncMetrics) IncCacheMiss(cache string) {
	atomic.AddInt64(&m.cacheMisses, 1)
	CacheEventsTotal.WithLabelValues(cache, "miss").Inc()
}

// AddProducts counts processed products
func (m *SyncMetrics) AddProducts(n int64) {
	atomic.AddInt64(&m.totalProducts, n)
	RecordsSyncedTotal.WithLabelValues("product").Add(float64(n))
}

// AddVariants counts processed variants
func (m *SyncMetrics) AddVariants(n int64) {
	atomic.AddInt64(&m.totalVariants, n)
	RecordsSyncedTotal.WithLabelValues("variant").Add(float64(n))
}

// Snapshot captures the current counter values
type Snapshot struct {
	APICalls      int64 `json:"api_calls"`
	DBQueries     int64 `json:"db_queries"`
	Errors        int64 `json:"errors"`
	CacheHits     int64 `json:"cache_hits"`
	CacheMisses   int64 `json:"cache_misses"`
	TotalProducts int64 `json:"total_products"`
	TotalVariants int64 `json:"total_variants"`
}

// Snapshot returns a point-in-time copy of all counters
func (m *SyncMetrics) Snapshot() Snapshot {
	return Snapshot{
		APICalls:      atomic.LoadInt64(&m.apiCalls),
		DBQueries:     atomic.LoadInt64(&m.dbQueries),
		Errors:        atomic.LoadInt64(&m.errors),
		CacheHits:     atomic.LoadInt64(&m.cacheHits),
		CacheMisses:   atomic.LoadInt64(&m.cacheMisses),
		TotalProducts: atomic.LoadInt64(&m.totalProducts),
		TotalVariants: atomic.LoadInt64(&m.totalVariants),
	}
}

// Reset zeroes all counters. The engine resets at the start of each run;
// the Prometheus counters are cumulative and never reset.
func (m *SyncMetrics) Reset() {
	atomic.StoreInt64(&m.apiCalls, 0)
	atomic.StoreInt64(&m.dbQueries, 0)
	atomic.StoreInt64(&m.errors, 0)
	atomic.StoreInt64(&m.cacheHits, 0)
	atomic.StoreInt64(&m.cacheMisses, 0)
	atomic.StoreInt64(&m.totalProducts, 0)
	atomic.StoreInt64(&m.totalVariants, 0)
}

var (
	// APICallsTotal counts every request attempt against the catalog API,
	// including retried attempts.
	APICallsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cartsync_api_calls_total",
			Help: "Total number of catalog API request attempts",
		},
	)

	// ErrorsTotal counts failed operations across all pipeline stages.
	ErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cartsync_errors_total",
			Help: "Total number of failed operations",
		},
	)

	// DBQueriesTotal counts executed sink statements per table.
	DBQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cartsync_db_queries_total",
			Help: "Total number of executed sink statements",
		},
		[]string{"table"},
	)

	// CacheEventsTotal counts hits, misses, and evictions per cache.
	//
	// Example:
	//	metrics.CacheEventsTotal.WithLabelValues("unit_costs", "eviction").Inc()
	CacheEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cartsync_cache_events_total",
			Help: "Cache hit, miss, and eviction events",
		},
		[]string{"cache", "event"},
	)

	// RecordsSyncedTotal counts processed records by kind.
	RecordsSyncedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cartsync_records_synced_total",
			Help: "Total number of records processed",
		},
		[]string{"kind"},
	)

	// SyncDuration tracks end-to-end sync durations by mode and outcome.
	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "cartsync_sync_duration_seconds",
			Help: "End-to-end sync duration in seconds",
			Buckets: []float64{
				0.1, // trivial catalogs and single-product syncs
				0.5,
				1,
				5,
				15,
				60,
				300,
				1800, // full syncs of large catalogs
			},
		},
		[]string{"mode", "status"},
	)

	// RateLimitWaitSeconds tracks time spent blocked on capacity.
	RateLimitWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cartsync_rate_limit_wait_seconds",
			Help:    "Time spent waiting for rate limit capacity",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)

	// MemoryEvictionsTotal counts guard-triggered wholesale cache evictions.
	MemoryEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cartsync_memory_evictions_total",
			Help: "Guard-triggered cache eviction sweeps",
		},
	)

	// HeapUsageBytes reports the heap usage observed at the last guard check.
	HeapUsageBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cartsync_heap_usage_bytes",
			Help: "Heap usage observed by the memory guard",
		},
	)
)

// ObserveSyncDuration records a completed sync run
func ObserveSyncDuration(mode, status string, d time.Duration) {
	SyncDuration.WithLabelValues(mode, status).Observe(d.Seconds())
}

// Timer provides a simple timing mechanism for measuring operation durations.
// It captures the start time on creation and calculates elapsed time on stop.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately.
// The name parameter is for identification in logs or metrics.
//
// Example:
//
//	timer := metrics.NewTimer("persist_products")
//	persistProducts(rows)
//	duration := timer.Stop()
//	logger.Info("products persisted", zap.Duration("duration", duration))
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Name returns the timer's identifier
func (t *Timer) Name() string {
	return t.name
}

// Stop returns the elapsed duration since creation. The timer can be
// stopped multiple times, each returning the total elapsed time.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
