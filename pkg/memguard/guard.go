// Package memguard applies best-effort memory backpressure to the sync
// engine. Check points placed after each page and chunk read current
// usage; past the configured threshold every registered cache is
// cleared wholesale and the collector is hinted. A single oversized
// page or chunk can still overshoot between check points.
package memguard

import (
	"os"
	"runtime"
	"runtime/debug"
	"sync/atomic"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/ajitpratap0/cartsync/pkg/cache"
	"github.com/ajitpratap0/cartsync/pkg/metrics"
)

// Guard watches memory usage at explicit check points. It never blocks
// the pipeline and never fails a sync.
type Guard struct {
	threshold uint64
	registry  *cache.Registry
	logger    *zap.Logger
	proc      *process.Process

	evictions int64
	lastUsage uint64
}

// New creates a guard that evicts the registry's caches once usage
// passes thresholdBytes. A zero threshold disables eviction.
func New(thresholdBytes uint64, registry *cache.Registry, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Guard{
		threshold: thresholdBytes,
		registry:  registry,
		logger:    logger.With(zap.String("component", "memguard")),
	}

	// RSS via the OS is the honest number; fall back to runtime heap
	// stats when the process cannot be inspected.
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		g.logger.Debug("process inspection unavailable, using runtime heap stats", zap.Error(err))
	} else {
		g.proc = proc
	}
	return g
}

// Usage returns current memory usage in bytes: process RSS when
// available, otherwise the runtime's allocated heap.
func (g *Guard) Usage() uint64 {
	if g.proc != nil {
		if info, err := g.proc.MemoryInfo(); err == nil && info != nil {
			return info.RSS
		}
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc
}

// Check reads usage and, past the threshold, clears every registered
// cache and hints the collector. Side effect only; it never raises.
func (g *Guard) Check() {
	usage := g.Usage()
	atomic.StoreUint64(&g.lastUsage, usage)
	metrics.HeapUsageBytes.Set(float64(usage))

	if g.threshold == 0 || usage <= g.threshold {
		return
	}

	dropped := 0
	if g.registry != nil {
		dropped = g.registry.EvictAll()
	}
	atomic.AddInt64(&g.evictions, 1)
	metrics.MemoryEvictionsTotal.Inc()

	runtime.GC()
	debug.FreeOSMemory()

	g.logger.Warn("memory threshold exceeded, caches evicted",
		zap.Uint64("usage_bytes", usage),
		zap.Uint64("threshold_bytes", g.threshold),
		zap.Int("entries_dropped", dropped))
}

// Evictions returns how many check points have triggered an eviction.
func (g *Guard) Evictions() int64 {
	return atomic.LoadInt64(&g.evictions)
}

// Snapshot captures the guard's view for sync reports.
type Snapshot struct {
	UsageBytes     uint64 `json:"usage_bytes"`
	ThresholdBytes uint64 `json:"threshold_bytes"`
	Evictions      int64  `json:"evictions"`
}

// Snapshot returns the last observed usage, the threshold, and the
// eviction count.
func (g *Guard) Snapshot() Snapshot {
	return Snapshot{
		UsageBytes:     atomic.LoadUint64(&g.lastUsage),
		ThresholdBytes: g.threshold,
		Evictions:      atomic.LoadInt64(&g.evictions),
	}
}
