// Package cache provides the memoization layer between the sync engine
// and the catalog API: identifier-set keyed caches with wholesale
// eviction under memory pressure. Entries never expire individually;
// the only ways out are an explicit Clear or the memory guard clearing
// every registered cache at once.
package cache

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/cartsync/pkg/metrics"
	stringpool "github.com/ajitpratap0/cartsync/pkg/strings"
)

// Cache memoizes values derived from identifier sets. Values must stay
// purely derivable from a fresh remote query for the same set; the
// cache is an optimization, never the source of truth.
type Cache[V any] struct {
	name    string
	metrics *metrics.SyncMetrics
	logger  *zap.Logger

	mu      sync.RWMutex
	entries map[string]V
}

// New creates a named cache. The name labels the hit/miss counters.
func New[V any](name string, m *metrics.SyncMetrics, logger *zap.Logger) *Cache[V] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache[V]{
		name:    name,
		metrics: m,
		logger:  logger.With(zap.String("cache", name)),
		entries: make(map[string]V),
	}
}

// CanonicalKey builds the cache key for an identifier set: sorted,
// deduplicated, comma-joined. Lookups for the same set in any order and
// with any duplication share one entry.
func CanonicalKey(ids []string) string {
	if len(ids) == 0 {
		return ""
	}

	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)

	deduped := sorted[:1]
	for _, id := range sorted[1:] {
		if id != deduped[len(deduped)-1] {
			deduped = append(deduped, id)
		}
	}
	return stringpool.JoinPooled(deduped, ",")
}

// GetOrCompute returns the memoized value for the identifier set, or
// runs compute, stores the result, and returns it. compute runs outside
// the lock, so concurrent misses for the same key may compute twice;
// both arrive at the same value and the last store wins.
func (c *Cache[V]) GetOrCompute(ctx context.Context, ids []string, compute func(context.Context) (V, error)) (V, error) {
	key := CanonicalKey(ids)

	c.mu.RLock()
	value, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		if c.metrics != nil {
			c.metrics.IncCacheHit(c.name)
		}
		return value, nil
	}

	if c.metrics != nil {
		c.metrics.IncCacheMiss(c.name)
	}

	value, err := compute(ctx)
	if err != nil {
		var zero V
		return zero, err
	}

	c.mu.Lock()
	c.entries[key] = value
	c.mu.Unlock()
	return value, nil
}

// Name returns the cache's counter label.
func (c *Cache[V]) Name() string {
	return c.name
}

// Len returns the number of memoized entries.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear drops every entry. There is no partial eviction.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	dropped := len(c.entries)
	c.entries = make(map[string]V)
	c.mu.Unlock()

	if dropped > 0 {
		metrics.CacheEventsTotal.WithLabelValues(c.name, "eviction").Inc()
		c.logger.Debug("cache cleared", zap.Int("dropped", dropped))
	}
}

// Evictable is the registry's view of a cache: name it, size it, clear
// it wholesale.
type Evictable interface {
	Name() string
	Len() int
	Clear()
}

// Registry tracks every cache the memory guard may need to evict.
type Registry struct {
	mu     sync.Mutex
	caches []Evictable
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a cache to the eviction set.
func (r *Registry) Register(c Evictable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.caches = append(r.caches, c)
}

// EvictAll clears every registered cache and returns the total number
// of entries dropped.
func (r *Registry) EvictAll() int {
	r.mu.Lock()
	caches := make([]Evictable, len(r.caches))
	copy(caches, r.caches)
	r.mu.Unlock()

	dropped := 0
	for _, c := range caches {
		dropped += c.Len()
		c.Clear()
	}
	return dropped
}

// Sizes reports the entry count of each registered cache by name.
func (r *Registry) Sizes() map[string]int {
	r.mu.Lock()
	caches := make([]Evictable, len(r.caches))
	copy(caches, r.caches)
	r.mu.Unlock()

	sizes := make(map[string]int, len(caches))
	for _, c := range caches {
		sizes[c.Name()] = c.Len()
	}
	return sizes
}
