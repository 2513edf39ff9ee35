// Package cartsync synchronizes a remote commerce catalog into a local
// SQL store. It fetches products, their variants, and per-variant unit
// costs over a cursor-paginated GraphQL API, flattens the nested
// responses into relational rows, and bulk-upserts them in chunks so a
// crashed or failed run can simply be re-run.
//
// # Architecture
//
// A sync is a staged pipeline driven by internal/engine:
//
// 1. Fetch: products are paged from the remote with an adaptive
// capacity limiter that reads throttle status from every response.
// Variants and unit costs are then fetched in batched identifier
// queries, deduplicated through per-group caches.
//
// 2. Transform: nodes are flattened into product and variant rows.
// Prices and costs are parsed into decimals; absent optional values
// stay NULL rather than zero. Products are classified into a coarse
// category from their title, type, and tags.
//
// 3. Persist: rows are written with multi-row upserts in fixed-size
// chunks, so one bad batch fails without discarding the whole run.
// Memory pressure is rechecked after every chunk.
//
// # Quick Start
//
// Run a full sync with the bundled CLI:
//
//	cartsync sync --config cartsync.yaml
//
// Partial syncs fetch only products updated since a watermark:
//
//	cartsync sync --config cartsync.yaml --mode partial --since 2026-08-01T00:00:00Z
//
// Single mode refreshes one product and its variants:
//
//	cartsync sync --config cartsync.yaml --mode single --product-id gid://catalog/Product/42
//
// # Key Packages
//
//	pkg/clients   - GraphQL transport, retry executor, rate limiter, circuit breaker
//	pkg/catalog   - Query builders, response decoding, row flattening
//	pkg/sink      - Bulk-upsert stores for PostgreSQL, MySQL, and memory
//	pkg/cache     - Generic keyed cache with hit/miss accounting
//	pkg/memguard  - Heap threshold guard with cache shedding
//	pkg/config    - Sectioned YAML configuration with env substitution
//	pkg/errors    - Structured error handling
//	pkg/logger    - High-performance structured logging
//	pkg/metrics   - Prometheus counters and sync report snapshots
//
// # Reliability
//
// Every remote call goes through a shared executor that:
//   - Waits for API capacity before sending, based on reported cost limits
//   - Retries transient, throttled, and timeout failures with exponential backoff and jitter
//   - Trips a circuit breaker after repeated failures to stop hammering a down remote
//
// Persistence failures abort the sync; completed chunks stay
// committed, and upserts make the retry idempotent.
//
// # Configuration
//
// Configuration is a single YAML document with one section per concern:
//
//	type Config struct {
//	    API           APIConfig           // Endpoint, credentials, timeout
//	    Sync          SyncConfig          // Page, batch, and chunk sizes
//	    Reliability   ReliabilityConfig   // Retries, backoff, circuit breaker
//	    Memory        MemoryConfig        // Heap threshold for the guard
//	    Storage       StorageConfig       // Driver and DSN
//	    Observability ObservabilityConfig // Logging and metrics exposure
//	}
//
// Environment variables are supported with ${VAR_NAME} syntax. See
// examples/cartsync.yaml for a complete annotated file.
package cartsync
