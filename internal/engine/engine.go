// Package engine orchestrates catalog synchronization: paginated
// fetches through the rate-limited executor, chunked transformation
// under memory pressure control, and bulk persistence through a sink.
package engine

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ajitpratap0/cartsync/pkg/cache"
	"github.com/ajitpratap0/cartsync/pkg/catalog"
	"github.com/ajitpratap0/cartsync/pkg/clients"
	"github.com/ajitpratap0/cartsync/pkg/config"
	"github.com/ajitpratap0/cartsync/pkg/errors"
	"github.com/ajitpratap0/cartsync/pkg/logger"
	"github.com/ajitpratap0/cartsync/pkg/memguard"
	"github.com/ajitpratap0/cartsync/pkg/metrics"
	"github.com/ajitpratap0/cartsync/pkg/sink"
	stringpool "github.com/ajitpratap0/cartsync/pkg/strings"
)

// Sync modes accepted by Request.Mode.
const (
	ModeFull    = "full"
	ModePartial = "partial"
	ModeSingle  = "single"
)

// State tracks where the engine is in its lifecycle.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Request describes one sync invocation. Since and Limit apply to
// partial mode; ProductID applies to single mode.
type Request struct {
	Mode      string
	Since     time.Time
	Limit     int
	ProductID string
}

func (r *Request) validate() error {
	switch r.Mode {
	case ModeFull:
	case ModePartial:
		if r.Since.IsZero() {
			return errors.New(errors.ErrorTypeValidation, "partial sync requires a watermark")
		}
	case ModeSingle:
		if r.ProductID == "" {
			return errors.New(errors.ErrorTypeValidation, "single sync requires a product id")
		}
	default:
		return errors.New(errors.ErrorTypeInvalidMode,
			stringpool.Sprintf("unrecognized sync mode %q", r.Mode)).
			WithDetail("mode", r.Mode)
	}
	return nil
}

// Engine runs catalog syncs. Limiter, caches, and metrics belong to the
// instance; two engines never share state. A single in-flight guard
// serializes invocations, so a second Sync while one runs fails fast
// with a conflict error.
type Engine struct {
	cfg      *config.Config
	executor *clients.Executor
	limiter  *clients.CapacityLimiter
	sink     sink.Sink
	metrics  *metrics.SyncMetrics
	guard    *memguard.Guard
	variants *cache.Cache[[]catalog.VariantNode]
	costs    *cache.Cache[map[string]decimal.NullDecimal]
	logger   *zap.Logger

	inFlight atomic.Bool
	state    atomic.Int32
}

// New wires an engine from its collaborators. The transport and sink
// are boundaries; tests substitute fakes for both.
func New(cfg *config.Config, transport clients.Transport, store sink.Sink, log *zap.Logger) *Engine {
	if log == nil {
		log = logger.Get()
	}
	log = log.With(zap.String("component", "engine"))

	m := metrics.NewSyncMetrics()
	limiter := clients.NewCapacityLimiter(cfg.Reliability.RecheckAfterWait, log)

	registry := cache.NewRegistry()
	variants := cache.New[[]catalog.VariantNode]("variants", m, log)
	costs := cache.New[map[string]decimal.NullDecimal]("unit_costs", m, log)
	registry.Register(variants)
	registry.Register(costs)

	return &Engine{
		cfg:      cfg,
		executor: clients.NewExecutor(transport, limiter, m, &cfg.Reliability, log),
		limiter:  limiter,
		sink:     store,
		metrics:  m,
		guard:    memguard.New(cfg.Memory.ThresholdBytes, registry, log),
		variants: variants,
		costs:    costs,
		logger:   log,
	}
}

// State reports the engine's current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Sync runs one synchronization and returns its report. The request is
// validated before any API or persistence call happens. Stages run
// strictly in sequence; on a stage failure the error is annotated with
// mode and stage, already-flushed batches stay committed, and the
// engine transitions to Failed.
func (e *Engine) Sync(ctx context.Context, req Request) (*Report, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if !e.inFlight.CompareAndSwap(false, true) {
		return nil, errors.New(errors.ErrorTypeConflict, "a sync is already in flight")
	}
	defer e.inFlight.Store(false)

	e.state.Store(int32(StateRunning))
	e.metrics.Reset()
	start := time.Now()
	log := e.logger.With(zap.String("mode", req.Mode))
	log.Info("sync started")

	products, err := e.fetchProducts(ctx, req)
	if err != nil {
		return nil, e.fail(log, req.Mode, "fetch_products", start, err)
	}

	variants, err := e.fetchVariants(ctx, products)
	if err != nil {
		return nil, e.fail(log, req.Mode, "fetch_variants", start, err)
	}

	costs, err := e.fetchUnitCosts(ctx, variants)
	if err != nil {
		return nil, e.fail(log, req.Mode, "fetch_unit_costs", start, err)
	}

	if err := e.persistProducts(ctx, products); err != nil {
		return nil, e.fail(log, req.Mode, "persist_products", start, err)
	}
	if err := e.persistVariants(ctx, variants, costs); err != nil {
		return nil, e.fail(log, req.Mode, "persist_variants", start, err)
	}

	e.state.Store(int32(StateCompleted))
	duration := time.Since(start)
	snap := e.metrics.Snapshot()
	metrics.ObserveSyncDuration(req.Mode, "completed", duration)

	log.Info("sync completed",
		zap.Int64("products", snap.TotalProducts),
		zap.Int64("variants", snap.TotalVariants),
		zap.Int64("api_calls", snap.APICalls),
		zap.Duration("duration", duration))

	return &Report{
		Mode:              req.Mode,
		ProductsProcessed: snap.TotalProducts,
		VariantsProcessed: snap.TotalVariants,
		Duration:          duration,
		DurationMs:        duration.Milliseconds(),
		Metrics:           snap,
		RateLimit:         e.limiter.State(),
		Memory:            e.guard.Snapshot(),
	}, nil
}

// fetchProducts materializes the product set for the request: the whole
// listing for full mode, the watermark-bounded listing for partial
// mode, or exactly one product for single mode.
func (e *Engine) fetchProducts(ctx context.Context, req Request) ([]catalog.ProductNode, error) {
	if req.Mode == ModeSingle {
		query, vars := catalog.ProductByID(req.ProductID)
		resp, err := e.executor.Do(ctx, query, vars)
		if err != nil {
			return nil, err
		}
		node, err := catalog.DecodeProduct(resp.Data)
		if err != nil {
			return nil, err
		}
		return []catalog.ProductNode{*node}, nil
	}

	pageSize := e.cfg.Sync.BatchSize
	if req.Limit > 0 && req.Limit < pageSize {
		pageSize = req.Limit
	}
	fetch := func(ctx context.Context, cursor string) ([]catalog.ProductNode, clients.PageInfo, error) {
		query, vars := catalog.ProductsPage(pageSize, cursor, req.Since)
		resp, err := e.executor.Do(ctx, query, vars)
		if err != nil {
			return nil, clients.PageInfo{}, err
		}
		return catalog.DecodeProductsPage(resp.Data)
	}
	return clients.FetchAll(ctx, fetch, e.guard.Check, req.Limit)
}

// fetchVariants resolves full variant nodes for every variant id the
// products reference, in batched lookups through the variant cache.
func (e *Engine) fetchVariants(ctx context.Context, products []catalog.ProductNode) ([]catalog.VariantNode, error) {
	var ids []string
	for i := range products {
		ids = append(ids, products[i].VariantIDs()...)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	fetch := func(ctx context.Context, group []string) ([]catalog.VariantNode, error) {
		return e.variants.GetOrCompute(ctx, group, func(ctx context.Context) ([]catalog.VariantNode, error) {
			query, vars := catalog.VariantsByID(group)
			resp, err := e.executor.Do(ctx, query, vars)
			if err != nil {
				return nil, err
			}
			return catalog.DecodeVariants(resp.Data)
		})
	}
	return clients.FetchBatched(ctx, ids, e.cfg.Sync.BatchSize, fetch)
}

// fetchUnitCosts resolves unit costs for the fetched variants in
// batched lookups through the cost cache, merged into one map keyed by
// variant id. Variants without a recorded cost keep the absent marker.
func (e *Engine) fetchUnitCosts(ctx context.Context, variants []catalog.VariantNode) (map[string]decimal.NullDecimal, error) {
	if len(variants) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(variants))
	for i := range variants {
		ids = append(ids, variants[i].ID)
	}

	costs := make(map[string]decimal.NullDecimal, len(ids))
	for _, group := range clients.Partition(ids, e.cfg.Sync.BatchSize) {
		groupCosts, err := e.costs.GetOrCompute(ctx, group, func(ctx context.Context) (map[string]decimal.NullDecimal, error) {
			query, vars := catalog.UnitCosts(group)
			resp, err := e.executor.Do(ctx, query, vars)
			if err != nil {
				return nil, err
			}
			return catalog.DecodeUnitCosts(resp.Data)
		})
		if err != nil {
			return nil, err
		}
		for id, cost := range groupCosts {
			costs[id] = cost
		}
	}
	return costs, nil
}

func (e *Engine) persistProducts(ctx context.Context, products []catalog.ProductNode) error {
	if len(products) == 0 {
		return nil
	}
	syncedAt := time.Now().UTC()

	rows, err := ProcessInChunks(ctx, products, e.cfg.Sync.ChunkSize,
		func(node catalog.ProductNode) (map[string]interface{}, error) {
			row, err := catalog.FlattenProduct(node, syncedAt)
			if err != nil {
				return nil, err
			}
			return row.Map(), nil
		}, e.guard.Check)
	if err != nil {
		return err
	}
	return e.flush(ctx, e.cfg.Sync.ProductsTable, rows, catalog.ProductConflictColumns, e.metrics.AddProducts)
}

func (e *Engine) persistVariants(ctx context.Context, variants []catalog.VariantNode, costs map[string]decimal.NullDecimal) error {
	if len(variants) == 0 {
		return nil
	}
	syncedAt := time.Now().UTC()

	rows, err := ProcessInChunks(ctx, variants, e.cfg.Sync.ChunkSize,
		func(node catalog.VariantNode) (map[string]interface{}, error) {
			row, err := catalog.FlattenVariant(node, costs[node.ID], syncedAt)
			if err != nil {
				return nil, err
			}
			return row.Map(), nil
		}, e.guard.Check)
	if err != nil {
		return err
	}
	return e.flush(ctx, e.cfg.Sync.VariantsTable, rows, catalog.VariantConflictColumns, e.metrics.AddVariants)
}

// flush upserts rows chunk by chunk. Each successful batch counts one
// database query and adds its rows to the processed total; a failing
// batch aborts with earlier batches already committed.
func (e *Engine) flush(ctx context.Context, table string, rows []map[string]interface{}, conflictColumns []string, count func(int64)) error {
	for _, batch := range ChunkSlice(rows, e.cfg.Sync.ChunkSize) {
		if err := e.sink.BulkUpsert(ctx, table, batch, conflictColumns); err != nil {
			return err
		}
		e.metrics.IncDBQueries(table)
		count(int64(len(batch)))
	}
	return nil
}

// fail records a stage failure: state transition, error count, failure
// duration observation, and mode/stage annotation on the propagated
// error. The original error type stays intact so callers can match it.
func (e *Engine) fail(log *zap.Logger, mode, stage string, start time.Time, err error) error {
	e.state.Store(int32(StateFailed))
	e.metrics.IncErrors()
	metrics.ObserveSyncDuration(mode, "failed", time.Since(start))
	log.Error("sync failed", zap.String("stage", stage), zap.Error(err))

	var serr *errors.Error
	if stderrors.As(err, &serr) {
		serr.WithDetail("mode", mode).WithDetail("stage", stage)
		return err
	}
	return errors.Wrap(err, errors.ErrorTypeInternal,
		stringpool.Sprintf("%s sync failed during %s", mode, stage)).
		WithDetail("mode", mode).
		WithDetail("stage", stage)
}
