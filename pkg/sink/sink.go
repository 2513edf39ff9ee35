// Package sink persists flattened catalog rows. Every implementation
// honors one contract: BulkUpsert inserts new rows and refreshes only
// the named conflict columns on rows whose primary key already exists;
// a batch lands whole or fails whole, and an empty batch is a no-op.
package sink

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/ajitpratap0/cartsync/pkg/config"
	"github.com/ajitpratap0/cartsync/pkg/errors"
	stringpool "github.com/ajitpratap0/cartsync/pkg/strings"
)

// primaryKey is the conflict target: rows carry their external catalog
// identifier in this column.
const primaryKey = "id"

// Sink is the persistence boundary of the sync engine.
type Sink interface {
	// BulkUpsert writes one batch of rows to table in a single
	// statement. conflictColumns lists the columns refreshed when the
	// primary key already exists; all other columns on existing rows
	// stay untouched. Returns a persistence error on batch failure; no
	// partial-batch retry happens here.
	BulkUpsert(ctx context.Context, table string, records []map[string]interface{}, conflictColumns []string) error

	// Close releases the underlying connections.
	Close() error
}

// Open builds the sink named by the storage config.
func Open(ctx context.Context, cfg *config.StorageConfig, logger *zap.Logger) (Sink, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return NewPostgresSink(ctx, cfg, logger)
	case config.DriverMySQL:
		return NewMySQLSink(cfg, logger)
	case config.DriverMemory:
		return NewMemorySink(), nil
	default:
		return nil, errors.New(errors.ErrorTypeConfig,
			stringpool.Sprintf("unknown storage driver %q", cfg.Driver))
	}
}

// columnSet derives the deterministic column order for a batch from its
// first row. Rows in one batch share a shape; the flatteners guarantee
// that.
func columnSet(records []map[string]interface{}) []string {
	cols := make([]string, 0, len(records[0]))
	for col := range records[0] {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

// orderedArgs flattens batch values into statement arguments in column
// order, row by row. Missing keys bind NULL.
func orderedArgs(records []map[string]interface{}, cols []string) []interface{} {
	args := make([]interface{}, 0, len(records)*len(cols))
	for _, rec := range records {
		for _, col := range cols {
			args = append(args, rec[col])
		}
	}
	return args
}
