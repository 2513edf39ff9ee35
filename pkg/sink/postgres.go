package sink

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ajitpratap0/cartsync/pkg/config"
	"github.com/ajitpratap0/cartsync/pkg/errors"
	stringpool "github.com/ajitpratap0/cartsync/pkg/strings"
)

// PostgresSink persists rows through a pgx connection pool using
// multi-row INSERT ... ON CONFLICT statements.
//
// Expected DDL (columns match the catalog row maps):
//
//	CREATE TABLE products (
//	    id TEXT PRIMARY KEY, title TEXT, handle TEXT, vendor TEXT,
//	    product_type TEXT, status TEXT, tags TEXT, category TEXT,
//	    variant_count INT, created_at TIMESTAMPTZ,
//	    updated_at TIMESTAMPTZ, synced_at TIMESTAMPTZ);
//
//	CREATE TABLE variants (
//	    id TEXT PRIMARY KEY, product_id TEXT, sku TEXT, title TEXT,
//	    price NUMERIC(12,2), compare_at_price NUMERIC(12,2),
//	    unit_cost NUMERIC(12,2), barcode TEXT, position INT,
//	    inventory_quantity INT, created_at TIMESTAMPTZ,
//	    updated_at TIMESTAMPTZ, synced_at TIMESTAMPTZ);
type PostgresSink struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresSink builds the connection pool and validates it with a
// ping before returning.
func NewPostgresSink(ctx context.Context, cfg *config.StorageConfig, logger *zap.Logger) (*PostgresSink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse postgres DSN")
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	if poolConfig.MaxConns <= 0 {
		poolConfig.MaxConns = 10
	}
	poolConfig.MinConns = int32(cfg.MinConns)
	if poolConfig.MinConns <= 0 {
		poolConfig.MinConns = 2
	}
	if poolConfig.MinConns > poolConfig.MaxConns {
		poolConfig.MinConns = poolConfig.MaxConns / 2
	}
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypePersistence, "failed to create postgres pool")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, errors.ErrorTypePersistence, "failed to reach postgres")
	}

	logger = logger.With(zap.String("component", "postgres_sink"))
	logger.Info("connected to postgres",
		zap.Int32("max_conns", poolConfig.MaxConns),
		zap.Int32("min_conns", poolConfig.MinConns))

	return &PostgresSink{pool: pool, logger: logger}, nil
}

// BulkUpsert lands the batch in one statement. An empty conflictColumns
// list degrades to DO NOTHING: existing rows are left entirely alone.
func (s *PostgresSink) BulkUpsert(ctx context.Context, table string, records []map[string]interface{}, conflictColumns []string) error {
	if len(records) == 0 {
		return nil
	}

	cols := columnSet(records)
	query := buildPostgresUpsert(table, cols, conflictColumns, len(records))

	if _, err := s.pool.Exec(ctx, query, orderedArgs(records, cols)...); err != nil {
		return errors.Wrap(err, errors.ErrorTypePersistence, "bulk upsert failed").
			WithDetail("table", table).
			WithDetail("batch_size", len(records))
	}

	s.logger.Debug("batch upserted",
		zap.String("table", table),
		zap.Int("rows", len(records)))
	return nil
}

// Close drains the pool.
func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}

// buildPostgresUpsert renders, for example:
//
//	INSERT INTO "products" ("id","title") VALUES ($1,$2),($3,$4)
//	ON CONFLICT ("id") DO UPDATE SET "title" = EXCLUDED."title"
func buildPostgresUpsert(table string, cols, conflictColumns []string, rows int) string {
	sb := stringpool.NewSQLBuilder(128 + rows*len(cols)*4)
	defer sb.Close()

	sb.WriteQuery("INSERT INTO ")
	sb.WriteIdentifier(table, '"')
	sb.WriteQuery(" (")
	for i, col := range cols {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteIdentifier(col, '"')
	}
	sb.WriteQuery(") VALUES ")

	placeholder := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			sb.WriteByte(',')
		}
		sb.WriteByte('(')
		for c := range cols {
			if c > 0 {
				sb.WriteByte(',')
			}
			sb.WriteByte('$')
			sb.WriteInt(int64(placeholder))
			placeholder++
		}
		sb.WriteByte(')')
	}

	sb.WriteQuery(" ON CONFLICT (")
	sb.WriteIdentifier(primaryKey, '"')
	sb.WriteQuery(")")

	if len(conflictColumns) == 0 {
		sb.WriteQuery(" DO NOTHING")
		return sb.String()
	}

	sb.WriteQuery(" DO UPDATE SET ")
	for i, col := range conflictColumns {
		if i > 0 {
			sb.WriteQuery(", ")
		}
		sb.WriteIdentifier(col, '"')
		sb.WriteQuery(" = EXCLUDED.")
		sb.WriteIdentifier(col, '"')
	}
	return sb.String()
}
