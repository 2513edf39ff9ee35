package sink

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/ajitpratap0/cartsync/pkg/config"
	"github.com/ajitpratap0/cartsync/pkg/errors"
	stringpool "github.com/ajitpratap0/cartsync/pkg/strings"
)

// MySQLSink persists rows through database/sql using multi-row
// INSERT ... ON DUPLICATE KEY UPDATE statements.
type MySQLSink struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMySQLSink opens the connection pool and validates it with a ping.
func NewMySQLSink(cfg *config.StorageConfig, logger *zap.Logger) (*MySQLSink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to open mysql connection")
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 10
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.ErrorTypePersistence, "failed to reach mysql")
	}

	logger = logger.With(zap.String("component", "mysql_sink"))
	logger.Info("connected to mysql", zap.Int("max_conns", maxConns))

	return &MySQLSink{db: db, logger: logger}, nil
}

// BulkUpsert lands the batch in one statement. An empty conflictColumns
// list leaves existing rows untouched via the `id`=`id` no-op assignment.
func (s *MySQLSink) BulkUpsert(ctx context.Context, table string, records []map[string]interface{}, conflictColumns []string) error {
	if len(records) == 0 {
		return nil
	}

	cols := columnSet(records)
	query := buildMySQLUpsert(table, cols, conflictColumns, len(records))

	if _, err := s.db.ExecContext(ctx, query, orderedArgs(records, cols)...); err != nil {
		return errors.Wrap(err, errors.ErrorTypePersistence, "bulk upsert failed").
			WithDetail("table", table).
			WithDetail("batch_size", len(records))
	}

	s.logger.Debug("batch upserted",
		zap.String("table", table),
		zap.Int("rows", len(records)))
	return nil
}

// Close releases the connection pool.
func (s *MySQLSink) Close() error {
	return s.db.Close()
}

// buildMySQLUpsert renders, for example:
//
//	INSERT INTO `products` (`id`,`title`) VALUES (?,?),(?,?)
//	ON DUPLICATE KEY UPDATE `title` = VALUES(`title`)
func buildMySQLUpsert(table string, cols, conflictColumns []string, rows int) string {
	sb := stringpool.NewSQLBuilder(128 + rows*len(cols)*3)
	defer sb.Close()

	sb.WriteQuery("INSERT INTO ")
	sb.WriteIdentifier(table, '`')
	sb.WriteQuery(" (")
	for i, col := range cols {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteIdentifier(col, '`')
	}
	sb.WriteQuery(") VALUES ")

	for r := 0; r < rows; r++ {
		if r > 0 {
			sb.WriteByte(',')
		}
		sb.WriteByte('(')
		for c := range cols {
			if c > 0 {
				sb.WriteByte(',')
			}
			sb.WriteByte('?')
		}
		sb.WriteByte(')')
	}

	sb.WriteQuery(" ON DUPLICATE KEY UPDATE ")
	if len(conflictColumns) == 0 {
		sb.WriteIdentifier(primaryKey, '`')
		sb.WriteQuery(" = ")
		sb.WriteIdentifier(primaryKey, '`')
		return sb.String()
	}

	for i, col := range conflictColumns {
		if i > 0 {
			sb.WriteQuery(", ")
		}
		sb.WriteIdentifier(col, '`')
		sb.WriteQuery(" = VALUES(")
		sb.WriteIdentifier(col, '`')
		sb.WriteByte(')')
	}
	return sb.String()
}
