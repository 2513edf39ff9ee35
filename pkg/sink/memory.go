package sink

import (
	"context"
	"sort"
	"sync"

	"github.com/ajitpratap0/cartsync/pkg/errors"
)

// MemorySink keeps rows in process memory. It mirrors the SQL sinks'
// conflict semantics exactly: a new id inserts the full record, an
// existing id refreshes only the conflict columns, and an empty
// conflict list leaves existing rows untouched. Used by tests and the
// memory storage driver.
type MemorySink struct {
	mu     sync.Mutex
	tables map[string]map[string]map[string]interface{}
	calls  int

	// FailHook, when set, runs before each batch with the table name
	// and 1-based call number. Returning an error aborts that batch.
	FailHook func(table string, call int) error
}

// NewMemorySink returns an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{tables: make(map[string]map[string]map[string]interface{})}
}

// BulkUpsert merges the batch into the named table.
func (s *MemorySink) BulkUpsert(ctx context.Context, table string, records []map[string]interface{}, conflictColumns []string) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.FailHook != nil {
		if err := s.FailHook(table, s.calls); err != nil {
			return errors.Wrap(err, errors.ErrorTypePersistence, "bulk upsert failed").
				WithDetail("table", table).
				WithDetail("batch_size", len(records))
		}
	}

	rows := s.tables[table]
	if rows == nil {
		rows = make(map[string]map[string]interface{}, len(records))
		s.tables[table] = rows
	}

	for _, rec := range records {
		id, ok := rec[primaryKey].(string)
		if !ok || id == "" {
			return errors.New(errors.ErrorTypePersistence, "record missing primary key").
				WithDetail("table", table)
		}

		existing, found := rows[id]
		if !found {
			row := make(map[string]interface{}, len(rec))
			for k, v := range rec {
				row[k] = v
			}
			rows[id] = row
			continue
		}
		for _, col := range conflictColumns {
			if v, present := rec[col]; present {
				existing[col] = v
			}
		}
	}
	return nil
}

// Close is a no-op.
func (s *MemorySink) Close() error {
	return nil
}

// Count reports the number of rows stored in a table.
func (s *MemorySink) Count(table string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tables[table])
}

// Row returns a copy of one stored row, or nil when absent.
func (s *MemorySink) Row(table, id string) map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tables[table][id]
	if !ok {
		return nil
	}
	row := make(map[string]interface{}, len(rec))
	for k, v := range rec {
		row[k] = v
	}
	return row
}

// Rows returns copies of every row in a table ordered by id.
func (s *MemorySink) Rows(table string) []map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.tables[table]
	ids := make([]string, 0, len(stored))
	for id := range stored {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]map[string]interface{}, 0, len(ids))
	for _, id := range ids {
		rec := stored[id]
		row := make(map[string]interface{}, len(rec))
		for k, v := range rec {
			row[k] = v
		}
		out = append(out, row)
	}
	return out
}

// Calls reports how many batches have been attempted, including ones
// rejected by FailHook.
func (s *MemorySink) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
