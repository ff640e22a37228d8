package ports

import "context"

// Row is one query result row as an ordered column-name to value mapping.
type Row struct {
	Columns []string
	Values  []any
}

// Value returns the value of the named column.
func (r Row) Value(column string) (any, bool) {
	for i, c := range r.Columns {
		if c == column {
			return r.Values[i], true
		}
	}
	return nil, false
}

// QueryExecutor runs the read-only queries composed by the audit engine.
// Queries use `?` placeholders; adapters rebind them for their dialect.
// Cancellation and timeouts are delegated entirely to the executor via ctx;
// the engine defines no retry policy on top.
type QueryExecutor interface {
	Select(ctx context.Context, query string, args ...any) ([]Row, error)
}
