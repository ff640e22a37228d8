// Package postgres provides a PostgreSQL implementation of the QueryExecutor interface.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/ersonp/chronicle/internal/domain/ports"
	"github.com/ersonp/chronicle/internal/infrastructure/config"
)

// Executor implements ports.QueryExecutor using PostgreSQL.
type Executor struct {
	db *sql.DB
}

// NewExecutor opens a PostgreSQL connection for shadow-table reads.
func NewExecutor(cfg config.PostgresConfig) (*Executor, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres dsn is required")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening postgres database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres database: %w", err)
	}

	return &Executor{db: db}, nil
}

// Close closes the database connection.
func (e *Executor) Close() error {
	return e.db.Close()
}

// DB exposes the underlying handle for schema setup and test seeding.
func (e *Executor) DB() *sql.DB {
	return e.db
}

// Select runs a read-only query and materializes every row. Queries arrive
// with `?` placeholders and are rebound to the `$N` form pq expects.
func (e *Executor) Select(ctx context.Context, query string, args ...any) ([]ports.Row, error) {
	rows, err := e.db.QueryContext(ctx, rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("querying postgres: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	var out []ports.Row
	for rows.Next() {
		values := make([]any, len(columns))
		scan := make([]any, len(columns))
		for i := range values {
			scan[i] = &values[i]
		}
		if err := rows.Scan(scan...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = append([]byte(nil), b...)
			}
		}
		out = append(out, ports.Row{Columns: columns, Values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return out, nil
}

// rebind rewrites `?` placeholders to `$1..$N`. Identifiers are always
// double-quoted and string literals never occur in composed queries, so a
// bare scan is safe.
func rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] != '?' {
			b.WriteByte(query[i])
			continue
		}
		n++
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}
