package mocks

import (
	"context"

	"github.com/ersonp/chronicle/internal/domain/ports"
)

// QueryExecutor is a scripted mock implementation of ports.QueryExecutor.
// Results are served in FIFO order, one result set per Select call; when the
// queue is exhausted, Rows is returned for every remaining call.
type QueryExecutor struct {
	Rows    []ports.Row
	Results [][]ports.Row
	Err     error

	// Queries and Args record every Select call for assertions.
	Queries []string
	Args    [][]any
}

// NewQueryExecutor creates a new mock QueryExecutor.
func NewQueryExecutor() *QueryExecutor {
	return &QueryExecutor{}
}

// Enqueue appends one result set to the scripted queue.
func (m *QueryExecutor) Enqueue(rows ...ports.Row) {
	m.Results = append(m.Results, rows)
}

// Select records the call and returns the next scripted result set.
func (m *QueryExecutor) Select(_ context.Context, query string, args ...any) ([]ports.Row, error) {
	m.Queries = append(m.Queries, query)
	m.Args = append(m.Args, args)
	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Results) > 0 {
		rows := m.Results[0]
		m.Results = m.Results[1:]
		return rows, nil
	}
	return m.Rows, nil
}
