package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/ersonp/chronicle/internal/domain/entities"
	"github.com/ersonp/chronicle/internal/domain/ports"
)

// DefaultHistoryLimit caps ledger pages when the caller passes no limit.
const DefaultHistoryLimit = 20

// Ledger reads the global revision ledger. The ledger is append-only and
// written exclusively by the external write path; this type never mutates it.
type Ledger struct {
	exec   ports.QueryExecutor
	naming Naming
}

// NewLedger creates a new Ledger.
func NewLedger(exec ports.QueryExecutor, naming Naming) *Ledger {
	return &Ledger{exec: exec, naming: naming}
}

// History pages through the ledger ordered by revision id descending.
func (l *Ledger) History(ctx context.Context, limit, offset int) ([]entities.Revision, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(`SELECT "id", "timestamp", "author" FROM %s ORDER BY "id" DESC LIMIT ? OFFSET ?`,
		quoteIdent(l.naming.RevisionTable))
	rows, err := l.exec.Select(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying revision ledger: %w", err)
	}
	return scanRevisions(rows)
}

// ByID resolves a single ledger entry. Anything but exactly one match is a
// data-integrity failure.
func (l *Ledger) ByID(ctx context.Context, revision int64) (*entities.Revision, error) {
	query := fmt.Sprintf(`SELECT "id", "timestamp", "author" FROM %s WHERE "id" = ?`,
		quoteIdent(l.naming.RevisionTable))
	rows, err := l.exec.Select(ctx, query, revision)
	if err != nil {
		return nil, fmt.Errorf("querying revision %d: %w", revision, err)
	}
	if len(rows) != 1 {
		return nil, &InvalidRevisionError{Revision: revision, Count: len(rows)}
	}
	rev, err := scanRevision(rows[0])
	if err != nil {
		return nil, err
	}
	return &rev, nil
}

// ForEntity lists every revision that touched one record, newest first. It
// joins the ledger against the record's shadow table instead of scanning
// revisions one by one.
func (l *Ledger) ForEntity(ctx context.Context, auditTable string, idCols []IdentityColumn) ([]entities.Revision, error) {
	conds := make([]string, 0, len(idCols))
	args := make([]any, 0, len(idCols))
	for _, c := range idCols {
		conds = append(conds, fmt.Sprintf("e.%s = ?", quoteIdent(c.Column)))
		args = append(args, c.Value)
	}
	query := fmt.Sprintf(`SELECT r."id", r."timestamp", r."author" FROM %s r JOIN %s e ON e.%s = r."id" WHERE %s ORDER BY r."id" DESC`,
		quoteIdent(l.naming.RevisionTable), quoteIdent(auditTable),
		quoteIdent(l.naming.RevisionColumn), strings.Join(conds, " AND "))
	rows, err := l.exec.Select(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying revisions for %s: %w", auditTable, err)
	}
	return scanRevisions(rows)
}

func scanRevisions(rows []ports.Row) ([]entities.Revision, error) {
	out := make([]entities.Revision, 0, len(rows))
	for _, row := range rows {
		rev, err := scanRevision(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rev)
	}
	return out, nil
}

func scanRevision(row ports.Row) (entities.Revision, error) {
	var rev entities.Revision

	raw, ok := row.Value("id")
	if !ok {
		return rev, fmt.Errorf("ledger row is missing the id column")
	}
	id, err := toInt64(raw)
	if err != nil {
		return rev, fmt.Errorf("scanning revision id: %w", err)
	}
	rev.ID = id

	raw, ok = row.Value("timestamp")
	if !ok {
		return rev, fmt.Errorf("ledger row is missing the timestamp column")
	}
	ts, err := toTime(raw)
	if err != nil {
		return rev, fmt.Errorf("scanning revision timestamp: %w", err)
	}
	rev.Timestamp = ts

	if raw, ok = row.Value("author"); ok && raw != nil {
		author, err := toString(raw)
		if err != nil {
			return rev, fmt.Errorf("scanning revision author: %w", err)
		}
		rev.Author = author
	}
	return rev, nil
}
