package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ersonp/chronicle/internal/domain/entities"
	"github.com/ersonp/chronicle/internal/domain/services"
)

// AuditHandler handles historical-state queries.
type AuditHandler struct {
	reader *services.AuditReader
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(reader *services.AuditReader) *AuditHandler {
	return &AuditHandler{
		reader: reader,
	}
}

// ShowResult contains a record's state at one revision.
type ShowResult struct {
	TypeName string `json:"type"`
	Revision int64  `json:"revision"`
	Entity   any    `json:"entity"`
}

// HandleShow reconstructs a record's state at the given revision.
func (h *AuditHandler) HandleShow(ctx context.Context, typeName, idSpec string, revision int64, strict bool) (*ShowResult, error) {
	id, err := ParseIdentity(idSpec)
	if err != nil {
		return nil, err
	}
	entity, err := h.reader.FindWith(ctx, typeName, id, revision, services.FindOptions{StrictDeletions: strict})
	if err != nil {
		return nil, err
	}
	return &ShowResult{
		TypeName: typeName,
		Revision: revision,
		Entity:   entity,
	}, nil
}

// RevisionsResult contains the revisions that touched one record.
type RevisionsResult struct {
	TypeName  string              `json:"type"`
	Revisions []entities.Revision `json:"revisions"`
}

// HandleRevisions lists every revision of one record, newest first.
func (h *AuditHandler) HandleRevisions(ctx context.Context, typeName, idSpec string) (*RevisionsResult, error) {
	id, err := ParseIdentity(idSpec)
	if err != nil {
		return nil, err
	}
	revisions, err := h.reader.FindRevisions(ctx, typeName, id)
	if err != nil {
		return nil, fmt.Errorf("listing revisions: %w", err)
	}
	return &RevisionsResult{
		TypeName:  typeName,
		Revisions: revisions,
	}, nil
}

// LogResult contains one page of the revision ledger.
type LogResult struct {
	Revisions []entities.Revision `json:"revisions"`
}

// HandleLog pages through the revision ledger, newest first.
func (h *AuditHandler) HandleLog(ctx context.Context, limit, offset int) (*LogResult, error) {
	revisions, err := h.reader.FindRevisionHistory(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("reading revision ledger: %w", err)
	}
	return &LogResult{Revisions: revisions}, nil
}

// DiffResult contains the field-level differences between two revisions.
type DiffResult struct {
	TypeName    string        `json:"type"`
	OldRevision int64         `json:"old_revision"`
	NewRevision int64         `json:"new_revision"`
	Diff        entities.Diff `json:"diff"`
}

// HandleDiff compares a record's state at two revisions.
func (h *AuditHandler) HandleDiff(ctx context.Context, typeName, idSpec string, oldRevision, newRevision int64) (*DiffResult, error) {
	id, err := ParseIdentity(idSpec)
	if err != nil {
		return nil, err
	}
	diff, err := h.reader.Diff(ctx, typeName, id, oldRevision, newRevision)
	if err != nil {
		return nil, err
	}
	return &DiffResult{
		TypeName:    typeName,
		OldRevision: oldRevision,
		NewRevision: newRevision,
		Diff:        diff,
	}, nil
}

// ChangesResult contains every record written at one revision.
type ChangesResult struct {
	Revision int64                    `json:"revision"`
	Changes  []entities.ChangedEntity `json:"changes"`
}

// HandleChanges lists every record written at exactly the given revision.
func (h *AuditHandler) HandleChanges(ctx context.Context, revision int64) (*ChangesResult, error) {
	changes, err := h.reader.FindEntitiesChangedAtRevision(ctx, revision)
	if err != nil {
		return nil, err
	}
	return &ChangesResult{
		Revision: revision,
		Changes:  changes,
	}, nil
}

// CurrentResult contains the highest revision that touched one record.
type CurrentResult struct {
	TypeName string `json:"type"`
	Revision int64  `json:"revision"`
}

// HandleCurrent returns the highest revision that touched one record.
func (h *AuditHandler) HandleCurrent(ctx context.Context, typeName, idSpec string) (*CurrentResult, error) {
	id, err := ParseIdentity(idSpec)
	if err != nil {
		return nil, err
	}
	revision, err := h.reader.GetCurrentRevision(ctx, typeName, id)
	if err != nil {
		return nil, err
	}
	return &CurrentResult{
		TypeName: typeName,
		Revision: revision,
	}, nil
}

// HistoryResult contains every historical state of one record, oldest first.
type HistoryResult struct {
	TypeName string `json:"type"`
	States   []any  `json:"states"`
}

// HandleHistory reconstructs every historical state of one record.
func (h *AuditHandler) HandleHistory(ctx context.Context, typeName, idSpec string) (*HistoryResult, error) {
	id, err := ParseIdentity(idSpec)
	if err != nil {
		return nil, err
	}
	states, err := h.reader.GetEntityHistory(ctx, typeName, id)
	if err != nil {
		return nil, err
	}
	return &HistoryResult{
		TypeName: typeName,
		States:   states,
	}, nil
}

// ParseIdentity turns a command-line identity spec into a lookup id. A bare
// value is a single identifier (integers become int64); "field=value" pairs
// separated by commas form a composite identity.
func ParseIdentity(spec string) (any, error) {
	if spec == "" {
		return nil, fmt.Errorf("empty identity")
	}
	if !strings.Contains(spec, "=") {
		return parseScalar(spec), nil
	}
	identity := make(map[string]any)
	for _, pair := range strings.Split(spec, ",") {
		field, value, ok := strings.Cut(pair, "=")
		field = strings.TrimSpace(field)
		if !ok || field == "" {
			return nil, fmt.Errorf("invalid identity pair %q, want field=value", pair)
		}
		identity[field] = parseScalar(strings.TrimSpace(value))
	}
	return identity, nil
}

func parseScalar(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return s
}
