package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/ersonp/chronicle/internal/domain/entities"
	"github.com/ersonp/chronicle/internal/domain/ports"
)

// FindOptions control a single historical lookup.
type FindOptions struct {
	// StrictDeletions reports a resolved DEL row as a DeletedError instead of
	// returning the deleted state. Off by default: without it, find at or
	// after a deletion returns the row data like any other.
	StrictDeletions bool
}

// ReaderConfig wires naming, association loading and logging for a reader.
type ReaderConfig struct {
	Naming Naming
	Policy LoadPolicy
	Logger *slog.Logger
}

// DefaultReaderConfig returns the standard reader configuration.
func DefaultReaderConfig() ReaderConfig {
	return ReaderConfig{
		Naming: DefaultNaming(),
		Policy: DefaultLoadPolicy(),
	}
}

// AuditReader is the public read surface over the revision ledger and shadow
// tables. Every operation issues one or more sequential read-only queries and
// surfaces failures immediately; shadow rows are immutable, so nothing is
// retried. The only state a reader holds is its reconstruction cache - use
// one reader per concurrent consumer and ClearCache between unrelated reads.
type AuditReader struct {
	provider   ports.MetadataProvider
	exec       ports.QueryExecutor
	builder    *QueryBuilder
	ledger     *Ledger
	rec        *Reconstructor
	comparator *Comparator
	logger     *slog.Logger
	naming     Naming
}

// NewAuditReader creates a new AuditReader.
func NewAuditReader(provider ports.MetadataProvider, exec ports.QueryExecutor, cfg ReaderConfig) *AuditReader {
	if cfg.Naming == (Naming{}) {
		cfg.Naming = DefaultNaming()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	r := &AuditReader{
		provider:   provider,
		exec:       exec,
		builder:    NewQueryBuilder(provider, cfg.Naming),
		ledger:     NewLedger(exec, cfg.Naming),
		rec:        NewReconstructor(provider, cfg.Policy),
		comparator: NewComparator(provider),
		logger:     cfg.Logger,
		naming:     cfg.Naming,
	}
	r.rec.SetFinder(r.findIdentity)
	return r
}

// Find reconstructs a record's state at the target revision, following
// latest-at-or-before semantics. The id is either a single identifier value
// or a map of identifier field names to values for composite identities.
func (r *AuditReader) Find(ctx context.Context, typeName string, id any, revision int64) (any, error) {
	return r.FindWith(ctx, typeName, id, revision, FindOptions{})
}

// FindWith is Find with explicit per-call options.
func (r *AuditReader) FindWith(ctx context.Context, typeName string, id any, revision int64, opts FindOptions) (any, error) {
	identity, err := r.identityMap(typeName, id)
	if err != nil {
		return nil, err
	}
	return r.findWith(ctx, typeName, identity, revision, opts)
}

func (r *AuditReader) findIdentity(ctx context.Context, typeName string, identity map[string]any, revision int64) (any, error) {
	return r.findWith(ctx, typeName, identity, revision, FindOptions{})
}

func (r *AuditReader) findWith(ctx context.Context, typeName string, identity map[string]any, revision int64, opts FindOptions) (any, error) {
	meta, err := r.builder.auditedMeta(typeName)
	if err != nil {
		return nil, err
	}
	q, err := r.builder.BuildFindQuery(typeName, identity, revision)
	if err != nil {
		return nil, err
	}
	rows, err := r.exec.Select(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s history: %w", typeName, err)
	}
	if len(rows) == 0 {
		return nil, &NoRevisionFoundError{TypeName: typeName, Identity: identity, Revision: revision}
	}
	row := rows[0]

	revType, err := r.revType(q, row)
	if err != nil {
		return nil, err
	}
	if opts.StrictDeletions && revType == entities.RevTypeDelete {
		return nil, &DeletedError{TypeName: typeName, Identity: identity, Revision: revision}
	}

	inst, err := r.rec.CreateEntity(ctx, meta, q, row, revision)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("resolved historical state",
		slog.String("type", typeName), slog.Int64("revision", revision), slog.String("revtype", string(revType)))
	return inst, nil
}

// FindRevisions lists every revision that touched one record, newest first.
func (r *AuditReader) FindRevisions(ctx context.Context, typeName string, id any) ([]entities.Revision, error) {
	meta, err := r.builder.auditedMeta(typeName)
	if err != nil {
		return nil, err
	}
	identity, err := r.identityMap(typeName, id)
	if err != nil {
		return nil, err
	}
	idCols, err := r.builder.ResolveIdentityColumns(meta, identity)
	if err != nil {
		return nil, err
	}
	return r.ledger.ForEntity(ctx, r.naming.AuditTable(meta), idCols)
}

// FindRevisionHistory pages through the whole ledger, newest first.
func (r *AuditReader) FindRevisionHistory(ctx context.Context, limit, offset int) ([]entities.Revision, error) {
	return r.ledger.History(ctx, limit, offset)
}

// FindEntitiesChangedAtRevision reconstructs every audited record written at
// exactly the given revision. Single-table hierarchies are queried once at
// their root, with the discriminator resolving each row to its concrete
// subtype. Joined subtypes have shadow rows of their own and are scanned
// before their ancestors; the root rows written pairwise with a subtype row
// are then suppressed, so each change is reported once, as its concrete type.
func (r *AuditReader) FindEntitiesChangedAtRevision(ctx context.Context, revision int64) ([]entities.ChangedEntity, error) {
	if _, err := r.ledger.ByID(ctx, revision); err != nil {
		return nil, err
	}

	metas, err := r.changedAtTypes()
	if err != nil {
		return nil, err
	}

	claimed := make(map[string]bool)
	var out []entities.ChangedEntity
	for _, meta := range metas {
		q, err := r.builder.BuildChangedAtQuery(meta.Name, revision)
		if err != nil {
			return nil, err
		}
		rows, err := r.exec.Select(ctx, q.SQL, q.Args...)
		if err != nil {
			return nil, fmt.Errorf("querying %s changes at revision %d: %w", meta.Name, revision, err)
		}
		for _, row := range rows {
			resolved, err := r.rec.ResolveMeta(meta, q, row)
			if err != nil {
				return nil, err
			}
			identity, err := r.rec.Identity(resolved, row)
			if err != nil {
				return nil, err
			}
			if meta.Inheritance.Kind == ports.InheritanceJoined {
				key := meta.Inheritance.Root + "|" + canonicalIdentity(identity)
				if claimed[key] {
					continue
				}
				claimed[key] = true
			}
			revType, err := r.revType(q, row)
			if err != nil {
				return nil, err
			}
			inst, err := r.rec.CreateEntity(ctx, meta, q, row, revision)
			if err != nil {
				return nil, err
			}
			out = append(out, entities.ChangedEntity{
				TypeName: resolved.Name,
				Identity: identity,
				RevType:  revType,
				Entity:   inst,
			})
		}
	}
	return out, nil
}

// changedAtTypes lists the types to scan for changes at one revision.
// Single-table subtypes share their root's rows and are skipped; joined
// hierarchy members sort deepest first so a subtype claims its identity
// before any ancestor's row for the same record is seen.
func (r *AuditReader) changedAtTypes() ([]*ports.TypeMeta, error) {
	var metas []*ports.TypeMeta
	depths := make(map[string]int)
	for _, typeName := range r.provider.AuditedTypes() {
		meta, err := r.provider.Meta(typeName)
		if err != nil {
			return nil, fmt.Errorf("loading metadata for %s: %w", typeName, err)
		}
		if meta.Inheritance.Kind == ports.InheritanceSingleTable && !meta.IsHierarchyRoot() {
			continue
		}
		depth := 0
		if meta.Inheritance.Kind == ports.InheritanceJoined {
			if depth, err = r.hierarchyDepth(meta); err != nil {
				return nil, err
			}
		}
		depths[meta.Name] = depth
		metas = append(metas, meta)
	}
	sort.SliceStable(metas, func(i, j int) bool {
		return depths[metas[i].Name] > depths[metas[j].Name]
	})
	return metas, nil
}

// hierarchyDepth counts the parent hops from a type to its hierarchy root.
func (r *AuditReader) hierarchyDepth(meta *ports.TypeMeta) (int, error) {
	depth := 0
	for cur := meta; cur.Inheritance.Parent != ""; depth++ {
		parent, err := r.provider.Meta(cur.Inheritance.Parent)
		if err != nil {
			return 0, fmt.Errorf("loading metadata for %s: %w", cur.Inheritance.Parent, err)
		}
		cur = parent
	}
	return depth, nil
}

// GetCurrentRevision returns the highest revision that touched one record,
// deletions included.
func (r *AuditReader) GetCurrentRevision(ctx context.Context, typeName string, id any) (int64, error) {
	identity, err := r.identityMap(typeName, id)
	if err != nil {
		return 0, err
	}
	q, err := r.builder.BuildCurrentRevisionQuery(typeName, identity)
	if err != nil {
		return 0, err
	}
	rows, err := r.exec.Select(ctx, q.SQL, q.Args...)
	if err != nil {
		return 0, fmt.Errorf("querying current revision of %s: %w", typeName, err)
	}
	if len(rows) == 0 {
		return 0, &NoRevisionFoundError{TypeName: typeName, Identity: identity}
	}
	raw, ok := rows[0].Value(r.naming.RevisionColumn)
	if !ok || raw == nil {
		return 0, &NoRevisionFoundError{TypeName: typeName, Identity: identity}
	}
	rev, err := toInt64(raw)
	if err != nil {
		return 0, fmt.Errorf("scanning current revision of %s: %w", typeName, err)
	}
	return rev, nil
}

// Diff reconstructs a record at two revisions and reports the field-level
// differences between the two states.
func (r *AuditReader) Diff(ctx context.Context, typeName string, id any, oldRevision, newRevision int64) (entities.Diff, error) {
	meta, err := r.builder.auditedMeta(typeName)
	if err != nil {
		return nil, err
	}
	oldInst, err := r.FindWith(ctx, typeName, id, oldRevision, FindOptions{})
	if err != nil {
		return nil, err
	}
	newInst, err := r.FindWith(ctx, typeName, id, newRevision, FindOptions{})
	if err != nil {
		return nil, err
	}
	return r.comparator.Compare(meta, oldInst, newInst)
}

// GetEntityHistory reconstructs every historical state of one record, oldest
// first. Each state's associations resolve at that state's own revision.
func (r *AuditReader) GetEntityHistory(ctx context.Context, typeName string, id any) ([]any, error) {
	meta, err := r.builder.auditedMeta(typeName)
	if err != nil {
		return nil, err
	}
	identity, err := r.identityMap(typeName, id)
	if err != nil {
		return nil, err
	}
	q, err := r.builder.BuildHistoryQuery(typeName, identity)
	if err != nil {
		return nil, err
	}
	rows, err := r.exec.Select(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s history: %w", typeName, err)
	}

	states := make([]any, 0, len(rows))
	for _, row := range rows {
		rev, err := r.rowRevision(q, row)
		if err != nil {
			return nil, err
		}
		inst, err := r.rec.CreateEntity(ctx, meta, q, row, rev)
		if err != nil {
			return nil, err
		}
		states = append(states, inst)
	}
	return states, nil
}

// ClearCache drops the reader's reconstruction cache. Call it between
// unrelated historical reads so instances are not reused across them.
func (r *AuditReader) ClearCache() {
	r.rec.ClearCache()
}

// identityMap normalizes a caller-supplied id into an identity field map.
func (r *AuditReader) identityMap(typeName string, id any) (map[string]any, error) {
	if m, ok := id.(map[string]any); ok {
		return m, nil
	}
	meta, err := r.builder.auditedMeta(typeName)
	if err != nil {
		return nil, err
	}
	names := meta.IdentifierNames()
	if len(names) != 1 {
		return nil, fmt.Errorf("type %s has a composite identity %v; pass a field map", typeName, names)
	}
	return map[string]any{names[0]: id}, nil
}

func (r *AuditReader) revType(q *Query, row ports.Row) (entities.RevType, error) {
	cm, ok := q.Column(ColumnRevType)
	if !ok {
		return "", fmt.Errorf("query selects no revision-type column")
	}
	raw, ok := row.Value(cm.Alias)
	if !ok {
		return "", fmt.Errorf("row is missing the %q column", cm.Alias)
	}
	s, err := toString(raw)
	if err != nil {
		return "", fmt.Errorf("scanning revision type: %w", err)
	}
	revType := entities.RevType(s)
	if !revType.Valid() {
		return "", fmt.Errorf("unknown revision type %q", s)
	}
	return revType, nil
}

func (r *AuditReader) rowRevision(q *Query, row ports.Row) (int64, error) {
	cm, ok := q.Column(ColumnRevision)
	if !ok {
		return 0, fmt.Errorf("query selects no revision column")
	}
	raw, ok := row.Value(cm.Alias)
	if !ok {
		return 0, fmt.Errorf("row is missing the %q column", cm.Alias)
	}
	return toInt64(raw)
}
