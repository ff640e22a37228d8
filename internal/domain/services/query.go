package services

import (
	"fmt"
	"strings"

	"github.com/ersonp/chronicle/internal/domain/ports"
)

// Naming holds the externally configurable shadow-table and column names. The
// engine treats all of them as opaque strings.
type Naming struct {
	TableSuffix        string
	RevisionColumn     string
	RevisionTypeColumn string
	RevisionTable      string
}

// DefaultNaming returns the standard shadow-table naming.
func DefaultNaming() Naming {
	return Naming{
		TableSuffix:        "_audit",
		RevisionColumn:     "rev",
		RevisionTypeColumn: "revtype",
		RevisionTable:      "revisions",
	}
}

// AuditTable returns the shadow-table name for a type.
func (n Naming) AuditTable(meta *ports.TypeMeta) string {
	return meta.Table + n.TableSuffix
}

// ColumnKind tells the reconstructor how to treat one selected column.
type ColumnKind int

const (
	ColumnField ColumnKind = iota
	ColumnAssociation
	ColumnDiscriminator
	ColumnRevision
	ColumnRevType
)

// ColumnMapping ties one selected column alias to the field or association it
// feeds during reconstruction.
type ColumnMapping struct {
	Alias       string
	Kind        ColumnKind
	Field       ports.FieldMeta
	Association ports.AssociationMeta
}

// Query is a composed shadow-table query plus the column mapping needed to
// hydrate its result rows.
type Query struct {
	SQL     string
	Args    []any
	Columns []ColumnMapping
}

// Column returns the first mapping of the given kind.
func (q *Query) Column(kind ColumnKind) (ColumnMapping, bool) {
	for _, c := range q.Columns {
		if c.Kind == kind {
			return c, true
		}
	}
	return ColumnMapping{}, false
}

// QueryBuilder composes historical-state queries against shadow tables. All
// queries use `?` placeholders and leave dialect rebinding to the executor.
type QueryBuilder struct {
	provider ports.MetadataProvider
	naming   Naming
}

// NewQueryBuilder creates a new QueryBuilder.
func NewQueryBuilder(provider ports.MetadataProvider, naming Naming) *QueryBuilder {
	return &QueryBuilder{provider: provider, naming: naming}
}

// BuildFindQuery composes the query resolving a record's state at the target
// revision. It selects the newest shadow row whose revision is at or before
// the target ("latest-at-or-before"); the caller takes the first row.
func (b *QueryBuilder) BuildFindQuery(typeName string, identity map[string]any, revision int64) (*Query, error) {
	meta, err := b.auditedMeta(typeName)
	if err != nil {
		return nil, err
	}
	idCols, err := b.resolveIdentity(meta, identity)
	if err != nil {
		return nil, err
	}

	cols, mapping, err := b.buildSelect(meta)
	if err != nil {
		return nil, err
	}
	from, err := b.fromClause(meta)
	if err != nil {
		return nil, err
	}

	conds, args := b.identityConds(idCols)
	conds = append(conds, fmt.Sprintf("e.%s <= ?", quoteIdent(b.naming.RevisionColumn)))
	args = append(args, revision)
	conds, args, err = b.appendDiscriminatorFilter(meta, conds, args)
	if err != nil {
		return nil, err
	}

	sql := fmt.Sprintf("SELECT %s %s WHERE %s ORDER BY e.%s DESC LIMIT 1",
		strings.Join(cols, ", "), from, strings.Join(conds, " AND "), quoteIdent(b.naming.RevisionColumn))
	return &Query{SQL: sql, Args: args, Columns: mapping}, nil
}

// BuildChangedAtQuery composes the query selecting every shadow row of a type
// written at exactly the given revision.
func (b *QueryBuilder) BuildChangedAtQuery(typeName string, revision int64) (*Query, error) {
	meta, err := b.auditedMeta(typeName)
	if err != nil {
		return nil, err
	}
	cols, mapping, err := b.buildSelect(meta)
	if err != nil {
		return nil, err
	}
	from, err := b.fromClause(meta)
	if err != nil {
		return nil, err
	}

	conds := []string{fmt.Sprintf("e.%s = ?", quoteIdent(b.naming.RevisionColumn))}
	args := []any{revision}
	conds, args, err = b.appendDiscriminatorFilter(meta, conds, args)
	if err != nil {
		return nil, err
	}

	sql := fmt.Sprintf("SELECT %s %s WHERE %s", strings.Join(cols, ", "), from, strings.Join(conds, " AND "))
	return &Query{SQL: sql, Args: args, Columns: mapping}, nil
}

// BuildHistoryQuery composes the query selecting every shadow row of one
// record across its whole lifetime, oldest revision first.
func (b *QueryBuilder) BuildHistoryQuery(typeName string, identity map[string]any) (*Query, error) {
	meta, err := b.auditedMeta(typeName)
	if err != nil {
		return nil, err
	}
	idCols, err := b.resolveIdentity(meta, identity)
	if err != nil {
		return nil, err
	}
	cols, mapping, err := b.buildSelect(meta)
	if err != nil {
		return nil, err
	}
	from, err := b.fromClause(meta)
	if err != nil {
		return nil, err
	}

	conds, args := b.identityConds(idCols)
	conds, args, err = b.appendDiscriminatorFilter(meta, conds, args)
	if err != nil {
		return nil, err
	}

	sql := fmt.Sprintf("SELECT %s %s WHERE %s ORDER BY e.%s ASC",
		strings.Join(cols, ", "), from, strings.Join(conds, " AND "), quoteIdent(b.naming.RevisionColumn))
	return &Query{SQL: sql, Args: args, Columns: mapping}, nil
}

// BuildCurrentRevisionQuery composes the query selecting the highest revision
// that touched one record, deletions included.
func (b *QueryBuilder) BuildCurrentRevisionQuery(typeName string, identity map[string]any) (*Query, error) {
	meta, err := b.auditedMeta(typeName)
	if err != nil {
		return nil, err
	}
	idCols, err := b.resolveIdentity(meta, identity)
	if err != nil {
		return nil, err
	}

	conds, args := b.identityConds(idCols)
	conds, args, err = b.appendDiscriminatorFilter(meta, conds, args)
	if err != nil {
		return nil, err
	}

	rev := quoteIdent(b.naming.RevisionColumn)
	sql := fmt.Sprintf("SELECT MAX(e.%s) AS %s FROM %s e WHERE %s",
		rev, rev, quoteIdent(b.naming.AuditTable(meta)), strings.Join(conds, " AND "))
	mapping := []ColumnMapping{{Alias: b.naming.RevisionColumn, Kind: ColumnRevision}}
	return &Query{SQL: sql, Args: args, Columns: mapping}, nil
}

// IdentityColumn is one resolved identity filter: a shadow-table column and
// the value it must equal.
type IdentityColumn struct {
	Column string
	Value  any
}

// ResolveIdentityColumns maps an identity's field names onto shadow-table
// columns, in identifier declaration order.
func (b *QueryBuilder) ResolveIdentityColumns(meta *ports.TypeMeta, identity map[string]any) ([]IdentityColumn, error) {
	return b.resolveIdentity(meta, identity)
}

func (b *QueryBuilder) auditedMeta(typeName string) (*ports.TypeMeta, error) {
	if !b.provider.IsAudited(typeName) {
		return nil, &NotAuditedError{TypeName: typeName}
	}
	meta, err := b.provider.Meta(typeName)
	if err != nil {
		return nil, fmt.Errorf("loading metadata for %s: %w", typeName, err)
	}
	return meta, nil
}

// resolveIdentity handles identifier fields that are themselves to-one
// associations: those resolve to the association's join column, not a scalar
// column.
func (b *QueryBuilder) resolveIdentity(meta *ports.TypeMeta, identity map[string]any) ([]IdentityColumn, error) {
	names := meta.IdentifierNames()
	if len(names) == 0 {
		return nil, fmt.Errorf("type %s declares no identifier fields", meta.Name)
	}
	if len(identity) != len(names) {
		return nil, fmt.Errorf("identity for %s needs fields %v, got %d values", meta.Name, names, len(identity))
	}
	out := make([]IdentityColumn, 0, len(names))
	for _, name := range names {
		value, ok := identity[name]
		if !ok {
			return nil, fmt.Errorf("identity for %s is missing field %q", meta.Name, name)
		}
		if f, ok := meta.Field(name); ok {
			out = append(out, IdentityColumn{Column: f.Column, Value: value})
			continue
		}
		a, _ := meta.Association(name)
		out = append(out, IdentityColumn{Column: a.JoinColumn, Value: value})
	}
	return out, nil
}

func (b *QueryBuilder) identityConds(idCols []IdentityColumn) ([]string, []any) {
	conds := make([]string, 0, len(idCols)+2)
	args := make([]any, 0, len(idCols)+2)
	for _, c := range idCols {
		conds = append(conds, fmt.Sprintf("e.%s = ?", quoteIdent(c.Column)))
		args = append(args, c.Value)
	}
	return conds, args
}

// buildSelect renders the select list and its column mapping. For a
// single-table hierarchy the list also covers descendant-only columns, so a
// row carrying a subtype discriminator can be reconstructed as that subtype.
// For a joined-table subtype, inherited non-identifier columns are read from
// the root alias, mirroring how the current schema splits columns across
// tables.
func (b *QueryBuilder) buildSelect(meta *ports.TypeMeta) ([]string, []ColumnMapping, error) {
	ignored := b.provider.IgnoredFields(meta.Name)
	joined := meta.Inheritance.Kind == ports.InheritanceJoined && !meta.IsHierarchyRoot()

	var cols []string
	var mapping []ColumnMapping
	seen := make(map[string]bool)

	appendField := func(f ports.FieldMeta) {
		if ignored[f.Name] || seen[f.Column] {
			return
		}
		seen[f.Column] = true
		src := "e"
		if joined && f.Inherited && !f.Identifier {
			src = "r"
		}
		cols = append(cols, fmt.Sprintf("%s.%s AS %s", src, quoteIdent(f.Column), quoteIdent(f.Column)))
		mapping = append(mapping, ColumnMapping{Alias: f.Column, Kind: ColumnField, Field: f})
	}
	appendAssociation := func(a ports.AssociationMeta) {
		if ignored[a.Name] || seen[a.JoinColumn] {
			return
		}
		seen[a.JoinColumn] = true
		src := "e"
		if joined && a.Inherited && !a.Identifier {
			src = "r"
		}
		cols = append(cols, fmt.Sprintf("%s.%s AS %s", src, quoteIdent(a.JoinColumn), quoteIdent(a.JoinColumn)))
		mapping = append(mapping, ColumnMapping{Alias: a.JoinColumn, Kind: ColumnAssociation, Association: a})
	}

	for _, f := range meta.Fields {
		appendField(f)
	}
	for _, a := range meta.OwnedAssociations() {
		appendAssociation(a)
	}

	if meta.Inheritance.Kind == ports.InheritanceSingleTable {
		descendants, err := b.descendants(meta)
		if err != nil {
			return nil, nil, err
		}
		for _, d := range descendants {
			for _, f := range d.Fields {
				appendField(f)
			}
			for _, a := range d.OwnedAssociations() {
				appendAssociation(a)
			}
		}
	}

	if disc := meta.Inheritance.DiscriminatorColumn; disc != "" && !seen[disc] {
		seen[disc] = true
		src := "e"
		if joined {
			src = "r"
		}
		cols = append(cols, fmt.Sprintf("%s.%s AS %s", src, quoteIdent(disc), quoteIdent(disc)))
		mapping = append(mapping, ColumnMapping{Alias: disc, Kind: ColumnDiscriminator})
	}

	rev := b.naming.RevisionColumn
	cols = append(cols, fmt.Sprintf("e.%s AS %s", quoteIdent(rev), quoteIdent(rev)))
	mapping = append(mapping, ColumnMapping{Alias: rev, Kind: ColumnRevision})

	revType := b.naming.RevisionTypeColumn
	cols = append(cols, fmt.Sprintf("e.%s AS %s", quoteIdent(revType), quoteIdent(revType)))
	mapping = append(mapping, ColumnMapping{Alias: revType, Kind: ColumnRevType})

	return cols, mapping, nil
}

// fromClause renders the FROM clause. A joined-table subtype self-joins the
// root shadow table on (revision, identity) to pull root-only columns, since
// root and subtype rows are written pairwise at the same revision.
func (b *QueryBuilder) fromClause(meta *ports.TypeMeta) (string, error) {
	from := fmt.Sprintf("FROM %s e", quoteIdent(b.naming.AuditTable(meta)))
	if meta.Inheritance.Kind != ports.InheritanceJoined || meta.IsHierarchyRoot() {
		return from, nil
	}
	root, err := b.provider.Meta(meta.Inheritance.Root)
	if err != nil {
		return "", fmt.Errorf("loading root metadata for %s: %w", meta.Name, err)
	}
	rev := quoteIdent(b.naming.RevisionColumn)
	on := []string{fmt.Sprintf("r.%s = e.%s", rev, rev)}
	for _, f := range meta.IdentifierFields() {
		on = append(on, fmt.Sprintf("r.%s = e.%s", quoteIdent(f.Column), quoteIdent(f.Column)))
	}
	for _, a := range meta.Associations {
		if a.Identifier && a.JoinColumn != "" {
			on = append(on, fmt.Sprintf("r.%s = e.%s", quoteIdent(a.JoinColumn), quoteIdent(a.JoinColumn)))
		}
	}
	return fmt.Sprintf("%s JOIN %s r ON %s", from, quoteIdent(b.naming.AuditTable(root)), strings.Join(on, " AND ")), nil
}

// appendDiscriminatorFilter restricts single-table queries to the requested
// subtype and its known subclasses, so siblings sharing the table stay out of
// the result.
func (b *QueryBuilder) appendDiscriminatorFilter(meta *ports.TypeMeta, conds []string, args []any) ([]string, []any, error) {
	if meta.Inheritance.Kind != ports.InheritanceSingleTable {
		return conds, args, nil
	}
	values, err := b.discriminatorValues(meta)
	if err != nil {
		return nil, nil, err
	}
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		args = append(args, v)
	}
	conds = append(conds, fmt.Sprintf("e.%s IN (%s)",
		quoteIdent(meta.Inheritance.DiscriminatorColumn), strings.Join(placeholders, ", ")))
	return conds, args, nil
}

// discriminatorValues collects the type's own discriminator value plus every
// descendant's, in registration order.
func (b *QueryBuilder) discriminatorValues(meta *ports.TypeMeta) ([]string, error) {
	values := []string{meta.Inheritance.DiscriminatorValue}
	descendants, err := b.descendants(meta)
	if err != nil {
		return nil, err
	}
	for _, d := range descendants {
		values = append(values, d.Inheritance.DiscriminatorValue)
	}
	return values, nil
}

// descendants walks the hierarchy below meta breadth-first.
func (b *QueryBuilder) descendants(meta *ports.TypeMeta) ([]*ports.TypeMeta, error) {
	var out []*ports.TypeMeta
	queue := append([]string(nil), meta.Inheritance.Children...)
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		child, err := b.provider.Meta(name)
		if err != nil {
			return nil, fmt.Errorf("loading metadata for subtype %s: %w", name, err)
		}
		out = append(out, child)
		queue = append(queue, child.Inheritance.Children...)
	}
	return out, nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
