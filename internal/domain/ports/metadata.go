package ports

import "reflect"

// AssociationKind distinguishes association endpoints. Only owning-side to-one
// associations carry a foreign-key column in the shadow table; to-many
// endpoints are recorded so callers can tell them apart, but they are never
// versioned because their data lives in the other side's table.
type AssociationKind string

const (
	AssociationToOne  AssociationKind = "to_one"
	AssociationToMany AssociationKind = "to_many"
)

// InheritanceKind names the storage strategy of a type hierarchy.
type InheritanceKind string

const (
	// InheritanceNone marks a standalone type.
	InheritanceNone InheritanceKind = ""
	// InheritanceSingleTable stores a whole hierarchy in the root's table,
	// discriminated by a dedicated column.
	InheritanceSingleTable InheritanceKind = "single_table"
	// InheritanceJoined stores subtype-specific columns in the subtype's own
	// table, sharing the identifier with the root's table.
	InheritanceJoined InheritanceKind = "joined"
)

// FieldMeta describes one scalar, column-mapped field of a type.
type FieldMeta struct {
	Name       string
	Column     string
	Identifier bool
	// Inherited marks fields declared on an ancestor type. For joined
	// hierarchies these columns live in the root's table.
	Inherited bool
	// GoType is the field's native type when the owning TypeMeta carries a Go
	// model; nil for schema-file types.
	GoType reflect.Type
	// StorageType names the declared value shape for model-less types:
	// "string", "int", "float", "bool", "time" or "bytes".
	StorageType string
}

// AssociationMeta describes an association endpoint declared on a type.
type AssociationMeta struct {
	Name   string
	Kind   AssociationKind
	Target string
	// JoinColumn is the owning-side foreign-key column; empty for to-many
	// endpoints.
	JoinColumn string
	// Identifier marks associations that are part of the owning type's
	// identity (composite keys containing a to-one association).
	Identifier bool
	Inherited  bool
}

// InheritanceMeta places a type inside its hierarchy, if any.
type InheritanceMeta struct {
	Kind InheritanceKind
	// Root and Parent are type names; Root equals the type's own name on
	// hierarchy roots.
	Root   string
	Parent string
	// DiscriminatorColumn and DiscriminatorValue are set on every member of a
	// discriminated hierarchy.
	DiscriminatorColumn string
	DiscriminatorValue  string
	// Children lists direct subtypes in registration order.
	Children []string
}

// TypeMeta is the full audit-relevant shape of one record type.
type TypeMeta struct {
	Name  string
	Table string
	// Model is the Go struct type reconstructed instances are allocated from.
	// When nil, instances are map-backed.
	Model        reflect.Type
	Fields       []FieldMeta
	Associations []AssociationMeta
	Inheritance  InheritanceMeta
}

// Field returns the scalar field with the given name.
func (m *TypeMeta) Field(name string) (FieldMeta, bool) {
	for _, f := range m.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldMeta{}, false
}

// Association returns the association with the given name.
func (m *TypeMeta) Association(name string) (AssociationMeta, bool) {
	for _, a := range m.Associations {
		if a.Name == name {
			return a, true
		}
	}
	return AssociationMeta{}, false
}

// IdentifierFields returns the scalar identifier fields in declaration order.
func (m *TypeMeta) IdentifierFields() []FieldMeta {
	var out []FieldMeta
	for _, f := range m.Fields {
		if f.Identifier {
			out = append(out, f)
		}
	}
	return out
}

// IdentifierNames returns the names of all identifier fields and identifier
// associations in declaration order.
func (m *TypeMeta) IdentifierNames() []string {
	var out []string
	for _, f := range m.Fields {
		if f.Identifier {
			out = append(out, f.Name)
		}
	}
	for _, a := range m.Associations {
		if a.Identifier {
			out = append(out, a.Name)
		}
	}
	return out
}

// OwnedAssociations returns the to-one associations carrying a foreign-key
// column, in declaration order.
func (m *TypeMeta) OwnedAssociations() []AssociationMeta {
	var out []AssociationMeta
	for _, a := range m.Associations {
		if a.Kind == AssociationToOne && a.JoinColumn != "" {
			out = append(out, a)
		}
	}
	return out
}

// IsHierarchyRoot reports whether the type is the root of its hierarchy (or a
// standalone type).
func (m *TypeMeta) IsHierarchyRoot() bool {
	return m.Inheritance.Kind == InheritanceNone || m.Inheritance.Root == m.Name
}

// MetadataProvider answers audit-metadata questions for record types. It
// delegates to whatever mapping source the application uses (a reflection
// registry, a schema file) and is consulted on every read - implementations
// are expected to be cheap and safe for concurrent use.
type MetadataProvider interface {
	// IsAudited reports whether the type has audit metadata.
	IsAudited(typeName string) bool

	// AuditedTypes returns the names of all audited types, sorted.
	AuditedTypes() []string

	// IgnoredFields returns the set of field names excluded from versioning
	// for the type.
	IgnoredFields(typeName string) map[string]bool

	// Meta returns the mapping metadata for the type. It also resolves types
	// that are mapped but not audited, so reconstruction can build
	// identifier-only references to them.
	Meta(typeName string) (*TypeMeta, error)
}
