// Package registry provides a reflection-based MetadataProvider for Go
// struct models.
package registry

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jinzhu/inflection"

	"github.com/ersonp/chronicle/internal/domain/ports"
)

var timeType = reflect.TypeOf(time.Time{})

// Registry implements ports.MetadataProvider by deriving mapping metadata
// from registered struct models. Registration happens once at startup;
// lookups are safe for concurrent use afterwards.
type Registry struct {
	mu      sync.RWMutex
	types   map[string]*ports.TypeMeta
	audited map[string]bool
	ignored map[string]map[string]bool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		types:   make(map[string]*ports.TypeMeta),
		audited: make(map[string]bool),
		ignored: make(map[string]map[string]bool),
	}
}

type options struct {
	name               string
	table              string
	ignored            []string
	singleTableRoot    bool
	singleTableChild   bool
	joinedChild        bool
	parent             string
	discriminatorCol   string
	discriminatorValue string
}

// Option customizes a registration.
type Option func(*options)

// WithName overrides the type name derived from the struct.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithTable overrides the table name derived from the type name.
func WithTable(table string) Option {
	return func(o *options) { o.table = table }
}

// WithIgnored excludes the named fields from versioning. They stay mapped on
// the live side but never appear in shadow-table queries.
func WithIgnored(fields ...string) Option {
	return func(o *options) { o.ignored = append(o.ignored, fields...) }
}

// WithSingleTableRoot declares the type as the root of a single-table
// hierarchy discriminated by the given column and value.
func WithSingleTableRoot(column, value string) Option {
	return func(o *options) {
		o.singleTableRoot = true
		o.discriminatorCol = column
		o.discriminatorValue = value
	}
}

// WithSingleTableChild declares the type as a subtype stored in its parent's
// table under the given discriminator value. The parent must be registered
// first.
func WithSingleTableChild(parent, value string) Option {
	return func(o *options) {
		o.singleTableChild = true
		o.parent = parent
		o.discriminatorValue = value
	}
}

// WithJoinedChild declares the type as a subtype with its own table, sharing
// the identifier with the parent's table. The parent must be registered first.
func WithJoinedChild(parent string) Option {
	return func(o *options) {
		o.joinedChild = true
		o.parent = parent
	}
}

// Register derives metadata from a struct model and records it as audited.
// The model is a struct value or pointer; fields map to snake_case columns
// unless a `db` tag overrides them. A field named ID, or tagged `audit:"id"`,
// becomes the identifier; `audit:"-"` excludes a field from versioning.
// Pointer-to-struct fields become owning to-one associations on the column
// `<field>_id`; slice fields of struct element type become to-many endpoints.
func (r *Registry) Register(model any, opts ...Option) error {
	return r.register(model, true, opts)
}

// RegisterReference records a mapped but unaudited type, so reconstruction
// can build identifier-only references to it.
func (r *Registry) RegisterReference(model any, opts ...Option) error {
	return r.register(model, false, opts)
}

func (r *Registry) register(model any, audited bool, opts []Option) error {
	rt, err := structType(model)
	if err != nil {
		return err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	name := o.name
	if name == "" {
		name = rt.Name()
	}
	if name == "" {
		return fmt.Errorf("anonymous model needs WithName")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.types[name]; exists {
		return fmt.Errorf("type %q is already registered", name)
	}

	meta := &ports.TypeMeta{
		Name:  name,
		Table: o.table,
		Model: rt,
	}
	if meta.Table == "" {
		meta.Table = inflection.Plural(toSnake(name))
	}

	var parentMeta *ports.TypeMeta
	switch {
	case o.singleTableRoot:
		meta.Inheritance = ports.InheritanceMeta{
			Kind:                ports.InheritanceSingleTable,
			Root:                name,
			DiscriminatorColumn: o.discriminatorCol,
			DiscriminatorValue:  o.discriminatorValue,
		}
	case o.singleTableChild:
		parentMeta = r.types[o.parent]
		if parentMeta == nil {
			return fmt.Errorf("parent type %q is not registered", o.parent)
		}
		if parentMeta.Inheritance.Kind != ports.InheritanceSingleTable {
			return fmt.Errorf("parent type %q is not a single-table hierarchy member", o.parent)
		}
		// Subtypes share the root's table.
		meta.Table = parentMeta.Table
		meta.Inheritance = ports.InheritanceMeta{
			Kind:                ports.InheritanceSingleTable,
			Root:                parentMeta.Inheritance.Root,
			Parent:              o.parent,
			DiscriminatorColumn: parentMeta.Inheritance.DiscriminatorColumn,
			DiscriminatorValue:  o.discriminatorValue,
		}
	case o.joinedChild:
		parentMeta = r.types[o.parent]
		if parentMeta == nil {
			return fmt.Errorf("parent type %q is not registered", o.parent)
		}
		root := parentMeta.Inheritance.Root
		if root == "" {
			root = o.parent
		}
		meta.Inheritance = ports.InheritanceMeta{
			Kind:   ports.InheritanceJoined,
			Root:   root,
			Parent: o.parent,
		}
		if parentMeta.Inheritance.Kind != ports.InheritanceNone && parentMeta.Inheritance.Kind != ports.InheritanceJoined {
			return fmt.Errorf("parent type %q mixes inheritance strategies", o.parent)
		}
		parentMeta.Inheritance.Kind = ports.InheritanceJoined
		if parentMeta.Inheritance.Root == "" {
			parentMeta.Inheritance.Root = o.parent
		}
	}

	inherited := make(map[string]bool)
	if parentMeta != nil {
		for _, f := range parentMeta.Fields {
			inherited[f.Name] = true
		}
		for _, a := range parentMeta.Associations {
			inherited[a.Name] = true
		}
	}

	ignored := make(map[string]bool)
	if err := r.collect(rt, meta, inherited, ignored); err != nil {
		return err
	}
	for _, f := range o.ignored {
		ignored[f] = true
	}

	if audited && len(meta.IdentifierFields()) == 0 && !hasIdentifierAssociation(meta) {
		return fmt.Errorf("type %q declares no identifier field", name)
	}

	if parentMeta != nil {
		parentMeta.Inheritance.Children = append(parentMeta.Inheritance.Children, name)
	}

	r.types[name] = meta
	r.audited[name] = audited
	if len(ignored) > 0 {
		r.ignored[name] = ignored
	}
	return nil
}

func (r *Registry) collect(rt reflect.Type, meta *ports.TypeMeta, inherited, ignored map[string]bool) error {
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if sf.PkgPath != "" {
			continue
		}
		if sf.Anonymous && sf.Type.Kind() == reflect.Struct && sf.Type != timeType {
			if err := r.collect(sf.Type, meta, inherited, ignored); err != nil {
				return err
			}
			continue
		}

		auditTag := sf.Tag.Get("audit")
		if auditTag == "-" {
			ignored[sf.Name] = true
			continue
		}

		column := sf.Tag.Get("db")
		if column == "" {
			column = toSnake(sf.Name)
		}
		identifier := auditTag == "id" || (auditTag == "" && sf.Name == "ID")

		switch {
		case sf.Type.Kind() == reflect.Pointer && sf.Type.Elem().Kind() == reflect.Struct && sf.Type.Elem() != timeType:
			joinColumn := sf.Tag.Get("db")
			if joinColumn == "" {
				joinColumn = toSnake(sf.Name) + "_id"
			}
			meta.Associations = append(meta.Associations, ports.AssociationMeta{
				Name:       sf.Name,
				Kind:       ports.AssociationToOne,
				Target:     sf.Type.Elem().Name(),
				JoinColumn: joinColumn,
				Identifier: auditTag == "id",
				Inherited:  inherited[sf.Name],
			})
		case sf.Type.Kind() == reflect.Slice && sf.Type.Elem().Kind() != reflect.Uint8:
			target := sf.Type.Elem()
			if target.Kind() == reflect.Pointer {
				target = target.Elem()
			}
			if target.Kind() != reflect.Struct {
				return fmt.Errorf("field %s.%s: unsupported slice element %s", rt.Name(), sf.Name, target)
			}
			meta.Associations = append(meta.Associations, ports.AssociationMeta{
				Name:      sf.Name,
				Kind:      ports.AssociationToMany,
				Target:    target.Name(),
				Inherited: inherited[sf.Name],
			})
		default:
			meta.Fields = append(meta.Fields, ports.FieldMeta{
				Name:       sf.Name,
				Column:     column,
				Identifier: identifier,
				Inherited:  inherited[sf.Name],
				GoType:     sf.Type,
			})
		}
	}
	return nil
}

// IsAudited reports whether the type has audit metadata.
func (r *Registry) IsAudited(typeName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.audited[typeName]
}

// AuditedTypes returns the names of all audited types, sorted.
func (r *Registry) AuditedTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.audited))
	for name, audited := range r.audited {
		if audited {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// IgnoredFields returns the set of field names excluded from versioning.
func (r *Registry) IgnoredFields(typeName string) map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ignored[typeName]
}

// Meta returns the mapping metadata for the type.
func (r *Registry) Meta(typeName string) (*ports.TypeMeta, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	meta, ok := r.types[typeName]
	if !ok {
		return nil, fmt.Errorf("no metadata for type %q", typeName)
	}
	return meta, nil
}

func structType(model any) (reflect.Type, error) {
	rt := reflect.TypeOf(model)
	if rt == nil {
		return nil, fmt.Errorf("model is nil")
	}
	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	if rt.Kind() != reflect.Struct {
		return nil, fmt.Errorf("model must be a struct, got %s", rt.Kind())
	}
	return rt, nil
}

func hasIdentifierAssociation(meta *ports.TypeMeta) bool {
	for _, a := range meta.Associations {
		if a.Identifier {
			return true
		}
	}
	return false
}

// toSnake converts CamelCase names to snake_case, keeping acronym runs like
// "ID" or "URL" as one word.
func toSnake(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	runes := []rune(s)
	for i, r := range runes {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				prevLower := runes[i-1] >= 'a' && runes[i-1] <= 'z'
				nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
				if prevLower || nextLower {
					b.WriteByte('_')
				}
			}
			b.WriteRune(r - 'A' + 'a')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
