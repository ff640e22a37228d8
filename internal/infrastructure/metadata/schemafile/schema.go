// Package schemafile provides a MetadataProvider loaded from a YAML schema
// file, for auditing tables that have no Go model in the process.
package schemafile

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/ersonp/chronicle/internal/domain/ports"
)

// File is the top-level shape of an audit schema file.
type File struct {
	Types []TypeDef `yaml:"types"`
}

// TypeDef describes one audited type.
type TypeDef struct {
	Name    string        `yaml:"name"`
	Table   string        `yaml:"table"`
	Audited *bool         `yaml:"audited,omitempty"`
	Fields  []FieldDef    `yaml:"fields,omitempty"`
	Rels    []RelationDef `yaml:"relations,omitempty"`
	Ignored []string      `yaml:"ignored,omitempty"`

	Inheritance *InheritanceDef `yaml:"inheritance,omitempty"`
}

// FieldDef describes one scalar field.
type FieldDef struct {
	Name       string `yaml:"name"`
	Column     string `yaml:"column,omitempty"`
	Type       string `yaml:"type,omitempty"`
	Identifier bool   `yaml:"identifier,omitempty"`
}

// RelationDef describes one association endpoint.
type RelationDef struct {
	Name       string `yaml:"name"`
	Target     string `yaml:"target"`
	Kind       string `yaml:"kind,omitempty"`
	JoinColumn string `yaml:"join_column,omitempty"`
	Identifier bool   `yaml:"identifier,omitempty"`
}

// InheritanceDef places a type in a hierarchy.
type InheritanceDef struct {
	Kind               string `yaml:"kind"`
	Parent             string `yaml:"parent,omitempty"`
	DiscriminatorCol   string `yaml:"discriminator_column,omitempty"`
	DiscriminatorValue string `yaml:"discriminator_value,omitempty"`
}

var storageTypes = map[string]bool{
	"":       true,
	"string": true,
	"int":    true,
	"float":  true,
	"bool":   true,
	"time":   true,
	"bytes":  true,
}

// Provider implements ports.MetadataProvider from a parsed schema file. All
// instances reconstructed through it are map-backed.
type Provider struct {
	types   map[string]*ports.TypeMeta
	audited map[string]bool
	ignored map[string]map[string]bool
}

// Load reads and parses a schema file.
func Load(path string) (*Provider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema file: %w", err)
	}
	return Parse(data)
}

// Parse builds a Provider from schema file content. Parent types must be
// declared before their subtypes; subtypes inherit the parent's fields and
// relations without re-declaring them.
func Parse(data []byte) (*Provider, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing schema file: %w", err)
	}

	p := &Provider{
		types:   make(map[string]*ports.TypeMeta),
		audited: make(map[string]bool),
		ignored: make(map[string]map[string]bool),
	}
	for _, def := range file.Types {
		if err := p.add(def); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Provider) add(def TypeDef) error {
	if def.Name == "" {
		return fmt.Errorf("schema type without a name")
	}
	if _, exists := p.types[def.Name]; exists {
		return fmt.Errorf("schema type %q declared twice", def.Name)
	}

	meta := &ports.TypeMeta{
		Name:  def.Name,
		Table: def.Table,
	}

	var parent *ports.TypeMeta
	if def.Inheritance != nil {
		inh, parentMeta, err := p.resolveInheritance(def)
		if err != nil {
			return err
		}
		meta.Inheritance = inh
		parent = parentMeta
		if meta.Inheritance.Kind == ports.InheritanceSingleTable && parent != nil {
			meta.Table = parent.Table
		}
	}
	if meta.Table == "" {
		return fmt.Errorf("schema type %q without a table", def.Name)
	}

	if parent != nil {
		for _, f := range parent.Fields {
			f.Inherited = true
			meta.Fields = append(meta.Fields, f)
		}
		for _, a := range parent.Associations {
			a.Inherited = true
			meta.Associations = append(meta.Associations, a)
		}
	}

	for _, f := range def.Fields {
		if f.Name == "" {
			return fmt.Errorf("type %q: field without a name", def.Name)
		}
		if !storageTypes[f.Type] {
			return fmt.Errorf("type %q: field %q has unknown type %q", def.Name, f.Name, f.Type)
		}
		column := f.Column
		if column == "" {
			column = f.Name
		}
		meta.Fields = append(meta.Fields, ports.FieldMeta{
			Name:        f.Name,
			Column:      column,
			Identifier:  f.Identifier,
			StorageType: f.Type,
		})
	}

	for _, rel := range def.Rels {
		if rel.Name == "" || rel.Target == "" {
			return fmt.Errorf("type %q: relation needs a name and a target", def.Name)
		}
		kind := ports.AssociationKind(rel.Kind)
		if rel.Kind == "" {
			kind = ports.AssociationToOne
		}
		if kind != ports.AssociationToOne && kind != ports.AssociationToMany {
			return fmt.Errorf("type %q: relation %q has unknown kind %q", def.Name, rel.Name, rel.Kind)
		}
		joinColumn := rel.JoinColumn
		if kind == ports.AssociationToOne && joinColumn == "" {
			joinColumn = rel.Name + "_id"
		}
		if kind == ports.AssociationToMany {
			joinColumn = ""
		}
		meta.Associations = append(meta.Associations, ports.AssociationMeta{
			Name:       rel.Name,
			Kind:       kind,
			Target:     rel.Target,
			JoinColumn: joinColumn,
			Identifier: rel.Identifier,
		})
	}

	audited := def.Audited == nil || *def.Audited
	if audited && len(meta.IdentifierNames()) == 0 {
		return fmt.Errorf("audited type %q declares no identifier field", def.Name)
	}

	if parent != nil {
		parent.Inheritance.Children = append(parent.Inheritance.Children, def.Name)
	}

	p.types[def.Name] = meta
	p.audited[def.Name] = audited
	if len(def.Ignored) > 0 {
		ignored := make(map[string]bool, len(def.Ignored))
		for _, f := range def.Ignored {
			ignored[f] = true
		}
		p.ignored[def.Name] = ignored
	}
	return nil
}

func (p *Provider) resolveInheritance(def TypeDef) (ports.InheritanceMeta, *ports.TypeMeta, error) {
	inh := def.Inheritance
	switch inh.Kind {
	case "single_table":
		if inh.Parent == "" {
			if inh.DiscriminatorCol == "" || inh.DiscriminatorValue == "" {
				return ports.InheritanceMeta{}, nil, fmt.Errorf("type %q: single-table root needs a discriminator column and value", def.Name)
			}
			return ports.InheritanceMeta{
				Kind:                ports.InheritanceSingleTable,
				Root:                def.Name,
				DiscriminatorColumn: inh.DiscriminatorCol,
				DiscriminatorValue:  inh.DiscriminatorValue,
			}, nil, nil
		}
		parent, ok := p.types[inh.Parent]
		if !ok {
			return ports.InheritanceMeta{}, nil, fmt.Errorf("type %q: parent %q is not declared yet", def.Name, inh.Parent)
		}
		if parent.Inheritance.Kind != ports.InheritanceSingleTable {
			return ports.InheritanceMeta{}, nil, fmt.Errorf("type %q: parent %q is not a single-table hierarchy member", def.Name, inh.Parent)
		}
		if inh.DiscriminatorValue == "" {
			return ports.InheritanceMeta{}, nil, fmt.Errorf("type %q: single-table subtype needs a discriminator value", def.Name)
		}
		return ports.InheritanceMeta{
			Kind:                ports.InheritanceSingleTable,
			Root:                parent.Inheritance.Root,
			Parent:              inh.Parent,
			DiscriminatorColumn: parent.Inheritance.DiscriminatorColumn,
			DiscriminatorValue:  inh.DiscriminatorValue,
		}, parent, nil
	case "joined":
		if inh.Parent == "" {
			return ports.InheritanceMeta{Kind: ports.InheritanceJoined, Root: def.Name}, nil, nil
		}
		parent, ok := p.types[inh.Parent]
		if !ok {
			return ports.InheritanceMeta{}, nil, fmt.Errorf("type %q: parent %q is not declared yet", def.Name, inh.Parent)
		}
		root := parent.Inheritance.Root
		if root == "" {
			root = inh.Parent
			parent.Inheritance.Kind = ports.InheritanceJoined
			parent.Inheritance.Root = inh.Parent
		}
		return ports.InheritanceMeta{
			Kind:   ports.InheritanceJoined,
			Root:   root,
			Parent: inh.Parent,
		}, parent, nil
	}
	return ports.InheritanceMeta{}, nil, fmt.Errorf("type %q: unknown inheritance kind %q", def.Name, inh.Kind)
}

// IsAudited reports whether the type has audit metadata.
func (p *Provider) IsAudited(typeName string) bool {
	return p.audited[typeName]
}

// AuditedTypes returns the names of all audited types, sorted.
func (p *Provider) AuditedTypes() []string {
	names := make([]string, 0, len(p.audited))
	for name, audited := range p.audited {
		if audited {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// IgnoredFields returns the set of field names excluded from versioning.
func (p *Provider) IgnoredFields(typeName string) map[string]bool {
	return p.ignored[typeName]
}

// Meta returns the mapping metadata for the type.
func (p *Provider) Meta(typeName string) (*ports.TypeMeta, error) {
	meta, ok := p.types[typeName]
	if !ok {
		return nil, fmt.Errorf("no metadata for type %q", typeName)
	}
	return meta, nil
}
