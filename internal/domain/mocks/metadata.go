package mocks

import (
	"fmt"
	"sort"

	"github.com/ersonp/chronicle/internal/domain/ports"
)

// MetadataProvider is a mock implementation of ports.MetadataProvider backed
// by plain maps.
type MetadataProvider struct {
	Metas    map[string]*ports.TypeMeta
	Audited  map[string]bool
	Ignored  map[string]map[string]bool
	MetaErr  error
}

// NewMetadataProvider creates a new mock MetadataProvider.
func NewMetadataProvider() *MetadataProvider {
	return &MetadataProvider{
		Metas:   make(map[string]*ports.TypeMeta),
		Audited: make(map[string]bool),
		Ignored: make(map[string]map[string]bool),
	}
}

// Add registers a type as audited.
func (m *MetadataProvider) Add(meta *ports.TypeMeta) {
	m.Metas[meta.Name] = meta
	m.Audited[meta.Name] = true
}

// AddUnaudited registers a mapped type without audit metadata.
func (m *MetadataProvider) AddUnaudited(meta *ports.TypeMeta) {
	m.Metas[meta.Name] = meta
	m.Audited[meta.Name] = false
}

// IsAudited reports whether the type has audit metadata.
func (m *MetadataProvider) IsAudited(typeName string) bool {
	return m.Audited[typeName]
}

// AuditedTypes returns the names of all audited types, sorted.
func (m *MetadataProvider) AuditedTypes() []string {
	names := make([]string, 0, len(m.Audited))
	for name, audited := range m.Audited {
		if audited {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// IgnoredFields returns the set of field names excluded from versioning.
func (m *MetadataProvider) IgnoredFields(typeName string) map[string]bool {
	return m.Ignored[typeName]
}

// Meta returns the mapping metadata for the type.
func (m *MetadataProvider) Meta(typeName string) (*ports.TypeMeta, error) {
	if m.MetaErr != nil {
		return nil, m.MetaErr
	}
	meta, ok := m.Metas[typeName]
	if !ok {
		return nil, fmt.Errorf("no metadata for type %q", typeName)
	}
	return meta, nil
}
