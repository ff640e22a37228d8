package services

import (
	"bytes"
	"fmt"
	"reflect"
	"time"

	"github.com/ersonp/chronicle/internal/domain/entities"
	"github.com/ersonp/chronicle/internal/domain/ports"
)

// Comparator computes field-level diffs between two reconstructed instances
// of one audited type. It has no side effects; the result is a pure function
// of the two instances and the mapping metadata.
type Comparator struct {
	provider ports.MetadataProvider
}

// NewComparator creates a new Comparator.
func NewComparator(provider ports.MetadataProvider) *Comparator {
	return &Comparator{provider: provider}
}

// Compare builds the union of field names over both instances and reports,
// per field, either the differing old/new pair or the unchanged value, never
// both. Fields absent on one side count as nil. Associated entities compare
// by identifier tuple rather than by reference, so re-hydrated instances that
// are logically identical stay equal.
func (c *Comparator) Compare(meta *ports.TypeMeta, oldInstance, newInstance any) (entities.Diff, error) {
	oldFields, err := fieldValues(oldInstance)
	if err != nil {
		return nil, fmt.Errorf("reading old instance: %w", err)
	}
	newFields, err := fieldValues(newInstance)
	if err != nil {
		return nil, fmt.Errorf("reading new instance: %w", err)
	}

	names := make(map[string]bool, len(oldFields)+len(newFields))
	for name := range oldFields {
		names[name] = true
	}
	for name := range newFields {
		names[name] = true
	}

	diff := make(entities.Diff, len(names))
	for name := range names {
		ov := oldFields[name]
		nv := newFields[name]
		equal, err := c.equalValues(meta, name, ov, nv)
		if err != nil {
			return nil, fmt.Errorf("comparing field %q: %w", name, err)
		}
		if equal {
			diff[name] = entities.FieldChange{Value: nv}
		} else {
			diff[name] = entities.FieldChange{Changed: true, Old: ov, New: nv}
		}
	}
	return diff, nil
}

func (c *Comparator) equalValues(meta *ports.TypeMeta, name string, a, b any) (bool, error) {
	// Normalize typed nil pointers so an absent association compares as nil.
	if isNilValue(a) {
		a = nil
	}
	if isNilValue(b) {
		b = nil
	}
	if a == nil && b == nil {
		return true, nil
	}
	if a == nil || b == nil {
		return false, nil
	}
	if assoc, ok := meta.Association(name); ok && assoc.Kind == ports.AssociationToOne {
		ta, err := c.identifierTuple(assoc.Target, a)
		if err != nil {
			return false, err
		}
		tb, err := c.identifierTuple(assoc.Target, b)
		if err != nil {
			return false, err
		}
		if len(ta) != len(tb) {
			return false, nil
		}
		for i := range ta {
			if !equalScalar(ta[i], tb[i]) {
				return false, nil
			}
		}
		return true, nil
	}
	return equalScalar(a, b), nil
}

// identifierTuple extracts an instance's identity as an ordered tuple, so a
// multi-field identity compares as a whole.
func (c *Comparator) identifierTuple(typeName string, instance any) ([]any, error) {
	meta, err := c.provider.Meta(typeName)
	if err != nil {
		return nil, fmt.Errorf("loading metadata for %s: %w", typeName, err)
	}
	names := meta.IdentifierNames()
	tuple := make([]any, 0, len(names))
	for _, name := range names {
		v, ok := instanceField(instance, name)
		if !ok {
			return nil, fmt.Errorf("instance of %s has no field %q", typeName, name)
		}
		tuple = append(tuple, v)
	}
	return tuple, nil
}

func isNilValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func instanceField(instance any, name string) (any, bool) {
	if m, ok := instance.(map[string]any); ok {
		v, ok := m[name]
		return v, ok
	}
	rv := reflect.ValueOf(instance)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, false
	}
	fv := rv.FieldByName(name)
	if !fv.IsValid() {
		return nil, false
	}
	return fv.Interface(), true
}

// fieldValues flattens an instance into a field-name to value map. Embedded
// structs contribute their fields at the top level, matching how metadata
// flattens inherited fields.
func fieldValues(instance any) (map[string]any, error) {
	out := make(map[string]any)
	if instance == nil {
		return out, nil
	}
	if m, ok := instance.(map[string]any); ok {
		for k, v := range m {
			out[k] = v
		}
		return out, nil
	}
	rv := reflect.ValueOf(instance)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return out, nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("unsupported instance type %T", instance)
	}
	collectFields(rv, out)
	return out, nil
}

func collectFields(rv reflect.Value, out map[string]any) {
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.PkgPath != "" {
			continue
		}
		if sf.Anonymous && sf.Type.Kind() == reflect.Struct && sf.Type != timeType {
			collectFields(rv.Field(i), out)
			continue
		}
		out[sf.Name] = rv.Field(i).Interface()
	}
}

func equalScalar(a, b any) bool {
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Equal(tb)
		}
	}
	if ba, ok := a.([]byte); ok {
		if bb, ok := b.([]byte); ok {
			return bytes.Equal(ba, bb)
		}
	}
	return reflect.DeepEqual(a, b)
}
