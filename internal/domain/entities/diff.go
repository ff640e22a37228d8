package entities

import "sort"

// FieldChange holds the outcome of comparing one field between two historical
// states. Exactly one of the two shapes is populated: Old/New when the field
// differs, Value when it is unchanged.
type FieldChange struct {
	Changed bool `json:"changed"`
	Old     any  `json:"old,omitempty"`
	New     any  `json:"new,omitempty"`
	Value   any  `json:"value,omitempty"`
}

// Diff maps field names to their change between two historical states of the
// same record.
type Diff map[string]FieldChange

// HasChanges reports whether any field differs between the two states.
func (d Diff) HasChanges() bool {
	for _, c := range d {
		if c.Changed {
			return true
		}
	}
	return false
}

// ChangedFields returns the names of all differing fields, sorted.
func (d Diff) ChangedFields() []string {
	fields := make([]string, 0, len(d))
	for name, c := range d {
		if c.Changed {
			fields = append(fields, name)
		}
	}
	sort.Strings(fields)
	return fields
}
