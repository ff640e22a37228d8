package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/ersonp/chronicle/internal/domain/ports"
)

// LoadPolicy controls how owning to-one associations are resolved during
// reconstruction.
type LoadPolicy struct {
	// LoadAudited resolves audited targets recursively at the same target
	// revision, keeping the historical graph consistent at one point in time.
	LoadAudited bool
	// LoadNative represents targets without audit metadata as
	// identifier-only references instead of failing.
	LoadNative bool
}

// DefaultLoadPolicy enables both audited and native association loading.
func DefaultLoadPolicy() LoadPolicy {
	return LoadPolicy{LoadAudited: true, LoadNative: true}
}

// FindFunc resolves one record at a revision. The reader supplies it so
// association loading runs through the full find path.
type FindFunc func(ctx context.Context, typeName string, identity map[string]any, revision int64) (any, error)

type cacheKey struct {
	typeName string
	identity string
	revision int64
}

// Reconstructor hydrates shadow rows back into record instances. The identity
// cache is scoped to one reconstructor and keyed (type, identity, revision);
// it bounds recursion on cyclic association graphs and avoids duplicate work
// within one logical read session. Callers clear it between unrelated reads.
type Reconstructor struct {
	provider ports.MetadataProvider
	policy   LoadPolicy
	find     FindFunc
	cache    map[cacheKey]any
}

// NewReconstructor creates a new Reconstructor.
func NewReconstructor(provider ports.MetadataProvider, policy LoadPolicy) *Reconstructor {
	return &Reconstructor{
		provider: provider,
		policy:   policy,
		cache:    make(map[cacheKey]any),
	}
}

// SetFinder wires the recursive lookup used for audited to-one targets.
func (r *Reconstructor) SetFinder(find FindFunc) {
	r.find = find
}

// ClearCache drops every cached instance.
func (r *Reconstructor) ClearCache() {
	r.cache = make(map[cacheKey]any)
}

// CreateEntity maps one shadow row back into a record instance. Fields are
// set directly without running any construction logic, since the row
// represents a past and possibly no-longer-valid state. Instances are cached
// before their associations resolve, so cyclic graphs terminate.
func (r *Reconstructor) CreateEntity(ctx context.Context, meta *ports.TypeMeta, q *Query, row ports.Row, revision int64) (any, error) {
	resolved, err := r.ResolveMeta(meta, q, row)
	if err != nil {
		return nil, err
	}
	identity, err := r.Identity(resolved, row)
	if err != nil {
		return nil, err
	}

	key := cacheKey{typeName: resolved.Name, identity: canonicalIdentity(identity), revision: revision}
	if inst, ok := r.cache[key]; ok {
		return inst, nil
	}

	var inst any
	if resolved.Model != nil {
		inst = reflect.New(resolved.Model).Interface()
	} else {
		inst = map[string]any{}
	}
	r.cache[key] = inst

	for _, cm := range q.Columns {
		if cm.Kind != ColumnField {
			continue
		}
		f, ok := fieldByColumn(resolved, cm.Alias)
		if !ok {
			// Column belongs to a sibling branch of the hierarchy.
			continue
		}
		raw, ok := row.Value(cm.Alias)
		if !ok {
			continue
		}
		if err := r.setField(inst, resolved, f, raw); err != nil {
			return nil, fmt.Errorf("field %s.%s: %w", resolved.Name, f.Name, err)
		}
	}

	for _, cm := range q.Columns {
		if cm.Kind != ColumnAssociation {
			continue
		}
		a, ok := associationByColumn(resolved, cm.Alias)
		if !ok {
			continue
		}
		raw, ok := row.Value(cm.Alias)
		if !ok || raw == nil {
			continue
		}
		ref, err := r.resolveAssociation(ctx, a, raw, revision)
		if err != nil {
			return nil, err
		}
		if err := r.setAssociation(inst, resolved, a, ref); err != nil {
			return nil, fmt.Errorf("association %s.%s: %w", resolved.Name, a.Name, err)
		}
	}

	return inst, nil
}

// ResolveMeta returns the concrete metadata for a row: when the row carries a
// discriminator value differing from the nominal type's, the mapped subtype
// wins.
func (r *Reconstructor) ResolveMeta(meta *ports.TypeMeta, q *Query, row ports.Row) (*ports.TypeMeta, error) {
	disc, ok := q.Column(ColumnDiscriminator)
	if !ok {
		return meta, nil
	}
	raw, ok := row.Value(disc.Alias)
	if !ok || raw == nil {
		return meta, nil
	}
	value, err := toString(raw)
	if err != nil {
		return nil, fmt.Errorf("reading discriminator for %s: %w", meta.Name, err)
	}
	if value == meta.Inheritance.DiscriminatorValue {
		return meta, nil
	}

	queue := append([]string(nil), meta.Inheritance.Children...)
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		child, err := r.provider.Meta(name)
		if err != nil {
			return nil, fmt.Errorf("loading metadata for subtype %s: %w", name, err)
		}
		if child.Inheritance.DiscriminatorValue == value {
			return child, nil
		}
		queue = append(queue, child.Inheritance.Children...)
	}
	return nil, fmt.Errorf("no subtype of %s maps discriminator value %q", meta.Name, value)
}

// Identity reads a row's identity values as a field-name map.
func (r *Reconstructor) Identity(meta *ports.TypeMeta, row ports.Row) (map[string]any, error) {
	identity := make(map[string]any)
	for _, f := range meta.Fields {
		if !f.Identifier {
			continue
		}
		raw, ok := row.Value(f.Column)
		if !ok {
			return nil, fmt.Errorf("row for %s is missing identifier column %q", meta.Name, f.Column)
		}
		v, err := r.nativeValue(raw, f)
		if err != nil {
			return nil, fmt.Errorf("identifier %s.%s: %w", meta.Name, f.Name, err)
		}
		identity[f.Name] = v
	}
	for _, a := range meta.Associations {
		if !a.Identifier || a.JoinColumn == "" {
			continue
		}
		raw, ok := row.Value(a.JoinColumn)
		if !ok {
			return nil, fmt.Errorf("row for %s is missing identifier column %q", meta.Name, a.JoinColumn)
		}
		identity[a.Name] = raw
	}
	if len(identity) == 0 {
		return nil, fmt.Errorf("type %s declares no identifier fields", meta.Name)
	}
	return identity, nil
}

func (r *Reconstructor) nativeValue(raw any, f ports.FieldMeta) (any, error) {
	if f.GoType != nil {
		v, err := convertValue(raw, f.GoType)
		if err != nil {
			return nil, err
		}
		return v.Interface(), nil
	}
	return convertStorage(raw, f.StorageType)
}

func (r *Reconstructor) setField(inst any, meta *ports.TypeMeta, f ports.FieldMeta, raw any) error {
	if meta.Model == nil {
		v, err := convertStorage(raw, f.StorageType)
		if err != nil {
			return err
		}
		inst.(map[string]any)[f.Name] = v
		return nil
	}
	fv := reflect.ValueOf(inst).Elem().FieldByName(f.Name)
	if !fv.IsValid() {
		return fmt.Errorf("model %s has no field %q", meta.Name, f.Name)
	}
	cv, err := convertValue(raw, fv.Type())
	if err != nil {
		return err
	}
	fv.Set(cv)
	return nil
}

// resolveAssociation turns a foreign-key value into the association's target
// instance. Audited targets are reconstructed at the same target revision,
// never at their current live state. A target with no shadow row at the
// revision (mutated before auditing began) degrades to an identifier-only
// reference rather than failing the whole read.
func (r *Reconstructor) resolveAssociation(ctx context.Context, a ports.AssociationMeta, fk any, revision int64) (any, error) {
	if r.provider.IsAudited(a.Target) {
		if !r.policy.LoadAudited {
			return r.reference(a.Target, fk)
		}
		if r.find == nil {
			return nil, fmt.Errorf("association %s: no finder wired", a.Name)
		}
		targetMeta, err := r.provider.Meta(a.Target)
		if err != nil {
			return nil, fmt.Errorf("loading metadata for %s: %w", a.Target, err)
		}
		identity, err := r.singleIdentity(targetMeta, fk)
		if err != nil {
			return nil, err
		}
		inst, err := r.find(ctx, a.Target, identity, revision)
		if err != nil {
			var notFound *NoRevisionFoundError
			if errors.As(err, &notFound) {
				return r.reference(a.Target, fk)
			}
			return nil, err
		}
		return inst, nil
	}
	if !r.policy.LoadNative {
		return nil, &NotAuditedError{TypeName: a.Target}
	}
	return r.reference(a.Target, fk)
}

// reference builds an identifier-only instance of the target type, the
// historical analogue of a lazy reference into the live store.
func (r *Reconstructor) reference(typeName string, fk any) (any, error) {
	meta, err := r.provider.Meta(typeName)
	if err != nil {
		return nil, &NotAuditedError{TypeName: typeName}
	}
	ids := meta.IdentifierFields()
	if len(ids) != 1 {
		return nil, fmt.Errorf("association target %s needs exactly one identifier field, has %d", typeName, len(ids))
	}
	if meta.Model == nil {
		v, err := convertStorage(fk, ids[0].StorageType)
		if err != nil {
			return nil, err
		}
		return map[string]any{ids[0].Name: v}, nil
	}
	inst := reflect.New(meta.Model)
	fv := inst.Elem().FieldByName(ids[0].Name)
	if !fv.IsValid() {
		return nil, fmt.Errorf("model %s has no field %q", typeName, ids[0].Name)
	}
	cv, err := convertValue(fk, fv.Type())
	if err != nil {
		return nil, err
	}
	fv.Set(cv)
	return inst.Interface(), nil
}

func (r *Reconstructor) singleIdentity(meta *ports.TypeMeta, fk any) (map[string]any, error) {
	names := meta.IdentifierNames()
	if len(names) != 1 {
		return nil, fmt.Errorf("association target %s needs exactly one identifier field, has %d", meta.Name, len(names))
	}
	if f, ok := meta.Field(names[0]); ok {
		v, err := r.nativeValue(fk, f)
		if err != nil {
			return nil, err
		}
		return map[string]any{names[0]: v}, nil
	}
	return map[string]any{names[0]: fk}, nil
}

func (r *Reconstructor) setAssociation(inst any, meta *ports.TypeMeta, a ports.AssociationMeta, ref any) error {
	if meta.Model == nil {
		inst.(map[string]any)[a.Name] = ref
		return nil
	}
	fv := reflect.ValueOf(inst).Elem().FieldByName(a.Name)
	if !fv.IsValid() {
		return fmt.Errorf("model %s has no field %q", meta.Name, a.Name)
	}
	rv := reflect.ValueOf(ref)
	if !rv.Type().AssignableTo(fv.Type()) {
		return fmt.Errorf("cannot assign %s to field of type %s", rv.Type(), fv.Type())
	}
	fv.Set(rv)
	return nil
}

func fieldByColumn(meta *ports.TypeMeta, column string) (ports.FieldMeta, bool) {
	for _, f := range meta.Fields {
		if f.Column == column {
			return f, true
		}
	}
	return ports.FieldMeta{}, false
}

func associationByColumn(meta *ports.TypeMeta, column string) (ports.AssociationMeta, bool) {
	for _, a := range meta.Associations {
		if a.JoinColumn == column {
			return a, true
		}
	}
	return ports.AssociationMeta{}, false
}

// canonicalIdentity renders an identity map deterministically for cache keys.
func canonicalIdentity(identity map[string]any) string {
	keys := make([]string, 0, len(identity))
	for k := range identity {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, identity[k]))
	}
	return strings.Join(parts, ";")
}
