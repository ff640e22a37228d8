package services

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/chronicle/internal/domain/mocks"
	"github.com/ersonp/chronicle/internal/domain/ports"
)

type author struct {
	ID   int64
	Name string
}

type article struct {
	ID     int64
	Title  string
	Views  int64
	Author *author
}

type vehicle struct {
	ID   int64
	Name string
}

type car struct {
	vehicle
	Doors int64
}

type employee struct {
	ID     int64
	Name   string
	Salary int64
}

func authorMeta() *ports.TypeMeta {
	return &ports.TypeMeta{
		Name:  "Author",
		Table: "authors",
		Model: reflect.TypeOf(author{}),
		Fields: []ports.FieldMeta{
			{Name: "ID", Column: "id", Identifier: true, GoType: reflect.TypeOf(int64(0))},
			{Name: "Name", Column: "name", GoType: reflect.TypeOf("")},
		},
	}
}

func articleMeta() *ports.TypeMeta {
	return &ports.TypeMeta{
		Name:  "Article",
		Table: "articles",
		Model: reflect.TypeOf(article{}),
		Fields: []ports.FieldMeta{
			{Name: "ID", Column: "id", Identifier: true, GoType: reflect.TypeOf(int64(0))},
			{Name: "Title", Column: "title", GoType: reflect.TypeOf("")},
			{Name: "Views", Column: "views", GoType: reflect.TypeOf(int64(0))},
		},
		Associations: []ports.AssociationMeta{
			{Name: "Author", Kind: ports.AssociationToOne, Target: "Author", JoinColumn: "author_id"},
		},
	}
}

func articleProvider() *mocks.MetadataProvider {
	provider := mocks.NewMetadataProvider()
	provider.Add(articleMeta())
	provider.Add(authorMeta())
	return provider
}

func vehicleProvider() *mocks.MetadataProvider {
	provider := mocks.NewMetadataProvider()
	provider.Add(&ports.TypeMeta{
		Name:  "Vehicle",
		Table: "vehicles",
		Model: reflect.TypeOf(vehicle{}),
		Fields: []ports.FieldMeta{
			{Name: "ID", Column: "id", Identifier: true, GoType: reflect.TypeOf(int64(0))},
			{Name: "Name", Column: "name", GoType: reflect.TypeOf("")},
		},
		Inheritance: ports.InheritanceMeta{
			Kind:                ports.InheritanceSingleTable,
			Root:                "Vehicle",
			DiscriminatorColumn: "kind",
			DiscriminatorValue:  "vehicle",
			Children:            []string{"Car"},
		},
	})
	provider.Add(&ports.TypeMeta{
		Name:  "Car",
		Table: "vehicles",
		Model: reflect.TypeOf(car{}),
		Fields: []ports.FieldMeta{
			{Name: "ID", Column: "id", Identifier: true, Inherited: true, GoType: reflect.TypeOf(int64(0))},
			{Name: "Name", Column: "name", Inherited: true, GoType: reflect.TypeOf("")},
			{Name: "Doors", Column: "doors", GoType: reflect.TypeOf(int64(0))},
		},
		Inheritance: ports.InheritanceMeta{
			Kind:                ports.InheritanceSingleTable,
			Root:                "Vehicle",
			Parent:              "Vehicle",
			DiscriminatorColumn: "kind",
			DiscriminatorValue:  "car",
		},
	})
	return provider
}

func employeeProvider() *mocks.MetadataProvider {
	provider := mocks.NewMetadataProvider()
	provider.Add(&ports.TypeMeta{
		Name:  "Person",
		Table: "people",
		Fields: []ports.FieldMeta{
			{Name: "ID", Column: "id", Identifier: true, GoType: reflect.TypeOf(int64(0))},
			{Name: "Name", Column: "name", GoType: reflect.TypeOf("")},
		},
		Inheritance: ports.InheritanceMeta{
			Kind:     ports.InheritanceJoined,
			Root:     "Person",
			Children: []string{"Employee"},
		},
	})
	provider.Add(&ports.TypeMeta{
		Name:  "Employee",
		Table: "employees",
		Model: reflect.TypeOf(employee{}),
		Fields: []ports.FieldMeta{
			{Name: "ID", Column: "id", Identifier: true, Inherited: true, GoType: reflect.TypeOf(int64(0))},
			{Name: "Name", Column: "name", Inherited: true, GoType: reflect.TypeOf("")},
			{Name: "Salary", Column: "salary", GoType: reflect.TypeOf(int64(0))},
		},
		Inheritance: ports.InheritanceMeta{
			Kind:   ports.InheritanceJoined,
			Root:   "Person",
			Parent: "Person",
		},
	})
	return provider
}

func newRow(pairs ...any) ports.Row {
	var row ports.Row
	for i := 0; i < len(pairs); i += 2 {
		row.Columns = append(row.Columns, pairs[i].(string))
		row.Values = append(row.Values, pairs[i+1])
	}
	return row
}

func TestQueryBuilder_BuildFindQuery(t *testing.T) {
	b := NewQueryBuilder(articleProvider(), DefaultNaming())

	q, err := b.BuildFindQuery("Article", map[string]any{"ID": int64(7)}, 5)
	require.NoError(t, err)

	want := `SELECT e."id" AS "id", e."title" AS "title", e."views" AS "views", e."author_id" AS "author_id", e."rev" AS "rev", e."revtype" AS "revtype" ` +
		`FROM "articles_audit" e WHERE e."id" = ? AND e."rev" <= ? ORDER BY e."rev" DESC LIMIT 1`
	assert.Equal(t, want, q.SQL)
	assert.Equal(t, []any{int64(7), int64(5)}, q.Args)
}

func TestQueryBuilder_BuildFindQuery_NotAudited(t *testing.T) {
	provider := mocks.NewMetadataProvider()
	provider.AddUnaudited(authorMeta())
	b := NewQueryBuilder(provider, DefaultNaming())

	_, err := b.BuildFindQuery("Author", map[string]any{"ID": int64(1)}, 1)
	var notAudited *NotAuditedError
	require.ErrorAs(t, err, &notAudited)
	assert.Equal(t, "Author", notAudited.TypeName)
}

func TestQueryBuilder_BuildFindQuery_WrongIdentity(t *testing.T) {
	b := NewQueryBuilder(articleProvider(), DefaultNaming())

	_, err := b.BuildFindQuery("Article", map[string]any{"Title": "nope"}, 1)
	require.Error(t, err)

	_, err = b.BuildFindQuery("Article", map[string]any{"ID": int64(1), "Title": "extra"}, 1)
	require.Error(t, err)
}

func TestQueryBuilder_BuildFindQuery_IgnoredFields(t *testing.T) {
	provider := articleProvider()
	provider.Ignored["Article"] = map[string]bool{"Views": true}
	b := NewQueryBuilder(provider, DefaultNaming())

	q, err := b.BuildFindQuery("Article", map[string]any{"ID": int64(7)}, 5)
	require.NoError(t, err)
	assert.NotContains(t, q.SQL, `"views"`)
}

func TestQueryBuilder_BuildFindQuery_SingleTableSubtype(t *testing.T) {
	b := NewQueryBuilder(vehicleProvider(), DefaultNaming())

	q, err := b.BuildFindQuery("Car", map[string]any{"ID": int64(3)}, 10)
	require.NoError(t, err)

	want := `SELECT e."id" AS "id", e."name" AS "name", e."doors" AS "doors", e."kind" AS "kind", e."rev" AS "rev", e."revtype" AS "revtype" ` +
		`FROM "vehicles_audit" e WHERE e."id" = ? AND e."rev" <= ? AND e."kind" IN (?) ORDER BY e."rev" DESC LIMIT 1`
	assert.Equal(t, want, q.SQL)
	assert.Equal(t, []any{int64(3), int64(10), "car"}, q.Args)
}

func TestQueryBuilder_BuildFindQuery_SingleTableRoot(t *testing.T) {
	b := NewQueryBuilder(vehicleProvider(), DefaultNaming())

	q, err := b.BuildFindQuery("Vehicle", map[string]any{"ID": int64(3)}, 10)
	require.NoError(t, err)

	// The root query also selects descendant-only columns and admits every
	// discriminator value in the hierarchy, so subtype rows hydrate fully.
	want := `SELECT e."id" AS "id", e."name" AS "name", e."doors" AS "doors", e."kind" AS "kind", e."rev" AS "rev", e."revtype" AS "revtype" ` +
		`FROM "vehicles_audit" e WHERE e."id" = ? AND e."rev" <= ? AND e."kind" IN (?, ?) ORDER BY e."rev" DESC LIMIT 1`
	assert.Equal(t, want, q.SQL)
	assert.Equal(t, []any{int64(3), int64(10), "vehicle", "car"}, q.Args)
}

func TestQueryBuilder_BuildFindQuery_JoinedSubtype(t *testing.T) {
	b := NewQueryBuilder(employeeProvider(), DefaultNaming())

	q, err := b.BuildFindQuery("Employee", map[string]any{"ID": int64(9)}, 4)
	require.NoError(t, err)

	want := `SELECT e."id" AS "id", r."name" AS "name", e."salary" AS "salary", e."rev" AS "rev", e."revtype" AS "revtype" ` +
		`FROM "employees_audit" e JOIN "people_audit" r ON r."rev" = e."rev" AND r."id" = e."id" ` +
		`WHERE e."id" = ? AND e."rev" <= ? ORDER BY e."rev" DESC LIMIT 1`
	assert.Equal(t, want, q.SQL)
	assert.Equal(t, []any{int64(9), int64(4)}, q.Args)
}

func TestQueryBuilder_BuildChangedAtQuery(t *testing.T) {
	b := NewQueryBuilder(articleProvider(), DefaultNaming())

	q, err := b.BuildChangedAtQuery("Article", 6)
	require.NoError(t, err)

	want := `SELECT e."id" AS "id", e."title" AS "title", e."views" AS "views", e."author_id" AS "author_id", e."rev" AS "rev", e."revtype" AS "revtype" ` +
		`FROM "articles_audit" e WHERE e."rev" = ?`
	assert.Equal(t, want, q.SQL)
	assert.Equal(t, []any{int64(6)}, q.Args)
}

func TestQueryBuilder_BuildHistoryQuery(t *testing.T) {
	b := NewQueryBuilder(articleProvider(), DefaultNaming())

	q, err := b.BuildHistoryQuery("Article", map[string]any{"ID": int64(7)})
	require.NoError(t, err)

	want := `SELECT e."id" AS "id", e."title" AS "title", e."views" AS "views", e."author_id" AS "author_id", e."rev" AS "rev", e."revtype" AS "revtype" ` +
		`FROM "articles_audit" e WHERE e."id" = ? ORDER BY e."rev" ASC`
	assert.Equal(t, want, q.SQL)
	assert.Equal(t, []any{int64(7)}, q.Args)
}

func TestQueryBuilder_BuildCurrentRevisionQuery(t *testing.T) {
	b := NewQueryBuilder(articleProvider(), DefaultNaming())

	q, err := b.BuildCurrentRevisionQuery("Article", map[string]any{"ID": int64(7)})
	require.NoError(t, err)

	want := `SELECT MAX(e."rev") AS "rev" FROM "articles_audit" e WHERE e."id" = ?`
	assert.Equal(t, want, q.SQL)
	assert.Equal(t, []any{int64(7)}, q.Args)
}

func TestQueryBuilder_CustomNaming(t *testing.T) {
	naming := Naming{
		TableSuffix:        "_history",
		RevisionColumn:     "revision_id",
		RevisionTypeColumn: "operation",
		RevisionTable:      "revision_log",
	}
	b := NewQueryBuilder(articleProvider(), naming)

	q, err := b.BuildFindQuery("Article", map[string]any{"ID": int64(1)}, 2)
	require.NoError(t, err)
	assert.Contains(t, q.SQL, `FROM "articles_history" e`)
	assert.Contains(t, q.SQL, `e."revision_id" <= ?`)
	assert.Contains(t, q.SQL, `e."operation" AS "operation"`)
}

func TestQueryBuilder_MetadataError(t *testing.T) {
	provider := articleProvider()
	provider.MetaErr = errors.New("boom")
	b := NewQueryBuilder(provider, DefaultNaming())

	_, err := b.BuildFindQuery("Article", map[string]any{"ID": int64(1)}, 1)
	require.Error(t, err)
}
