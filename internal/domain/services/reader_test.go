package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/chronicle/internal/domain/entities"
	"github.com/ersonp/chronicle/internal/domain/mocks"
	"github.com/ersonp/chronicle/internal/domain/ports"
)

func newTestReader(provider ports.MetadataProvider) (*AuditReader, *mocks.QueryExecutor) {
	exec := mocks.NewQueryExecutor()
	return NewAuditReader(provider, exec, DefaultReaderConfig()), exec
}

func TestAuditReader_Find(t *testing.T) {
	reader, exec := newTestReader(articleProvider())
	exec.Enqueue(newRow("id", int64(7), "title", "hello", "views", int64(3), "author_id", nil, "rev", int64(5), "revtype", "UPD"))

	inst, err := reader.Find(context.Background(), "Article", int64(7), 5)
	require.NoError(t, err)

	got, ok := inst.(*article)
	require.True(t, ok)
	assert.Equal(t, int64(7), got.ID)
	assert.Equal(t, "hello", got.Title)
	assert.Nil(t, got.Author)

	require.Len(t, exec.Queries, 1)
	assert.Equal(t, []any{int64(7), int64(5)}, exec.Args[0])
}

func TestAuditReader_Find_ResolvesAssociationAtSameRevision(t *testing.T) {
	reader, exec := newTestReader(articleProvider())
	exec.Enqueue(newRow("id", int64(7), "title", "hello", "views", int64(0), "author_id", int64(2), "rev", int64(5), "revtype", "UPD"))
	exec.Enqueue(newRow("id", int64(2), "name", "ann", "rev", int64(3), "revtype", "INS"))

	inst, err := reader.Find(context.Background(), "Article", int64(7), 5)
	require.NoError(t, err)

	got := inst.(*article)
	require.NotNil(t, got.Author)
	assert.Equal(t, "ann", got.Author.Name)

	// The nested lookup runs against the target's shadow table with the same
	// target revision.
	require.Len(t, exec.Queries, 2)
	assert.Contains(t, exec.Queries[1], `FROM "authors_audit" e`)
	assert.Equal(t, []any{int64(2), int64(5)}, exec.Args[1])
}

func TestAuditReader_Find_NoRevision(t *testing.T) {
	reader, _ := newTestReader(articleProvider())

	_, err := reader.Find(context.Background(), "Article", int64(7), 5)
	var notFound *NoRevisionFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "Article", notFound.TypeName)
	assert.Equal(t, int64(5), notFound.Revision)
}

func TestAuditReader_Find_NotAudited(t *testing.T) {
	provider := articleProvider()
	provider.Audited["Article"] = false
	reader, _ := newTestReader(provider)

	_, err := reader.Find(context.Background(), "Article", int64(7), 5)
	var notAudited *NotAuditedError
	require.ErrorAs(t, err, &notAudited)
}

func TestAuditReader_FindWith_StrictDeletions(t *testing.T) {
	reader, exec := newTestReader(articleProvider())
	deleted := newRow("id", int64(7), "title", "hello", "views", int64(0), "author_id", nil, "rev", int64(9), "revtype", "DEL")

	exec.Enqueue(deleted)
	_, err := reader.FindWith(context.Background(), "Article", int64(7), 9, FindOptions{StrictDeletions: true})
	var delErr *DeletedError
	require.ErrorAs(t, err, &delErr)
	assert.Equal(t, "Article", delErr.TypeName)

	// Without strict deletions the deleted state comes back like any other.
	exec.Enqueue(deleted)
	inst, err := reader.Find(context.Background(), "Article", int64(7), 9)
	require.NoError(t, err)
	assert.Equal(t, int64(7), inst.(*article).ID)
}

func TestAuditReader_Find_CompositeIdentityNeedsMap(t *testing.T) {
	provider := mocks.NewMetadataProvider()
	provider.Add(&ports.TypeMeta{
		Name:  "Grant",
		Table: "grants",
		Fields: []ports.FieldMeta{
			{Name: "UserID", Column: "user_id", Identifier: true},
			{Name: "RoleID", Column: "role_id", Identifier: true},
		},
	})
	reader, _ := newTestReader(provider)

	_, err := reader.Find(context.Background(), "Grant", int64(1), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "composite identity")
}

func TestAuditReader_FindRevisions(t *testing.T) {
	reader, exec := newTestReader(articleProvider())
	ts := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	exec.Enqueue(
		newRow("id", int64(9), "timestamp", ts, "author", "alice"),
		newRow("id", int64(5), "timestamp", ts, "author", "alice"),
		newRow("id", int64(1), "timestamp", ts, "author", "bob"),
	)

	revs, err := reader.FindRevisions(context.Background(), "Article", int64(7))
	require.NoError(t, err)
	require.Len(t, revs, 3)
	assert.Equal(t, []int64{9, 5, 1}, []int64{revs[0].ID, revs[1].ID, revs[2].ID})
	assert.Contains(t, exec.Queries[0], `JOIN "articles_audit" e`)
}

func TestAuditReader_FindEntitiesChangedAtRevision(t *testing.T) {
	reader, exec := newTestReader(articleProvider())
	ts := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	// Ledger validation, then one changed-rows query per audited root type,
	// alphabetically: Article, then Author.
	exec.Enqueue(newRow("id", int64(4), "timestamp", ts, "author", "alice"))
	exec.Enqueue(newRow("id", int64(7), "title", "hello", "views", int64(0), "author_id", nil, "rev", int64(4), "revtype", "INS"))
	exec.Enqueue()

	changes, err := reader.FindEntitiesChangedAtRevision(context.Background(), 4)
	require.NoError(t, err)

	require.Len(t, changes, 1)
	assert.Equal(t, "Article", changes[0].TypeName)
	assert.Equal(t, map[string]any{"ID": int64(7)}, changes[0].Identity)
	assert.Equal(t, entities.RevTypeInsert, changes[0].RevType)
	assert.Equal(t, int64(7), changes[0].Entity.(*article).ID)

	require.Len(t, exec.Queries, 3)
}

func TestAuditReader_FindEntitiesChangedAtRevision_Invalid(t *testing.T) {
	reader, _ := newTestReader(articleProvider())

	_, err := reader.FindEntitiesChangedAtRevision(context.Background(), 42)
	var invalid *InvalidRevisionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, int64(42), invalid.Revision)
}

func TestAuditReader_FindEntitiesChangedAtRevision_SkipsSubtypes(t *testing.T) {
	reader, exec := newTestReader(vehicleProvider())
	ts := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	exec.Enqueue(newRow("id", int64(4), "timestamp", ts, "author", nil))
	exec.Enqueue(newRow("id", int64(3), "name", "beetle", "doors", int64(2), "kind", "car", "rev", int64(4), "revtype", "UPD"))

	changes, err := reader.FindEntitiesChangedAtRevision(context.Background(), 4)
	require.NoError(t, err)

	// One ledger query plus one per hierarchy root; Car shares Vehicle's rows
	// and is reported once, as its concrete subtype.
	require.Len(t, exec.Queries, 2)
	require.Len(t, changes, 1)
	assert.Equal(t, "Car", changes[0].TypeName)
	assert.IsType(t, &car{}, changes[0].Entity)
}

func TestAuditReader_FindEntitiesChangedAtRevision_JoinedSubtype(t *testing.T) {
	reader, exec := newTestReader(employeeProvider())
	ts := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	// Ledger validation, then the joined subtype before its root.
	exec.Enqueue(newRow("id", int64(2), "timestamp", ts, "author", "alice"))
	exec.Enqueue(newRow("id", int64(5), "name", "carol", "salary", int64(1000), "rev", int64(2), "revtype", "INS"))
	exec.Enqueue(
		newRow("id", int64(5), "name", "carol", "rev", int64(2), "revtype", "INS"),
		newRow("id", int64(6), "name", "dave", "rev", int64(2), "revtype", "INS"),
	)

	changes, err := reader.FindEntitiesChangedAtRevision(context.Background(), 2)
	require.NoError(t, err)

	require.Len(t, exec.Queries, 3)
	assert.Contains(t, exec.Queries[1], `JOIN "people_audit" r`)

	// The employee's root row, written pairwise at the same revision, is
	// suppressed; the plain person with no subtype row stays.
	require.Len(t, changes, 2)
	assert.Equal(t, "Employee", changes[0].TypeName)
	assert.Equal(t, map[string]any{"ID": int64(5)}, changes[0].Identity)
	assert.Equal(t, entities.RevTypeInsert, changes[0].RevType)
	got := changes[0].Entity.(*employee)
	assert.Equal(t, "carol", got.Name)
	assert.Equal(t, int64(1000), got.Salary)
	assert.Equal(t, "Person", changes[1].TypeName)
	assert.Equal(t, map[string]any{"ID": int64(6)}, changes[1].Identity)
}

func TestAuditReader_GetCurrentRevision(t *testing.T) {
	reader, exec := newTestReader(articleProvider())

	exec.Enqueue(newRow("rev", int64(9)))
	rev, err := reader.GetCurrentRevision(context.Background(), "Article", int64(7))
	require.NoError(t, err)
	assert.Equal(t, int64(9), rev)

	// MAX over zero rows yields a NULL, meaning the record never existed.
	exec.Enqueue(newRow("rev", nil))
	_, err = reader.GetCurrentRevision(context.Background(), "Article", int64(7))
	var notFound *NoRevisionFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestAuditReader_Diff(t *testing.T) {
	reader, exec := newTestReader(articleProvider())
	exec.Enqueue(newRow("id", int64(7), "title", "draft", "views", int64(1), "author_id", nil, "rev", int64(1), "revtype", "INS"))
	exec.Enqueue(newRow("id", int64(7), "title", "published", "views", int64(1), "author_id", nil, "rev", int64(5), "revtype", "UPD"))

	diff, err := reader.Diff(context.Background(), "Article", int64(7), 1, 5)
	require.NoError(t, err)

	assert.Equal(t, []string{"Title"}, diff.ChangedFields())
	assert.Equal(t, "draft", diff["Title"].Old)
	assert.Equal(t, "published", diff["Title"].New)
}

func TestAuditReader_GetEntityHistory(t *testing.T) {
	reader, exec := newTestReader(articleProvider())
	exec.Enqueue(
		newRow("id", int64(7), "title", "draft", "views", int64(0), "author_id", nil, "rev", int64(1), "revtype", "INS"),
		newRow("id", int64(7), "title", "published", "views", int64(0), "author_id", nil, "rev", int64(5), "revtype", "UPD"),
	)

	states, err := reader.GetEntityHistory(context.Background(), "Article", int64(7))
	require.NoError(t, err)

	require.Len(t, states, 2)
	assert.Equal(t, "draft", states[0].(*article).Title)
	assert.Equal(t, "published", states[1].(*article).Title)
	assert.Contains(t, exec.Queries[0], `ORDER BY e."rev" ASC`)
}
