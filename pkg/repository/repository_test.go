package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap/zapcore"

	"github.com/sheetql/sheetql/internal/directory"
	"github.com/sheetql/sheetql/internal/mocks"
	"github.com/sheetql/sheetql/pkg/logger"
	"github.com/sheetql/sheetql/pkg/query"
	"github.com/sheetql/sheetql/pkg/record"
	"github.com/sheetql/sheetql/pkg/relation"
	"github.com/sheetql/sheetql/pkg/storage"
	"github.com/sheetql/sheetql/pkg/storage/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newMemoryStore(tables map[string]*storage.Table) *memory.MemoryBackend {
	opts := make([]memory.StorageOption, 0, len(tables))
	for name, table := range tables {
		opts = append(opts, memory.WithTable(name, table))
	}
	return memory.New(opts...)
}

func newTestRepository(t *testing.T, store storage.TabularStore, entity string, opts ...RepositoryOption) *Repository {
	t.Helper()
	repo, err := New(store, directory.Registry(), entity, opts...)
	require.NoError(t, err)
	return repo
}

func ids(rows []*record.Record) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ID())
	}
	return out
}

func toJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestBelongsToEndToEnd(t *testing.T) {
	store := newMemoryStore(map[string]*storage.Table{
		"users":       {Headers: []string{"id", "department_id"}, Rows: [][]string{{"u1", "d1"}}},
		"departments": {Headers: []string{"id", "name"}, Rows: [][]string{{"d1", "Eng"}}},
	})
	repo := newTestRepository(t, store, directory.User)

	rows, err := repo.Query().With("department").Get(context.Background())
	require.NoError(t, err)
	require.JSONEq(t, `[{"id":"u1","department_id":"d1","department":{"id":"d1","name":"Eng"}}]`, toJSON(t, rows))
}

func TestBelongsToSharedKeyFetchesOnce(t *testing.T) {
	mockController := gomock.NewController(t)
	defer mockController.Finish()

	store := mocks.NewMockTabularStore(mockController)
	store.EXPECT().FetchRows(gomock.Any(), "users").Return(&storage.Table{
		Headers: []string{"id", "department_id"},
		Rows:    [][]string{{"u1", "d1"}, {"u2", "d1"}},
	}, nil).Times(1)
	store.EXPECT().FetchRows(gomock.Any(), "departments").Return(&storage.Table{
		Headers: []string{"id", "name"},
		Rows:    [][]string{{"d1", "Eng"}},
	}, nil).Times(1)

	repo := newTestRepository(t, store, directory.User)
	rows, err := repo.Query().With("department").Get(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	for _, row := range rows {
		rel, ok := row.Relation("department")
		require.True(t, ok)
		require.Equal(t, "Eng", rel.Record().Value("name"))
	}
	first, _ := rows[0].Relation("department")
	second, _ := rows[1].Relation("department")
	require.Same(t, first.Record(), second.Record())
}

func TestHasManyWithoutChildrenIsEmpty(t *testing.T) {
	store := newMemoryStore(map[string]*storage.Table{
		"departments": {Headers: []string{"id", "name"}, Rows: [][]string{{"d1", "Eng"}, {"d2", "Sales"}}},
		"users":       {Headers: []string{"id", "department_id"}, Rows: [][]string{{"u1", "d1"}}},
	})
	repo := newTestRepository(t, store, directory.Department)

	rows, err := repo.Query().With("users").OrderBy("id", "asc").Get(context.Background())
	require.NoError(t, err)
	require.JSONEq(t, `[
		{"id":"d1","name":"Eng","users":[{"id":"u1","department_id":"d1"}]},
		{"id":"d2","name":"Sales","users":[]}
	]`, toJSON(t, rows))
}

func TestNestedRelations(t *testing.T) {
	store := newMemoryStore(map[string]*storage.Table{
		"users":    {Headers: []string{"id", "name"}, Rows: [][]string{{"u1", "Ann"}, {"u2", "Bob"}}},
		"posts":    {Headers: []string{"id", "user_id"}, Rows: [][]string{{"p1", "u1"}, {"p2", "u2"}}},
		"comments": {Headers: []string{"id", "post_id", "user_id"}, Rows: [][]string{{"c1", "p1", "u2"}}},
	})
	repo := newTestRepository(t, store, directory.User)

	specs, err := relation.ParseDSL("posts.comments.author")
	require.NoError(t, err)

	rows, err := repo.Query().Where("id", "u1").With(specs).Get(context.Background())
	require.NoError(t, err)
	require.JSONEq(t, `[{
		"id":"u1","name":"Ann",
		"posts":[{"id":"p1","user_id":"u1","comments":[
			{"id":"c1","post_id":"p1","user_id":"u2","author":{"id":"u2","name":"Bob"}}
		]}]
	}]`, toJSON(t, rows))
}

func cycleRegistry() *relation.Registry {
	a := relation.NewEntity("a", "as").BelongsTo("b", "b", "b_id")
	b := relation.NewEntity("b", "bs").HasMany("a", "a", "b_id")
	return relation.NewRegistry(a, b)
}

func TestRelationCycleTerminates(t *testing.T) {
	store := newMemoryStore(map[string]*storage.Table{
		"as": {Headers: []string{"id", "b_id"}, Rows: [][]string{{"a1", "b1"}}},
		"bs": {Headers: []string{"id"}, Rows: [][]string{{"b1"}}},
	})
	l, logs := logger.NewObserverLogger("debug")
	repo, err := New(store, cycleRegistry(), "a", WithLogger(l))
	require.NoError(t, err)

	rows, err := repo.Query().With(map[string]any{"b": "a"}).Get(context.Background())
	require.NoError(t, err)
	require.JSONEq(t, `[{"id":"a1","b_id":"b1","b":{"id":"b1","a":[{"id":"a1","b_id":"b1"}]}}]`, toJSON(t, rows))
	require.Equal(t, 0, logs.FilterMessage(relation.ErrCycleDetected.Error()).Len())

	// the chain comes back to b while b is still being resolved
	repo, err = New(store, cycleRegistry(), "a", WithLogger(l))
	require.NoError(t, err)
	rows, err = repo.Query().With(map[string]any{"b": map[string]any{"a": "b"}}).Get(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)

	warnings := logs.FilterMessage(relation.ErrCycleDetected.Error()).All()
	require.Len(t, warnings, 1)
	require.Equal(t, zapcore.WarnLevel, warnings[0].Level)
	require.Equal(t, "b", warnings[0].ContextMap()["relation"])
}

func TestUnknownRelationIsSkipped(t *testing.T) {
	store := newMemoryStore(map[string]*storage.Table{
		"users": {Headers: []string{"id"}, Rows: [][]string{{"u1"}}},
	})
	l, logs := logger.NewObserverLogger("warn")
	repo := newTestRepository(t, store, directory.User, WithLogger(l))

	rows, err := repo.Query().With("missing").Get(context.Background())
	require.NoError(t, err)
	require.JSONEq(t, `[{"id":"u1"}]`, toJSON(t, rows))
	require.Equal(t, 1, logs.FilterMessage(relation.ErrUnknownRelation.Error()).Len())
}

func TestOrWhereUnion(t *testing.T) {
	store := newMemoryStore(map[string]*storage.Table{
		"users": {Headers: []string{"id", "role"}, Rows: [][]string{
			{"u1", "manager"},
			{"u2", "admin"},
			{"u3", "member"},
			{"u4", "Admin"},
		}},
	})
	repo := newTestRepository(t, store, directory.User)

	rows, err := repo.Query().Where("role", "admin").OrWhere("role", "manager").Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"u2", "u4", "u1"}, ids(rows))
}

func TestOrWhereIgnoresAndFilter(t *testing.T) {
	store := newMemoryStore(map[string]*storage.Table{
		"users": {Headers: []string{"id", "role", "age"}, Rows: [][]string{
			{"u1", "admin", "20"},
			{"u2", "admin", "40"},
			{"u3", "member", "50"},
		}},
	})
	repo := newTestRepository(t, store, directory.User)

	rows, err := repo.Query().
		Where("role", "admin").
		WhereOp("age", query.OpGreater, "30").
		OrWhereOp("age", query.OpGreaterEqual, "50").
		Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"u2", "u3"}, ids(rows))
}

func TestSelectLimitOffset(t *testing.T) {
	store := newMemoryStore(map[string]*storage.Table{
		"users": {Headers: []string{"id", "name", "email"}, Rows: [][]string{
			{"u1", "Cid", "c@x"},
			{"u2", "Ann", "a@x"},
			{"u3", "Bob", "b@x"},
		}},
	})
	repo := newTestRepository(t, store, directory.User)

	rows, err := repo.Query().OrderBy("name", "desc").Offset(1).Limit(1).Get(context.Background(), "name")
	require.NoError(t, err)
	require.JSONEq(t, `[{"name":"Bob"}]`, toJSON(t, rows))
}

func TestSelectRunsBeforeRelations(t *testing.T) {
	store := newMemoryStore(map[string]*storage.Table{
		"users":       {Headers: []string{"id", "name", "department_id"}, Rows: [][]string{{"u1", "Ann", "d1"}}},
		"departments": {Headers: []string{"id", "name"}, Rows: [][]string{{"d1", "Eng"}}},
	})
	repo := newTestRepository(t, store, directory.User)

	// the key column is projected away, so nothing can be joined
	rows, err := repo.Query().Select("name").With("department").Get(context.Background())
	require.NoError(t, err)
	require.JSONEq(t, `[{"name":"Ann","department":null}]`, toJSON(t, rows))

	rows, err = repo.Query().Select("name", "department_id").With("department").Get(context.Background())
	require.NoError(t, err)
	require.JSONEq(t, `[{"name":"Ann","department_id":"d1","department":{"id":"d1","name":"Eng"}}]`, toJSON(t, rows))
}

func TestPaginate(t *testing.T) {
	table := &storage.Table{Headers: []string{"id"}}
	for i := range 25 {
		table.Rows = append(table.Rows, []string{fmt.Sprintf("p%02d", 24-i)})
	}
	store := newMemoryStore(map[string]*storage.Table{"posts": table})
	repo := newTestRepository(t, store, directory.Post)

	page, err := repo.Query().OrderBy("id", "asc").Paginate(context.Background(), 10, 2)
	require.NoError(t, err)
	require.Equal(t, 25, page.Total)
	require.Equal(t, 10, page.PerPage)
	require.Equal(t, 2, page.CurrentPage)
	require.Equal(t, 3, page.LastPage)

	want := make([]string, 0, 10)
	for i := 10; i < 20; i++ {
		want = append(want, fmt.Sprintf("p%02d", i))
	}
	require.Equal(t, want, ids(page.Data))

	page, err = repo.Query().Paginate(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Equal(t, query.DefaultPerPage, page.PerPage)
	require.Equal(t, 1, page.CurrentPage)
}

func TestPaginateResolvesPageOnly(t *testing.T) {
	mockController := gomock.NewController(t)
	defer mockController.Finish()

	store := mocks.NewMockTabularStore(mockController)
	store.EXPECT().FetchRows(gomock.Any(), "users").Return(&storage.Table{
		Headers: []string{"id", "department_id"},
		Rows:    [][]string{{"u1", "d1"}, {"u2", "d2"}, {"u3", "d3"}},
	}, nil)
	store.EXPECT().FetchRows(gomock.Any(), "departments").Return(&storage.Table{
		Headers: []string{"id"},
		Rows:    [][]string{{"d1"}, {"d2"}, {"d3"}},
	}, nil)

	repo := newTestRepository(t, store, directory.User)
	page, err := repo.Query().With("department").Paginate(context.Background(), 2, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"u3"}, ids(page.Data))
	require.JSONEq(t, `[{"id":"u3","department_id":"d3","department":{"id":"d3"}}]`, toJSON(t, page.Data))
}

func TestFirstAndCount(t *testing.T) {
	store := newMemoryStore(map[string]*storage.Table{
		"users": {Headers: []string{"id", "role"}, Rows: [][]string{{"u1", "admin"}, {"u2", "admin"}, {"u3", "member"}}},
	})
	repo := newTestRepository(t, store, directory.User)

	first, err := repo.Query().Where("role", "admin").First(context.Background())
	require.NoError(t, err)
	require.Equal(t, "u1", first.ID())

	none, err := repo.Query().Where("role", "nobody").First(context.Background())
	require.NoError(t, err)
	require.Nil(t, none)

	n, err := repo.Query().Where("role", "admin").Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestAllAndFind(t *testing.T) {
	store := newMemoryStore(map[string]*storage.Table{
		"users": {Headers: []string{"id", "name"}, Rows: [][]string{{"u1", "Ann"}, {"U1", "Upper"}}},
	})
	repo := newTestRepository(t, store, "users")

	rows, err := repo.All(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"u1", "U1"}, ids(rows))

	row, err := repo.Find(context.Background(), "U1")
	require.NoError(t, err)
	require.Equal(t, "Upper", row.Value("name"))

	row, err = repo.Find(context.Background(), "u9")
	require.NoError(t, err)
	require.Nil(t, row)
}

func TestPreload(t *testing.T) {
	store := newMemoryStore(map[string]*storage.Table{
		"users": {Headers: []string{"id", "role"}, Rows: [][]string{{"u1", "admin"}, {"u2", "member"}}},
	})
	repo := newTestRepository(t, store, directory.User)

	preloaded := []*record.Record{record.New([]string{"id", "role"}, []string{"u9", "admin"})}
	rows, err := repo.Preload(preloaded).Where("role", "admin").OrWhere("role", "member").Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"u9", "u2"}, ids(rows))
}

func TestQueryIsSingleUse(t *testing.T) {
	repo := newTestRepository(t, memory.New(), directory.User)

	q := repo.Query()
	_, err := q.Get(context.Background())
	require.NoError(t, err)

	_, err = q.Count(context.Background())
	require.ErrorIs(t, err, ErrQueryConsumed)
}

func TestInvalidRelationDeclaration(t *testing.T) {
	repo := newTestRepository(t, memory.New(), directory.User)

	_, err := repo.Query().With(42).Get(context.Background())
	require.ErrorContains(t, err, "unsupported relation declaration")
}

func TestReadPolicyDegrade(t *testing.T) {
	l, logs := logger.NewObserverLogger("debug")
	repo := newTestRepository(t, memory.New(), directory.User, WithLogger(l))

	rows, err := repo.Query().Get(context.Background())
	require.NoError(t, err)
	require.Empty(t, rows)
	require.NotNil(t, rows)

	entries := logs.FilterMessage("fetching rows failed, returning no rows").All()
	require.Len(t, entries, 1)
	require.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	require.Equal(t, "users", entries[0].ContextMap()["collection"])
}

func TestReadPolicyDegradeInRelations(t *testing.T) {
	store := newMemoryStore(map[string]*storage.Table{
		"users": {Headers: []string{"id", "department_id"}, Rows: [][]string{{"u1", "d1"}}},
	})
	repo := newTestRepository(t, store, directory.User)

	rows, err := repo.Query().With("department", "posts").Get(context.Background())
	require.NoError(t, err)
	require.JSONEq(t, `[{"id":"u1","department_id":"d1","department":null,"posts":[]}]`, toJSON(t, rows))
}

func TestReadPolicyStrict(t *testing.T) {
	mockController := gomock.NewController(t)
	defer mockController.Finish()

	store := mocks.NewMockTabularStore(mockController)
	store.EXPECT().FetchRows(gomock.Any(), "users").Return(nil, storage.ErrStoreUnavailable)

	repo := newTestRepository(t, store, directory.User, WithReadPolicy(ReadPolicyStrict))
	_, err := repo.Query().Get(context.Background())
	require.ErrorIs(t, err, ErrReadFailed)
	require.ErrorIs(t, err, storage.ErrStoreUnavailable)
}

func TestCountIgnoresFailingRelations(t *testing.T) {
	store := newMemoryStore(map[string]*storage.Table{
		"users": {Headers: []string{"id", "department_id"}, Rows: [][]string{{"u1", "d1"}}},
	})
	repo := newTestRepository(t, store, directory.User, WithReadPolicy(ReadPolicyStrict))

	_, err := repo.Query().With("department").Get(context.Background())
	require.ErrorIs(t, err, ErrReadFailed)
	require.ErrorIs(t, err, storage.ErrCollectionNotFound)

	n, err := repo.Query().With("department").Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestCancellationIsNotDegraded(t *testing.T) {
	store := newMemoryStore(map[string]*storage.Table{
		"users": {Headers: []string{"id"}, Rows: [][]string{{"u1"}}},
	})
	repo := newTestRepository(t, store, directory.User)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.Query().Get(ctx)
	require.ErrorIs(t, err, ErrReadFailed)
}

func TestQuerySummaryLog(t *testing.T) {
	store := newMemoryStore(map[string]*storage.Table{
		"users":       {Headers: []string{"id", "department_id"}, Rows: [][]string{{"u1", "d1"}}},
		"departments": {Headers: []string{"id"}, Rows: [][]string{{"d1"}}},
	})
	l, logs := logger.NewObserverLogger("debug")
	repo := newTestRepository(t, store, directory.User, WithLogger(l))

	_, err := repo.Query().With("department").Get(context.Background())
	require.NoError(t, err)

	entries := logs.FilterMessage("query executed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.EqualValues(t, 2, fields["datastore_query_count"])
	require.EqualValues(t, 1, fields["rows"])
	require.Equal(t, "Get", fields["operation"])
	require.NotEmpty(t, fields["query_id"])
}

func TestNewUnknownEntity(t *testing.T) {
	_, err := New(memory.New(), directory.Registry(), "invoices")
	require.ErrorIs(t, err, ErrUnknownEntity)
}

func TestDescribeRelations(t *testing.T) {
	repo := newTestRepository(t, memory.New(), directory.Department)

	rels := repo.DescribeRelations()
	require.Len(t, rels, 1)
	require.Equal(t, "users", rels[0].Name)
	require.Equal(t, relation.HasMany, rels[0].Kind)
}

func TestParseReadPolicy(t *testing.T) {
	p, err := ParseReadPolicy("")
	require.NoError(t, err)
	require.Equal(t, ReadPolicyDegrade, p)

	p, err = ParseReadPolicy(" Strict ")
	require.NoError(t, err)
	require.Equal(t, ReadPolicyStrict, p)

	_, err = ParseReadPolicy("lenient")
	require.Error(t, err)
}
