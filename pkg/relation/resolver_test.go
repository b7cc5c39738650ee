package relation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zapcore"

	"github.com/sheetql/sheetql/pkg/logger"
	"github.com/sheetql/sheetql/pkg/record"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func resolve(t *testing.T, fetcher Fetcher, entity string, rows []*record.Record, relations ...any) logger.Logs {
	t.Helper()
	registry := testRegistry()
	e, ok := registry.Entity(entity)
	require.True(t, ok)

	specs, err := Parse(relations...)
	require.NoError(t, err)

	l, logs := logger.NewObserverLogger("debug")
	require.NoError(t, NewResolver(registry, fetcher, l).Resolve(context.Background(), e, rows, specs))
	return logs
}

func TestResolveBelongsTo(t *testing.T) {
	fetcher := newCountingFetcher()
	users := fetcher.rows("users")

	resolve(t, fetcher, "user", users, "department")

	require.Equal(t, 1, fetcher.count("departments"))

	d1, ok := users[0].Relation("department")
	require.True(t, ok)
	require.False(t, d1.IsMany())
	require.Equal(t, "Engineering", d1.Record().Value("name"))

	d2, _ := users[1].Relation("department")
	require.Same(t, d1.Record(), d2.Record())

	// empty foreign key
	none, ok := users[2].Relation("department")
	require.True(t, ok)
	require.Nil(t, none.Record())

	// dangling foreign key
	dangling, ok := users[3].Relation("department")
	require.True(t, ok)
	require.Nil(t, dangling.Record())
}

func TestResolveHasMany(t *testing.T) {
	fetcher := newCountingFetcher()
	users := fetcher.rows("users")

	resolve(t, fetcher, "user", users, "posts")

	require.Equal(t, 1, fetcher.count("posts"))

	posts, ok := users[0].Relation("posts")
	require.True(t, ok)
	require.True(t, posts.IsMany())
	require.Equal(t, []string{"p1", "p2"}, ids(posts.Records()))

	posts, _ = users[2].Relation("posts")
	require.True(t, posts.IsMany())
	require.NotNil(t, posts.Records())
	require.Empty(t, posts.Records())

	out, err := json.Marshal(users[3])
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"u4","name":"Dee","department_id":"d9","role_id":"r2","posts":[]}`, string(out))
}

func TestResolveHasOneLastWins(t *testing.T) {
	fetcher := newCountingFetcher()
	users := fetcher.rows("users")

	resolve(t, fetcher, "user", users, "profile")

	profile, _ := users[0].Relation("profile")
	require.Equal(t, "new", profile.Record().Value("bio"))

	profile, _ = users[1].Relation("profile")
	require.Equal(t, "bob", profile.Record().Value("bio"))

	profile, ok := users[2].Relation("profile")
	require.True(t, ok)
	require.Nil(t, profile.Record())
}

func TestResolveNested(t *testing.T) {
	fetcher := newCountingFetcher()
	users := fetcher.rows("users")

	resolve(t, fetcher, "user", users, map[string]any{"posts": "comments", "department": nil})

	require.Equal(t, 1, fetcher.count("posts"))
	require.Equal(t, 1, fetcher.count("comments"))
	require.Equal(t, 1, fetcher.count("departments"))

	posts, _ := users[0].Relation("posts")
	comments, ok := posts.Records()[0].Relation("comments")
	require.True(t, ok)
	require.Equal(t, []string{"c1", "c2"}, ids(comments.Records()))

	comments, _ = posts.Records()[1].Relation("comments")
	require.Empty(t, comments.Records())

	// attach order follows the sorted mapping keys
	require.Equal(t, []string{"department", "posts"}, users[0].Relations())
}

func TestResolveDSLPaths(t *testing.T) {
	fetcher := newCountingFetcher()
	posts := fetcher.rows("posts")

	specs, err := ParseDSL("author.department,comments")
	require.NoError(t, err)

	registry := testRegistry()
	post, _ := registry.Entity("post")
	require.NoError(t, NewResolver(registry, fetcher, nil).Resolve(context.Background(), post, posts, specs))

	author, _ := posts[2].Relation("author")
	require.Equal(t, "u2", author.Record().ID())
	dept, _ := author.Record().Relation("department")
	require.Equal(t, "d1", dept.Record().ID())
	require.Equal(t, []string{"author", "comments"}, posts[0].Relations())
}

func TestResolveCycleTerminates(t *testing.T) {
	fetcher := newCountingFetcher()
	users := fetcher.rows("users")

	logs := resolve(t, fetcher, "user", users, map[string]any{
		"department": map[string]any{"users": "department"},
	})

	dept, _ := users[0].Relation("department")
	members, ok := dept.Record().Relation("users")
	require.True(t, ok)
	require.Equal(t, []string{"u1", "u2"}, ids(members.Records()))

	// the inner department is already in progress and is left out
	_, ok = members.Records()[0].Relation("department")
	require.False(t, ok)

	warnings := logs.FilterMessage(ErrCycleDetected.Error())
	require.Equal(t, 1, warnings.Len())
	require.Equal(t, zapcore.WarnLevel, warnings.All()[0].Level)
	require.Equal(t, "department", warnings.All()[0].ContextMap()["relation"])
}

func TestResolveSiblingsDoNotShareInProgress(t *testing.T) {
	fetcher := newCountingFetcher()
	users := fetcher.rows("users")

	logs := resolve(t, fetcher, "user", users, []any{"department", "department"})

	require.Equal(t, 2, fetcher.count("departments"))
	require.Equal(t, 0, logs.FilterMessage(ErrCycleDetected.Error()).Len())
	require.Equal(t, []string{"department"}, users[0].Relations())
}

func TestResolveUnknownRelation(t *testing.T) {
	fetcher := newCountingFetcher()
	users := fetcher.rows("users")

	logs := resolve(t, fetcher, "user", users, "friends", "role")

	_, ok := users[0].Relation("friends")
	require.False(t, ok)
	role, ok := users[0].Relation("role")
	require.True(t, ok)
	require.Equal(t, "admin", role.Record().Value("title"))

	warnings := logs.FilterMessage(ErrUnknownRelation.Error())
	require.Equal(t, 1, warnings.Len())
	require.Equal(t, "friends", warnings.All()[0].ContextMap()["relation"])
}

func TestResolveUnregisteredEntity(t *testing.T) {
	registry := NewRegistry(NewEntity("user", "users").HasMany("tags", "tag", "user_id"))
	user, _ := registry.Entity("user")
	fetcher := newCountingFetcher()

	l, logs := logger.NewObserverLogger("warn")
	err := NewResolver(registry, fetcher, l).Resolve(context.Background(), user, fetcher.rows("users"), []Spec{{Name: "tags"}})
	require.NoError(t, err)
	require.Equal(t, 1, logs.FilterMessage(ErrUnknownEntity.Error()).Len())
}

func TestResolveEmptyInputsFetchNothing(t *testing.T) {
	fetcher := newCountingFetcher()

	resolve(t, fetcher, "user", nil, "department")
	resolve(t, fetcher, "user", fetcher.rows("users"))

	require.Zero(t, fetcher.count("departments"))
}

func TestResolveNoKeysSkipsFetch(t *testing.T) {
	fetcher := newCountingFetcher()
	users := []*record.Record{record.New([]string{"id", "department_id"}, []string{"u9", ""})}

	resolve(t, fetcher, "user", users, "department")

	require.Zero(t, fetcher.count("departments"))
	dept, ok := users[0].Relation("department")
	require.True(t, ok)
	require.Nil(t, dept.Record())
}

func TestResolveFetchError(t *testing.T) {
	fetcher := newCountingFetcher()
	boom := errors.New("boom")
	fetcher.fail["comments"] = boom

	registry := testRegistry()
	user, _ := registry.Entity("user")
	specs, err := Parse(map[string]any{"posts": "comments"})
	require.NoError(t, err)

	err = NewResolver(registry, fetcher, nil).Resolve(context.Background(), user, fetcher.rows("users"), specs)
	require.ErrorIs(t, err, boom)
}

func TestResolveLogsJoinSummary(t *testing.T) {
	fetcher := newCountingFetcher()
	logs := resolve(t, fetcher, "user", fetcher.rows("users"), "posts")

	entries := logs.FilterMessage("relation resolved").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "posts", fields["relation"])
	require.EqualValues(t, 4, fields["parents"])
	require.EqualValues(t, 3, fields["related"])
}

func TestFetcherFunc(t *testing.T) {
	var seen string
	f := FetcherFunc(func(_ context.Context, collection string) ([]*record.Record, error) {
		seen = collection
		return nil, nil
	})
	_, err := f.Fetch(context.Background(), "roles")
	require.NoError(t, err)
	require.Equal(t, "roles", seen)
}
