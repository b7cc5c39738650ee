package relation

import (
	"context"
	"fmt"
	"sync"

	"github.com/sheetql/sheetql/pkg/record"
	"github.com/sheetql/sheetql/pkg/storage"
)

func testRegistry() *Registry {
	user := NewEntity("user", "users").
		BelongsTo("department", "department", "department_id").
		BelongsTo("role", "role", "role_id").
		HasMany("posts", "post", "user_id").
		HasOne("profile", "profile", "user_id")
	department := NewEntity("department", "departments").
		HasMany("users", "user", "department_id")
	role := NewEntity("role", "roles").
		HasMany("users", "user", "role_id")
	post := NewEntity("post", "posts").
		BelongsTo("author", "user", "user_id").
		HasMany("comments", "comment", "post_id")
	comment := NewEntity("comment", "comments").
		BelongsTo("post", "post", "post_id")
	profile := NewEntity("profile", "profiles").
		BelongsTo("user", "user", "user_id")
	return NewRegistry(user, department, role, post, comment, profile)
}

func testTables() map[string]*storage.Table {
	return map[string]*storage.Table{
		"users": {
			Headers: []string{"id", "name", "department_id", "role_id"},
			Rows: [][]string{
				{"u1", "Ann", "d1", "r1"},
				{"u2", "Bob", "d1", "r2"},
				{"u3", "Cid", "", "r1"},
				{"u4", "Dee", "d9", "r2"},
			},
		},
		"departments": {
			Headers: []string{"id", "name"},
			Rows: [][]string{
				{"d1", "Engineering"},
				{"d2", "Sales"},
			},
		},
		"roles": {
			Headers: []string{"id", "title"},
			Rows: [][]string{
				{"r1", "admin"},
				{"r2", "member"},
			},
		},
		"posts": {
			Headers: []string{"id", "user_id", "title"},
			Rows: [][]string{
				{"p1", "u1", "Hello"},
				{"p2", "u1", "Again"},
				{"p3", "u2", "Mine"},
			},
		},
		"comments": {
			Headers: []string{"id", "post_id", "body"},
			Rows: [][]string{
				{"c1", "p1", "first"},
				{"c2", "p1", "second"},
				{"c3", "p3", "third"},
			},
		},
		"profiles": {
			Headers: []string{"id", "user_id", "bio"},
			Rows: [][]string{
				{"pr1", "u1", "old"},
				{"pr2", "u2", "bob"},
				{"pr3", "u1", "new"},
			},
		},
	}
}

// countingFetcher serves the fixture tables and counts fetches per collection.
type countingFetcher struct {
	mu     sync.Mutex
	tables map[string]*storage.Table
	calls  map[string]int
	fail   map[string]error
}

func newCountingFetcher() *countingFetcher {
	return &countingFetcher{
		tables: testTables(),
		calls:  map[string]int{},
		fail:   map[string]error{},
	}
}

func (f *countingFetcher) Fetch(_ context.Context, collection string) ([]*record.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[collection]++
	if err := f.fail[collection]; err != nil {
		return nil, err
	}
	t, ok := f.tables[collection]
	if !ok {
		return nil, fmt.Errorf("collection %s: %w", collection, storage.ErrCollectionNotFound)
	}
	return record.FromTable(t), nil
}

func (f *countingFetcher) count(collection string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[collection]
}

func (f *countingFetcher) rows(collection string) []*record.Record {
	return record.FromTable(f.tables[collection])
}

func ids(rs []*record.Record) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.ID())
	}
	return out
}
