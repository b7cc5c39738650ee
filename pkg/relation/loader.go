package relation

import (
	"context"

	"github.com/emirpasic/gods/sets/hashset"

	"github.com/sheetql/sheetql/pkg/record"
)

// Fetcher returns a fresh snapshot of a collection's rows.
type Fetcher interface {
	Fetch(ctx context.Context, collection string) ([]*record.Record, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, collection string) ([]*record.Record, error)

func (f FetcherFunc) Fetch(ctx context.Context, collection string) ([]*record.Record, error) {
	return f(ctx, collection)
}

// Loaded is the result of loading one relation for a batch of parents.
type Loaded struct {
	Relation Relation
	// Rows holds each related row that will be attached, once, in the order
	// of the related collection. Nested relations resolve on these rows.
	Rows []*record.Record

	many map[string][]*record.Record
	one  map[string]*record.Record
}

// For returns the value to attach to parent.
func (l *Loaded) For(parent *record.Record) record.Related {
	key, ok := parent.Get(l.Relation.ParentKey())
	if l.Relation.Kind.IsMany() {
		if !ok {
			return record.Many(nil)
		}
		return record.Many(l.many[key])
	}
	if !ok {
		return record.One(nil)
	}
	return record.One(l.one[key])
}

// Attach sets the loaded value on every parent under the relation name.
func (l *Loaded) Attach(parents []*record.Record) {
	for _, p := range parents {
		p.Attach(l.Relation.Name, l.For(p))
	}
}

// Load fetches the related collection once and builds the join map for the
// whole parent batch. Keys are matched by exact string equality; parents
// with an empty or absent key join nothing.
func Load(ctx context.Context, fetcher Fetcher, rel Relation, related *Entity, parents []*record.Record) (*Loaded, error) {
	keys := parentKeys(parents, rel.ParentKey())

	loaded := &Loaded{Relation: rel, Rows: []*record.Record{}}
	if keys.Empty() {
		if rel.Kind.IsMany() {
			loaded.many = map[string][]*record.Record{}
		} else {
			loaded.one = map[string]*record.Record{}
		}
		return loaded, nil
	}

	rows, err := fetcher.Fetch(ctx, related.Collection)
	if err != nil {
		return nil, err
	}

	switch rel.Kind {
	case HasMany:
		loaded.many = joinMany(rows, rel.RelatedKey(), keys, &loaded.Rows)
	default:
		loaded.one = joinOne(rows, rel.RelatedKey(), keys, &loaded.Rows)
	}
	return loaded, nil
}

func parentKeys(parents []*record.Record, column string) *hashset.Set {
	keys := hashset.New()
	for _, p := range parents {
		if v, ok := p.Get(column); ok && v != "" {
			keys.Add(v)
		}
	}
	return keys
}

// joinMany groups the related rows whose key is requested by a parent.
func joinMany(rows []*record.Record, column string, keys *hashset.Set, matched *[]*record.Record) map[string][]*record.Record {
	out := make(map[string][]*record.Record, keys.Size())
	for _, r := range rows {
		v, ok := r.Get(column)
		if !ok || !keys.Contains(v) {
			continue
		}
		out[v] = append(out[v], r)
		*matched = append(*matched, r)
	}
	return out
}

// joinOne maps each requested key to one related row. When several rows
// share a key the last one wins.
func joinOne(rows []*record.Record, column string, keys *hashset.Set, matched *[]*record.Record) map[string]*record.Record {
	out := make(map[string]*record.Record, keys.Size())
	for _, r := range rows {
		v, ok := r.Get(column)
		if !ok || !keys.Contains(v) {
			continue
		}
		out[v] = r
	}
	for _, r := range rows {
		v, ok := r.Get(column)
		if ok && out[v] == r {
			*matched = append(*matched, r)
		}
	}
	return out
}
