// Package relation resolves eager-loaded relations between collections.
//
// Relations are declared as descriptors on an Entity: a kind, the related
// entity and the key pair joining the two collections. The Resolver walks a
// tree of Specs, loads each relation with one fetch of the related
// collection for the whole parent batch, and attaches the results with a map
// lookup on the declared keys.
package relation

import (
	"fmt"
	"slices"
	"strings"

	"github.com/sheetql/sheetql/pkg/record"
)

// Kind is the shape of a relation.
type Kind string

const (
	// HasOne: related.ForeignKey == parent.LocalKey, at most one related row per parent.
	HasOne Kind = "hasOne"
	// HasMany: related.ForeignKey == parent.LocalKey, a sequence per parent.
	HasMany Kind = "hasMany"
	// BelongsTo: parent.ForeignKey == related.LocalKey (the owner key).
	BelongsTo Kind = "belongsTo"
)

// ParseKind accepts the kind names in any case, with or without separators.
func ParseKind(s string) (Kind, error) {
	normalized := strings.NewReplacer("_", "", "-", "", " ", "").Replace(strings.ToLower(s))
	switch normalized {
	case "hasone":
		return HasOne, nil
	case "hasmany":
		return HasMany, nil
	case "belongsto":
		return BelongsTo, nil
	}
	return "", fmt.Errorf("unknown relation kind %q", s)
}

// IsMany reports whether the relation attaches a sequence.
func (k Kind) IsMany() bool {
	return k == HasMany
}

// Relation describes one named relation of an entity.
type Relation struct {
	Name    string
	Kind    Kind
	Related string
	// ForeignKey is the column on the related rows for HasOne/HasMany and on
	// the parent rows for BelongsTo.
	ForeignKey string
	// LocalKey is the parent column for HasOne/HasMany and the related
	// (owner) column for BelongsTo. Defaults to "id".
	LocalKey string
}

// ParentKey returns the parent column the join reads.
func (r Relation) ParentKey() string {
	if r.Kind == BelongsTo {
		return r.ForeignKey
	}
	return r.LocalKey
}

// RelatedKey returns the related column the join reads.
func (r Relation) RelatedKey() string {
	if r.Kind == BelongsTo {
		return r.LocalKey
	}
	return r.ForeignKey
}

func (r Relation) String() string {
	return fmt.Sprintf("%s %s %s (%s -> %s)", r.Name, r.Kind, r.Related, r.ParentKey(), r.RelatedKey())
}

// Entity is the descriptor of one entity type: the collection it is stored
// in and its named relations.
type Entity struct {
	Name       string
	Collection string
	relations  map[string]Relation
	order      []string
}

// NewEntity returns an entity descriptor. An empty collection defaults to the
// entity name followed by "s".
func NewEntity(name, collection string) *Entity {
	if collection == "" {
		collection = strings.ToLower(name) + "s"
	}
	return &Entity{
		Name:       name,
		Collection: collection,
		relations:  make(map[string]Relation),
	}
}

// HasOne declares a one-to-one relation. localKey defaults to "id".
func (e *Entity) HasOne(name, related, foreignKey string, localKey ...string) *Entity {
	return e.Declare(Relation{Name: name, Kind: HasOne, Related: related, ForeignKey: foreignKey, LocalKey: optionalKey(localKey)})
}

// HasMany declares a one-to-many relation. localKey defaults to "id".
func (e *Entity) HasMany(name, related, foreignKey string, localKey ...string) *Entity {
	return e.Declare(Relation{Name: name, Kind: HasMany, Related: related, ForeignKey: foreignKey, LocalKey: optionalKey(localKey)})
}

// BelongsTo declares a many-to-one relation. ownerKey defaults to "id".
func (e *Entity) BelongsTo(name, related, foreignKey string, ownerKey ...string) *Entity {
	return e.Declare(Relation{Name: name, Kind: BelongsTo, Related: related, ForeignKey: foreignKey, LocalKey: optionalKey(ownerKey)})
}

// Declare adds or replaces a relation descriptor.
func (e *Entity) Declare(rel Relation) *Entity {
	if rel.LocalKey == "" {
		rel.LocalKey = record.IDColumn
	}
	if _, ok := e.relations[rel.Name]; !ok {
		e.order = append(e.order, rel.Name)
	}
	e.relations[rel.Name] = rel
	return e
}

// Relation looks up a relation by name.
func (e *Entity) Relation(name string) (Relation, bool) {
	rel, ok := e.relations[name]
	return rel, ok
}

// Relations returns the declared relations in declaration order.
func (e *Entity) Relations() []Relation {
	out := make([]Relation, 0, len(e.order))
	for _, name := range e.order {
		out = append(out, e.relations[name])
	}
	return out
}

func optionalKey(keys []string) string {
	if len(keys) > 0 && keys[0] != "" {
		return keys[0]
	}
	return record.IDColumn
}

// Registry maps entity names to their descriptors.
type Registry struct {
	entities map[string]*Entity
}

// NewRegistry returns a registry holding the given entities.
func NewRegistry(entities ...*Entity) *Registry {
	r := &Registry{entities: make(map[string]*Entity, len(entities))}
	for _, e := range entities {
		r.Register(e)
	}
	return r
}

// Register adds or replaces an entity.
func (r *Registry) Register(e *Entity) {
	r.entities[e.Name] = e
}

// Entity looks up an entity by name.
func (r *Registry) Entity(name string) (*Entity, bool) {
	e, ok := r.entities[name]
	return e, ok
}

// Lookup finds an entity by name, falling back to its collection name.
func (r *Registry) Lookup(nameOrCollection string) (*Entity, bool) {
	if e, ok := r.entities[nameOrCollection]; ok {
		return e, true
	}
	for _, e := range r.entities {
		if e.Collection == nameOrCollection {
			return e, true
		}
	}
	return nil, false
}

// Names returns the registered entity names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.entities))
	for name := range r.entities {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// Validate checks that every relation has a known kind, a foreign key and a
// registered related entity.
func (r *Registry) Validate() error {
	for _, name := range r.Names() {
		e := r.entities[name]
		for _, rel := range e.Relations() {
			switch rel.Kind {
			case HasOne, HasMany, BelongsTo:
			default:
				return fmt.Errorf("entity %q relation %q: unknown kind %q", e.Name, rel.Name, rel.Kind)
			}
			if rel.ForeignKey == "" {
				return fmt.Errorf("entity %q relation %q: missing foreign key", e.Name, rel.Name)
			}
			if _, ok := r.entities[rel.Related]; !ok {
				return fmt.Errorf("entity %q relation %q: related entity %q is not registered", e.Name, rel.Name, rel.Related)
			}
		}
	}
	return nil
}
