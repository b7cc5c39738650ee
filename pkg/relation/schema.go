package relation

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"
)

// SchemaFile is the on-disk form of a registry.
//
//	entities:
//	  - name: user
//	    collection: users
//	    relations:
//	      - name: department
//	        kind: belongsTo
//	        related: department
//	        foreignKey: department_id
type SchemaFile struct {
	Entities []EntitySchema `json:"entities"`
}

type EntitySchema struct {
	Name       string           `json:"name"`
	Collection string           `json:"collection,omitempty"`
	Relations  []RelationSchema `json:"relations,omitempty"`
}

type RelationSchema struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Related    string `json:"related"`
	ForeignKey string `json:"foreignKey"`
	// LocalKey is the owner key for belongsTo relations.
	LocalKey string `json:"localKey,omitempty"`
	OwnerKey string `json:"ownerKey,omitempty"`
}

// LoadRegistry reads a YAML or JSON schema file.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}
	return ParseRegistry(data)
}

// ParseRegistry decodes a schema document and validates the result.
func ParseRegistry(data []byte) (*Registry, error) {
	var file SchemaFile
	if err := yaml.UnmarshalStrict(data, &file); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}

	registry := NewRegistry()
	for _, es := range file.Entities {
		if es.Name == "" {
			return nil, fmt.Errorf("decode schema: entity without a name")
		}
		entity := NewEntity(es.Name, es.Collection)
		for _, rs := range es.Relations {
			kind, err := ParseKind(rs.Kind)
			if err != nil {
				return nil, fmt.Errorf("entity %q relation %q: %w", es.Name, rs.Name, err)
			}
			key := rs.LocalKey
			if kind == BelongsTo && rs.OwnerKey != "" {
				key = rs.OwnerKey
			}
			entity.Declare(Relation{
				Name:       rs.Name,
				Kind:       kind,
				Related:    rs.Related,
				ForeignKey: rs.ForeignKey,
				LocalKey:   key,
			})
		}
		registry.Register(entity)
	}

	if err := registry.Validate(); err != nil {
		return nil, err
	}
	return registry, nil
}
