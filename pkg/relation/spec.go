package relation

import (
	"fmt"
	"slices"
	"strings"
)

// Spec is one requested relation and the relations to resolve on its rows.
type Spec struct {
	Name   string
	Nested []Spec
}

func (s Spec) String() string {
	if len(s.Nested) == 0 {
		return s.Name
	}
	nested := make([]string, 0, len(s.Nested))
	for _, n := range s.Nested {
		nested = append(nested, n.String())
	}
	return s.Name + "{" + strings.Join(nested, ",") + "}"
}

// Parse normalizes relation declarations into specs. Each argument may be a
// relation name, a slice of names, a mapping of name to nested declaration,
// a Spec, or a slice mixing any of these. Nested declarations accept the
// same forms, or nil for none. Mapping keys are taken in sorted order.
func Parse(relations ...any) ([]Spec, error) {
	var out []Spec
	for _, rel := range relations {
		specs, err := parseOne(rel)
		if err != nil {
			return nil, err
		}
		out = append(out, specs...)
	}
	return out, nil
}

func parseOne(v any) ([]Spec, error) {
	switch rel := v.(type) {
	case nil:
		return nil, nil
	case string:
		if rel == "" {
			return nil, fmt.Errorf("empty relation name")
		}
		return []Spec{{Name: rel}}, nil
	case Spec:
		return []Spec{rel}, nil
	case []Spec:
		return slices.Clone(rel), nil
	case []string:
		out := make([]Spec, 0, len(rel))
		for _, name := range rel {
			specs, err := parseOne(name)
			if err != nil {
				return nil, err
			}
			out = append(out, specs...)
		}
		return out, nil
	case []any:
		var out []Spec
		for _, item := range rel {
			specs, err := parseOne(item)
			if err != nil {
				return nil, err
			}
			out = append(out, specs...)
		}
		return out, nil
	case map[string]any:
		return parseMapping(rel, func(x any) any { return x })
	case map[string]string:
		return parseMapping(rel, func(x string) any { return x })
	case map[string][]string:
		return parseMapping(rel, func(x []string) any { return x })
	default:
		return nil, fmt.Errorf("unsupported relation declaration of type %T", v)
	}
}

func parseMapping[V any](m map[string]V, toAny func(V) any) ([]Spec, error) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]Spec, 0, len(names))
	for _, name := range names {
		if name == "" {
			return nil, fmt.Errorf("empty relation name")
		}
		nested, err := parseOne(toAny(m[name]))
		if err != nil {
			return nil, fmt.Errorf("relation %q: %w", name, err)
		}
		out = append(out, Spec{Name: name, Nested: nested})
	}
	return out, nil
}

// ParseDSL parses the compact form used on the command line: comma
// separated paths where dots nest, e.g. "department,posts.comments.author".
// Paths sharing a prefix are merged in first-seen order.
func ParseDSL(s string) ([]Spec, error) {
	var out []Spec
	for _, path := range strings.Split(s, ",") {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		parts := strings.Split(path, ".")
		for _, p := range parts {
			if strings.TrimSpace(p) == "" {
				return nil, fmt.Errorf("invalid relation path %q", path)
			}
		}
		out = mergePath(out, parts)
	}
	return out, nil
}

func mergePath(specs []Spec, parts []string) []Spec {
	if len(parts) == 0 {
		return specs
	}
	name := strings.TrimSpace(parts[0])
	for i := range specs {
		if specs[i].Name == name {
			specs[i].Nested = mergePath(specs[i].Nested, parts[1:])
			return specs
		}
	}
	return append(specs, Spec{Name: name, Nested: mergePath(nil, parts[1:])})
}
