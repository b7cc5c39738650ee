package query

import (
	"fmt"
	"strings"

	pkgquery "github.com/sheetql/sheetql/pkg/query"
	"github.com/sheetql/sheetql/pkg/relation"
)

// symbolOperators are tried longest first so that ">=" is not read as ">".
var symbolOperators = []pkgquery.Operator{
	pkgquery.OpGreaterEqual,
	pkgquery.OpLessEqual,
	pkgquery.OpNotEqual,
	"<>",
	"==",
	pkgquery.OpEqual,
	pkgquery.OpGreater,
	pkgquery.OpLess,
}

var wordOperators = []pkgquery.Operator{
	pkgquery.OpContains,
	pkgquery.OpLike,
	pkgquery.OpIn,
	pkgquery.OpNotIn,
}

// ParseCondition parses a single command line condition. Symbol operators are
// written between column and value ('age>=30'); word operators use the form
// column:operator:value ('name:like:a%', 'status:in:active,pending').
func ParseCondition(raw string) (pkgquery.Condition, error) {
	if c, ok := parseWordCondition(raw); ok {
		return c, nil
	}

	idx := strings.IndexAny(raw, "!<>=")
	if idx <= 0 {
		return pkgquery.Condition{}, fmt.Errorf("invalid condition %q, expected column<operator>value", raw)
	}

	column := strings.TrimSpace(raw[:idx])
	rest := raw[idx:]
	for _, op := range symbolOperators {
		if value, ok := strings.CutPrefix(rest, string(op)); ok {
			if column == "" {
				break
			}
			return pkgquery.Condition{
				Column:   column,
				Operator: pkgquery.ParseOperator(string(op)),
				Value:    value,
			}, nil
		}
	}
	return pkgquery.Condition{}, fmt.Errorf("invalid condition %q, expected column<operator>value", raw)
}

func parseWordCondition(raw string) (pkgquery.Condition, bool) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) != 3 || strings.TrimSpace(parts[0]) == "" || strings.ContainsAny(parts[0], "!<>=") {
		return pkgquery.Condition{}, false
	}

	op := pkgquery.ParseOperator(parts[1])
	for _, word := range wordOperators {
		if op != word {
			continue
		}
		c := pkgquery.Condition{Column: strings.TrimSpace(parts[0]), Operator: op, Value: parts[2]}
		if op.IsMembership() {
			c.Value = splitList(parts[2])
		}
		return c, true
	}
	return pkgquery.Condition{}, false
}

// splitList splits a comma separated list, trimming blanks around items.
func splitList(s string) []string {
	items := strings.Split(s, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, strings.TrimSpace(item))
	}
	return out
}

func relationSpecs(dsl string) ([]relation.Spec, error) {
	specs, err := relation.ParseDSL(dsl)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s: %w", withFlag, err)
	}
	return specs, nil
}
