package query

import (
	"fmt"

	"github.com/sheetql/sheetql/pkg/record"
)

// Condition is one filter: the cell under Column compared to Value with Operator.
type Condition struct {
	Column   string
	Operator Operator
	Value    any
}

// Matches evaluates the condition against a record. An absent column
// compares as the empty string.
func (c Condition) Matches(r *record.Record) bool {
	return Compare(r.Value(c.Column), c.Operator, c.Value)
}

// matcher tests records against one condition, with its comparison prepared once.
type matcher struct {
	column  string
	compare func(string) bool
}

func (m matcher) matches(r *record.Record) bool {
	return m.compare(r.Value(m.column))
}

func matchers(conds []Condition) []matcher {
	out := make([]matcher, len(conds))
	for i, c := range conds {
		out[i] = matcher{column: c.Column, compare: comparison(c.Operator, c.Value)}
	}
	return out
}

func (c Condition) String() string {
	return fmt.Sprintf("%s %s %v", c.Column, c.Operator, c.Value)
}

// MatchAll reports whether r satisfies every condition. An empty list matches.
func MatchAll(r *record.Record, conds []Condition) bool {
	return matchAll(r, matchers(conds))
}

func matchAll(r *record.Record, ms []matcher) bool {
	for _, m := range ms {
		if !m.matches(r) {
			return false
		}
	}
	return true
}

// MatchAny reports whether r satisfies at least one condition. An empty list
// matches nothing.
func MatchAny(r *record.Record, conds []Condition) bool {
	return matchAny(r, matchers(conds))
}

func matchAny(r *record.Record, ms []matcher) bool {
	for _, m := range ms {
		if m.matches(r) {
			return true
		}
	}
	return false
}
