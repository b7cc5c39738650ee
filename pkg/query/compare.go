package query

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Compare evaluates one condition against a cell value. It never fails:
// malformed numbers and patterns simply do not match.
//
// All comparisons are case-insensitive. Numeric operators parse both sides
// as floats and a side that is not a number never matches. like maps % to
// any run of characters and is anchored at both ends. in and notin expect a
// sequence value and test membership; any other value makes them false.
// Unknown operators behave as equality.
func Compare(rowValue string, op Operator, value any) bool {
	return comparison(op, value)(rowValue)
}

// comparison prepares the test of op against value once, so it can be applied
// to many cells. like patterns are compiled here.
func comparison(op Operator, value any) func(rowValue string) bool {
	if op.IsMembership() {
		values, ok := sequence(value)
		if !ok {
			return func(string) bool { return false }
		}
		set := make(map[string]struct{}, len(values))
		for _, v := range values {
			set[strings.ToLower(v)] = struct{}{}
		}
		want := op == OpIn
		return func(rowValue string) bool {
			_, found := set[strings.ToLower(rowValue)]
			return found == want
		}
	}

	if _, ok := sequence(value); ok {
		return func(string) bool { return false }
	}
	target := strings.ToLower(scalar(value))

	switch op {
	case OpNotEqual:
		return func(rowValue string) bool { return strings.ToLower(rowValue) != target }
	case OpGreater, OpLess, OpGreaterEqual, OpLessEqual:
		n := parseNumber(target)
		return func(rowValue string) bool { return ordered(op, parseNumber(strings.ToLower(rowValue)), n) }
	case OpContains:
		return func(rowValue string) bool { return strings.Contains(strings.ToLower(rowValue), target) }
	case OpLike:
		re := likePattern(target)
		return func(rowValue string) bool { return re.MatchString(rowValue) }
	default:
		return func(rowValue string) bool { return strings.ToLower(rowValue) == target }
	}
}

func ordered(op Operator, a, b float64) bool {
	switch op {
	case OpGreater:
		return a > b
	case OpLess:
		return a < b
	case OpGreaterEqual:
		return a >= b
	default:
		return a <= b
	}
}

// parseNumber returns NaN for anything that is not a decimal float, so that
// every ordered comparison involving it is false. Spelled-out values such as
// inf, infinity and nan are not numbers.
func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	digits := strings.TrimLeft(s, "+-")
	if digits == "" || (digits[0] != '.' && (digits[0] < '0' || digits[0] > '9')) {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

func likePattern(pattern string) *regexp.Regexp {
	parts := strings.Split(pattern, "%")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile("(?is)^" + strings.Join(parts, ".*") + "$")
}

func sequence(value any) ([]string, bool) {
	switch v := value.(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			out = append(out, scalar(e))
		}
		return out, true
	}
	return nil, false
}

func scalar(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
