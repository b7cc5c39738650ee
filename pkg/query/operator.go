package query

import "strings"

// Operator is a comparison operator used in a query condition.
type Operator string

const (
	OpEqual        Operator = "="
	OpNotEqual     Operator = "!="
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	OpContains     Operator = "contains"
	OpLike         Operator = "like"
	OpIn           Operator = "in"
	OpNotIn        Operator = "notin"
)

// ParseOperator normalizes an operator token. Unknown tokens are returned
// as-is and compare as equality.
func ParseOperator(s string) Operator {
	op := Operator(strings.ToLower(strings.TrimSpace(s)))
	switch op {
	case "==":
		return OpEqual
	case "<>":
		return OpNotEqual
	case "not in", "not_in":
		return OpNotIn
	}
	return op
}

// IsNumeric reports whether the operator compares its operands as numbers.
func (o Operator) IsNumeric() bool {
	switch o {
	case OpGreater, OpLess, OpGreaterEqual, OpLessEqual:
		return true
	}
	return false
}

// IsMembership reports whether the operator expects a sequence value.
func (o Operator) IsMembership() bool {
	return o == OpIn || o == OpNotIn
}
