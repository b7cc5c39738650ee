// Package query implements the in-memory query pipeline: conditions, the
// comparator, sorting, windowing and projection over a fetched snapshot.
package query

import (
	"context"
	"slices"
	"strings"

	"github.com/sheetql/sheetql/pkg/record"
)

// Direction is a sort direction.
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// ParseDirection maps "desc" (any case) to Descending and everything else
// to Ascending.
func ParseDirection(s string) Direction {
	if strings.EqualFold(strings.TrimSpace(s), string(Descending)) {
		return Descending
	}
	return Ascending
}

// Sort is the ordering of a query.
type Sort struct {
	Column    string
	Direction Direction
}

// Builder holds the accumulated state of one query as plain data. The chain
// methods mutate and return the same builder.
type Builder struct {
	And     []Condition
	Or      []Condition
	Columns []string
	Sort    *Sort
	// Limit and Offset of zero mean unset.
	Limit  int
	Offset int
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Where appends an equality condition to the AND-list.
func (b *Builder) Where(column string, value any) *Builder {
	return b.WhereOp(column, OpEqual, value)
}

// WhereOp appends a condition with an explicit operator to the AND-list.
func (b *Builder) WhereOp(column string, op Operator, value any) *Builder {
	b.And = append(b.And, Condition{Column: column, Operator: op, Value: value})
	return b
}

// OrWhere appends an equality condition to the OR-list.
func (b *Builder) OrWhere(column string, value any) *Builder {
	return b.OrWhereOp(column, OpEqual, value)
}

// OrWhereOp appends a condition with an explicit operator to the OR-list.
func (b *Builder) OrWhereOp(column string, op Operator, value any) *Builder {
	b.Or = append(b.Or, Condition{Column: column, Operator: op, Value: value})
	return b
}

// WhereIn is WhereOp(column, OpIn, values).
func (b *Builder) WhereIn(column string, values []string) *Builder {
	return b.WhereOp(column, OpIn, slices.Clone(values))
}

// Select restricts the returned columns.
func (b *Builder) Select(columns ...string) *Builder {
	b.Columns = slices.Clone(columns)
	return b
}

// OrderBy sets the sort column. Any direction other than "desc" is ascending.
func (b *Builder) OrderBy(column string, direction string) *Builder {
	b.Sort = &Sort{Column: column, Direction: ParseDirection(direction)}
	return b
}

// SetLimit sets the maximum number of returned rows.
func (b *Builder) SetLimit(n int) *Builder {
	b.Limit = n
	return b
}

// SetOffset sets the number of rows skipped before the limit applies.
func (b *Builder) SetOffset(n int) *Builder {
	b.Offset = n
	return b
}

// Source yields a fresh snapshot of every row of the collection.
type Source func(ctx context.Context) ([]*record.Record, error)

// Match runs the filter, OR-union and sort stages. base is the starting row
// set; src is fetched again for the OR-list, which is evaluated against the
// whole collection rather than the AND-filtered rows.
func (b *Builder) Match(ctx context.Context, base []*record.Record, src Source) ([]*record.Record, error) {
	rows := base
	if len(b.And) > 0 {
		rows = Filter(rows, b.And)
	}

	if len(b.Or) > 0 {
		all, err := src(ctx)
		if err != nil {
			return nil, err
		}
		rows = Union(rows, FilterAny(all, b.Or))
	}

	if b.Sort != nil && b.Sort.Column != "" {
		rows = SortBy(rows, *b.Sort)
	}

	return rows, nil
}

// Run executes every stage but relation resolution: filter, OR-union, sort,
// offset, limit, projection.
func (b *Builder) Run(ctx context.Context, base []*record.Record, src Source) ([]*record.Record, error) {
	rows, err := b.Match(ctx, base, src)
	if err != nil {
		return nil, err
	}

	rows = Window(rows, b.Offset, b.Limit)

	if len(b.Columns) > 0 {
		rows = Project(rows, b.Columns)
	}

	return rows, nil
}
