package query

import (
	"math"
	"slices"
	"strings"

	"github.com/sheetql/sheetql/pkg/record"
)

// Filter keeps the rows matching every condition.
func Filter(rows []*record.Record, conds []Condition) []*record.Record {
	ms := matchers(conds)
	out := make([]*record.Record, 0, len(rows))
	for _, r := range rows {
		if matchAll(r, ms) {
			out = append(out, r)
		}
	}
	return out
}

// FilterAny keeps the rows matching at least one condition.
func FilterAny(rows []*record.Record, conds []Condition) []*record.Record {
	ms := matchers(conds)
	out := make([]*record.Record, 0, len(rows))
	for _, r := range rows {
		if matchAny(r, ms) {
			out = append(out, r)
		}
	}
	return out
}

// Union concatenates primary and extra, keeping the first row seen for each
// id. Rows of primary therefore come first, followed by the rows of extra
// whose id was not seen yet.
func Union(primary, extra []*record.Record) []*record.Record {
	seen := make(map[string]struct{}, len(primary)+len(extra))
	out := make([]*record.Record, 0, len(primary)+len(extra))
	for _, list := range [][]*record.Record{primary, extra} {
		for _, r := range list {
			id := r.ID()
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}

// SortBy returns rows ordered by the raw cell values of the sort column.
// Values compare lexically, so "10" sorts before "9". The sort is stable.
func SortBy(rows []*record.Record, s Sort) []*record.Record {
	out := slices.Clone(rows)
	slices.SortStableFunc(out, func(a, b *record.Record) int {
		c := strings.Compare(a.Value(s.Column), b.Value(s.Column))
		if s.Direction == Descending {
			return -c
		}
		return c
	})
	return out
}

// Window skips offset rows then keeps at most limit rows. Non-positive
// values disable the corresponding step.
func Window(rows []*record.Record, offset, limit int) []*record.Record {
	if offset > 0 {
		if offset >= len(rows) {
			return []*record.Record{}
		}
		rows = rows[offset:]
	}
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

// Project maps every row to the requested columns it has.
func Project(rows []*record.Record, columns []string) []*record.Record {
	out := make([]*record.Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Project(columns))
	}
	return out
}

const DefaultPerPage = 10

// Page is one page of a paginated result.
type Page struct {
	Data        []*record.Record `json:"data"`
	Total       int              `json:"total"`
	PerPage     int              `json:"per_page"`
	CurrentPage int              `json:"current_page"`
	LastPage    int              `json:"last_page"`
}

// Paginate slices rows to page (1-based) of perPage rows. perPage <= 0 uses
// DefaultPerPage and page < 1 uses the first page.
func Paginate(rows []*record.Record, perPage, page int) Page {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if page < 1 {
		page = 1
	}

	total := len(rows)
	start := min((page-1)*perPage, total)
	end := min(start+perPage, total)

	data := make([]*record.Record, end-start)
	copy(data, rows[start:end])

	return Page{
		Data:        data,
		Total:       total,
		PerPage:     perPage,
		CurrentPage: page,
		LastPage:    int(math.Ceil(float64(total) / float64(perPage))),
	}
}
