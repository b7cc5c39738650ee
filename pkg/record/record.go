// Package record defines the row model shared by the query, relation and
// repository packages.
//
// A Record keeps the column order of the header it was read from, so that it
// can be written back and rendered in the same order. Relations attached by
// eager loading live next to the columns and are rendered after them.
package record

import (
	"bytes"
	"encoding/json"
	"slices"

	"github.com/sheetql/sheetql/pkg/storage"
)

// IDColumn is the column every record is identified by.
const IDColumn = "id"

// Related is the value attached to a record under a relation name: either a
// single record (possibly nil) or an ordered sequence of records.
type Related struct {
	one    *Record
	many   []*Record
	isMany bool
}

// One returns a single-record relation value. r may be nil.
func One(r *Record) Related {
	return Related{one: r}
}

// Many returns a sequence relation value. A nil slice is kept as empty.
func Many(rs []*Record) Related {
	if rs == nil {
		rs = []*Record{}
	}
	return Related{many: rs, isMany: true}
}

// IsMany reports whether the value is a sequence.
func (r Related) IsMany() bool { return r.isMany }

// Record returns the single related record, or nil.
func (r Related) Record() *Record { return r.one }

// Records returns the related sequence. A single value is returned as a
// one-element (or empty, when nil) sequence.
func (r Related) Records() []*Record {
	if r.isMany {
		return r.many
	}
	if r.one == nil {
		return nil
	}
	return []*Record{r.one}
}

func (r Related) MarshalJSON() ([]byte, error) {
	if r.isMany {
		return json.Marshal(r.many)
	}
	return json.Marshal(r.one)
}

// Record is one row of a collection.
type Record struct {
	columns   []string
	values    map[string]string
	relations []string
	related   map[string]Related
}

// New builds a record from a header and the matching cells. Cells missing at
// the end of a short row become empty strings.
func New(headers []string, cells []string) *Record {
	r := &Record{
		columns: make([]string, 0, len(headers)),
		values:  make(map[string]string, len(headers)),
	}
	for i, h := range headers {
		if _, dup := r.values[h]; dup {
			continue
		}
		v := ""
		if i < len(cells) {
			v = cells[i]
		}
		r.columns = append(r.columns, h)
		r.values[h] = v
	}
	return r
}

// FromMap builds a record with the given column order, taking values from m.
// Columns absent from m are left out.
func FromMap(columns []string, m map[string]string) *Record {
	r := &Record{values: make(map[string]string, len(columns))}
	for _, c := range columns {
		v, ok := m[c]
		if !ok {
			continue
		}
		if _, dup := r.values[c]; dup {
			continue
		}
		r.columns = append(r.columns, c)
		r.values[c] = v
	}
	return r
}

// FromTable turns every data row of a table into a fresh record.
func FromTable(t *storage.Table) []*Record {
	if t == nil {
		return []*Record{}
	}
	out := make([]*Record, 0, len(t.Rows))
	for _, row := range t.Rows {
		out = append(out, New(t.Headers, row))
	}
	return out
}

// ID returns the value of the id column.
func (r *Record) ID() string {
	return r.values[IDColumn]
}

// Get returns the value of column and whether the record has that column.
func (r *Record) Get(column string) (string, bool) {
	v, ok := r.values[column]
	return v, ok
}

// Value returns the value of column, or "" when absent.
func (r *Record) Value(column string) string {
	return r.values[column]
}

// Columns returns the column names in header order.
func (r *Record) Columns() []string {
	return slices.Clone(r.columns)
}

// Set assigns a column value, appending the column if it is new.
func (r *Record) Set(column, value string) {
	if r.values == nil {
		r.values = make(map[string]string)
	}
	if _, ok := r.values[column]; !ok {
		r.columns = append(r.columns, column)
	}
	r.values[column] = value
}

// Cells returns the values laid out along headers, "" for absent columns.
func (r *Record) Cells(headers []string) []string {
	out := make([]string, len(headers))
	for i, h := range headers {
		out[i] = r.values[h]
	}
	return out
}

// Project returns a new record holding only the requested columns that r
// actually has, in the requested order.
func (r *Record) Project(columns []string) *Record {
	return FromMap(columns, r.values)
}

// Attach sets the relation value under name, replacing any previous value.
func (r *Record) Attach(name string, value Related) {
	if r.related == nil {
		r.related = make(map[string]Related)
	}
	if _, ok := r.related[name]; !ok {
		r.relations = append(r.relations, name)
	}
	r.related[name] = value
}

// Relation returns the value attached under name.
func (r *Record) Relation(name string) (Related, bool) {
	v, ok := r.related[name]
	return v, ok
}

// Relations returns the attached relation names in attach order.
func (r *Record) Relations() []string {
	return slices.Clone(r.relations)
}

// Map renders the record as a plain map, relations included. A relation
// named like a column replaces that column.
func (r *Record) Map() map[string]any {
	out := make(map[string]any, len(r.columns)+len(r.relations))
	for _, c := range r.columns {
		out[c] = r.values[c]
	}
	for _, name := range r.relations {
		rel := r.related[name]
		if rel.isMany {
			list := make([]map[string]any, 0, len(rel.many))
			for _, m := range rel.many {
				list = append(list, m.Map())
			}
			out[name] = list
			continue
		}
		if rel.one == nil {
			out[name] = nil
			continue
		}
		out[name] = rel.one.Map()
	}
	return out
}

// MarshalJSON renders columns in header order followed by relations in
// attach order. A relation named like a column replaces that column.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	writeKey := func(k string) error {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		kb, err := json.Marshal(k)
		if err != nil {
			return err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		return nil
	}

	for _, c := range r.columns {
		if _, shadowed := r.related[c]; shadowed {
			continue
		}
		if err := writeKey(c); err != nil {
			return nil, err
		}
		vb, err := json.Marshal(r.values[c])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	for _, name := range r.relations {
		if err := writeKey(name); err != nil {
			return nil, err
		}
		vb, err := json.Marshal(r.related[name])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
