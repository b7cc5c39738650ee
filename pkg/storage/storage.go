// Package storage contains the tabular store interface and its implementations.
//
// A collection is a named range whose first row is the header. Backends know
// nothing about ids, relations or queries; they move header and data rows.
//
//go:generate mockgen -source storage.go -destination ../../internal/mocks/mock_storage.go -package mocks TabularStore
package storage

import (
	"context"
	"slices"
)

// Table is one fetched snapshot of a collection.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Clone returns a deep copy of t, padding every row to the header width.
func (t *Table) Clone() *Table {
	if t == nil {
		return &Table{}
	}
	out := &Table{
		Headers: slices.Clone(t.Headers),
		Rows:    make([][]string, 0, len(t.Rows)),
	}
	for _, row := range t.Rows {
		out.Rows = append(out.Rows, PadRow(row, len(t.Headers)))
	}
	return out
}

// ColumnIndex returns the position of column in the header, or -1.
func (t *Table) ColumnIndex(column string) int {
	if t == nil {
		return -1
	}
	return slices.Index(t.Headers, column)
}

// PadRow copies row and right-pads it with empty cells up to width. Remote
// stores omit trailing empty cells, so rows may be shorter than the header.
func PadRow(row []string, width int) []string {
	out := make([]string, max(width, len(row)))
	copy(out, row)
	return out
}

// TabularStore is the boundary to the remote backing store.
type TabularStore interface {
	// FetchRows returns the header and every data row of the collection. It
	// returns ErrCollectionNotFound when the range does not exist. An
	// existing collection without any rows yields an empty Table.
	FetchRows(ctx context.Context, collection string) (*Table, error)

	// AppendRow appends one data row after the last row of the collection.
	// It does not check the uniqueness of any cell.
	AppendRow(ctx context.Context, collection string, row []string) error

	// OverwriteRow replaces the data row at index (0-based, header excluded).
	// It returns ErrInvalidRowIndex if no such row exists.
	OverwriteRow(ctx context.Context, collection string, index int, row []string) error

	// OverwriteAll replaces the header and all data rows of the collection,
	// creating the collection if needed. Rows beyond len(rows) are removed.
	OverwriteAll(ctx context.Context, collection string, headers []string, rows [][]string) error

	// Close releases the resources held by the store.
	Close()
}

// ReadinessStatus reports whether a backend can serve requests.
type ReadinessStatus struct {
	// Message is a human-friendly status message for the current readiness status.
	Message string
	// IsReady is true if the backend is ready.
	IsReady bool
}
