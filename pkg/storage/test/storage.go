// Package test holds the behavior every storage.TabularStore backend must
// share. Backend packages run it against a fresh store.
package test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/sheetql/sheetql/pkg/storage"
)

// RunAllTests exercises ds. Each case works on its own collection, created
// through OverwriteAll.
func RunAllTests(t *testing.T, ds storage.TabularStore) {
	t.Run("TestFetchMissingCollection", func(t *testing.T) { FetchMissingCollectionTest(t, ds) })
	t.Run("TestOverwriteAllAndFetch", func(t *testing.T) { OverwriteAllAndFetchTest(t, ds) })
	t.Run("TestOverwriteAllShrinks", func(t *testing.T) { OverwriteAllShrinksTest(t, ds) })
	t.Run("TestAppendRow", func(t *testing.T) { AppendRowTest(t, ds) })
	t.Run("TestOverwriteRow", func(t *testing.T) { OverwriteRowTest(t, ds) })
	t.Run("TestShortRowsArePadded", func(t *testing.T) { ShortRowsArePaddedTest(t, ds) })
	t.Run("TestFetchReturnsCopies", func(t *testing.T) { FetchReturnsCopiesTest(t, ds) })
}

func collectionName(t *testing.T) string {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	return strings.ToLower(name) + "_" + uuid.NewString()[:8]
}

func FetchMissingCollectionTest(t *testing.T, ds storage.TabularStore) {
	ctx := context.Background()
	name := collectionName(t)

	_, err := ds.FetchRows(ctx, name)
	require.ErrorIs(t, err, storage.ErrCollectionNotFound)

	err = ds.AppendRow(ctx, name, []string{"x"})
	require.ErrorIs(t, err, storage.ErrCollectionNotFound)

	err = ds.OverwriteRow(ctx, name, 0, []string{"x"})
	require.ErrorIs(t, err, storage.ErrCollectionNotFound)
}

func OverwriteAllAndFetchTest(t *testing.T, ds storage.TabularStore) {
	ctx := context.Background()
	name := collectionName(t)

	headers := []string{"id", "name", "department_id"}
	rows := [][]string{
		{"u1", "Ann", "d1"},
		{"u2", "Bob", "d2"},
	}
	require.NoError(t, ds.OverwriteAll(ctx, name, headers, rows))

	table, err := ds.FetchRows(ctx, name)
	require.NoError(t, err)
	if diff := cmp.Diff(&storage.Table{Headers: headers, Rows: rows}, table); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}

	require.NoError(t, ds.OverwriteAll(ctx, name, headers, nil))
	table, err = ds.FetchRows(ctx, name)
	require.NoError(t, err)
	require.Equal(t, headers, table.Headers)
	require.Equal(t, 0, table.Len())
}

func OverwriteAllShrinksTest(t *testing.T, ds storage.TabularStore) {
	ctx := context.Background()
	name := collectionName(t)

	headers := []string{"id", "name"}
	require.NoError(t, ds.OverwriteAll(ctx, name, headers, [][]string{
		{"u1", "Ann"}, {"u2", "Bob"}, {"u3", "Cid"},
	}))
	require.NoError(t, ds.OverwriteAll(ctx, name, headers, [][]string{
		{"u1", "Ann"}, {"u3", "Cid"},
	}))

	table, err := ds.FetchRows(ctx, name)
	require.NoError(t, err)
	require.Equal(t, [][]string{{"u1", "Ann"}, {"u3", "Cid"}}, table.Rows)

	// appends continue after the rewritten rows
	require.NoError(t, ds.AppendRow(ctx, name, []string{"u4", "Dee"}))
	table, err = ds.FetchRows(ctx, name)
	require.NoError(t, err)
	require.Equal(t, [][]string{{"u1", "Ann"}, {"u3", "Cid"}, {"u4", "Dee"}}, table.Rows)
}

func AppendRowTest(t *testing.T, ds storage.TabularStore) {
	ctx := context.Background()
	name := collectionName(t)

	require.NoError(t, ds.OverwriteAll(ctx, name, []string{"id", "title"}, nil))
	require.NoError(t, ds.AppendRow(ctx, name, []string{"p1", "Hello"}))
	require.NoError(t, ds.AppendRow(ctx, name, []string{"p2", "World"}))
	// ids are not checked
	require.NoError(t, ds.AppendRow(ctx, name, []string{"p1", "Again"}))

	table, err := ds.FetchRows(ctx, name)
	require.NoError(t, err)
	require.Equal(t, [][]string{{"p1", "Hello"}, {"p2", "World"}, {"p1", "Again"}}, table.Rows)
}

func OverwriteRowTest(t *testing.T, ds storage.TabularStore) {
	ctx := context.Background()
	name := collectionName(t)

	require.NoError(t, ds.OverwriteAll(ctx, name, []string{"id", "title"}, [][]string{
		{"p1", "Hello"}, {"p2", "World"},
	}))
	require.NoError(t, ds.OverwriteRow(ctx, name, 1, []string{"p2", "Changed"}))

	table, err := ds.FetchRows(ctx, name)
	require.NoError(t, err)
	require.Equal(t, [][]string{{"p1", "Hello"}, {"p2", "Changed"}}, table.Rows)

	for _, index := range []int{-1, 2, 10} {
		err := ds.OverwriteRow(ctx, name, index, []string{"px", "x"})
		require.ErrorIs(t, err, storage.ErrInvalidRowIndex, index)
	}
}

func ShortRowsArePaddedTest(t *testing.T, ds storage.TabularStore) {
	ctx := context.Background()
	name := collectionName(t)

	require.NoError(t, ds.OverwriteAll(ctx, name, []string{"id", "name", "bio"}, [][]string{{"u1"}}))
	require.NoError(t, ds.AppendRow(ctx, name, []string{"u2", "Bob"}))

	table, err := ds.FetchRows(ctx, name)
	require.NoError(t, err)
	require.Equal(t, [][]string{{"u1", "", ""}, {"u2", "Bob", ""}}, table.Rows)
}

func FetchReturnsCopiesTest(t *testing.T, ds storage.TabularStore) {
	ctx := context.Background()
	name := collectionName(t)

	require.NoError(t, ds.OverwriteAll(ctx, name, []string{"id"}, [][]string{{"u1"}}))

	table, err := ds.FetchRows(ctx, name)
	require.NoError(t, err)
	table.Rows[0][0] = "mutated"
	table.Headers[0] = "mutated"

	table, err = ds.FetchRows(ctx, name)
	require.NoError(t, err)
	require.Equal(t, []string{"id"}, table.Headers)
	require.Equal(t, "u1", table.Rows[0][0])
}

// RunCancellationTests checks that a cancelled context fails every call.
func RunCancellationTests(t *testing.T, ds storage.TabularStore) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ds.FetchRows(ctx, "users")
	require.True(t, isCancelled(err), err)
	require.True(t, isCancelled(ds.AppendRow(ctx, "users", []string{"x"})))
	require.True(t, isCancelled(ds.OverwriteRow(ctx, "users", 0, []string{"x"})))
	require.True(t, isCancelled(ds.OverwriteAll(ctx, "users", []string{"id"}, nil)))
}

func isCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, storage.ErrCancelled)
}
