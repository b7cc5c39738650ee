package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sheetql/sheetql/pkg/storage"
	"github.com/sheetql/sheetql/pkg/storage/migrate"
	"github.com/sheetql/sheetql/pkg/storage/sqlcommon"
	"github.com/sheetql/sheetql/pkg/storage/sqlite"
	"github.com/sheetql/sheetql/pkg/storage/test"
)

func newMigratedDatastore(t *testing.T) *sqlite.Datastore {
	t.Helper()
	uri := "file:" + filepath.Join(t.TempDir(), "sheetql.db")

	err := migrate.RunMigrations(context.Background(), storage.MigrationConfig{
		Engine: "sqlite",
		URI:    uri,
	})
	require.NoError(t, err)

	ds, err := sqlite.New(uri, sqlcommon.NewConfig())
	require.NoError(t, err)
	t.Cleanup(ds.Close)
	return ds
}

func TestSQLiteDatastore(t *testing.T) {
	ds := newMigratedDatastore(t)

	status, err := ds.IsReady(context.Background())
	require.NoError(t, err)
	require.True(t, status.IsReady)

	test.RunAllTests(t, ds)
	test.RunCancellationTests(t, ds)
}

func TestSQLiteDatastoreWithoutMigrationsIsNotReady(t *testing.T) {
	uri := "file:" + filepath.Join(t.TempDir(), "empty.db")
	ds, err := sqlite.New(uri, sqlcommon.NewConfig())
	require.NoError(t, err)
	defer ds.Close()

	status, err := ds.IsReady(context.Background())
	require.NoError(t, err)
	require.False(t, status.IsReady)
	require.Contains(t, status.Message, "sheetql migrate")
}

func TestSQLiteDatastoreAfterCloseIsNotReady(t *testing.T) {
	uri := "file:" + filepath.Join(t.TempDir(), "closed.db")
	ds, err := sqlite.New(uri, sqlcommon.NewConfig())
	require.NoError(t, err)
	ds.Close()

	status, err := ds.IsReady(context.Background())
	require.Error(t, err)
	require.False(t, status.IsReady)
}

func TestSQLiteCreateCollection(t *testing.T) {
	ctx := context.Background()
	ds := newMigratedDatastore(t)

	require.NoError(t, ds.CreateCollection(ctx, "users"))
	table, err := ds.FetchRows(ctx, "users")
	require.NoError(t, err)
	require.Empty(t, table.Headers)
	require.Equal(t, 0, table.Len())

	require.NoError(t, ds.OverwriteAll(ctx, "users", []string{"id"}, [][]string{{"u1"}}))
	// creating again keeps the data
	require.NoError(t, ds.CreateCollection(ctx, "users"))
	table, err = ds.FetchRows(ctx, "users")
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())
}

func TestSQLiteLargeOverwrite(t *testing.T) {
	ctx := context.Background()
	ds := newMigratedDatastore(t)

	rows := make([][]string, 0, 1200)
	for i := 0; i < 1200; i++ {
		rows = append(rows, []string{"r", "x"})
	}
	require.NoError(t, ds.OverwriteAll(ctx, "events", []string{"id", "v"}, rows))

	table, err := ds.FetchRows(ctx, "events")
	require.NoError(t, err)
	require.Equal(t, 1200, table.Len())

	require.NoError(t, ds.OverwriteRow(ctx, "events", 1199, []string{"last", "y"}))
	table, err = ds.FetchRows(ctx, "events")
	require.NoError(t, err)
	require.Equal(t, []string{"last", "y"}, table.Rows[1199])
}
