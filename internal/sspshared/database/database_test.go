package database

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testMigrationsFS = fstest.MapFS{
	"migrations/sqlite/000001_init.up.sql": &fstest.MapFile{
		Data: []byte("CREATE TABLE IF NOT EXISTS test_table (id INTEGER PRIMARY KEY, name TEXT NOT NULL);"),
	},
	"migrations/sqlite/000001_init.down.sql": &fstest.MapFile{
		Data: []byte("DROP TABLE IF EXISTS test_table;"),
	},
}

func TestMigrationRunner_Apply_SQLite(t *testing.T) {
	t.Parallel()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)

	defer db.Close()

	runner := NewMigrationRunner(testMigrationsFS, "migrations/sqlite")
	require.NoError(t, runner.Apply(db, DatabaseTypeSQLite))

	var count int
	require.NoError(t, db.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM test_table").Scan(&count))
}

func TestMigrationRunner_Apply_NoChangesOnSecondRun(t *testing.T) {
	t.Parallel()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)

	defer db.Close()

	runner := NewMigrationRunner(testMigrationsFS, "migrations/sqlite")
	require.NoError(t, runner.Apply(db, DatabaseTypeSQLite))
	require.NoError(t, runner.Apply(db, DatabaseTypeSQLite))
}

func TestMigrationRunner_Apply_InvalidPath(t *testing.T) {
	t.Parallel()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)

	defer db.Close()

	runner := NewMigrationRunner(testMigrationsFS, "nonexistent")
	err = runner.Apply(db, DatabaseTypeSQLite)
	require.Error(t, err)
}

func TestMigrationRunner_Apply_UnsupportedDatabaseType(t *testing.T) {
	t.Parallel()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)

	defer db.Close()

	runner := NewMigrationRunner(testMigrationsFS, "migrations/sqlite")
	err = runner.Apply(db, DatabaseType("unsupported"))
	require.Error(t, err)
}

func TestApplyMigrationsFromFS_UnsupportedTypeString(t *testing.T) {
	t.Parallel()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)

	defer db.Close()

	err = ApplyMigrationsFromFS(db, testMigrationsFS, "migrations/sqlite", "mysql")
	require.Error(t, err)
}

func TestInitSQLite_Success(t *testing.T) {
	t.Parallel()

	db, err := InitSQLite(context.Background(), ":memory:", MigrationsFS)
	require.NoError(t, err)
	require.NotNil(t, db)

	sqlDB, err := db.DB()
	require.NoError(t, err)

	defer sqlDB.Close()
}

func TestInitSQLite_SQLOpenError(t *testing.T) {
	original := sqlOpenFn
	sqlOpenFn = func(_, _ string) (*sql.DB, error) {
		return nil, errors.New("injected sql open error")
	}

	defer func() { sqlOpenFn = original }()

	db, err := InitSQLite(context.Background(), ":memory:", MigrationsFS)
	require.Error(t, err)
	require.Nil(t, db)
}

func TestInitSQLite_GormOpenError(t *testing.T) {
	original := gormOpenFn
	gormOpenFn = func(_ gorm.Dialector, _ ...gorm.Option) (*gorm.DB, error) {
		return nil, errors.New("injected gorm open error")
	}

	defer func() { gormOpenFn = original }()

	db, err := InitSQLite(context.Background(), ":memory:", MigrationsFS)
	require.Error(t, err)
	require.Nil(t, db)
}

func TestInitSQLite_ApplyMigrationsError(t *testing.T) {
	original := applyMigrationsFn
	applyMigrationsFn = func(_ *sql.DB, _ fs.FS, _, _ string) error {
		return errors.New("injected migration error")
	}

	defer func() { applyMigrationsFn = original }()

	db, err := InitSQLite(context.Background(), ":memory:", MigrationsFS)
	require.Error(t, err)
	require.Nil(t, db)
}
