// Package database wires the store's single physical table to a real
// SQL backend: an embedded cgo-free SQLite file for local/dev use, or
// PostgreSQL for production, with schema changes tracked as
// golang-migrate migrations rather than left to GORM's AutoMigrate.
package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	migratedatabase "github.com/golang-migrate/migrate/v4/database"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	gormpostgres "gorm.io/driver/postgres"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	_ "modernc.org/sqlite"             // registers the "sqlite" database/sql driver

	"sspbackend/internal/sspshared/apperr"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var MigrationsFS embed.FS

// DatabaseType selects which golang-migrate database driver Apply uses.
type DatabaseType string

const (
	DatabaseTypeSQLite     DatabaseType = "sqlite"
	DatabaseTypePostgreSQL DatabaseType = "postgres"
)

// MigrationRunner applies the embedded SQL migrations under subPath of
// fsys to a *sql.DB, tracking applied versions the golang-migrate way
// rather than relying on GORM's best-effort AutoMigrate.
type MigrationRunner struct {
	fsys    fs.FS
	subPath string
}

// NewMigrationRunner builds a MigrationRunner over fsys's subPath
// directory of .up.sql/.down.sql migration files.
func NewMigrationRunner(fsys fs.FS, subPath string) *MigrationRunner {
	return &MigrationRunner{fsys: fsys, subPath: subPath}
}

// Apply runs every pending migration against db using the driver
// selected by dbType. migrate.ErrNoChange is not an error: it means the
// schema was already current.
func (r *MigrationRunner) Apply(db *sql.DB, dbType DatabaseType) error {
	source, err := iofs.New(r.fsys, r.subPath)
	if err != nil {
		return apperr.Wrap(apperr.KindTransient, "failed to create iofs source driver", err)
	}

	var (
		dbDriver   migratedatabase.Driver
		driverName string
	)

	switch dbType {
	case DatabaseTypeSQLite:
		dbDriver, err = migratesqlite.WithInstance(db, &migratesqlite.Config{})
		driverName = string(DatabaseTypeSQLite)
	case DatabaseTypePostgreSQL:
		dbDriver, err = migratepostgres.WithInstance(db, &migratepostgres.Config{})
		driverName = string(DatabaseTypePostgreSQL)
	default:
		return apperr.New(apperr.KindValidationError, "unsupported database type")
	}

	if err != nil {
		return apperr.Wrap(apperr.KindTransient, "failed to create migration database driver", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, driverName, dbDriver)
	if err != nil {
		return apperr.Wrap(apperr.KindTransient, "failed to build migration runner", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return apperr.Wrap(apperr.KindTransient, "failed to apply migrations", err)
	}

	return nil
}

// ApplyMigrationsFromFS is a convenience wrapper accepting the database
// type as a plain string (as it would arrive from configuration).
func ApplyMigrationsFromFS(db *sql.DB, fsys fs.FS, subPath, dbTypeStr string) error {
	var dbType DatabaseType

	switch dbTypeStr {
	case "sqlite", "sqlite3":
		dbType = DatabaseTypeSQLite
	case "postgres", "postgresql":
		dbType = DatabaseTypePostgreSQL
	default:
		return apperr.New(apperr.KindValidationError, "unsupported database type")
	}

	return NewMigrationRunner(fsys, subPath).Apply(db, dbType)
}

// The three steps below are injectable so tests can exercise each
// failure path of Init* without a real database.
var (
	sqlOpenFn         = sql.Open
	gormOpenFn        = gorm.Open
	applyMigrationsFn = ApplyMigrationsFromFS
)

// InitSQLite opens dsn, applies every migration under
// "migrations/sqlite" in fsys, and returns a *gorm.DB over the same file.
func InitSQLite(_ context.Context, dsn string, fsys fs.FS) (*gorm.DB, error) {
	sqlDB, err := sqlOpenFn("sqlite", dsn)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransient, "failed to open SQLite database", err)
	}
	defer sqlDB.Close()

	if err := applyMigrationsFn(sqlDB, fsys, "migrations/sqlite", "sqlite"); err != nil {
		return nil, apperr.Wrap(apperr.KindTransient, "failed to apply migrations", err)
	}

	db, err := gormOpenFn(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransient, "failed to initialize GORM for SQLite", err)
	}

	return db, nil
}

// InitPostgreSQL opens dsn, applies every migration under
// "migrations/postgres" in fsys, and returns a *gorm.DB over the same connection string.
func InitPostgreSQL(_ context.Context, dsn string, fsys fs.FS) (*gorm.DB, error) {
	sqlDB, err := sqlOpenFn("pgx", dsn)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransient, "failed to open PostgreSQL database", err)
	}
	defer sqlDB.Close()

	if err := applyMigrationsFn(sqlDB, fsys, "migrations/postgres", "postgres"); err != nil {
		return nil, apperr.Wrap(apperr.KindTransient, "failed to apply migrations", err)
	}

	db, err := gormOpenFn(gormpostgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransient, "failed to initialize GORM for PostgreSQL", err)
	}

	return db, nil
}
