package db

import (
	"context"
	"database/sql"
	"embed"
	"sync"

	"github.com/pressly/goose/v3"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var migrationFiles embed.FS

var gooseOnce sync.Once
var gooseErr error

// setupGoose points goose at the embedded files; goose keeps this globally.
func setupGoose() error {
	gooseOnce.Do(func() {
		goose.SetBaseFS(migrationFiles)
		gooseErr = goose.SetDialect("postgres")
	})
	return gooseErr
}

// RunMigrations applies the embedded document and batch schema. A nil
// database is a no-op so in-memory setups can call it unconditionally.
func RunMigrations(ctx context.Context, database *sql.DB) error {
	if database == nil {
		return nil
	}
	if err := setupGoose(); err != nil {
		return err
	}
	return goose.UpContext(ctx, database, migrationsDir)
}

// MigrationVersion reports the schema version recorded in the database.
func MigrationVersion(ctx context.Context, database *sql.DB) (int64, error) {
	if err := setupGoose(); err != nil {
		return 0, err
	}
	return goose.GetDBVersionContext(ctx, database)
}

// EmbeddedMigrations lists the migration files shipped in the binary.
func EmbeddedMigrations() ([]string, error) {
	entries, err := migrationFiles.ReadDir(migrationsDir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}
