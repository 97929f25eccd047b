package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"

	"talentpool-backend/internal/shared/telemetry"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const migrationsDir = "migrations"

var gooseOnce sync.Once
var gooseErr error

func setupGoose() error {
	gooseOnce.Do(func() {
		goose.SetBaseFS(migrationFiles)
		gooseErr = goose.SetDialect("postgres")
	})
	return gooseErr
}

// RunMigrations applies every pending pool schema migration. A nil database
// means the in-memory store is in use and nothing runs.
func RunMigrations(ctx context.Context, database *sql.DB) error {
	return MigrateTo(ctx, database, 0)
}

// MigrateTo applies pending migrations up to and including version.
// A version of 0 applies all of them.
func MigrateTo(ctx context.Context, database *sql.DB, version int64) error {
	if database == nil {
		return nil
	}
	if err := setupGoose(); err != nil {
		return fmt.Errorf("goose setup: %w", err)
	}
	before, err := goose.GetDBVersionContext(ctx, database)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version > 0 {
		err = goose.UpToContext(ctx, database, migrationsDir, version)
	} else {
		err = goose.UpContext(ctx, database, migrationsDir)
	}
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	after, err := goose.GetDBVersionContext(ctx, database)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	telemetry.Info("db.migrated", map[string]any{
		"from_version": before,
		"to_version":   after,
	})
	return nil
}

// Rollback reverts the most recent migration.
func Rollback(ctx context.Context, database *sql.DB) error {
	if database == nil {
		return nil
	}
	if err := setupGoose(); err != nil {
		return fmt.Errorf("goose setup: %w", err)
	}
	if err := goose.DownContext(ctx, database, migrationsDir); err != nil {
		return fmt.Errorf("rollback migration: %w", err)
	}
	telemetry.Info("db.rolled_back", nil)
	return nil
}
