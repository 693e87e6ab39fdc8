// Package sqlite stores appointments in a SQLite database through the pure Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"embed"
	"fmt"
	"log/slog"

	"github.com/example/appointment-store/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the embedded schema migrations.
func Migrations() ([]migration.Migration, error) {
	return migration.Scan(migrationFiles, "migrations")
}

// Open opens the database at dsn, applies pending migrations and returns a
// ready repository.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Repository, error) {
	cfg := migration.DefaultSQLiteConfig(dsn)
	if dsn == ":memory:" {
		cfg = migration.InMemorySQLiteConfig()
	}

	pool, err := NewConnectionPool(cfg)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, pool, logger); err != nil {
		pool.Close()
		return nil, err
	}
	return NewRepository(pool), nil
}

// Migrate applies the embedded migrations to pool.
func Migrate(ctx context.Context, pool *ConnectionPool, logger *slog.Logger) error {
	migrations, err := Migrations()
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	if err := migration.NewManager(pool.DB(), migrations, logger).Run(ctx); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	return nil
}

// MigrationStatus reports applied and pending migrations without applying any.
func MigrationStatus(ctx context.Context, pool *ConnectionPool, logger *slog.Logger) (migration.Status, error) {
	migrations, err := Migrations()
	if err != nil {
		return migration.Status{}, fmt.Errorf("load migrations: %w", err)
	}
	return migration.NewManager(pool.DB(), migrations, logger).Status(ctx)
}
