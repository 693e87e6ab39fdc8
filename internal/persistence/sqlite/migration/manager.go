package migration

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Manager applies pending migrations in version order.
type Manager struct {
	executor   *Executor
	migrations []Migration
	logger     *slog.Logger
}

// NewManager returns a Manager for db and the given migrations.
func NewManager(db *sql.DB, migrations []Migration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		executor:   NewExecutor(db),
		migrations: migrations,
		logger:     logger.With("component", "migration"),
	}
}

// Run verifies the checksums of applied migrations and applies the pending ones.
func (m *Manager) Run(ctx context.Context) error {
	start := time.Now()

	status, err := m.Status(ctx)
	if err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "schema version checked",
		"current_version", status.CurrentVersion,
		"pending_count", len(status.Pending),
	)

	for i, migration := range status.Pending {
		m.logger.InfoContext(ctx, "applying migration",
			"version", migration.Version,
			"description", migration.Description,
			"position", fmt.Sprintf("%d/%d", i+1, len(status.Pending)),
			"checksum", migration.Checksum,
		)
		if err := m.executor.Apply(ctx, migration); err != nil {
			m.logger.ErrorContext(ctx, "migration failed", "version", migration.Version, "error", err)
			return err
		}
	}

	if len(status.Pending) > 0 {
		m.logger.InfoContext(ctx, "migrations applied",
			"count", len(status.Pending),
			"duration", time.Since(start),
		)
	}
	return nil
}

// Status reports applied and pending migrations. It fails with
// ErrChecksumMismatch when an applied migration no longer matches its file.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	if err := m.executor.InitializeVersionTable(ctx); err != nil {
		return Status{}, err
	}
	applied, err := m.executor.Applied(ctx)
	if err != nil {
		return Status{}, err
	}

	byVersion := make(map[int]AppliedMigration, len(applied))
	status := Status{Applied: applied}
	for _, row := range applied {
		byVersion[row.Version] = row
		if row.Version > status.CurrentVersion {
			status.CurrentVersion = row.Version
		}
	}

	for _, migration := range m.migrations {
		row, ok := byVersion[migration.Version]
		if !ok {
			status.Pending = append(status.Pending, migration)
			continue
		}
		if row.Checksum != migration.Checksum {
			return Status{}, newMigrationError(migration, "verify checksum",
				fmt.Errorf("%w: recorded %s, file %s", ErrChecksumMismatch, row.Checksum, migration.Checksum))
		}
	}
	return status, nil
}
