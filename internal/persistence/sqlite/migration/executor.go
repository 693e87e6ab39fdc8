package migration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Executor runs migrations against a SQLite database and tracks them in
// schema_migrations.
type Executor struct {
	db  *sql.DB
	now func() time.Time
}

// NewExecutor returns an Executor for db.
func NewExecutor(db *sql.DB) *Executor {
	return &Executor{db: db, now: time.Now}
}

// InitializeVersionTable creates schema_migrations if it does not exist.
func (e *Executor) InitializeVersionTable(ctx context.Context) error {
	const createTableSQL = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL,
			checksum TEXT NOT NULL,
			execution_time_ms INTEGER NOT NULL DEFAULT 0
		)`
	if _, err := e.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}
	return nil
}

// Apply executes every statement of m and records it, all in one transaction.
func (e *Executor) Apply(ctx context.Context, m Migration) (err error) {
	statements := splitStatements(m.SQL)
	if len(statements) == 0 {
		return newMigrationError(m, "parse SQL", fmt.Errorf("%w: no SQL statements found", ErrInvalidMigrationFile))
	}

	start := e.now()
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return newMigrationError(m, "begin transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for i, stmt := range statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return newMigrationError(m, fmt.Sprintf("execute statement %d", i+1), fmt.Errorf("%w: %v", ErrMigrationFailed, err))
		}
	}

	elapsed := e.now().Sub(start)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, applied_at, checksum, execution_time_ms) VALUES (?, ?, ?, ?)`,
		m.Version, e.now().UTC().Format(time.RFC3339), m.Checksum, elapsed.Milliseconds())
	if err != nil {
		return newMigrationError(m, "record migration", err)
	}

	if err = tx.Commit(); err != nil {
		return newMigrationError(m, "commit transaction", err)
	}
	return nil
}

// Applied returns every recorded migration ordered by version.
func (e *Executor) Applied(ctx context.Context) ([]AppliedMigration, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT version, applied_at, checksum, execution_time_ms
		FROM schema_migrations
		ORDER BY version ASC`)
	if err != nil {
		return nil, fmt.Errorf("query schema_migrations: %w", err)
	}
	defer rows.Close()

	var applied []AppliedMigration
	for rows.Next() {
		var (
			row       AppliedMigration
			appliedAt string
			elapsedMS int64
		)
		if err := rows.Scan(&row.Version, &appliedAt, &row.Checksum, &elapsedMS); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		if parsed, err := time.Parse(time.RFC3339, appliedAt); err == nil {
			row.AppliedAt = parsed
		}
		row.ExecutionTime = time.Duration(elapsedMS) * time.Millisecond
		applied = append(applied, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schema_migrations: %w", err)
	}
	return applied, nil
}

// splitStatements splits SQL on semicolons and drops comment-only lines.
func splitStatements(sql string) []string {
	var statements []string
	for _, chunk := range strings.Split(sql, ";") {
		var lines []string
		for _, line := range strings.Split(chunk, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "--") {
				continue
			}
			lines = append(lines, line)
		}
		if stmt := strings.TrimSpace(strings.Join(lines, "\n")); stmt != "" {
			statements = append(statements, stmt)
		}
	}
	return statements
}
