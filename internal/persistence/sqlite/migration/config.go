package migration

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteConfig holds connection settings for a SQLite database.
type SQLiteConfig struct {
	// DSN is a file path, a file: URI or ":memory:".
	DSN string
	// BusyTimeout sets how long to wait for database locks.
	BusyTimeout time.Duration
	// JournalMode sets the SQLite journal mode (WAL, DELETE, MEMORY, ...).
	JournalMode string
	// Synchronous sets the synchronous mode (FULL, NORMAL, OFF).
	Synchronous string
}

// DefaultSQLiteConfig returns settings suited to the durable appointment database.
func DefaultSQLiteConfig(dsn string) SQLiteConfig {
	return SQLiteConfig{
		DSN:         dsn,
		BusyTimeout: 5 * time.Second,
		JournalMode: "WAL",
		Synchronous: "NORMAL",
	}
}

// InMemorySQLiteConfig returns settings for a throwaway in-memory database.
func InMemorySQLiteConfig() SQLiteConfig {
	return SQLiteConfig{
		DSN:         ":memory:",
		BusyTimeout: time.Second,
		JournalMode: "MEMORY",
		Synchronous: "OFF",
	}
}

// Validate checks the configuration.
func (c SQLiteConfig) Validate() error {
	if strings.TrimSpace(c.DSN) == "" {
		return fmt.Errorf("DSN cannot be empty")
	}
	if c.BusyTimeout < 0 {
		return fmt.Errorf("BusyTimeout cannot be negative")
	}
	switch strings.ToUpper(c.JournalMode) {
	case "", "DELETE", "TRUNCATE", "PERSIST", "MEMORY", "WAL", "OFF":
	default:
		return fmt.Errorf("invalid journal mode: %s", c.JournalMode)
	}
	switch strings.ToUpper(c.Synchronous) {
	case "", "OFF", "NORMAL", "FULL", "EXTRA":
	default:
		return fmt.Errorf("invalid synchronous mode: %s", c.Synchronous)
	}
	return nil
}

// Open opens a single-connection database and applies the configured pragmas.
// One connection keeps pragmas and ":memory:" contents consistent.
func Open(cfg SQLiteConfig) (*sql.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid SQLite configuration: %w", err)
	}
	if dir := databaseDir(cfg.DSN); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open SQLite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds())}
	if cfg.JournalMode != "" {
		pragmas = append(pragmas, "PRAGMA journal_mode = "+strings.ToUpper(cfg.JournalMode))
	}
	if cfg.Synchronous != "" {
		pragmas = append(pragmas, "PRAGMA synchronous = "+strings.ToUpper(cfg.Synchronous))
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping SQLite database: %w", err)
	}
	return db, nil
}

func databaseDir(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" || strings.HasPrefix(path, ":memory:") {
		return ""
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return ""
	}
	return dir
}
