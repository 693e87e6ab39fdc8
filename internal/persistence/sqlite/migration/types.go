package migration

import "time"

// Migration is one versioned SQL script.
type Migration struct {
	Version     int
	Name        string
	Description string
	SQL         string
	Checksum    string
}

// AppliedMigration is a row of schema_migrations.
type AppliedMigration struct {
	Version       int
	AppliedAt     time.Time
	ExecutionTime time.Duration
	Checksum      string
}

// Status summarises applied and pending migrations.
type Status struct {
	CurrentVersion int
	Applied        []AppliedMigration
	Pending        []Migration
}
