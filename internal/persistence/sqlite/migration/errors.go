package migration

import (
	"errors"
	"fmt"
)

var (
	// ErrMigrationFailed indicates that a migration execution failed.
	ErrMigrationFailed = errors.New("migration execution failed")
	// ErrInvalidMigrationFile indicates that a migration file is malformed or invalid.
	ErrInvalidMigrationFile = errors.New("invalid migration file format")
	// ErrDuplicateVersion indicates that multiple migrations have the same version.
	ErrDuplicateVersion = errors.New("duplicate migration version")
	// ErrChecksumMismatch indicates that an applied migration file was edited afterwards.
	ErrChecksumMismatch = errors.New("migration checksum mismatch")
)

// MigrationError wraps migration failures with the version and step involved.
type MigrationError struct {
	Version   int
	Name      string
	Operation string
	Err       error
}

func (e *MigrationError) Error() string {
	if e.Version > 0 {
		return fmt.Sprintf("migration %03d (%s): %s: %v", e.Version, e.Name, e.Operation, e.Err)
	}
	return fmt.Sprintf("migration %s: %s: %v", e.Name, e.Operation, e.Err)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}

func newMigrationError(m Migration, operation string, err error) *MigrationError {
	return &MigrationError{Version: m.Version, Name: m.Name, Operation: operation, Err: err}
}
