package persistence

import (
	"context"

	"github.com/example/appointment-store/internal/record"
)

// UpdateFunc mutates a stored appointment in place. Changes to the id are ignored.
type UpdateFunc func(*record.Appointment)

// AppointmentRepository is the contract every backend satisfies. Each call is
// atomic from the caller's perspective.
type AppointmentRepository interface {
	// ListAppointments returns every record in insertion order.
	ListAppointments(ctx context.Context) ([]record.Appointment, error)
	// CreateAppointment appends a record. Returns ErrDuplicate when the id is taken.
	CreateAppointment(ctx context.Context, appointment record.Appointment) error
	// UpdateAppointment applies update to the record with id. Returns ErrNotFound when absent.
	UpdateAppointment(ctx context.Context, id string, update UpdateFunc) error
	// DeleteAppointment removes the record with id. Returns ErrNotFound when absent.
	DeleteAppointment(ctx context.Context, id string) error
}

// SnapshotStore persists the whole record set as one encoded document.
type SnapshotStore interface {
	// ReadSnapshot returns the current document, or nil when nothing was written yet.
	ReadSnapshot(ctx context.Context) ([]byte, error)
	// UpdateSnapshot atomically replaces the document with the output of fn.
	// When fn returns an error nothing is written and the error is returned.
	UpdateSnapshot(ctx context.Context, fn func(current []byte) ([]byte, error)) error
}
