// Package memory provides process-local backends used by tests and by the
// "memory" backend setting.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/example/appointment-store/internal/persistence"
	"github.com/example/appointment-store/internal/record"
)

// Storage keeps appointments in insertion order behind a mutex.
type Storage struct {
	mu      sync.RWMutex
	records []record.Appointment
}

// NewStorage returns a Storage seeded with a copy of records.
func NewStorage(records ...record.Appointment) *Storage {
	s := &Storage{records: make([]record.Appointment, 0, len(records))}
	for _, rec := range records {
		s.records = append(s.records, rec.Clone())
	}
	return s
}

// Close is a no-op.
func (s *Storage) Close() error {
	return nil
}

// ListAppointments returns a copy of every record.
func (s *Storage) ListAppointments(ctx context.Context) ([]record.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]record.Appointment, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Clone())
	}
	return out, nil
}

// CreateAppointment appends a record.
func (s *Storage) CreateAppointment(ctx context.Context, appointment record.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexLocked(appointment.ID) >= 0 {
		return fmt.Errorf("%w: %s", persistence.ErrDuplicate, appointment.ID)
	}
	s.records = append(s.records, appointment.Clone())
	return nil
}

// UpdateAppointment applies update to the record with id.
func (s *Storage) UpdateAppointment(ctx context.Context, id string, update persistence.UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return persistence.ErrNotFound
	}
	if update == nil {
		return nil
	}
	updated := s.records[idx].Clone()
	update(&updated)
	updated.ID = id
	s.records[idx] = updated
	return nil
}

// DeleteAppointment removes the record with id.
func (s *Storage) DeleteAppointment(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return persistence.ErrNotFound
	}
	s.records = append(s.records[:idx], s.records[idx+1:]...)
	return nil
}

func (s *Storage) indexLocked(id string) int {
	for i, rec := range s.records {
		if rec.ID == id {
			return i
		}
	}
	return -1
}
