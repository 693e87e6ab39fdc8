package persistence

import (
	"context"
	"fmt"
	"sync"

	"github.com/example/appointment-store/internal/record"
)

// SnapshotRepository implements AppointmentRepository on top of a SnapshotStore
// by decoding the whole set, applying one change and writing it back.
// Mutations through the same repository are serialized.
type SnapshotRepository struct {
	mu    sync.Mutex
	store SnapshotStore
}

// NewSnapshotRepository wraps store.
func NewSnapshotRepository(store SnapshotStore) *SnapshotRepository {
	return &SnapshotRepository{store: store}
}

// ListAppointments decodes the current snapshot.
func (r *SnapshotRepository) ListAppointments(ctx context.Context) ([]record.Appointment, error) {
	if r == nil || r.store == nil {
		return nil, fmt.Errorf("snapshot repository not configured")
	}

	data, err := r.store.ReadSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return record.Decode(data)
}

// CreateAppointment appends appointment to the snapshot.
func (r *SnapshotRepository) CreateAppointment(ctx context.Context, appointment record.Appointment) error {
	return r.mutate(ctx, func(records []record.Appointment) ([]record.Appointment, error) {
		for _, existing := range records {
			if existing.ID == appointment.ID {
				return nil, fmt.Errorf("%w: %s", ErrDuplicate, appointment.ID)
			}
		}
		return append(records, appointment.Clone()), nil
	})
}

// UpdateAppointment applies update to the matching record.
func (r *SnapshotRepository) UpdateAppointment(ctx context.Context, id string, update UpdateFunc) error {
	return r.mutate(ctx, func(records []record.Appointment) ([]record.Appointment, error) {
		for i := range records {
			if records[i].ID != id {
				continue
			}
			if update != nil {
				update(&records[i])
				records[i].ID = id
			}
			return records, nil
		}
		return nil, ErrNotFound
	})
}

// DeleteAppointment removes the matching record.
func (r *SnapshotRepository) DeleteAppointment(ctx context.Context, id string) error {
	return r.mutate(ctx, func(records []record.Appointment) ([]record.Appointment, error) {
		for i := range records {
			if records[i].ID == id {
				return append(records[:i], records[i+1:]...), nil
			}
		}
		return nil, ErrNotFound
	})
}

func (r *SnapshotRepository) mutate(ctx context.Context, change func([]record.Appointment) ([]record.Appointment, error)) error {
	if r == nil || r.store == nil {
		return fmt.Errorf("snapshot repository not configured")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.store.UpdateSnapshot(ctx, func(current []byte) ([]byte, error) {
		records, err := record.Decode(current)
		if err != nil {
			return nil, err
		}
		updated, err := change(records)
		if err != nil {
			return nil, err
		}
		return record.Encode(updated)
	})
}
