package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/example/appointment-store/internal/persistence"
	"github.com/example/appointment-store/internal/record"
)

const uniqueViolation = "23505"

// Repository implements persistence.AppointmentRepository on PostgreSQL.
type Repository struct {
	pool *Pool
}

// NewRepository returns a Repository using pool.
func NewRepository(pool *Pool) *Repository {
	return &Repository{pool: pool}
}

// Close releases the pool.
func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

// ListAppointments returns every appointment in insertion order.
func (r *Repository) ListAppointments(ctx context.Context) ([]record.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, subject_name, date, time, reason, notes, completed, extensions
		FROM appointments
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list appointments: %w", err)
	}
	defer rows.Close()

	appointments := []record.Appointment{}
	for rows.Next() {
		appointment, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appointments = append(appointments, appointment)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("postgres: iterate appointments: %w", rows.Err())
	}
	return appointments, nil
}

// CreateAppointment inserts a new appointment.
func (r *Repository) CreateAppointment(ctx context.Context, appointment record.Appointment) error {
	extensions, err := encodeExtensions(appointment.Extensions)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO appointments (id, subject_name, date, time, reason, notes, completed, extensions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb)
	`, appointment.ID, appointment.SubjectName, appointment.Date, appointment.Time,
		appointment.Reason, appointment.Notes, appointment.Completed, extensions)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %v", persistence.ErrDuplicate, err)
		}
		return fmt.Errorf("postgres: create appointment %s: %w", appointment.ID, err)
	}
	return nil
}

// UpdateAppointment locks the row, applies update and saves it in one transaction.
func (r *Repository) UpdateAppointment(ctx context.Context, id string, update persistence.UpdateFunc) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		SELECT id, subject_name, date, time, reason, notes, completed, extensions
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id)
	appointment, err := scanAppointment(row)
	if err != nil {
		return err
	}

	if update == nil {
		return nil
	}
	update(&appointment)
	appointment.ID = id

	extensions, err := encodeExtensions(appointment.Extensions)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		UPDATE appointments
		SET subject_name = $2, date = $3, time = $4, reason = $5, notes = $6, completed = $7, extensions = $8::jsonb
		WHERE id = $1
	`, id, appointment.SubjectName, appointment.Date, appointment.Time,
		appointment.Reason, appointment.Notes, appointment.Completed, extensions)
	if err != nil {
		return fmt.Errorf("postgres: update appointment %s: %w", id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

// DeleteAppointment removes an appointment by id.
func (r *Repository) DeleteAppointment(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete appointment %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func scanAppointment(row pgx.Row) (record.Appointment, error) {
	var (
		appointment record.Appointment
		extensions  []byte
	)
	err := row.Scan(
		&appointment.ID,
		&appointment.SubjectName,
		&appointment.Date,
		&appointment.Time,
		&appointment.Reason,
		&appointment.Notes,
		&appointment.Completed,
		&extensions,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return record.Appointment{}, persistence.ErrNotFound
		}
		return record.Appointment{}, fmt.Errorf("postgres: scan appointment: %w", err)
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(extensions, &decoded); err != nil {
		return record.Appointment{}, fmt.Errorf("postgres: decode extensions of %s: %w", appointment.ID, err)
	}
	if len(decoded) > 0 {
		appointment.Extensions = decoded
	}
	return appointment, nil
}

func encodeExtensions(extensions map[string]json.RawMessage) (string, error) {
	if len(extensions) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(extensions)
	if err != nil {
		return "", fmt.Errorf("postgres: encode extensions: %w", err)
	}
	return string(data), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
