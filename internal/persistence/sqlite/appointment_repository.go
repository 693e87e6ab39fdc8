package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/example/appointment-store/internal/persistence"
	"github.com/example/appointment-store/internal/record"
)

// Repository implements persistence.AppointmentRepository on SQLite.
type Repository struct {
	pool *ConnectionPool
}

// NewRepository returns a Repository backed by pool. The schema must already
// be migrated.
func NewRepository(pool *ConnectionPool) *Repository {
	return &Repository{pool: pool}
}

// Pool exposes the underlying connection pool.
func (r *Repository) Pool() *ConnectionPool {
	return r.pool
}

// Close releases the database handle.
func (r *Repository) Close() error {
	return r.pool.Close()
}

const selectColumns = `id, subject_name, date, time, reason, notes, completed, extensions`

// ListAppointments returns every appointment in insertion order.
func (r *Repository) ListAppointments(ctx context.Context) ([]record.Appointment, error) {
	rows, err := r.pool.DB().QueryContext(ctx, `SELECT `+selectColumns+` FROM appointments ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list appointments: %w", mapError(err))
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate appointments: %w", mapError(err))
	}
	return appointments, nil
}

// CreateAppointment inserts a new appointment.
func (r *Repository) CreateAppointment(ctx context.Context, appointment record.Appointment) error {
	extensions, err := encodeExtensions(appointment.Extensions)
	if err != nil {
		return err
	}
	_, err = r.pool.DB().ExecContext(ctx, `
		INSERT INTO appointments (id, subject_name, date, time, reason, notes, completed, extensions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		appointment.ID,
		appointment.SubjectName,
		appointment.Date,
		appointment.Time,
		appointment.Reason,
		nullableString(appointment.Notes),
		appointment.Completed,
		extensions,
	)
	if err != nil {
		return fmt.Errorf("sqlite: create appointment %s: %w", appointment.ID, mapError(err))
	}
	return nil
}

// UpdateAppointment loads, modifies and saves one appointment in a transaction.
func (r *Repository) UpdateAppointment(ctx context.Context, id string, update persistence.UpdateFunc) error {
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM appointments WHERE id = ?`, id)
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
		_, err = tx.ExecContext(ctx, `
			UPDATE appointments
			SET subject_name = ?, date = ?, time = ?, reason = ?, notes = ?, completed = ?, extensions = ?
			WHERE id = ?`,
			appointment.SubjectName,
			appointment.Date,
			appointment.Time,
			appointment.Reason,
			nullableString(appointment.Notes),
			appointment.Completed,
			extensions,
			id,
		)
		if err != nil {
			return fmt.Errorf("sqlite: update appointment %s: %w", id, mapError(err))
		}
		return nil
	})
}

// DeleteAppointment removes an appointment by id.
func (r *Repository) DeleteAppointment(ctx context.Context, id string) error {
	result, err := r.pool.DB().ExecContext(ctx, `DELETE FROM appointments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete appointment %s: %w", id, mapError(err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: delete appointment %s: %w", id, err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row rowScanner) (record.Appointment, error) {
	var (
		appointment record.Appointment
		notes       sql.NullString
		extensions  string
	)
	err := row.Scan(
		&appointment.ID,
		&appointment.SubjectName,
		&appointment.Date,
		&appointment.Time,
		&appointment.Reason,
		&notes,
		&appointment.Completed,
		&extensions,
	)
	if err != nil {
		return record.Appointment{}, mapError(err)
	}
	if notes.Valid {
		value := notes.String
		appointment.Notes = &value
	}
	if extensions != "" && extensions != "{}" {
		if err := json.Unmarshal([]byte(extensions), &appointment.Extensions); err != nil {
			return record.Appointment{}, fmt.Errorf("sqlite: decode extensions of %s: %w", appointment.ID, err)
		}
	}
	return appointment, nil
}

func encodeExtensions(extensions map[string]json.RawMessage) (string, error) {
	if len(extensions) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(extensions)
	if err != nil {
		return "", fmt.Errorf("sqlite: encode extensions: %w", err)
	}
	return string(data), nil
}

func nullableString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}
