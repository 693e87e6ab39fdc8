package testfixtures

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/example/appointment-store/internal/application"
	"github.com/example/appointment-store/internal/record"
)

var appointmentCounter uint64

// AppointmentOption configures a generated appointment.
type AppointmentOption func(*record.Appointment)

// NewAppointment returns a well-formed appointment dated the day after
// ReferenceTime, with a unique fixture id.
func NewAppointment(opts ...AppointmentOption) record.Appointment {
	idx := atomic.AddUint64(&appointmentCounter, 1)
	appointment := record.Appointment{
		ID:          fmt.Sprintf("fixture-%03d", idx),
		SubjectName: fmt.Sprintf("Subject %03d", idx),
		Date:        "2025-03-11",
		Time:        "09:00",
		Reason:      "Checkup",
	}
	for _, opt := range opts {
		opt(&appointment)
	}
	return appointment
}

// WithID overrides the generated id.
func WithID(id string) AppointmentOption {
	return func(a *record.Appointment) {
		a.ID = id
	}
}

// WithSubject overrides the subject name.
func WithSubject(name string) AppointmentOption {
	return func(a *record.Appointment) {
		a.SubjectName = name
	}
}

// WithSchedule overrides the date and time.
func WithSchedule(date, clock string) AppointmentOption {
	return func(a *record.Appointment) {
		a.Date = date
		a.Time = clock
	}
}

// WithReason overrides the reason.
func WithReason(reason string) AppointmentOption {
	return func(a *record.Appointment) {
		a.Reason = reason
	}
}

// WithNotes sets notes to the given value.
func WithNotes(notes string) AppointmentOption {
	return func(a *record.Appointment) {
		a.Notes = &notes
	}
}

// WithCompleted sets the completed flag.
func WithCompleted(completed bool) AppointmentOption {
	return func(a *record.Appointment) {
		a.Completed = completed
	}
}

// WithExtension stores an extra JSON field on the record.
func WithExtension(key string, value any) AppointmentOption {
	return func(a *record.Appointment) {
		raw, err := json.Marshal(value)
		if err != nil {
			panic(fmt.Sprintf("testfixtures: marshal extension %s: %v", key, err))
		}
		if a.Extensions == nil {
			a.Extensions = make(map[string]json.RawMessage)
		}
		a.Extensions[key] = raw
	}
}

// Draft converts a fixture into a creation draft, dropping the id and flag.
func Draft(a record.Appointment) application.AppointmentDraft {
	return application.AppointmentDraft{
		SubjectName: a.SubjectName,
		Date:        a.Date,
		Time:        a.Time,
		Reason:      a.Reason,
		Notes:       a.Notes,
		Extensions:  a.Extensions,
	}
}
