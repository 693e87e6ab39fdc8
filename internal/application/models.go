package application

import (
	"encoding/json"
	"time"

	"github.com/example/appointment-store/internal/classify"
	"github.com/example/appointment-store/internal/record"
)

// Appointment is the record type held by the store.
type Appointment = record.Appointment

// AppointmentDraft carries the caller supplied fields for a new appointment.
// Any id in the request is never honored.
type AppointmentDraft struct {
	SubjectName string
	Date        string
	Time        string
	Reason      string
	Notes       *string
	// Extensions holds additional caller fields stored alongside the record.
	Extensions map[string]json.RawMessage
}

// Views groups every classified view computed from a single clock sample.
type Views struct {
	Now       time.Time
	Sorted    []Appointment
	Upcoming  []Appointment
	Past      []Appointment
	Missed    []Appointment
	Malformed []*MalformedRecordError
	Summary   classify.Summary
}

// EventType names a change notification.
type EventType string

const (
	EventCreated   EventType = "appointment.created"
	EventDeleted   EventType = "appointment.deleted"
	EventCompleted EventType = "appointment.completed"
)

// Event is published after a mutation has been durably written.
type Event struct {
	Type          EventType
	AppointmentID string
	Appointment   *Appointment
	OccurredAt    time.Time
}
