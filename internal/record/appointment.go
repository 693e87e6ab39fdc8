package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	// DateLayout is the calendar date layout accepted for the date field.
	DateLayout = "2006-01-02"
	// TimeLayout is the 24-hour time-of-day layout accepted for the time field.
	TimeLayout = "15:04"

	timeLayoutSeconds = "15:04:05"
)

// ErrUnparseableSchedule is returned when date and time do not form a valid instant.
var ErrUnparseableSchedule = errors.New("record: unparseable schedule")

// Appointment is one persisted appointment record.
//
// Notes is a pointer so that an absent value survives a round trip without
// being coerced to the empty string. Extensions carries unknown fields found
// while decoding; they are written back untouched.
type Appointment struct {
	ID          string
	SubjectName string
	Date        string
	Time        string
	Reason      string
	Notes       *string
	Completed   bool
	Extensions  map[string]json.RawMessage

	// original holds known fields stored with the wrong JSON type, keyed by
	// field name. A field is written back as stored until its value changes.
	original map[string]json.RawMessage
}

// Clone returns a deep copy of the appointment.
func (a Appointment) Clone() Appointment {
	out := a
	if a.Notes != nil {
		notes := *a.Notes
		out.Notes = &notes
	}
	if len(a.Extensions) > 0 {
		out.Extensions = make(map[string]json.RawMessage, len(a.Extensions))
		for key, raw := range a.Extensions {
			out.Extensions[key] = append([]byte(nil), raw...)
		}
	}
	if len(a.original) > 0 {
		out.original = make(map[string]json.RawMessage, len(a.original))
		for key, raw := range a.original {
			out.original[key] = append([]byte(nil), raw...)
		}
	}
	return out
}

// CoercedFields lists, sorted, the known fields that were decoded from a value
// of the wrong JSON type.
func (a Appointment) CoercedFields() []string {
	if len(a.original) == 0 {
		return nil
	}
	fields := make([]string, 0, len(a.original))
	for key := range a.original {
		fields = append(fields, key)
	}
	sort.Strings(fields)
	return fields
}

// ScheduledInstant combines date and time into an instant in loc.
func ScheduledInstant(a Appointment, loc *time.Location) (time.Time, error) {
	return ParseSchedule(a.Date, a.Time, loc)
}

// ParseSchedule parses a YYYY-MM-DD date and an HH:MM (or HH:MM:SS) time in loc.
func ParseSchedule(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)
	if date == "" || clock == "" {
		return time.Time{}, fmt.Errorf("%w: date %q time %q", ErrUnparseableSchedule, date, clock)
	}

	layout := DateLayout + "T" + TimeLayout
	if strings.Count(clock, ":") == 2 {
		layout = DateLayout + "T" + timeLayoutSeconds
	}
	instant, err := time.ParseInLocation(layout, date+"T"+clock, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrUnparseableSchedule, err)
	}
	return instant, nil
}

// ValidDate reports whether value is a well-formed YYYY-MM-DD calendar date.
func ValidDate(value string) bool {
	_, err := time.Parse(DateLayout, strings.TrimSpace(value))
	return err == nil
}

// ValidTime reports whether value is a well-formed HH:MM 24-hour time.
// Both the hour and the minute need two digits.
func ValidTime(value string) bool {
	value = strings.TrimSpace(value)
	if len(value) != len(TimeLayout) {
		return false
	}
	_, err := time.Parse(TimeLayout, value)
	return err == nil
}
