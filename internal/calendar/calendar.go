// Package calendar renders appointments as an iCalendar feed.
package calendar

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/example/appointment-store/internal/classify"
	"github.com/example/appointment-store/internal/record"
)

// DefaultDuration is the length given to every exported appointment.
const DefaultDuration = 30 * time.Minute

const productID = "-//appointment-store//apptstore//EN"

// Render returns a VCALENDAR with one VEVENT per well formed record, ordered
// by scheduled instant. Records whose date or time do not parse are skipped.
func Render(records []record.Appointment, loc *time.Location, now time.Time) ([]byte, error) {
	classifier := classify.New(loc)
	partition := classifier.Classify(records, now)

	missed := make(map[string]bool, len(partition.Missed))
	for _, a := range partition.Missed {
		missed[a.ID] = true
	}
	malformed := make(map[string]bool, len(partition.Malformed))
	for _, m := range partition.Malformed {
		malformed[m.Appointment.ID] = true
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	for _, a := range partition.Sorted {
		if malformed[a.ID] {
			continue
		}
		start, err := record.ScheduledInstant(a, classifier.Location())
		if err != nil {
			return nil, fmt.Errorf("calendar: schedule of %s: %w", a.ID, err)
		}

		event := cal.AddEvent(uid(a))
		event.SetDtStampTime(now.UTC())
		event.SetStartAt(start)
		event.SetEndAt(start.Add(DefaultDuration))
		event.SetSummary(fmt.Sprintf("%s: %s", a.SubjectName, a.Reason))
		if description := describe(a, missed[a.ID]); description != "" {
			event.SetDescription(description)
		}
		event.SetProperty(ical.ComponentPropertyStatus, "CONFIRMED")
		switch {
		case a.Completed:
			event.SetProperty(ical.ComponentPropertyCategories, "COMPLETED")
		case missed[a.ID]:
			event.SetProperty(ical.ComponentPropertyCategories, "MISSED")
		}
	}

	return []byte(cal.Serialize()), nil
}

func uid(a record.Appointment) string {
	return a.ID + "@appointment-store"
}

func describe(a record.Appointment, missed bool) string {
	var parts []string
	if a.Notes != nil && *a.Notes != "" {
		parts = append(parts, *a.Notes)
	}
	switch {
	case a.Completed:
		parts = append(parts, "Completed")
	case missed:
		parts = append(parts, "Missed")
	}
	return strings.Join(parts, "\n")
}
