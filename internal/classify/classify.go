// Package classify orders appointment records and partitions them relative to
// an instant. Every function is pure: callers pass the instant explicitly and
// nothing is cached between calls.
package classify

import (
	"sort"
	"time"

	"github.com/example/appointment-store/internal/record"
)

// Malformed flags a record whose date and time do not parse.
type Malformed struct {
	Appointment record.Appointment
	Err         error
}

// Sorted is the result of SortedByTime.
type Sorted struct {
	// Records holds every input record: parseable ones ascending by scheduled
	// instant, then malformed ones in their original order.
	Records []record.Appointment
	// Malformed lists the records that sorted last because they failed to parse.
	Malformed []Malformed
}

// Summary counts records per view.
type Summary struct {
	Total     int `json:"total"`
	Upcoming  int `json:"upcoming"`
	Past      int `json:"past"`
	Missed    int `json:"missed"`
	Completed int `json:"completed"`
	Malformed int `json:"malformed"`
}

// Partition holds every view computed from a single instant.
type Partition struct {
	Now       time.Time
	Sorted    []record.Appointment
	Upcoming  []record.Appointment
	Past      []record.Appointment
	Missed    []record.Appointment
	Malformed []Malformed
	Summary   Summary
}

// Classifier interprets record dates and times in a fixed location.
type Classifier struct {
	loc *time.Location
}

// New returns a classifier for loc. A nil location means time.Local.
func New(loc *time.Location) Classifier {
	if loc == nil {
		loc = time.Local
	}
	return Classifier{loc: loc}
}

// Location returns the zone used to interpret record dates and times.
func (c Classifier) Location() *time.Location {
	if c.loc == nil {
		return time.Local
	}
	return c.loc
}

// SortedByTime orders records ascending by scheduled instant. Records sharing
// an instant keep their relative input order.
func (c Classifier) SortedByTime(records []record.Appointment) Sorted {
	timed, malformed := c.order(records)

	out := Sorted{Records: make([]record.Appointment, 0, len(records))}
	for _, entry := range timed {
		out.Records = append(out.Records, entry.appointment)
	}
	for _, m := range malformed {
		out.Records = append(out.Records, m.Appointment)
	}
	out.Malformed = malformed
	return out
}

// Upcoming returns records scheduled at or after now, ascending.
func (c Classifier) Upcoming(records []record.Appointment, now time.Time) []record.Appointment {
	timed, _ := c.order(records)
	out := make([]record.Appointment, 0, len(timed))
	for _, entry := range timed {
		if !entry.at.Before(now) {
			out = append(out, entry.appointment)
		}
	}
	return out
}

// Past returns records scheduled before now, ascending.
func (c Classifier) Past(records []record.Appointment, now time.Time) []record.Appointment {
	timed, _ := c.order(records)
	out := make([]record.Appointment, 0, len(timed))
	for _, entry := range timed {
		if entry.at.Before(now) {
			out = append(out, entry.appointment)
		}
	}
	return out
}

// Missed returns records scheduled before now that are not completed, ascending.
func (c Classifier) Missed(records []record.Appointment, now time.Time) []record.Appointment {
	timed, _ := c.order(records)
	out := make([]record.Appointment, 0, len(timed))
	for _, entry := range timed {
		if entry.at.Before(now) && !entry.appointment.Completed {
			out = append(out, entry.appointment)
		}
	}
	return out
}

// Classify computes every view against the same instant.
func (c Classifier) Classify(records []record.Appointment, now time.Time) Partition {
	timed, malformed := c.order(records)

	p := Partition{
		Now:       now,
		Sorted:    make([]record.Appointment, 0, len(records)),
		Upcoming:  []record.Appointment{},
		Past:      []record.Appointment{},
		Missed:    []record.Appointment{},
		Malformed: malformed,
	}
	for _, entry := range timed {
		p.Sorted = append(p.Sorted, entry.appointment)
		if entry.at.Before(now) {
			p.Past = append(p.Past, entry.appointment)
			if !entry.appointment.Completed {
				p.Missed = append(p.Missed, entry.appointment)
			}
		} else {
			p.Upcoming = append(p.Upcoming, entry.appointment)
		}
	}
	for _, m := range malformed {
		p.Sorted = append(p.Sorted, m.Appointment)
	}

	p.Summary = Summary{
		Total:     len(records),
		Upcoming:  len(p.Upcoming),
		Past:      len(p.Past),
		Missed:    len(p.Missed),
		Malformed: len(malformed),
	}
	for _, rec := range records {
		if rec.Completed {
			p.Summary.Completed++
		}
	}
	return p
}

type timedRecord struct {
	appointment record.Appointment
	at          time.Time
}

func (c Classifier) order(records []record.Appointment) ([]timedRecord, []Malformed) {
	timed := make([]timedRecord, 0, len(records))
	var malformed []Malformed
	for _, rec := range records {
		at, err := record.ScheduledInstant(rec, c.Location())
		if err != nil {
			malformed = append(malformed, Malformed{Appointment: rec, Err: err})
			continue
		}
		timed = append(timed, timedRecord{appointment: rec, at: at})
	}

	sort.SliceStable(timed, func(i, j int) bool {
		return timed[i].at.Before(timed[j].at)
	})
	return timed, malformed
}
