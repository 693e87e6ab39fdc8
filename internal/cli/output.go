package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/example/appointment-store/internal/application"
	"github.com/example/appointment-store/internal/record"
)

const (
	statusUpcoming  = "upcoming"
	statusCompleted = "completed"
	statusMissed    = "missed"
	statusMalformed = "malformed"
)

var (
	upcomingColor  = color.New(color.FgCyan)
	completedColor = color.New(color.FgGreen)
	missedColor    = color.New(color.FgRed, color.Bold)
	malformedColor = color.New(color.FgHiMagenta)
)

// statusOf derives the display status of a record from views built at one instant.
func statusOf(a application.Appointment, views application.Views) string {
	for _, m := range views.Malformed {
		if m.ID == a.ID {
			return statusMalformed
		}
	}
	if a.Completed {
		return statusCompleted
	}
	for _, missed := range views.Missed {
		if missed.ID == a.ID {
			return statusMissed
		}
	}
	return statusUpcoming
}

func colorize(status string) string {
	switch status {
	case statusUpcoming:
		return upcomingColor.Sprint(status)
	case statusCompleted:
		return completedColor.Sprint(status)
	case statusMissed:
		return missedColor.Sprint(status)
	case statusMalformed:
		return malformedColor.Sprint(status)
	default:
		return status
	}
}

func printAppointments(w io.Writer, records []application.Appointment, views application.Views) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No appointments found.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tTIME\tSUBJECT\tREASON\tSTATUS")
	fmt.Fprintln(tw, "--\t----\t----\t-------\t------\t------")
	for _, a := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			a.ID, a.Date, a.Time, a.SubjectName, a.Reason, colorize(statusOf(a, views)))
	}
	tw.Flush()
}

func printSummary(w io.Writer, views application.Views) {
	s := views.Summary
	fmt.Fprintf(w, "\n%d total, %d upcoming, %d past (%s), %d completed",
		s.Total, s.Upcoming, s.Past, missedColor.Sprintf("%d missed", s.Missed), s.Completed)
	if s.Malformed > 0 {
		fmt.Fprintf(w, ", %s", malformedColor.Sprintf("%d malformed", s.Malformed))
	}
	fmt.Fprintln(w)
}

func printAppointment(w io.Writer, a record.Appointment) {
	fmt.Fprintf(w, "  Subject: %s\n", a.SubjectName)
	fmt.Fprintf(w, "  When: %s %s\n", a.Date, a.Time)
	fmt.Fprintf(w, "  Reason: %s\n", a.Reason)
	if a.Notes != nil && *a.Notes != "" {
		fmt.Fprintf(w, "  Notes: %s\n", *a.Notes)
	}
}
