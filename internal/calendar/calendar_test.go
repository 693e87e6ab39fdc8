package calendar_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/example/appointment-store/internal/calendar"
	"github.com/example/appointment-store/internal/record"
	"github.com/example/appointment-store/internal/testfixtures"
)

func TestRender(t *testing.T) {
	now := testfixtures.ReferenceTime()
	records := []record.Appointment{
		testfixtures.NewAppointment(testfixtures.WithID("later"), testfixtures.WithSchedule("2025-03-12", "15:30")),
		testfixtures.NewAppointment(testfixtures.WithID("missed"), testfixtures.WithSchedule("2025-03-01", "09:00"), testfixtures.WithNotes("call first")),
		testfixtures.NewAppointment(testfixtures.WithID("bad"), testfixtures.WithSchedule("soon", "09:00")),
		testfixtures.NewAppointment(testfixtures.WithID("done"), testfixtures.WithSchedule("2025-03-02", "10:00"), testfixtures.WithCompleted(true)),
	}

	data, err := calendar.Render(records, time.UTC, now)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("rendered calendar does not parse: %v", err)
	}
	events := cal.Events()
	if len(events) != 3 {
		t.Fatalf("expected 3 events (malformed skipped), got %d", len(events))
	}

	wantOrder := []string{"missed@appointment-store", "done@appointment-store", "later@appointment-store"}
	for i, want := range wantOrder {
		if got := events[i].GetProperty(ical.ComponentPropertyUniqueId).Value; got != want {
			t.Errorf("event %d: expected UID %s, got %s", i, want, got)
		}
	}

	start, err := events[2].GetStartAt()
	if err != nil {
		t.Fatalf("GetStartAt failed: %v", err)
	}
	if !start.Equal(time.Date(2025, 3, 12, 15, 30, 0, 0, time.UTC)) {
		t.Errorf("unexpected start %v", start)
	}
	end, err := events[2].GetEndAt()
	if err != nil {
		t.Fatalf("GetEndAt failed: %v", err)
	}
	if end.Sub(start) != calendar.DefaultDuration {
		t.Errorf("expected %v duration, got %v", calendar.DefaultDuration, end.Sub(start))
	}

	if !strings.Contains(string(data), "MISSED") || !strings.Contains(string(data), "COMPLETED") {
		t.Errorf("expected MISSED and COMPLETED categories in output:\n%s", data)
	}
}

func TestRenderEmpty(t *testing.T) {
	data, err := calendar.Render(nil, time.UTC, testfixtures.ReferenceTime())
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(string(data), "BEGIN:VCALENDAR") || strings.Contains(string(data), "BEGIN:VEVENT") {
		t.Fatalf("expected empty calendar, got:\n%s", data)
	}
}
