package testfixtures

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/example/appointment-store/internal/persistence"
	"github.com/example/appointment-store/internal/record"
)

// RunAppointmentRepositoryContract exercises the behaviour every backend must
// share. newRepo must return an empty repository on each call.
func RunAppointmentRepositoryContract(t *testing.T, newRepo func(t *testing.T) persistence.AppointmentRepository) {
	t.Helper()

	t.Run("empty repository lists nothing", func(t *testing.T) {
		repo := newRepo(t)
		records, err := repo.ListAppointments(context.Background())
		if err != nil {
			t.Fatalf("ListAppointments failed: %v", err)
		}
		if len(records) != 0 {
			t.Fatalf("expected empty repository, got %d records", len(records))
		}
	})

	t.Run("create preserves fields and insertion order", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)

		first := NewAppointment(WithID("b-second-alphabetically"), WithSchedule("2025-05-01", "10:00"), WithExtension("room", "4B"))
		second := NewAppointment(WithID("a-first-alphabetically"), WithNotes(""), WithCompleted(true))
		third := NewAppointment(WithID("c"), WithNotes("bring x-rays"), WithExtension("tags", []string{"a", "b"}))

		for _, rec := range []record.Appointment{first, second, third} {
			if err := repo.CreateAppointment(ctx, rec); err != nil {
				t.Fatalf("CreateAppointment(%s) failed: %v", rec.ID, err)
			}
		}

		records, err := repo.ListAppointments(ctx)
		if err != nil {
			t.Fatalf("ListAppointments failed: %v", err)
		}
		if len(records) != 3 {
			t.Fatalf("expected 3 records, got %d", len(records))
		}
		for i, want := range []record.Appointment{first, second, third} {
			AssertSameAppointment(t, want, records[i])
		}
	})

	t.Run("duplicate ids are rejected", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		rec := NewAppointment(WithID("dup"))

		if err := repo.CreateAppointment(ctx, rec); err != nil {
			t.Fatalf("CreateAppointment failed: %v", err)
		}
		if err := repo.CreateAppointment(ctx, rec); !errors.Is(err, persistence.ErrDuplicate) {
			t.Fatalf("expected ErrDuplicate, got %v", err)
		}
	})

	t.Run("update applies changes by id", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		rec := NewAppointment(WithID("upd"), WithExtension("room", "4B"))
		if err := repo.CreateAppointment(ctx, rec); err != nil {
			t.Fatalf("CreateAppointment failed: %v", err)
		}

		err := repo.UpdateAppointment(ctx, "upd", func(a *record.Appointment) {
			a.Completed = true
			a.ID = "renamed"
		})
		if err != nil {
			t.Fatalf("UpdateAppointment failed: %v", err)
		}

		records, err := repo.ListAppointments(ctx)
		if err != nil {
			t.Fatalf("ListAppointments failed: %v", err)
		}
		if len(records) != 1 || records[0].ID != "upd" || !records[0].Completed {
			t.Fatalf("unexpected records after update: %+v", records)
		}
		if !sameJSON(records[0].Extensions["room"], json.RawMessage(`"4B"`)) {
			t.Fatalf("expected extension to survive update, got %s", records[0].Extensions["room"])
		}

		if err := repo.UpdateAppointment(ctx, "missing", func(a *record.Appointment) { a.Completed = true }); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("nil update only checks the id", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		rec := NewAppointment(WithID("noop"), WithNotes("keep me"))
		if err := repo.CreateAppointment(ctx, rec); err != nil {
			t.Fatalf("CreateAppointment failed: %v", err)
		}

		if err := repo.UpdateAppointment(ctx, "noop", nil); err != nil {
			t.Fatalf("UpdateAppointment with nil update failed: %v", err)
		}
		if err := repo.UpdateAppointment(ctx, "missing", nil); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}

		records, err := repo.ListAppointments(ctx)
		if err != nil {
			t.Fatalf("ListAppointments failed: %v", err)
		}
		if len(records) != 1 {
			t.Fatalf("expected 1 record, got %d", len(records))
		}
		AssertSameAppointment(t, rec, records[0])
	})

	t.Run("delete removes by id", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		keep := NewAppointment(WithID("keep"))
		drop := NewAppointment(WithID("drop"))
		for _, rec := range []record.Appointment{keep, drop} {
			if err := repo.CreateAppointment(ctx, rec); err != nil {
				t.Fatalf("CreateAppointment failed: %v", err)
			}
		}

		if err := repo.DeleteAppointment(ctx, "drop"); err != nil {
			t.Fatalf("DeleteAppointment failed: %v", err)
		}
		if err := repo.DeleteAppointment(ctx, "drop"); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound on second delete, got %v", err)
		}

		records, err := repo.ListAppointments(ctx)
		if err != nil {
			t.Fatalf("ListAppointments failed: %v", err)
		}
		if len(records) != 1 || records[0].ID != "keep" {
			t.Fatalf("unexpected records after delete: %+v", records)
		}
	})
}

// AssertSameAppointment fails the test when the records differ. Extension
// values are compared as decoded JSON.
func AssertSameAppointment(t testing.TB, want, got record.Appointment) {
	t.Helper()

	if want.ID != got.ID || want.SubjectName != got.SubjectName || want.Date != got.Date ||
		want.Time != got.Time || want.Reason != got.Reason || want.Completed != got.Completed {
		t.Fatalf("record mismatch:\nwant %+v\ngot  %+v", want, got)
	}
	switch {
	case want.Notes == nil && got.Notes != nil:
		t.Fatalf("record %s: expected absent notes, got %q", want.ID, *got.Notes)
	case want.Notes != nil && got.Notes == nil:
		t.Fatalf("record %s: expected notes %q, got absent", want.ID, *want.Notes)
	case want.Notes != nil && *want.Notes != *got.Notes:
		t.Fatalf("record %s: expected notes %q, got %q", want.ID, *want.Notes, *got.Notes)
	}
	if len(want.Extensions) != len(got.Extensions) {
		t.Fatalf("record %s: expected %d extensions, got %d", want.ID, len(want.Extensions), len(got.Extensions))
	}
	for key, raw := range want.Extensions {
		if !sameJSON(raw, got.Extensions[key]) {
			t.Fatalf("record %s: extension %s mismatch: want %s got %s", want.ID, key, raw, got.Extensions[key])
		}
	}
}

func sameJSON(a, b json.RawMessage) bool {
	var left, right any
	if err := json.Unmarshal(a, &left); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &right); err != nil {
		return false
	}
	return reflect.DeepEqual(left, right)
}
