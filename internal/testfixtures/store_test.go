package testfixtures_test

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/example/appointment-store/internal/testfixtures"
)

func TestStoreFactory_MemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	clock := testfixtures.NewClock(testfixtures.ReferenceTime())
	ids := testfixtures.NewScriptedIDGenerator("taken")
	factory := testfixtures.NewStoreFactory(testfixtures.WithClock(clock), testfixtures.WithIDGenerator(ids))

	seed := testfixtures.NewAppointment(testfixtures.WithID("taken"), testfixtures.WithSchedule("2025-03-09", "09:00"))
	store, storage := factory.NewMemoryStore(seed)
	if _, err := store.LoadAll(ctx); err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}

	fixture := testfixtures.NewAppointment(
		testfixtures.WithSubject("Jane Doe"),
		testfixtures.WithReason("Checkup"),
		testfixtures.WithSchedule("2025-03-10", "15:00"),
	)
	created, err := store.Create(ctx, testfixtures.Draft(fixture))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.ID != "apt-1" {
		t.Fatalf("expected colliding id to be re-minted as apt-1, got %s", created.ID)
	}
	if got := ids.Issued(); !reflect.DeepEqual(got, []string{"taken", "apt-1"}) {
		t.Fatalf("unexpected issued ids %v", got)
	}

	persisted, err := storage.ListAppointments(ctx)
	if err != nil {
		t.Fatalf("ListAppointments failed: %v", err)
	}
	if len(persisted) != 2 {
		t.Fatalf("expected create to write through, got %d records", len(persisted))
	}

	if got := len(store.Upcoming()); got != 1 {
		t.Fatalf("expected the new appointment to be upcoming, got %d", got)
	}
	clock.Advance(4 * time.Hour)
	if got := len(store.Missed()); got != 2 {
		t.Fatalf("expected both appointments missed once the clock passes them, got %d", got)
	}
}
