package persistence_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/example/appointment-store/internal/persistence"
	"github.com/example/appointment-store/internal/persistence/memory"
	"github.com/example/appointment-store/internal/testfixtures"
)

type failingSnapshot struct {
	readErr  error
	writeErr error
	writes   int
}

func (f *failingSnapshot) ReadSnapshot(ctx context.Context) ([]byte, error) {
	return []byte("[]"), f.readErr
}

func (f *failingSnapshot) UpdateSnapshot(ctx context.Context, fn func([]byte) ([]byte, error)) error {
	if _, err := fn([]byte("[]")); err != nil {
		return err
	}
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes++
	return nil
}

func TestSnapshotRepository(t *testing.T) {
	t.Run("writes the legacy layout back in the current layout", func(t *testing.T) {
		ctx := context.Background()
		snapshot := memory.NewSnapshot([]byte(`[{"id":"1","patientName":"John","date":"2025-01-01","time":"08:00","reason":"Flu","completed":false,"room":"4B"}]`))
		repo := persistence.NewSnapshotRepository(snapshot)

		if err := repo.CreateAppointment(ctx, testfixtures.NewAppointment(testfixtures.WithID("2"))); err != nil {
			t.Fatalf("CreateAppointment failed: %v", err)
		}

		data, err := snapshot.ReadSnapshot(ctx)
		if err != nil {
			t.Fatalf("ReadSnapshot failed: %v", err)
		}
		text := string(data)
		if !strings.Contains(text, `"subjectName": "John"`) {
			t.Fatalf("expected legacy name rewritten as subjectName, got %s", text)
		}
		if !strings.Contains(text, `"room": "4B"`) {
			t.Fatalf("expected unknown field preserved, got %s", text)
		}
	})

	t.Run("corrupt documents surface as errors", func(t *testing.T) {
		repo := persistence.NewSnapshotRepository(memory.NewSnapshot([]byte(`{not json`)))
		if _, err := repo.ListAppointments(context.Background()); err == nil {
			t.Fatalf("expected decode error")
		}
	})

	t.Run("read and write failures propagate", func(t *testing.T) {
		cause := errors.New("quota exceeded")
		repo := persistence.NewSnapshotRepository(&failingSnapshot{readErr: cause})
		if _, err := repo.ListAppointments(context.Background()); !errors.Is(err, cause) {
			t.Fatalf("expected read error, got %v", err)
		}

		store := &failingSnapshot{writeErr: cause}
		repo = persistence.NewSnapshotRepository(store)
		if err := repo.CreateAppointment(context.Background(), testfixtures.NewAppointment()); !errors.Is(err, cause) {
			t.Fatalf("expected write error, got %v", err)
		}
	})

	t.Run("not found does not write", func(t *testing.T) {
		store := &failingSnapshot{}
		repo := persistence.NewSnapshotRepository(store)
		if err := repo.DeleteAppointment(context.Background(), "missing"); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if store.writes != 0 {
			t.Fatalf("expected no write, got %d", store.writes)
		}
	})

	t.Run("concurrent mutations are not lost", func(t *testing.T) {
		ctx := context.Background()
		repo := persistence.NewSnapshotRepository(memory.NewSnapshot(nil))

		var wg sync.WaitGroup
		for i := 0; i < 25; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := repo.CreateAppointment(ctx, testfixtures.NewAppointment()); err != nil {
					t.Errorf("CreateAppointment failed: %v", err)
				}
			}()
		}
		wg.Wait()

		records, err := repo.ListAppointments(ctx)
		if err != nil {
			t.Fatalf("ListAppointments failed: %v", err)
		}
		if len(records) != 25 {
			t.Fatalf("expected 25 records, got %d", len(records))
		}
	})
}
