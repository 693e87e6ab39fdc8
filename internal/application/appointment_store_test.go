package application

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/appointment-store/internal/persistence"
	"github.com/example/appointment-store/internal/persistence/memory"
)

type appointmentRepoStub struct {
	mu sync.Mutex

	list    []Appointment
	listErr error

	createErr   error
	createErrs  []error
	created     []Appointment
	updateErr   error
	updateCalls int
	deleteErr   error
	deleteCalls int
}

func (r *appointmentRepoStub) ListAppointments(ctx context.Context) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	return cloneAll(r.list), nil
}

func (r *appointmentRepoStub) CreateAppointment(ctx context.Context, appointment Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.createErrs) > 0 {
		err := r.createErrs[0]
		r.createErrs = r.createErrs[1:]
		if err != nil {
			return err
		}
	}
	if r.createErr != nil {
		return r.createErr
	}
	r.created = append(r.created, appointment)
	r.list = append(r.list, appointment)
	return nil
}

func (r *appointmentRepoStub) UpdateAppointment(ctx context.Context, id string, update persistence.UpdateFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updateCalls++
	if r.updateErr != nil {
		return r.updateErr
	}
	for i := range r.list {
		if r.list[i].ID == id {
			update(&r.list[i])
			return nil
		}
	}
	return persistence.ErrNotFound
}

func (r *appointmentRepoStub) DeleteAppointment(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleteCalls++
	if r.deleteErr != nil {
		return r.deleteErr
	}
	for i := range r.list {
		if r.list[i].ID == id {
			r.list = append(r.list[:i], r.list[i+1:]...)
			return nil
		}
	}
	return persistence.ErrNotFound
}

type publisherStub struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *publisherStub) Publish(ctx context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *publisherStub) types() []EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]EventType, 0, len(p.events))
	for _, event := range p.events {
		out = append(out, event.Type)
	}
	return out
}

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func janeDraft() AppointmentDraft {
	return AppointmentDraft{SubjectName: "Jane Doe", Date: "2025-03-10", Time: "09:00", Reason: "Checkup"}
}

func TestAppointmentStore_Create(t *testing.T) {
	now := time.Date(2025, time.March, 1, 8, 0, 0, 0, time.UTC)

	t.Run("returns the record with a fresh id on an empty store", func(t *testing.T) {
		repo := &appointmentRepoStub{}
		store := NewAppointmentStore(repo, sequentialIDs("apt"), fixedNow(now), WithLocation(time.UTC))

		created, err := store.Create(context.Background(), janeDraft())
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if created.ID == "" {
			t.Fatalf("expected a minted id")
		}
		if created.SubjectName != "Jane Doe" || created.Date != "2025-03-10" || created.Time != "09:00" || created.Reason != "Checkup" {
			t.Fatalf("unexpected record %+v", created)
		}
		if created.Completed {
			t.Fatalf("expected completed to be false")
		}
		if created.Notes != nil {
			t.Fatalf("expected notes to stay absent")
		}
		if got := len(store.CurrentSet()); got != 1 {
			t.Fatalf("expected current set of length 1, got %d", got)
		}
		if len(repo.created) != 1 || repo.created[0].ID != created.ID {
			t.Fatalf("expected exactly one durable append, got %+v", repo.created)
		}
	})

	t.Run("ids are unique across creations", func(t *testing.T) {
		store := NewAppointmentStore(memory.NewStorage(), nil, fixedNow(now))

		seen := make(map[string]struct{})
		for i := 0; i < 50; i++ {
			created, err := store.Create(context.Background(), janeDraft())
			if err != nil {
				t.Fatalf("create %d failed: %v", i, err)
			}
			if _, dup := seen[created.ID]; dup {
				t.Fatalf("duplicate id %s", created.ID)
			}
			seen[created.ID] = struct{}{}
		}
	})

	t.Run("validates required and well formed fields before writing", func(t *testing.T) {
		repo := &appointmentRepoStub{}
		store := NewAppointmentStore(repo, sequentialIDs("apt"), fixedNow(now))

		_, err := store.Create(context.Background(), AppointmentDraft{
			SubjectName: "   ",
			Date:        "10/03/2025",
			Time:        "9am",
			Reason:      "",
		})

		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		for _, field := range []string{"subjectName", "date", "time", "reason"} {
			if _, ok := vErr.FieldErrors[field]; !ok {
				t.Fatalf("expected %s validation error, got %v", field, vErr.FieldErrors)
			}
		}
		if len(repo.created) != 0 {
			t.Fatalf("validation failures must not reach the backend")
		}
		if len(store.CurrentSet()) != 0 {
			t.Fatalf("validation failures must not change memory")
		}
	})

	t.Run("rejects a single digit hour", func(t *testing.T) {
		repo := &appointmentRepoStub{}
		store := NewAppointmentStore(repo, sequentialIDs("apt"), fixedNow(now))

		draft := janeDraft()
		draft.Time = "9:00"
		_, err := store.Create(context.Background(), draft)

		var vErr *ValidationError
		if !errors.As(err, &vErr) || vErr.FieldErrors["time"] != "time must be HH:MM" {
			t.Fatalf("expected a time validation error, got %v", err)
		}
		if len(repo.created) != 0 {
			t.Fatalf("validation failures must not reach the backend")
		}
	})

	t.Run("backend failure leaves memory unchanged", func(t *testing.T) {
		repo := &appointmentRepoStub{createErr: errors.New("disk full")}
		store := NewAppointmentStore(repo, sequentialIDs("apt"), fixedNow(now))

		_, err := store.Create(context.Background(), janeDraft())
		if !errors.Is(err, ErrBackendUnavailable) {
			t.Fatalf("expected ErrBackendUnavailable, got %v", err)
		}
		if len(store.CurrentSet()) != 0 {
			t.Fatalf("expected no record in memory after failed write")
		}
	})

	t.Run("re-mints when the backend already holds the id", func(t *testing.T) {
		repo := &appointmentRepoStub{createErrs: []error{persistence.ErrDuplicate}}
		store := NewAppointmentStore(repo, sequentialIDs("apt"), fixedNow(now))

		created, err := store.Create(context.Background(), janeDraft())
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if created.ID != "apt-2" {
			t.Fatalf("expected second minted id, got %s", created.ID)
		}
	})

	t.Run("never honors a caller supplied id and keeps extra fields", func(t *testing.T) {
		repo := &appointmentRepoStub{}
		store := NewAppointmentStore(repo, sequentialIDs("apt"), fixedNow(now))

		draft := janeDraft()
		notes := ""
		draft.Notes = &notes
		draft.Extensions = map[string]json.RawMessage{
			"id":   json.RawMessage(`"attacker"`),
			"room": json.RawMessage(`"4B"`),
		}

		created, err := store.Create(context.Background(), draft)
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if created.ID != "apt-1" {
			t.Fatalf("expected minted id, got %s", created.ID)
		}
		if _, ok := created.Extensions["id"]; ok {
			t.Fatalf("id must not be carried as an extension")
		}
		if string(created.Extensions["room"]) != `"4B"` {
			t.Fatalf("expected room extension to be kept")
		}
		if created.Notes == nil || *created.Notes != "" {
			t.Fatalf("expected empty notes to be kept as empty")
		}
	})

	t.Run("publishes after the durable write", func(t *testing.T) {
		publisher := &publisherStub{err: errors.New("broker down")}
		store := NewAppointmentStore(&appointmentRepoStub{}, sequentialIDs("apt"), fixedNow(now), WithPublisher(publisher))

		if _, err := store.Create(context.Background(), janeDraft()); err != nil {
			t.Fatalf("publisher failures must not fail the mutation, got %v", err)
		}
		if got := publisher.types(); len(got) != 1 || got[0] != EventCreated {
			t.Fatalf("expected one created event, got %v", got)
		}
	})
}

func TestAppointmentStore_LoadAll(t *testing.T) {
	t.Run("mirrors the repository", func(t *testing.T) {
		repo := &appointmentRepoStub{list: []Appointment{
			{ID: "a", SubjectName: "A", Date: "2025-03-10", Time: "09:00", Reason: "R"},
			{ID: "b", SubjectName: "B", Date: "not a date", Time: "09:00", Reason: "R"},
		}}
		store := NewAppointmentStore(repo, nil, nil)

		records, err := store.LoadAll(context.Background())
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if len(records) != 2 || len(store.CurrentSet()) != 2 {
			t.Fatalf("expected malformed records to be retained, got %d", len(records))
		}
	})

	t.Run("warns about each malformed record once", func(t *testing.T) {
		repo := &appointmentRepoStub{list: []Appointment{
			{ID: "b", SubjectName: "B", Date: "not a date", Time: "09:00", Reason: "R"},
		}}
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
		store := NewAppointmentStore(repo, nil, fixedNow(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)), WithLogger(logger))

		for i := 0; i < 3; i++ {
			if _, err := store.LoadAll(context.Background()); err != nil {
				t.Fatalf("load %d failed: %v", i, err)
			}
		}
		if got := strings.Count(buf.String(), "malformed schedule"); got != 1 {
			t.Fatalf("expected a single warning, got %d:\n%s", got, buf.String())
		}
	})

	t.Run("a wrong-typed stored record is flagged without blocking the rest", func(t *testing.T) {
		snapshot := memory.NewSnapshot([]byte(`[
			{"id":"good","subjectName":"A","date":"2025-03-11","time":"09:00","reason":"R"},
			{"id":"bad","subjectName":"B","date":"2025-03-01","time":930,"reason":"R","completed":"no"}
		]`))
		store := NewAppointmentStore(persistence.NewSnapshotRepository(snapshot), sequentialIDs("apt"), fixedNow(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)))
		ctx := context.Background()

		records, err := store.LoadAll(ctx)
		if err != nil {
			t.Fatalf("LoadAll failed: %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("expected both records to load, got %d", len(records))
		}
		views := store.Views()
		if len(views.Malformed) != 1 || views.Malformed[0].ID != "bad" || views.Malformed[0].Time != "930" {
			t.Fatalf("expected the wrong-typed record to be malformed, got %+v", views.Malformed)
		}
		if len(views.Upcoming) != 1 || views.Upcoming[0].ID != "good" {
			t.Fatalf("expected the good record to stay upcoming, got %+v", views.Upcoming)
		}

		created, err := store.Create(ctx, janeDraft())
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if err := store.MarkCompleted(ctx, "good"); err != nil {
			t.Fatalf("MarkCompleted failed: %v", err)
		}
		if err := store.Delete(ctx, created.ID); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		data, err := snapshot.ReadSnapshot(ctx)
		if err != nil {
			t.Fatalf("ReadSnapshot failed: %v", err)
		}
		var stored []map[string]json.RawMessage
		if err := json.Unmarshal(data, &stored); err != nil {
			t.Fatalf("snapshot is not a JSON array: %v", err)
		}
		if len(stored) != 2 {
			t.Fatalf("expected two stored records, got %d", len(stored))
		}
		if string(stored[0]["completed"]) != "true" {
			t.Fatalf("expected the good record to be completed, got %s", stored[0]["completed"])
		}
		if string(stored[1]["time"]) != "930" || string(stored[1]["completed"]) != `"no"` {
			t.Fatalf("expected the wrong-typed values to be kept, got time=%s completed=%s", stored[1]["time"], stored[1]["completed"])
		}
	})

	t.Run("falls back to an empty set when the backend is unreadable", func(t *testing.T) {
		repo := &appointmentRepoStub{list: []Appointment{{ID: "a"}}}
		store := NewAppointmentStore(repo, nil, nil)
		if _, err := store.LoadAll(context.Background()); err != nil {
			t.Fatalf("initial load failed: %v", err)
		}

		repo.listErr = errors.New("permission denied")
		records, err := store.LoadAll(context.Background())
		if !errors.Is(err, ErrBackendUnavailable) {
			t.Fatalf("expected ErrBackendUnavailable, got %v", err)
		}
		if records == nil || len(records) != 0 {
			t.Fatalf("expected empty non-nil set, got %v", records)
		}
		if len(store.CurrentSet()) != 0 {
			t.Fatalf("expected working set to fall back to empty")
		}
	})

	t.Run("missing repository is reported as unavailable", func(t *testing.T) {
		store := NewAppointmentStore(nil, nil, nil)
		if _, err := store.LoadAll(context.Background()); !errors.Is(err, ErrBackendUnavailable) {
			t.Fatalf("expected ErrBackendUnavailable, got %v", err)
		}
	})
}

func TestAppointmentStore_Delete(t *testing.T) {
	seed := func() (*appointmentRepoStub, *AppointmentStore) {
		repo := &appointmentRepoStub{list: []Appointment{
			{ID: "a", SubjectName: "A", Date: "2025-03-10", Time: "09:00", Reason: "R"},
			{ID: "b", SubjectName: "B", Date: "2025-03-11", Time: "09:00", Reason: "R"},
		}}
		store := NewAppointmentStore(repo, nil, nil)
		if _, err := store.LoadAll(context.Background()); err != nil {
			t.Fatalf("load failed: %v", err)
		}
		return repo, store
	}

	t.Run("removes from backend and memory and is idempotent", func(t *testing.T) {
		repo, store := seed()
		publisher := &publisherStub{}
		WithPublisher(publisher)(store)

		for i := 0; i < 2; i++ {
			if err := store.Delete(context.Background(), "a"); err != nil {
				t.Fatalf("delete %d failed: %v", i, err)
			}
		}
		for _, rec := range store.CurrentSet() {
			if rec.ID == "a" {
				t.Fatalf("deleted record still present")
			}
		}
		if len(repo.list) != 1 || repo.list[0].ID != "b" {
			t.Fatalf("unexpected backend contents %+v", repo.list)
		}
		if got := publisher.types(); len(got) != 1 || got[0] != EventDeleted {
			t.Fatalf("expected a single deleted event, got %v", got)
		}
	})

	t.Run("unknown ids are a no-op", func(t *testing.T) {
		_, store := seed()
		if err := store.Delete(context.Background(), "missing"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(store.CurrentSet()) != 2 {
			t.Fatalf("expected set to be unchanged")
		}
	})

	t.Run("backend failure leaves memory unchanged", func(t *testing.T) {
		repo, store := seed()
		repo.deleteErr = errors.New("io timeout")

		err := store.Delete(context.Background(), "a")
		if !errors.Is(err, ErrBackendUnavailable) {
			t.Fatalf("expected ErrBackendUnavailable, got %v", err)
		}
		if len(store.CurrentSet()) != 2 {
			t.Fatalf("expected memory to keep the record after failed delete")
		}
	})
}

func TestAppointmentStore_MarkCompleted(t *testing.T) {
	now := time.Date(2025, time.March, 12, 12, 0, 0, 0, time.UTC)

	seed := func() (*appointmentRepoStub, *AppointmentStore) {
		repo := &appointmentRepoStub{list: []Appointment{
			{ID: "old", SubjectName: "A", Date: "2025-03-10", Time: "09:00", Reason: "R"},
		}}
		store := NewAppointmentStore(repo, nil, fixedNow(now), WithLocation(time.UTC))
		if _, err := store.LoadAll(context.Background()); err != nil {
			t.Fatalf("load failed: %v", err)
		}
		return repo, store
	}

	t.Run("completing a missed record moves it out of missed but keeps it in past", func(t *testing.T) {
		_, store := seed()

		if got := store.Missed(); len(got) != 1 {
			t.Fatalf("expected record to be missed before completion, got %d", len(got))
		}
		if got := store.Upcoming(); len(got) != 0 {
			t.Fatalf("expected no upcoming records, got %d", len(got))
		}

		if err := store.MarkCompleted(context.Background(), "old"); err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if got := store.Missed(); len(got) != 0 {
			t.Fatalf("expected missed to be empty after completion, got %d", len(got))
		}
		if got := store.Past(); len(got) != 1 || !got[0].Completed {
			t.Fatalf("expected completed record to remain in past, got %+v", got)
		}
	})

	t.Run("is idempotent", func(t *testing.T) {
		repo, store := seed()
		publisher := &publisherStub{}
		WithPublisher(publisher)(store)

		for i := 0; i < 3; i++ {
			if err := store.MarkCompleted(context.Background(), "old"); err != nil {
				t.Fatalf("attempt %d failed: %v", i, err)
			}
		}
		if !repo.list[0].Completed || !store.CurrentSet()[0].Completed {
			t.Fatalf("expected record completed in backend and memory")
		}
		if got := publisher.types(); len(got) != 1 || got[0] != EventCompleted {
			t.Fatalf("expected a single completed event, got %v", got)
		}
	})

	t.Run("unknown ids are a no-op", func(t *testing.T) {
		_, store := seed()
		if err := store.MarkCompleted(context.Background(), "missing"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("backend failure leaves memory unchanged", func(t *testing.T) {
		repo, store := seed()
		repo.updateErr = errors.New("locked")

		if err := store.MarkCompleted(context.Background(), "old"); !errors.Is(err, ErrBackendUnavailable) {
			t.Fatalf("expected ErrBackendUnavailable, got %v", err)
		}
		if store.CurrentSet()[0].Completed {
			t.Fatalf("memory must not reflect a failed write")
		}
	})
}

func TestAppointmentStore_Views(t *testing.T) {
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	repo := &appointmentRepoStub{list: []Appointment{
		{ID: "future", SubjectName: "A", Date: "2025-03-11", Time: "09:00", Reason: "R"},
		{ID: "past", SubjectName: "B", Date: "2025-03-09", Time: "09:00", Reason: "R"},
		{ID: "done", SubjectName: "C", Date: "2025-03-08", Time: "09:00", Reason: "R", Completed: true},
		{ID: "broken", SubjectName: "D", Date: "2025-03-08", Time: "noon", Reason: "R"},
	}}
	store := NewAppointmentStore(repo, nil, fixedNow(now), WithLocation(time.UTC))
	if _, err := store.LoadAll(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	views := store.Views()
	if !views.Now.Equal(now) {
		t.Fatalf("expected views to carry the sampled instant")
	}
	if len(views.Upcoming) != 1 || views.Upcoming[0].ID != "future" {
		t.Fatalf("unexpected upcoming %+v", views.Upcoming)
	}
	if len(views.Missed) != 1 || views.Missed[0].ID != "past" {
		t.Fatalf("unexpected missed %+v", views.Missed)
	}
	if len(views.Past) != 2 || views.Past[0].ID != "done" {
		t.Fatalf("unexpected past %+v", views.Past)
	}
	if len(views.Malformed) != 1 || views.Malformed[0].ID != "broken" || !errors.Is(views.Malformed[0], ErrMalformedRecord) {
		t.Fatalf("unexpected malformed %+v", views.Malformed)
	}
	if views.Summary.Total != 4 || views.Summary.Completed != 1 {
		t.Fatalf("unexpected summary %+v", views.Summary)
	}

	sorted := store.SortedByTime()
	if sorted[len(sorted)-1].ID != "broken" {
		t.Fatalf("expected malformed record to sort last, got %s", sorted[len(sorted)-1].ID)
	}
}

func TestAppointmentStore_ConcurrentMutations(t *testing.T) {
	storage := memory.NewStorage()
	store := NewAppointmentStore(storage, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Create(context.Background(), janeDraft()); err != nil {
				t.Errorf("create failed: %v", err)
			}
		}()
	}
	wg.Wait()

	stored, err := storage.ListAppointments(context.Background())
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(stored) != 20 || len(store.CurrentSet()) != 20 {
		t.Fatalf("expected 20 records in backend and memory, got %d and %d", len(stored), len(store.CurrentSet()))
	}
}
