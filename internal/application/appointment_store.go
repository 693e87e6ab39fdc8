package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/appointment-store/internal/classify"
	"github.com/example/appointment-store/internal/persistence"
	"github.com/example/appointment-store/internal/record"
)

const (
	tracerName = "github.com/example/appointment-store/internal/application"

	maxIDAttempts = 5

	malformedWarningTTL = 10 * time.Minute
)

// AppointmentRepository captures the persistence operations needed by the store.
type AppointmentRepository interface {
	ListAppointments(ctx context.Context) ([]Appointment, error)
	CreateAppointment(ctx context.Context, appointment Appointment) error
	UpdateAppointment(ctx context.Context, id string, update persistence.UpdateFunc) error
	DeleteAppointment(ctx context.Context, id string) error
}

// EventPublisher receives change notifications after durable writes succeed.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// StoreOption configures optional collaborators of an AppointmentStore.
type StoreOption func(*AppointmentStore)

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *AppointmentStore) {
		s.logger = defaultLogger(logger)
	}
}

// WithLocation sets the zone used to interpret record dates and times.
func WithLocation(loc *time.Location) StoreOption {
	return func(s *AppointmentStore) {
		s.classifier = classify.New(loc)
	}
}

// WithPublisher sets the change notification sink.
func WithPublisher(publisher EventPublisher) StoreOption {
	return func(s *AppointmentStore) {
		s.publisher = publisher
	}
}

// NewAppointmentID mints an identifier of the form apt-<uuid>.
func NewAppointmentID() string {
	return "apt-" + uuid.NewString()
}

// AppointmentStore owns the in-memory working set and writes every mutation
// through to the repository before reflecting it in memory.
type AppointmentStore struct {
	// writeMu serializes mutations and loads so read-modify-write backends
	// never observe interleaved changes from this store.
	writeMu sync.Mutex

	mu      sync.RWMutex
	records []Appointment

	repo        AppointmentRepository
	idGenerator func() string
	now         func() time.Time
	classifier  classify.Classifier
	publisher   EventPublisher
	logger      *slog.Logger
	tracer      trace.Tracer
	warnings    *warningCache
}

// NewAppointmentStore constructs a store over repo. A nil idGenerator mints
// apt-<uuid> identifiers and a nil now uses time.Now.
func NewAppointmentStore(repo AppointmentRepository, idGenerator func() string, now func() time.Time, opts ...StoreOption) *AppointmentStore {
	if idGenerator == nil {
		idGenerator = NewAppointmentID
	}
	if now == nil {
		now = time.Now
	}
	s := &AppointmentStore{
		records:     []Appointment{},
		repo:        repo,
		idGenerator: idGenerator,
		now:         now,
		classifier:  classify.New(nil),
		logger:      slog.Default(),
		tracer:      otel.Tracer(tracerName),
		warnings:    newWarningCache(malformedWarningTTL, 0, now),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *AppointmentStore) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AppointmentStore", operation, attrs...)
}

// Location returns the zone used to interpret record dates and times.
func (s *AppointmentStore) Location() *time.Location {
	return s.classifier.Location()
}

// LoadAll replaces the working set with the repository contents. When the
// repository cannot be read the working set becomes empty and the returned
// error matches ErrBackendUnavailable.
func (s *AppointmentStore) LoadAll(ctx context.Context) (records []Appointment, err error) {
	if s == nil {
		return nil, fmt.Errorf("AppointmentStore is nil")
	}

	ctx, span := s.tracer.Start(ctx, "AppointmentStore.LoadAll")
	defer func() { endSpan(span, err) }()

	logger := s.loggerWith(ctx, "LoadAll")
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "falling back to empty appointment set", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(records)).DebugContext(ctx, "appointments loaded")
	}()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.repo == nil {
		s.replace(nil)
		return []Appointment{}, &BackendUnavailableError{Op: "load", Err: errors.New("appointment repository not configured")}
	}

	var loaded []Appointment
	loaded, err = s.repo.ListAppointments(ctx)
	if err != nil {
		s.replace(nil)
		return []Appointment{}, &BackendUnavailableError{Op: "load", Err: err}
	}

	s.replace(loaded)
	for _, m := range s.classifier.SortedByTime(loaded).Malformed {
		mErr := toMalformedError(m)
		level := slog.LevelDebug
		if s.warnings.ShouldWarn(malformedWarningKey(mErr)) {
			level = slog.LevelWarn
		}
		logger.Log(ctx, level, "stored appointment has malformed schedule",
			"appointment_id", mErr.ID, "error", mErr, "error_kind", ErrorKind(mErr))
	}

	span.SetAttributes(attribute.Int("appointments.count", len(loaded)))
	return cloneAll(loaded), nil
}

// Create validates draft, mints an id and durably appends the record before
// adding it to the working set.
func (s *AppointmentStore) Create(ctx context.Context, draft AppointmentDraft) (appointment Appointment, err error) {
	if s == nil {
		err = fmt.Errorf("AppointmentStore is nil")
		return
	}

	ctx, span := s.tracer.Start(ctx, "AppointmentStore.Create")
	defer func() { endSpan(span, err) }()

	logger := s.loggerWith(ctx, "Create")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create appointment", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("appointment_id", appointment.ID).InfoContext(ctx, "appointment created")
	}()

	if vErr := validateDraft(draft); vErr.HasErrors() {
		err = vErr
		return
	}
	if s.repo == nil {
		err = &BackendUnavailableError{Op: "create", Err: errors.New("appointment repository not configured")}
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	candidate := Appointment{
		SubjectName: strings.TrimSpace(draft.SubjectName),
		Date:        strings.TrimSpace(draft.Date),
		Time:        strings.TrimSpace(draft.Time),
		Reason:      strings.TrimSpace(draft.Reason),
		Notes:       copyOptionalString(draft.Notes),
		Completed:   false,
		Extensions:  draftExtensions(draft.Extensions),
	}

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := strings.TrimSpace(s.idGenerator())
		if id == "" || s.contains(id) {
			continue
		}
		candidate.ID = id

		err = s.repo.CreateAppointment(ctx, candidate.Clone())
		if errors.Is(err, persistence.ErrDuplicate) {
			logger.WarnContext(ctx, "minted id already stored, retrying", "appointment_id", id)
			err = nil
			continue
		}
		if err != nil {
			err = &BackendUnavailableError{Op: "create", Err: err}
			return
		}

		s.mu.Lock()
		s.records = append(s.records, candidate.Clone())
		s.mu.Unlock()

		appointment = candidate
		span.SetAttributes(attribute.String("appointment.id", id))
		s.publish(ctx, logger, Event{Type: EventCreated, AppointmentID: id, Appointment: &candidate})
		return
	}

	err = fmt.Errorf("could not mint a unique appointment id after %d attempts", maxIDAttempts)
	return
}

// Delete durably removes the record with id and then drops it from the
// working set. Unknown ids are a no-op.
func (s *AppointmentStore) Delete(ctx context.Context, id string) (err error) {
	if s == nil {
		return fmt.Errorf("AppointmentStore is nil")
	}

	id = strings.TrimSpace(id)
	ctx, span := s.tracer.Start(ctx, "AppointmentStore.Delete", trace.WithAttributes(attribute.String("appointment.id", id)))
	defer func() { endSpan(span, err) }()

	logger := s.loggerWith(ctx, "Delete", "appointment_id", id)
	if id == "" {
		logger.DebugContext(ctx, "empty id, nothing to delete")
		return nil
	}
	if s.repo == nil {
		err = &BackendUnavailableError{Op: "delete", Err: errors.New("appointment repository not configured")}
		logger.ErrorContext(ctx, "failed to delete appointment", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	existed := true
	if err = s.repo.DeleteAppointment(ctx, id); err != nil {
		if !errors.Is(err, persistence.ErrNotFound) {
			err = &BackendUnavailableError{Op: "delete", Err: err}
			logger.ErrorContext(ctx, "failed to delete appointment", "error", err, "error_kind", ErrorKind(err))
			return err
		}
		existed = false
		err = nil
	}

	s.mu.Lock()
	for i := range s.records {
		if s.records[i].ID == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	s.warnings.Forget(id)

	if !existed {
		logger.InfoContext(ctx, "appointment already absent")
		return nil
	}

	logger.InfoContext(ctx, "appointment deleted")
	s.publish(ctx, logger, Event{Type: EventDeleted, AppointmentID: id})
	return nil
}

// MarkCompleted durably sets completed on the record with id and then mirrors
// the change in memory. Unknown ids and completed records are a no-op.
func (s *AppointmentStore) MarkCompleted(ctx context.Context, id string) (err error) {
	if s == nil {
		return fmt.Errorf("AppointmentStore is nil")
	}

	id = strings.TrimSpace(id)
	ctx, span := s.tracer.Start(ctx, "AppointmentStore.MarkCompleted", trace.WithAttributes(attribute.String("appointment.id", id)))
	defer func() { endSpan(span, err) }()

	logger := s.loggerWith(ctx, "MarkCompleted", "appointment_id", id)
	if id == "" {
		logger.DebugContext(ctx, "empty id, nothing to complete")
		return nil
	}
	if s.repo == nil {
		err = &BackendUnavailableError{Op: "complete", Err: errors.New("appointment repository not configured")}
		logger.ErrorContext(ctx, "failed to complete appointment", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var (
		changed bool
		updated Appointment
	)
	err = s.repo.UpdateAppointment(ctx, id, func(a *record.Appointment) {
		changed = !a.Completed
		a.Completed = true
		updated = a.Clone()
	})
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			logger.InfoContext(ctx, "appointment not found, nothing to complete")
			return nil
		}
		err = &BackendUnavailableError{Op: "complete", Err: err}
		logger.ErrorContext(ctx, "failed to complete appointment", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	s.mu.Lock()
	for i := range s.records {
		if s.records[i].ID == id {
			s.records[i].Completed = true
			break
		}
	}
	s.mu.Unlock()

	if !changed {
		logger.DebugContext(ctx, "appointment already completed")
		return nil
	}

	logger.InfoContext(ctx, "appointment completed")
	s.publish(ctx, logger, Event{Type: EventCompleted, AppointmentID: id, Appointment: &updated})
	return nil
}

// CurrentSet returns a copy of the working set without touching the repository.
func (s *AppointmentStore) CurrentSet() []Appointment {
	if s == nil {
		return []Appointment{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.records)
}

// Views classifies the working set against one clock sample.
func (s *AppointmentStore) Views() Views {
	if s == nil {
		return Views{}
	}
	p := s.classifier.Classify(s.CurrentSet(), s.now())

	views := Views{
		Now:       p.Now,
		Sorted:    p.Sorted,
		Upcoming:  p.Upcoming,
		Past:      p.Past,
		Missed:    p.Missed,
		Malformed: make([]*MalformedRecordError, 0, len(p.Malformed)),
		Summary:   p.Summary,
	}
	for _, m := range p.Malformed {
		views.Malformed = append(views.Malformed, toMalformedError(m))
	}
	return views
}

// SortedByTime returns the working set ordered by scheduled instant with
// malformed records last.
func (s *AppointmentStore) SortedByTime() []Appointment {
	return s.classifier.SortedByTime(s.CurrentSet()).Records
}

// Upcoming returns records scheduled at or after the current instant.
func (s *AppointmentStore) Upcoming() []Appointment {
	return s.classifier.Upcoming(s.CurrentSet(), s.now())
}

// Past returns records scheduled before the current instant.
func (s *AppointmentStore) Past() []Appointment {
	return s.classifier.Past(s.CurrentSet(), s.now())
}

// Missed returns past records that were never completed.
func (s *AppointmentStore) Missed() []Appointment {
	return s.classifier.Missed(s.CurrentSet(), s.now())
}

func (s *AppointmentStore) replace(records []Appointment) {
	next := cloneAll(records)
	s.mu.Lock()
	s.records = next
	s.mu.Unlock()
}

func (s *AppointmentStore) contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.records {
		if rec.ID == id {
			return true
		}
	}
	return false
}

func (s *AppointmentStore) publish(ctx context.Context, logger *slog.Logger, event Event) {
	if s.publisher == nil {
		return
	}
	event.OccurredAt = s.now()
	if err := s.publisher.Publish(ctx, event); err != nil {
		logger.WarnContext(ctx, "failed to publish appointment event", "event_type", string(event.Type), "error", err)
	}
}

func validateDraft(draft AppointmentDraft) *ValidationError {
	vErr := &ValidationError{}

	if strings.TrimSpace(draft.SubjectName) == "" {
		vErr.add(record.FieldSubjectName, "subject name is required")
	}
	vErr.merge(validateSchedule(draft.Date, draft.Time))
	if strings.TrimSpace(draft.Reason) == "" {
		vErr.add(record.FieldReason, "reason is required")
	}

	return vErr
}

// validateSchedule checks the date and time fields in isolation.
func validateSchedule(date, clock string) *ValidationError {
	vErr := &ValidationError{}
	switch date = strings.TrimSpace(date); {
	case date == "":
		vErr.add(record.FieldDate, "date is required")
	case !record.ValidDate(date):
		vErr.add(record.FieldDate, "date must be YYYY-MM-DD")
	}
	switch clock = strings.TrimSpace(clock); {
	case clock == "":
		vErr.add(record.FieldTime, "time is required")
	case !record.ValidTime(clock):
		vErr.add(record.FieldTime, "time must be HH:MM")
	}
	return vErr
}

func draftExtensions(in map[string]json.RawMessage) map[string]json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]json.RawMessage, len(in))
	for key, raw := range in {
		switch key {
		case record.FieldID, record.FieldSubjectName, record.FieldDate, record.FieldTime,
			record.FieldReason, record.FieldNotes, record.FieldCompleted:
			continue
		}
		if !json.Valid(raw) {
			continue
		}
		out[key] = append(json.RawMessage(nil), raw...)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func copyOptionalString(value *string) *string {
	if value == nil {
		return nil
	}
	out := *value
	return &out
}

func cloneAll(records []Appointment) []Appointment {
	out := make([]Appointment, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.Clone())
	}
	return out
}

func toMalformedError(m classify.Malformed) *MalformedRecordError {
	return &MalformedRecordError{
		ID:   m.Appointment.ID,
		Date: m.Appointment.Date,
		Time: m.Appointment.Time,
		Err:  m.Err,
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, ErrorKind(err))
	}
	span.End()
}
