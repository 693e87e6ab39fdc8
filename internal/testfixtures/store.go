package testfixtures

import (
	"io"
	"log/slog"
	"time"

	"github.com/example/appointment-store/internal/application"
	"github.com/example/appointment-store/internal/persistence/memory"
	"github.com/example/appointment-store/internal/record"
)

// StoreFactory assists tests with constructing appointment stores using
// deterministic identifiers and clocks.
type StoreFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Location    *time.Location
	Logger      *slog.Logger
}

// StoreFactoryOption configures a StoreFactory.
type StoreFactoryOption func(*StoreFactory)

// NewStoreFactory returns a factory using a ReferenceTime clock, apt-N ids,
// UTC and a discarding logger.
func NewStoreFactory(opts ...StoreFactoryOption) *StoreFactory {
	factory := &StoreFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator(""),
		Location:    time.UTC,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(factory)
	}
	return factory
}

// WithClock overrides the clock.
func WithClock(clock *Clock) StoreFactoryOption {
	return func(f *StoreFactory) {
		if clock != nil {
			f.Clock = clock
		}
	}
}

// WithIDGenerator overrides the id generator.
func WithIDGenerator(gen *IDGenerator) StoreFactoryOption {
	return func(f *StoreFactory) {
		if gen != nil {
			f.IDGenerator = gen
		}
	}
}

// NewStore builds a store over repo.
func (f *StoreFactory) NewStore(repo application.AppointmentRepository, opts ...application.StoreOption) *application.AppointmentStore {
	base := []application.StoreOption{
		application.WithLocation(f.Location),
		application.WithLogger(f.Logger),
	}
	return application.NewAppointmentStore(repo, f.IDGenerator.NextFunc(), f.Clock.NowFunc(), append(base, opts...)...)
}

// NewMemoryStore builds a store over an in-memory repository seeded with records.
func (f *StoreFactory) NewMemoryStore(records ...record.Appointment) (*application.AppointmentStore, *memory.Storage) {
	storage := memory.NewStorage(records...)
	return f.NewStore(storage), storage
}
