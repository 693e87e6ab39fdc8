package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/appointment-store/internal/application"
	"github.com/example/appointment-store/internal/config"
	"github.com/example/appointment-store/internal/persistence/filecache"
	"github.com/example/appointment-store/internal/persistence/memory"
	"github.com/example/appointment-store/internal/persistence/postgres"
	"github.com/example/appointment-store/internal/persistence/rediscache"
	"github.com/example/appointment-store/internal/persistence/sqlite"
)

// backend is an opened repository together with its lifecycle hooks.
type backend struct {
	name  string
	repo  application.AppointmentRepository
	ready func(context.Context) error
	close func() error
}

func (b *backend) Close() error {
	if b == nil || b.close == nil {
		return nil
	}
	return b.close()
}

// openServerBackend opens the durable backend selected by cfg.Backend.
func openServerBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (*backend, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		repo, err := sqlite.Open(ctx, cfg.SQLite.DSN, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite backend: %w", err)
		}
		return &backend{
			name:  config.BackendSQLite,
			repo:  repo,
			ready: repo.Pool().Ping,
			close: repo.Close,
		}, nil
	case config.BackendPostgres:
		pool, err := postgres.Open(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres backend: %w", err)
		}
		if err := pool.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		repo := postgres.NewRepository(pool)
		return &backend{
			name:  config.BackendPostgres,
			repo:  repo,
			ready: postgres.ReadyCheck(pool),
			close: repo.Close,
		}, nil
	case config.BackendMemory:
		return &backend{name: config.BackendMemory, repo: memory.NewStorage()}, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// openCacheBackend opens the local cache selected by cfg.Cache.Backend.
func openCacheBackend(ctx context.Context, cfg config.Config) (*backend, error) {
	switch cfg.Cache.Backend {
	case config.CacheFile:
		return &backend{name: "cache:" + config.CacheFile, repo: filecache.Open(cfg.Cache.Path)}, nil
	case config.CacheRedis:
		store, err := rediscache.Dial(ctx, rediscache.Options{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			Key:      cfg.Cache.Redis.Key,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open redis cache: %w", err)
		}
		return &backend{name: "cache:" + config.CacheRedis, repo: store.Repository(), close: store.Close}, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

// openStore opens the backend chosen by --server and loads the working set.
// A failed load is reported as a warning and leaves an empty working set.
func (rt *runtime) openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (*application.AppointmentStore, *backend, error) {
	var (
		b   *backend
		err error
	)
	if rt.server {
		b, err = openServerBackend(ctx, cfg, logger)
	} else {
		b, err = openCacheBackend(ctx, cfg)
	}
	if err != nil {
		return nil, nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		b.Close()
		return nil, nil, err
	}

	store := application.NewAppointmentStore(b.repo, rt.newID, rt.clock(),
		application.WithLogger(logger),
		application.WithLocation(loc),
	)
	if _, err := store.LoadAll(ctx); err != nil {
		if !errors.Is(err, application.ErrBackendUnavailable) {
			b.Close()
			return nil, nil, err
		}
		logger.Warn("appointments could not be loaded", "backend", b.name, "error", err)
	}
	return store, b, nil
}
