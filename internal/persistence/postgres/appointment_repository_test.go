package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/example/appointment-store/internal/persistence"
	"github.com/example/appointment-store/internal/persistence/postgres"
	"github.com/example/appointment-store/internal/testfixtures"
)

func TestRepository_Contract(t *testing.T) {
	url := os.Getenv("APPTSTORE_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("APPTSTORE_TEST_POSTGRES_URL not set")
	}

	testfixtures.RunAppointmentRepositoryContract(t, func(t *testing.T) persistence.AppointmentRepository {
		ctx := context.Background()
		pool, err := postgres.Open(ctx, url)
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		t.Cleanup(pool.Close)

		if err := pool.EnsureSchema(ctx); err != nil {
			t.Fatalf("EnsureSchema failed: %v", err)
		}
		if _, err := pool.Exec(ctx, `TRUNCATE appointments RESTART IDENTITY`); err != nil {
			t.Fatalf("truncate failed: %v", err)
		}
		if err := postgres.ReadyCheck(pool)(ctx); err != nil {
			t.Fatalf("ReadyCheck failed: %v", err)
		}
		return postgres.NewRepository(pool)
	})
}

func TestReadyCheckWithoutPool(t *testing.T) {
	if err := postgres.ReadyCheck(nil)(context.Background()); err == nil {
		t.Fatalf("expected error for missing pool")
	}
}
