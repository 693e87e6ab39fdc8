package rediscache_test

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"

	"github.com/example/appointment-store/internal/persistence"
	"github.com/example/appointment-store/internal/persistence/rediscache"
	"github.com/example/appointment-store/internal/testfixtures"
)

var keyCounter atomic.Uint64

func dial(t *testing.T) *rediscache.Store {
	t.Helper()

	addr := os.Getenv("APPTSTORE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("APPTSTORE_TEST_REDIS_ADDR not set")
	}
	key := fmt.Sprintf("apptstore-test-%d-%d", os.Getpid(), keyCounter.Add(1))
	store, err := rediscache.Dial(context.Background(), rediscache.Options{Addr: addr, Key: key})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() {
		_ = store.UpdateSnapshot(context.Background(), func([]byte) ([]byte, error) { return []byte("[]"), nil })
		_ = store.Close()
	})
	return store
}

func TestRedisCache_Contract(t *testing.T) {
	testfixtures.RunAppointmentRepositoryContract(t, func(t *testing.T) persistence.AppointmentRepository {
		return dial(t).Repository()
	})
}

func TestRedisCache_DefaultKey(t *testing.T) {
	store := rediscache.New(nil, "  ")
	if store.Key() != rediscache.DefaultKey {
		t.Fatalf("expected default key, got %q", store.Key())
	}
}
