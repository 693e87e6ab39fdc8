package filecache_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/example/appointment-store/internal/persistence"
	"github.com/example/appointment-store/internal/persistence/filecache"
	"github.com/example/appointment-store/internal/testfixtures"
)

func TestFileCache_Contract(t *testing.T) {
	testfixtures.RunAppointmentRepositoryContract(t, func(t *testing.T) persistence.AppointmentRepository {
		return filecache.Open(filepath.Join(t.TempDir(), "data", "appointments.json"))
	})
}

func TestFileCache(t *testing.T) {
	t.Run("missing file reads as empty", func(t *testing.T) {
		store := filecache.New(filepath.Join(t.TempDir(), "absent.json"))
		data, err := store.ReadSnapshot(context.Background())
		if err != nil {
			t.Fatalf("ReadSnapshot failed: %v", err)
		}
		if data != nil {
			t.Fatalf("expected nil data, got %q", data)
		}
	})

	t.Run("writes an indented JSON array and leaves no temp files", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "appointments.json")
		repo := filecache.Open(path)

		if err := repo.CreateAppointment(context.Background(), testfixtures.NewAppointment(testfixtures.WithID("apt-1"))); err != nil {
			t.Fatalf("CreateAppointment failed: %v", err)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read file: %v", err)
		}
		var decoded []map[string]any
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("file is not a JSON array: %v", err)
		}
		if len(decoded) != 1 || decoded[0]["id"] != "apt-1" {
			t.Fatalf("unexpected file contents %s", data)
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatalf("read dir: %v", err)
		}
		if len(entries) != 1 {
			t.Fatalf("expected only the data file, found %d entries", len(entries))
		}
	})

	t.Run("canceled context does not write", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "appointments.json")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := filecache.Open(path).CreateAppointment(ctx, testfixtures.NewAppointment())
		if err == nil {
			t.Fatalf("expected error for canceled context")
		}
		if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
			t.Fatalf("expected no file to be written")
		}
	})
}
