// Package filecache stores the appointment set as a single JSON array file.
package filecache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/example/appointment-store/internal/persistence"
)

// Store is a SnapshotStore over one file. Writes go to a temporary file in the
// same directory which is then renamed over the target, so readers see either
// the old or the new document.
type Store struct {
	mu   sync.Mutex
	path string
	perm fs.FileMode
}

// New returns a Store for path. The file is created on first write.
func New(path string) *Store {
	return &Store{path: path, perm: 0o644}
}

// Open returns a repository backed by the file at path.
func Open(path string) *persistence.SnapshotRepository {
	return persistence.NewSnapshotRepository(New(path))
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// ReadSnapshot returns the file contents, or nil when the file does not exist.
func (s *Store) ReadSnapshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("filecache: read %s: %w", s.path, err)
	}
	return data, nil
}

// UpdateSnapshot reads the file, applies fn and atomically replaces the file.
func (s *Store) UpdateSnapshot(ctx context.Context, fn func([]byte) ([]byte, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.ReadSnapshot(ctx)
	if err != nil {
		return err
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.write(next)
}

func (s *Store) write(data []byte) (err error) {
	dir := filepath.Dir(s.path)
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("filecache: create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("filecache: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("filecache: write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("filecache: sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("filecache: close temp file: %w", err)
	}
	if err = os.Chmod(tmpName, s.perm); err != nil {
		return fmt.Errorf("filecache: chmod temp file: %w", err)
	}
	if err = os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("filecache: replace %s: %w", s.path, err)
	}
	return nil
}
