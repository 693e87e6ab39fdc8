package memory

import (
	"context"
	"sync"
)

// Snapshot is a SnapshotStore holding the encoded document in memory.
type Snapshot struct {
	mu   sync.Mutex
	data []byte
}

// NewSnapshot returns a Snapshot initialised with data.
func NewSnapshot(data []byte) *Snapshot {
	return &Snapshot{data: append([]byte(nil), data...)}
}

// ReadSnapshot returns a copy of the stored document.
func (s *Snapshot) ReadSnapshot(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return nil, nil
	}
	return append([]byte(nil), s.data...), nil
}

// UpdateSnapshot replaces the document with the output of fn.
func (s *Snapshot) UpdateSnapshot(ctx context.Context, fn func([]byte) ([]byte, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var current []byte
	if s.data != nil {
		current = append([]byte(nil), s.data...)
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	s.data = append([]byte(nil), next...)
	return nil
}
