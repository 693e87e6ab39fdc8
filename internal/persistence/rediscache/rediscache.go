// Package rediscache stores the appointment set as one JSON document under a
// Redis key.
package rediscache

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/example/appointment-store/internal/persistence"
)

// DefaultKey matches the key the browser client used for its local cache.
const DefaultKey = "appointments"

const defaultMaxRetries = 8

// Options configures Dial.
type Options struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// Store is a SnapshotStore over a single Redis string key. Updates run inside
// WATCH/MULTI so concurrent writers from other processes retry instead of
// overwriting each other.
type Store struct {
	client     *redis.Client
	key        string
	maxRetries int
}

// New wraps an existing client.
func New(client *redis.Client, key string) *Store {
	if strings.TrimSpace(key) == "" {
		key = DefaultKey
	}
	return &Store{client: client, key: key, maxRetries: defaultMaxRetries}
}

// Dial connects to Redis and verifies the connection.
func Dial(ctx context.Context, opts Options) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("rediscache: ping %s: %w", opts.Addr, err)
	}
	return New(client, opts.Key), nil
}

// Repository returns an AppointmentRepository over the store.
func (s *Store) Repository() *persistence.SnapshotRepository {
	return persistence.NewSnapshotRepository(s)
}

// Key returns the Redis key holding the document.
func (s *Store) Key() string {
	return s.key
}

// Close closes the underlying client.
func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// ReadSnapshot returns the stored document, or nil when the key is unset.
func (s *Store) ReadSnapshot(ctx context.Context) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("rediscache: get %s: %w", s.key, err)
	}
	return data, nil
}

// UpdateSnapshot applies fn under WATCH and retries when another client
// changed the key between the read and the write.
func (s *Store) UpdateSnapshot(ctx context.Context, fn func([]byte) ([]byte, error)) error {
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, s.key).Bytes()
		if errors.Is(err, redis.Nil) {
			current, err = nil, nil
		}
		if err != nil {
			return fmt.Errorf("rediscache: get %s: %w", s.key, err)
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.key, next, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, s.key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("rediscache: %s changed concurrently %d times", s.key, s.maxRetries)
}
