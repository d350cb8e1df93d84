// Package memstore keeps pastes in process memory. Nothing survives a restart.
package memstore

import (
	"context"
	"errors"
	"sync"

	"pastebin-lite/internal/storage"
)

var _ storage.Store = (*Store)(nil)

// Store implements storage.Store with a mutex-guarded map.
type Store struct {
	mu     sync.Mutex
	pastes map[string]*storage.Paste
}

// New returns an empty store.
func New() *Store {
	return &Store{pastes: make(map[string]*storage.Paste)}
}

// Create stores a copy of paste.
func (s *Store) Create(ctx context.Context, paste *storage.Paste) error {
	if paste == nil {
		return errors.New("paste is nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pastes[paste.ID] = paste.Clone()
	return nil
}

// Consume evaluates and applies one read under the store lock.
func (s *Store) Consume(ctx context.Context, id string, now int64) (*storage.Paste, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	paste, ok := s.pastes[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if err := paste.Consume(now); err != nil {
		return nil, err
	}
	return paste.Clone(), nil
}

// DeleteExpired drops records that can no longer be served at now.
func (s *Store) DeleteExpired(ctx context.Context, now int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, paste := range s.pastes {
		if paste.Reclaimable(now) {
			delete(s.pastes, id)
			removed++
		}
	}
	return removed, nil
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
