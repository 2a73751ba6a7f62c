// Package memory provides an in-memory snapshot store used for tests and
// ephemeral workspaces.
package memory

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"

	"entitygraph/pkg/domain"
)

var _ domain.SnapshotStore = (*Store)(nil)

var errClosed = errors.New("memory snapshot store is closed")

// Store keeps dump payloads in a map keyed by lineage.
type Store struct {
	mu     sync.RWMutex
	saved  map[string][]byte
	closed bool
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{saved: make(map[string][]byte)}
}

// Save replaces the payload stored for lineage.
func (s *Store) Save(_ context.Context, lineage string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	s.saved[lineage] = slices.Clone(payload)
	return nil
}

// Load returns a copy of the payload stored for lineage.
func (s *Store) Load(_ context.Context, lineage string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false, errClosed
	}
	payload, ok := s.saved[lineage]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(payload), true, nil
}

// Lineages lists stored lineages in lexical order.
func (s *Store) Lineages(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}
	out := make([]string, 0, len(s.saved))
	for name := range s.saved {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// Close drops every payload.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.saved = nil
	return nil
}
