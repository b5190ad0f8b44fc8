// Package store provides persistence backends for instance state, keyed by
// (type, id). Every backend stores the full current state as JSON; Load
// returns the last persisted state or nil.
package store

import (
	"context"
	"sync"

	"github.com/edoloughlin/nasc/pkg/engine"
)

// MemoryStore keeps instance state in process memory. Values are cloned on
// the way in and out so callers never share state by reference. The mutex
// also serializes writes per process, closing the processor's documented
// lost-update gap for single-process deployments.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]engine.State
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]engine.State{}}
}

// Load returns the last persisted state for (typ, id), or nil.
func (s *MemoryStore) Load(_ context.Context, typ, id string) (engine.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.data[instanceKey(typ, id)]
	if !ok {
		return nil, nil
	}
	return engine.Clone(state), nil
}

// Persist replaces the stored state for (typ, id) with full.
func (s *MemoryStore) Persist(_ context.Context, typ, id string, _, full engine.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[instanceKey(typ, id)] = engine.Clone(full)
	return nil
}

// Len returns the number of stored instances.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func instanceKey(typ, id string) string {
	return typ + ":" + id
}
