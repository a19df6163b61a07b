package store

import (
	"sync"

	"github.com/yourusername/flowfence/core"
)

// MemoryStore keeps snapshots in process memory. Suitable for a single
// instance; state is gone when the process exits.
type MemoryStore struct {
	snapshots sync.Map // map[string]*core.State
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory snapshot store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Get returns the snapshot for key, or nil if none is stored.
func (s *MemoryStore) Get(key string) *core.State {
	val, ok := s.snapshots.Load(key)
	if !ok {
		return nil
	}
	return val.(*core.State)
}

// Set stores the snapshot for key, replacing any previous one.
func (s *MemoryStore) Set(key string, st *core.State) {
	s.snapshots.Store(key, st)
}

// Delete removes the snapshot for key.
func (s *MemoryStore) Delete(key string) {
	s.snapshots.Delete(key)
}

// Clear removes every snapshot.
func (s *MemoryStore) Clear() {
	s.snapshots.Range(func(key, value interface{}) bool {
		s.snapshots.Delete(key)
		return true
	})
}

// Len reports how many snapshots are currently stored.
func (s *MemoryStore) Len() int {
	n := 0
	s.snapshots.Range(func(key, value interface{}) bool {
		n++
		return true
	})
	return n
}
