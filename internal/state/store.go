package state

import (
	"sync"
	"time"
)

// Key identifies one stored counter tuple. Entity is empty for host-wide
// families.
type Key struct {
	Family string
	Entity string
}

func (k Key) String() string {
	if k.Entity == "" {
		return k.Family
	}
	return k.Family + "_" + k.Entity
}

// Entry is the last committed reading for a key.
type Entry struct {
	Values []uint64
	At     time.Time
	Cycle  uint64
}

// Store keeps the previous raw counters between sampling cycles.
type Store struct {
	mu      sync.RWMutex
	entries map[Key]Entry
}

func NewStore() *Store {
	return &Store{entries: make(map[Key]Entry)}
}

func (s *Store) Get(k Key) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[k]
	return e, ok
}

// Put replaces the entry for k as a whole. The values are copied.
func (s *Store) Put(k Key, e Entry) {
	v := make([]uint64, len(e.Values))
	copy(v, e.Values)
	e.Values = v

	s.mu.Lock()
	s.entries[k] = e
	s.mu.Unlock()
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Prune removes entries last written before the given cycle and returns how
// many were removed.
func (s *Store) Prune(before uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, e := range s.entries {
		if e.Cycle < before {
			delete(s.entries, k)
			n++
		}
	}
	return n
}
