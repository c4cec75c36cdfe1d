// Package seenset provides a bounded, concurrency-safe set of alert
// identifiers used to detect duplicates during flood relay.
package seenset

import (
	"sync"

	"github.com/google/uuid"
)

// DefaultCapacity is the recommended cap from the design: bounded
// unbounded growth would let a long-lived node accumulate ids forever.
const DefaultCapacity = 4096

// Set is a fixed-capacity set with FIFO eviction on overflow. The zero
// value is not usable; construct with New. Safe for concurrent Insert
// calls from multiple transport-callback dispatches.
type Set struct {
	mu       sync.Mutex
	capacity int
	members  map[uuid.UUID]struct{}
	order    []uuid.UUID // insertion order; entries before head are evicted
	head     int         // index of the oldest live entry within order
}

// New creates a Set bounded at capacity. A non-positive capacity falls
// back to DefaultCapacity.
func New(capacity int) *Set {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Set{
		capacity: capacity,
		members:  make(map[uuid.UUID]struct{}, capacity),
		order:    make([]uuid.UUID, 0, capacity),
	}
}

// Insert adds id to the set. It returns true iff id was not already
// present. When the set is at capacity, the oldest entry is evicted
// first to make room.
func (s *Set) Insert(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.members[id]; exists {
		return false
	}

	if len(s.members) >= s.capacity {
		s.evictOldestLocked()
	}

	s.members[id] = struct{}{}
	s.order = append(s.order, id)
	return true
}

// Contains reports whether id has already been seen, without
// affecting eviction order.
func (s *Set) Contains(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.members[id]
	return ok
}

// Len returns the current number of tracked ids.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.members)
}

// Clear drops every tracked id and resets eviction order, returning
// the set to the state New left it in. The engine calls this on
// shutdown so a restarted run never inherits a prior run's dedup
// history.
func (s *Set) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members = make(map[uuid.UUID]struct{}, s.capacity)
	s.order = s.order[:0]
	s.head = 0
}

// evictOldestLocked drops the oldest live entry. Caller must hold mu.
func (s *Set) evictOldestLocked() {
	for s.head < len(s.order) {
		oldest := s.order[s.head]
		s.head++
		if _, ok := s.members[oldest]; ok {
			delete(s.members, oldest)
			break
		}
	}

	// Compact the backing slice once the dead prefix grows large,
	// so a long-lived node doesn't retain an ever-growing order slice.
	if s.head > s.capacity {
		s.order = append(s.order[:0], s.order[s.head:]...)
		s.head = 0
	}
}
