package seenset

import (
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestInsertReturnsTrueOnlyOnce(t *testing.T) {
	s := New(4096)
	id := uuid.New()

	if !s.Insert(id) {
		t.Fatalf("first insert should return true")
	}
	if s.Insert(id) {
		t.Fatalf("second insert of the same id should return false")
	}
	if !s.Contains(id) {
		t.Fatalf("Contains should report the id as seen")
	}
}

func TestFIFOEvictionAtCapacity(t *testing.T) {
	s := New(3)
	ids := make([]uuid.UUID, 4)
	for i := range ids {
		ids[i] = uuid.New()
		s.Insert(ids[i])
	}

	if s.Len() != 3 {
		t.Fatalf("expected len 3 after 4 inserts at capacity 3, got %d", s.Len())
	}
	if s.Contains(ids[0]) {
		t.Errorf("oldest id should have been evicted")
	}
	for _, id := range ids[1:] {
		if !s.Contains(id) {
			t.Errorf("id %s should still be present", id)
		}
	}

	// Re-inserting the evicted id must be treated as new.
	if !s.Insert(ids[0]) {
		t.Errorf("evicted id should be insertable again")
	}
}

func TestConcurrentInsert(t *testing.T) {
	s := New(DefaultCapacity)
	ids := make([]uuid.UUID, 500)
	for i := range ids {
		ids[i] = uuid.New()
	}

	var wg sync.WaitGroup
	results := make([]bool, len(ids)*2)
	for i, id := range ids {
		for dup := 0; dup < 2; dup++ {
			wg.Add(1)
			go func(idx int, id uuid.UUID) {
				defer wg.Done()
				results[idx] = s.Insert(id)
			}(i*2+dup, id)
		}
	}
	wg.Wait()

	trueCount := 0
	for _, r := range results {
		if r {
			trueCount++
		}
	}
	if trueCount != len(ids) {
		t.Errorf("expected exactly %d successful inserts (one per unique id), got %d", len(ids), trueCount)
	}
}

func TestDefaultCapacityFallback(t *testing.T) {
	s := New(0)
	if s.capacity != DefaultCapacity {
		t.Errorf("expected fallback to DefaultCapacity, got %d", s.capacity)
	}
}
