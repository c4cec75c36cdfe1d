package peertable

import (
	"testing"
	"time"
)

func TestConnectedLostDisjoint(t *testing.T) {
	tbl := New()
	e := Endpoint("peer-1")

	tbl.MarkConnected(e)
	if !tbl.IsConnected(e) {
		t.Fatalf("expected e connected")
	}

	tbl.MarkLost(e, time.Now())
	if tbl.IsConnected(e) {
		t.Errorf("e should no longer be connected after MarkLost")
	}
	if _, ok := tbl.LostSince(e); !ok {
		t.Errorf("e should be in lost set")
	}
	if !tbl.Invariant() {
		t.Errorf("invariant violated")
	}
}

func TestMarkPendingClearsLostAndConnected(t *testing.T) {
	tbl := New()
	e := Endpoint("peer-2")

	tbl.MarkConnected(e)
	tbl.MarkPending(e, Discovered)

	if tbl.IsConnected(e) {
		t.Errorf("pending endpoint must not be reported connected")
	}
	if _, ok := tbl.LostSince(e); ok {
		t.Errorf("pending endpoint must not be reported lost")
	}
	state, ok := tbl.PendingState(e)
	if !ok || state != Discovered {
		t.Errorf("expected pending state Discovered, got %v (ok=%v)", state, ok)
	}
}

func TestEvictExpired(t *testing.T) {
	tbl := New()
	e1, e2 := Endpoint("old"), Endpoint("new")

	now := time.Now()
	tbl.MarkLost(e1, now.Add(-200*time.Second))
	tbl.MarkLost(e2, now.Add(-10*time.Second))

	evicted := tbl.EvictExpired(now, 120*time.Second)
	if len(evicted) != 1 || evicted[0] != e1 {
		t.Fatalf("expected only e1 evicted, got %v", evicted)
	}
	if _, ok := tbl.LostSince(e1); ok {
		t.Errorf("e1 should have been evicted")
	}
	if _, ok := tbl.LostSince(e2); !ok {
		t.Errorf("e2 should remain")
	}
}

func TestClearEmptiesEverything(t *testing.T) {
	tbl := New()
	tbl.MarkConnected(Endpoint("a"))
	tbl.MarkLost(Endpoint("b"), time.Now())
	tbl.MarkPending(Endpoint("c"), Connecting)

	tbl.Clear()

	if tbl.ConnectedCount() != 0 || tbl.LostCount() != 0 {
		t.Errorf("expected empty table after Clear")
	}
	if _, ok := tbl.PendingState(Endpoint("c")); ok {
		t.Errorf("expected no pending entries after Clear")
	}
}

func TestRemoveDropsFromEverySet(t *testing.T) {
	tbl := New()
	e := Endpoint("x")
	tbl.MarkConnected(e)
	tbl.Remove(e)
	if tbl.IsConnected(e) {
		t.Errorf("Remove should drop connected membership")
	}
}
