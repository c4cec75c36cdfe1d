// Package eventbus is the one-way channel from the relay engine to a
// surrounding host/UI. It carries exactly two event kinds and makes no
// assumptions about who is on the other end — internal/hostapi bridges
// it to a WebSocket for a UI process, and tests read it directly.
//
// The source this module descends from exposed a process-wide emitter
// for static status/alert emission. Per the redesign, Bus is
// constructed by the caller and handed to engine.New; there is no
// package-level mutation point.
package eventbus

import "github.com/google/uuid"

// Event is the sum type carried on the bus. Exactly one of the two
// concrete kinds is ever produced.
type Event interface {
	isEvent()
}

// AlertReceived is emitted once per newly-seen alert, whether it
// originated on this node's neighbor or several hops away.
type AlertReceived struct {
	ID        uuid.UUID
	Text      string
	Timestamp int64
	TTL       int
}

func (AlertReceived) isEvent() {}

// Status is an informational event. The host parses the literal
// pattern "Status: <N> peers connected" to update a connection
// indicator; every other message is free-form and may be dropped or
// coalesced by the host.
type Status struct {
	Message string
}

func (Status) isEvent() {}

// bufferSize is generous enough that a host reading in a tight loop
// essentially never sees Publish need to drop anything, while still
// bounding memory if the host stalls entirely.
const bufferSize = 256

// Bus is a single-producer, single-consumer event channel. Delivery is
// best-effort and ordered per-producer: Publish never blocks, since it
// is called directly from the engine's single dispatch goroutine and
// §5's dispatcher must never perform a blocking wait. When the buffer
// is full, a Status event is simply dropped (the host may already
// coalesce them); an AlertReceived event instead evicts the oldest
// still-queued event to make room, since alert events must not be
// coalesced or silently starved by an idle Status flood, but Publish
// still must not block to guarantee it fits.
type Bus struct {
	events chan Event
	closed chan struct{}
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{
		events: make(chan Event, bufferSize),
		closed: make(chan struct{}),
	}
}

// Publish delivers ev to the consumer without ever blocking. A Status
// event is dropped outright if the buffer is full. An AlertReceived
// event, finding the buffer full, evicts the single oldest queued
// event and retries once. A Publish after Close drops the event
// instead of panicking on a closed channel; a Publish running
// concurrently with Close is not guarded.
func (b *Bus) Publish(ev Event) {
	select {
	case <-b.closed:
		return
	default:
	}

	select {
	case b.events <- ev:
		return
	case <-b.closed:
		return
	default:
	}

	if _, isAlert := ev.(AlertReceived); !isAlert {
		return
	}

	select {
	case <-b.events:
	default:
	}
	select {
	case b.events <- ev:
	case <-b.closed:
	default:
	}
}

// Events returns the channel the host consumes from. It is closed
// when Close is called, after any already-queued events are drained.
func (b *Bus) Events() <-chan Event {
	return b.events
}

// Close stops further delivery: a later Publish drops its event.
// Safe to call once; a second call panics, matching close(chan)
// semantics.
func (b *Bus) Close() {
	close(b.closed)
	close(b.events)
}
