// Package alert defines the emergency alert record and its wire codec.
//
// An Alert is immutable once constructed: origination produces one via
// New, and inbound bytes produce one via Decode. Nothing in this
// package mutates an existing Alert; forwarding builds a fresh value
// with TTL decremented (see Alert.Forward).
package alert

import (
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is the hop budget assigned to a newly originated alert.
// Unmotivated in the source this module is descended from; preserved
// here for wire compatibility with any peer still running it.
const DefaultTTL = 8

// Alert is a short emergency message flooded across the mesh.
type Alert struct {
	ID        uuid.UUID
	Text      string
	Timestamp int64 // milliseconds since the epoch
	TTL       int
}

// New builds a freshly originated Alert with a random id, the current
// time, and DefaultTTL hops.
func New(text string) Alert {
	return Alert{
		ID:        uuid.New(),
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
		TTL:       DefaultTTL,
	}
}

// Forward returns a copy of a with TTL decremented by one, for
// re-broadcast to the peers that have not yet seen it. Callers must
// check CanForward first; Forward does not clamp at zero.
func (a Alert) Forward() Alert {
	a.TTL--
	return a
}

// CanForward reports whether a has hop budget remaining after this
// node processes it. A relay must never emit an alert with ttl <= 0.
func (a Alert) CanForward() bool {
	return a.TTL > 1
}
