// Package transport defines the abstraction the relay engine consumes
// to reach the underlying radio-connections layer, plus a concrete LAN
// implementation built from a UDP multicast beacon (advertise/discover)
// and a WebRTC DataChannel per link (send/receive), with a short-lived
// WebSocket rendezvous carrying the SDP/ICE exchange needed to open
// each link.
//
// Nothing in this package mutates PeerTable, SeenSet, or engine flags:
// it only invokes the Callbacks it was constructed with, and those
// calls are expected to be marshalled onto the engine's single
// dispatch goroutine before any state is touched.
package transport

import "github.com/1ureka/meshrelay/internal/peertable"

// Endpoint identifies a discovered peer. Opaque; compared by equality
// only. Aliased to peertable.Endpoint so the engine never has to
// convert between the two packages' notions of a peer identifier.
type Endpoint = peertable.Endpoint

// Adapter abstracts the underlying radio-connections API: discovery,
// advertising, connection lifecycle, and payload send. Implementations
// must be safe for concurrent use, since callbacks and API calls can
// arrive from independent goroutines (the engine serializes its own
// reaction to them, but does not serialize calls into the Adapter).
type Adapter interface {
	StartAdvertising(serviceID, localName string) error
	StopAdvertising() error
	StartDiscovery(serviceID string) error
	StopDiscovery() error
	RequestConnection(localName string, endpoint Endpoint) error
	AcceptConnection(endpoint Endpoint) error
	SendPayload(endpoint Endpoint, data []byte) error
	StopAllEndpoints() error
}

// Callbacks is the set of asynchronous notifications an Adapter
// delivers to the engine. Implementations of Adapter hold a Callbacks
// value passed at construction time and invoke it from whatever
// goroutine observes the underlying event — the engine is responsible
// for hopping onto its own dispatch loop before touching any state.
type Callbacks interface {
	EndpointFound(endpoint Endpoint, name, serviceID string)
	EndpointLost(endpoint Endpoint)
	ConnectionInitiated(endpoint Endpoint, info string)
	ConnectionResult(endpoint Endpoint, err error) // nil err = success
	Disconnected(endpoint Endpoint)
	PayloadReceived(endpoint Endpoint, data []byte)
}
