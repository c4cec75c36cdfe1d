package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// LANTransport implements Adapter over the local network: a UDP
// multicast beacon stands in for BLE advertise/discover, and a
// WebSocket rendezvous carries the SDP/ICE exchange that opens a
// WebRTC DataChannel per discovered peer — the same two-phase shape
// (short signaling channel, then a direct data channel) the teacher
// repository uses for its own P2P tunnel.
type LANTransport struct {
	cb           Callbacks
	selfEndpoint Endpoint

	ctx    context.Context
	cancel context.CancelFunc

	listener net.Listener
	server   *http.Server

	mu            sync.Mutex
	serviceID     string
	localName     string
	beacon        *beacon
	advertising   bool
	discovering   bool
	known         map[Endpoint]announcement
	links         map[Endpoint]*peerLink
	pendingAccept map[Endpoint]chan struct{}
}

// New creates a LANTransport bound to cb. The WebSocket rendezvous
// listener starts immediately (on an ephemeral port) so its address is
// available to embed in beacon announcements as soon as advertising
// starts; it does not itself advertise or discover anything until
// StartAdvertising/StartDiscovery are called.
func New(cb Callbacks) (*LANTransport, error) {
	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		return nil, fmt.Errorf("transport: rendezvous listen: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	t := &LANTransport{
		cb:            cb,
		selfEndpoint:  Endpoint(uuid.New().String()),
		ctx:           ctx,
		cancel:        cancel,
		listener:      listener,
		known:         make(map[Endpoint]announcement),
		links:         make(map[Endpoint]*peerLink),
		pendingAccept: make(map[Endpoint]chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/link", t.handleIncomingLink)
	t.server = &http.Server{Handler: mux}
	go t.server.Serve(listener)

	return t, nil
}

func (t *LANTransport) rendezvousAddr() string {
	return t.listener.Addr().String()
}

// ---------------------------------------------------------------------------
// Adapter: advertising & discovery
// ---------------------------------------------------------------------------

func (t *LANTransport) StartAdvertising(serviceID, localName string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.advertising {
		return ErrAlreadyAdvertising
	}

	t.serviceID = serviceID
	t.localName = localName

	if err := t.ensureBeaconLocked(); err != nil {
		return err
	}

	t.beacon.startAdvertising()
	t.advertising = true
	return nil
}

func (t *LANTransport) StopAdvertising() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.advertising {
		return nil
	}
	t.beacon.stopAdvertising()
	t.advertising = false
	return nil
}

func (t *LANTransport) StartDiscovery(serviceID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.discovering {
		return ErrAlreadyDiscovering
	}

	t.serviceID = serviceID
	if err := t.ensureBeaconLocked(); err != nil {
		return err
	}

	t.beacon.startDiscovery(t.onAnnouncement)
	t.discovering = true
	return nil
}

func (t *LANTransport) StopDiscovery() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.discovering {
		return nil
	}
	t.beacon.stopDiscovery()
	t.discovering = false
	return nil
}

// ensureBeaconLocked lazily creates the multicast socket pair the
// first time either advertising or discovery is requested. Caller
// must hold t.mu.
func (t *LANTransport) ensureBeaconLocked() error {
	if t.beacon != nil {
		return nil
	}
	b, err := newBeacon(announcement{
		ServiceID:  t.serviceID,
		Name:       t.localName,
		Endpoint:   string(t.selfEndpoint),
		Rendezvous: t.rendezvousAddr(),
	})
	if err != nil {
		return err
	}
	t.beacon = b
	return nil
}

func (t *LANTransport) onAnnouncement(a announcement) {
	t.mu.Lock()
	if a.ServiceID != t.serviceID {
		t.mu.Unlock()
		return
	}
	_, alreadyKnown := t.known[Endpoint(a.Endpoint)]
	t.known[Endpoint(a.Endpoint)] = a
	t.mu.Unlock()

	if alreadyKnown {
		return
	}
	t.cb.EndpointFound(Endpoint(a.Endpoint), a.Name, a.ServiceID)
}

// ---------------------------------------------------------------------------
// Adapter: connection lifecycle
// ---------------------------------------------------------------------------

func (t *LANTransport) RequestConnection(localName string, endpoint Endpoint) error {
	t.mu.Lock()
	a, ok := t.known[endpoint]
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("transport: unknown endpoint %s", endpoint)
	}

	url := fmt.Sprintf("ws://%s/link", a.Rendezvous)
	dialCtx, cancel := context.WithTimeout(t.ctx, 5*time.Second)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, url, nil)
	if err != nil {
		return fmt.Errorf("transport: dial %s: %w", endpoint, err)
	}

	go t.runRequesterHandshake(endpoint, localName, conn)
	return nil
}

// AcceptConnection releases a pending inbound handshake gated by an
// earlier hello, letting it proceed to the SDP answer step. It is a
// no-op for a requester-side endpoint, which never registered a gate
// in the first place — the requester side commits to connecting the
// moment it dials.
func (t *LANTransport) AcceptConnection(endpoint Endpoint) error {
	t.mu.Lock()
	gate, ok := t.pendingAccept[endpoint]
	if ok {
		delete(t.pendingAccept, endpoint)
	}
	t.mu.Unlock()

	if ok {
		close(gate)
	}
	return nil
}

func (t *LANTransport) SendPayload(endpoint Endpoint, data []byte) error {
	t.mu.Lock()
	link, ok := t.links[endpoint]
	t.mu.Unlock()
	if !ok {
		return ErrNotConnected
	}
	return link.enqueue(data)
}

func (t *LANTransport) StopAllEndpoints() error {
	t.mu.Lock()
	links := make([]*peerLink, 0, len(t.links))
	for _, l := range t.links {
		links = append(links, l)
	}
	t.links = make(map[Endpoint]*peerLink)
	t.pendingAccept = make(map[Endpoint]chan struct{})
	t.mu.Unlock()

	for _, l := range links {
		l.close()
	}
	return nil
}

// Close tears down the transport entirely: the rendezvous server, the
// beacon (if any), and every open link. Intended for process shutdown,
// distinct from StopAllEndpoints which the engine may call while
// continuing to run.
func (t *LANTransport) Close() error {
	t.cancel()
	t.StopAllEndpoints()
	t.mu.Lock()
	b := t.beacon
	t.mu.Unlock()
	if b != nil {
		b.close()
	}
	return t.server.Close()
}

func (t *LANTransport) registerLink(endpoint Endpoint, link *peerLink) {
	t.mu.Lock()
	t.links[endpoint] = link
	t.mu.Unlock()
}

func (t *LANTransport) removeLink(endpoint Endpoint) {
	t.mu.Lock()
	delete(t.links, endpoint)
	t.mu.Unlock()
}

// SelfEndpoint returns this node's own endpoint identifier, used only
// for diagnostics — the engine never needs to compare it against
// anything since a node never dials itself.
func (t *LANTransport) SelfEndpoint() Endpoint {
	return t.selfEndpoint
}

var _ Adapter = (*LANTransport)(nil)
