// Package hostapi bridges the relay engine's event bus to a local
// WebSocket, standing in for the UI process spec.md places out of
// scope. It never reaches into engine internals: everything it does
// is expressible through engine.Engine's public Start/SendAlert/
// Shutdown/Stats methods and the events read off the bus it was
// constructed with.
package hostapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/1ureka/meshrelay/internal/engine"
	"github.com/1ureka/meshrelay/internal/eventbus"
	"github.com/1ureka/meshrelay/internal/util"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// writeTimeout bounds every fan-out write. Without it a single client
// that stops reading (a backgrounded tab, a dead TCP peer that never
// sent a RST) would hang WriteMessage indefinitely, and since
// broadcast holds b.mu for its whole loop, one stalled client would
// stall delivery to every other connected client too.
const writeTimeout = 5 * time.Second

// wireEvent is the JSON envelope streamed to every connected client.
// Kind is "alert" or "status"; the other fields are populated
// depending on which.
type wireEvent struct {
	Kind      string    `json:"kind"`
	ID        uuid.UUID `json:"id,omitempty"`
	Text      string    `json:"text,omitempty"`
	Timestamp int64     `json:"timestamp,omitempty"`
	TTL       int       `json:"ttl,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// inboundCommand is the JSON a client sends to originate an alert:
// {"cmd":"send_alert","text":"..."}. Anything else is ignored.
type inboundCommand struct {
	Cmd  string `json:"cmd"`
	Text string `json:"text"`
}

// Bridge republishes an engine's event bus to any number of connected
// WebSocket clients and relays their send_alert commands back into the
// engine, grounded on the same listen-and-upgrade shape as the
// teacher's signaling.Server, generalized from a single accepted
// client to a broadcast fan-out since a host UI may reconnect or run
// more than one view at a time.
type Bridge struct {
	eng *engine.Engine
	bus *eventbus.Bus

	listener net.Listener

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// New creates a Bridge that will stream bus's events once Start is
// called. eng is used only to relay inbound send_alert commands.
func New(eng *engine.Engine, bus *eventbus.Bus) *Bridge {
	return &Bridge{
		eng:     eng,
		bus:     bus,
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// Start listens on addr (":0" for an ephemeral port), begins the
// bus-draining pump, and returns the port actually bound.
func (b *Bridge) Start(ctx context.Context, addr string) (int, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("hostapi: listen: %w", err)
	}
	b.listener = listener
	port := listener.Addr().(*net.TCPAddr).Port

	mux := http.NewServeMux()
	mux.HandleFunc("/events", b.handleWS)
	server := &http.Server{Handler: mux}

	go func() {
		_ = server.Serve(listener)
	}()
	go func() {
		<-ctx.Done()
		server.Close()
	}()
	go b.pump(ctx)

	return port, nil
}

// pump drains the bus and fans every event out to all connected
// clients, until the bus is closed or ctx is cancelled.
func (b *Bridge) pump(ctx context.Context) {
	for {
		select {
		case ev, ok := <-b.bus.Events():
			if !ok {
				return
			}
			b.broadcast(toWireEvent(ev))
		case <-ctx.Done():
			return
		}
	}
}

func toWireEvent(ev eventbus.Event) wireEvent {
	switch e := ev.(type) {
	case eventbus.AlertReceived:
		return wireEvent{Kind: "alert", ID: e.ID, Text: e.Text, Timestamp: e.Timestamp, TTL: e.TTL}
	case eventbus.Status:
		return wireEvent{Kind: "status", Message: e.Message}
	default:
		return wireEvent{Kind: "unknown"}
	}
}

func (b *Bridge) broadcast(we wireEvent) {
	data, err := json.Marshal(we)
	if err != nil {
		util.LogWarning("hostapi: marshal event failed: %v", err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		c.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
			util.LogDebug("hostapi: write to client failed: %v", err)
			c.Close()
			delete(b.clients, c)
		}
	}
}

func (b *Bridge) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	b.mu.Lock()
	b.clients[conn] = struct{}{}
	b.mu.Unlock()

	util.LogInfo("hostapi: client connected")
	b.readCommands(conn)
}

// readCommands blocks reading commands from conn until it errors or
// closes, then removes conn from the broadcast set.
func (b *Bridge) readCommands(conn *websocket.Conn) {
	defer func() {
		b.mu.Lock()
		delete(b.clients, conn)
		b.mu.Unlock()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var cmd inboundCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			util.LogDebug("hostapi: malformed command: %v", err)
			continue
		}
		if cmd.Cmd != "send_alert" {
			continue
		}
		if err := b.eng.SendAlert(cmd.Text); err != nil {
			util.LogWarning("hostapi: send_alert rejected: %v", err)
		}
	}
}

// Close stops accepting new clients and closes every connected one.
func (b *Bridge) Close() {
	if b.listener != nil {
		b.listener.Close()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		c.Close()
	}
	b.clients = make(map[*websocket.Conn]struct{})
}
