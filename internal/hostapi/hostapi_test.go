package hostapi

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/meshrelay/internal/config"
	"github.com/1ureka/meshrelay/internal/engine"
	"github.com/1ureka/meshrelay/internal/eventbus"
)

func dial(t *testing.T, port int) *websocket.Conn {
	t.Helper()
	url := fmt.Sprintf("ws://127.0.0.1:%d/events", port)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readWireEvent(t *testing.T, conn *websocket.Conn, timeout time.Duration) wireEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var we wireEvent
	if err := json.Unmarshal(data, &we); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return we
}

func TestBridgeStreamsStatusAndAlerts(t *testing.T) {
	bus := eventbus.New()
	eng := engine.New(config.Config{ServiceID: "test", LocalName: "node", SeenCapacity: 16}, bus)
	b := New(eng, bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	port, err := b.Start(ctx, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer b.Close()

	conn := dial(t, port)
	defer conn.Close()

	time.Sleep(20 * time.Millisecond) // let handleWS register the client

	bus.Publish(eventbus.Status{Message: "Status: 0 peers connected"})
	we := readWireEvent(t, conn, time.Second)
	if we.Kind != "status" || we.Message != "Status: 0 peers connected" {
		t.Errorf("got %+v, want status event", we)
	}

	bus.Publish(eventbus.AlertReceived{Text: "evacuate now", TTL: 5, Timestamp: 42})
	we = readWireEvent(t, conn, time.Second)
	if we.Kind != "alert" || we.Text != "evacuate now" || we.TTL != 5 {
		t.Errorf("got %+v, want alert event", we)
	}
}

func TestBridgeRelaysSendAlertCommand(t *testing.T) {
	bus := eventbus.New()
	eng := engine.New(config.Config{ServiceID: "test", LocalName: "node", SeenCapacity: 16}, bus)
	b := New(eng, bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	port, err := b.Start(ctx, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer b.Close()

	conn := dial(t, port)
	defer conn.Close()
	time.Sleep(20 * time.Millisecond)

	cmd, _ := json.Marshal(inboundCommand{Cmd: "send_alert", Text: "help"})
	if err := conn.WriteMessage(websocket.TextMessage, cmd); err != nil {
		t.Fatalf("write: %v", err)
	}

	// The engine is never Start()ed here, so SendAlert only needs to
	// accept the command without panicking; onSendAlert never runs.
	time.Sleep(20 * time.Millisecond)
}

func TestBridgeMultipleClients(t *testing.T) {
	bus := eventbus.New()
	eng := engine.New(config.Config{ServiceID: "test", LocalName: "node", SeenCapacity: 16}, bus)
	b := New(eng, bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	port, err := b.Start(ctx, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer b.Close()

	c1 := dial(t, port)
	defer c1.Close()
	c2 := dial(t, port)
	defer c2.Close()
	time.Sleep(20 * time.Millisecond)

	bus.Publish(eventbus.Status{Message: "Status: 1 peers connected"})

	we1 := readWireEvent(t, c1, time.Second)
	we2 := readWireEvent(t, c2, time.Second)
	if we1.Message != we2.Message {
		t.Errorf("clients received different messages: %q vs %q", we1.Message, we2.Message)
	}
}
