// Package engine implements the relay engine: the single-goroutine
// coordinator that owns PeerTable, SeenSet, and the advertising/
// discovery flags, reacting to transport callbacks and timer ticks to
// keep the mesh connected and alerts flooded exactly once per node.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/1ureka/meshrelay/internal/config"
	"github.com/1ureka/meshrelay/internal/eventbus"
	"github.com/1ureka/meshrelay/internal/peertable"
	"github.com/1ureka/meshrelay/internal/seenset"
	"github.com/1ureka/meshrelay/internal/transport"
	"github.com/1ureka/meshrelay/internal/util"
)

// ErrEmptyText is returned synchronously by SendAlert when text is
// empty.
var ErrEmptyText = errors.New("engine: alert text is empty")

// ErrTerminal is returned by SendAlert once a TransportFatal error has
// been observed: the transport feature the engine needs is permanently
// unavailable, so origination is rejected rather than silently queued
// for a dispatch loop that has stopped driving its timers.
var ErrTerminal = errors.New("engine: transport is in a terminal failure state")

// dispatchBufferSize bounds the message channel; transport callbacks
// and timer fires that arrive faster than the dispatch loop drains
// them queue here rather than blocking their caller indefinitely.
const dispatchBufferSize = 256

// EngineStats is a point-in-time snapshot of engine-owned counters,
// purely observational — it adds no behavior beyond what SendAlert and
// inbound payload handling already do.
type EngineStats struct {
	PeersConnected         int
	PeersLost              int
	AlertsSeen             int
	AlertsForwarded        int
	AlertsDroppedDuplicate int
}

// Engine is the relay engine. The zero value is not usable; construct
// with New, wire an Adapter with SetAdapter, then call Start.
type Engine struct {
	cfg config.Config
	bus *eventbus.Bus

	adapter transport.Adapter

	table    *peertable.Table
	seen     *seenset.Set
	flags    Flags
	terminal terminalFlag

	seenCount, forwardedCount, droppedDuplicateCount int

	msgs       chan message
	ctx        context.Context
	cancel     context.CancelFunc
	stopTimers func() // set by run() once startTimers has been called

	startOnce    sync.Once
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// New creates an Engine bound to cfg and bus. The engine does nothing
// until SetAdapter and Start are both called.
func New(cfg config.Config, bus *eventbus.Bus) *Engine {
	return &Engine{
		cfg:   cfg,
		bus:   bus,
		table: peertable.New(),
		seen:  seenset.New(cfg.SeenCapacity),
		msgs:  make(chan message, dispatchBufferSize),
	}
}

// SetAdapter wires the transport the engine will drive. Must be
// called before Start; the caller is expected to have constructed the
// adapter with this Engine as its Callbacks, which is why the two
// cannot be built in a single call.
func (e *Engine) SetAdapter(a transport.Adapter) {
	e.adapter = a
}

// Start begins advertising, schedules discovery to start ~2s later,
// and starts the periodic timers. Idempotent: a second call is a
// no-op. It returns once the dispatch loop has been launched, not
// once any peer is connected.
func (e *Engine) Start(ctx context.Context) error {
	e.startOnce.Do(func() {
		e.ctx, e.cancel = context.WithCancel(ctx)
		e.wg.Add(1)
		go e.run()
	})
	return nil
}

// SendAlert originates a new alert and broadcasts it to every
// currently connected peer. It rejects an empty text (ErrEmptyText)
// and, once a TransportFatal error has been observed, every send
// (ErrTerminal); everything else about origination happens
// asynchronously on the dispatch loop.
func (e *Engine) SendAlert(text string) error {
	if text == "" {
		return ErrEmptyText
	}
	if e.terminal.isSet() {
		return ErrTerminal
	}
	e.post(sendAlertMsg{text: text})
	return nil
}

// Shutdown cancels the dispatch loop, tears down the transport, and
// clears all engine-owned state. It blocks until the dispatch
// goroutine has finished draining. Safe to call more than once.
func (e *Engine) Shutdown() {
	if e.ctx == nil {
		return
	}
	e.shutdownOnce.Do(func() {
		done := make(chan struct{})
		e.msgs <- shutdownMsg{done: done}
		<-done
	})
	e.wg.Wait()
}

// Stats returns a snapshot of engine counters, safe to call
// concurrently with Start/SendAlert/Shutdown from the host.
func (e *Engine) Stats() EngineStats {
	if e.ctx == nil {
		return EngineStats{}
	}
	result := make(chan EngineStats, 1)
	select {
	case e.msgs <- statsRequestMsg{result: result}:
	case <-e.ctx.Done():
		return EngineStats{}
	}
	select {
	case s := <-result:
		return s
	case <-e.ctx.Done():
		return EngineStats{}
	}
}

// post enqueues msg for the dispatch loop, dropping it silently once
// the engine has begun shutting down instead of blocking or panicking
// on a closed channel.
func (e *Engine) post(msg message) {
	if e.ctx == nil {
		return
	}
	select {
	case e.msgs <- msg:
	case <-e.ctx.Done():
	}
}

// scheduleAfter posts msg to the dispatch loop after d elapses. The
// underlying timer is not tracked for early cancellation — a message
// arriving after shutdown is simply dropped by post via ctx.Done().
func (e *Engine) scheduleAfter(d time.Duration, msg message) {
	time.AfterFunc(d, func() { e.post(msg) })
}

func (e *Engine) emitStatus() {
	e.bus.Publish(eventbus.Status{
		Message: fmt.Sprintf("Status: %d peers connected", e.table.ConnectedCount()),
	})
}

// broadcast fans a payload out to every connected peer except
// exclude, then always emits a peer-count status, matching the
// "regardless of recipients being empty" rule.
func (e *Engine) broadcast(data []byte, exclude transport.Endpoint) {
	for _, r := range e.table.Connected() {
		if r == exclude {
			continue
		}
		if err := e.adapter.SendPayload(r, data); err != nil {
			util.LogWarning("engine: send to %s failed: %v", r, err)
			e.bus.Publish(eventbus.Status{Message: fmt.Sprintf("send to %s failed", r)})
		}
	}
	e.emitStatus()
}

func (e *Engine) requestConnection(ep transport.Endpoint) {
	localName := e.cfg.LocalName
	adapter := e.adapter
	go func() {
		err := adapter.RequestConnection(localName, ep)
		e.post(requestConnectionResultMsg{endpoint: ep, err: err})
	}()
}

// ---------------------------------------------------------------------------
// transport.Callbacks — invoked from transport goroutines, never the
// dispatch loop; each wraps its arguments in a message and posts.
// ---------------------------------------------------------------------------

func (e *Engine) EndpointFound(endpoint transport.Endpoint, name, serviceID string) {
	e.post(endpointFoundMsg{endpoint: endpoint, name: name, serviceID: serviceID})
}

func (e *Engine) EndpointLost(endpoint transport.Endpoint) {
	e.post(endpointLostMsg{endpoint: endpoint})
}

func (e *Engine) ConnectionInitiated(endpoint transport.Endpoint, info string) {
	e.post(connectionInitiatedMsg{endpoint: endpoint, info: info})
}

func (e *Engine) ConnectionResult(endpoint transport.Endpoint, err error) {
	e.post(connectionResultMsg{endpoint: endpoint, err: err})
}

func (e *Engine) Disconnected(endpoint transport.Endpoint) {
	e.post(disconnectedMsg{endpoint: endpoint})
}

func (e *Engine) PayloadReceived(endpoint transport.Endpoint, data []byte) {
	e.post(payloadReceivedMsg{endpoint: endpoint, data: data})
}

var _ transport.Callbacks = (*Engine)(nil)
