package engine

import (
	"time"

	"github.com/1ureka/meshrelay/internal/alert"
	"github.com/1ureka/meshrelay/internal/config"
	"github.com/1ureka/meshrelay/internal/eventbus"
	"github.com/1ureka/meshrelay/internal/peertable"
	"github.com/1ureka/meshrelay/internal/transport"
	"github.com/1ureka/meshrelay/internal/util"
)

// onEndpointFound implements the (none)|Lost --EndpointFound--> Discovered
// row of the transition table, including the tie-break that ignores a
// rediscovery of an already-Connected endpoint.
func (e *Engine) onEndpointFound(ep transport.Endpoint, name, serviceID string) {
	if e.table.IsConnected(ep) {
		return
	}

	_, wasLost := e.table.LostSince(ep)
	e.table.MarkPending(ep, peertable.Discovered)

	if wasLost {
		e.bus.Publish(eventbus.Status{Message: "reconnecting to " + name})
	}

	e.requestConnection(ep)
}

func (e *Engine) onEndpointLost(ep transport.Endpoint) {
	e.markLostAndProbe(ep)
}

// onRequestConnectionResult implements the Discovered --request_connection--> row.
func (e *Engine) onRequestConnectionResult(ep transport.Endpoint, err error) {
	if err != nil {
		util.LogWarning("engine: request_connection to %s failed: %v", ep, err)
		e.table.MarkLost(ep, time.Now())
		e.scheduleAfter(config.ConnectRequestRetry, retryRequestConnectionMsg{endpoint: ep})
		return
	}
	e.table.MarkPending(ep, peertable.Connecting)
}

func (e *Engine) onRetryRequestConnection(ep transport.Endpoint) {
	if e.table.IsConnected(ep) {
		return
	}
	e.requestConnection(ep)
}

// onConnectionInitiated implements the Connecting --ConnectionInitiated--> row.
// It fires for both the requester's own connection and, on the
// acceptor side, an inbound one the peer table may not yet know about
// (nothing marked it Discovered locally), so it unconditionally moves
// the endpoint into Connecting rather than requiring a prior state.
func (e *Engine) onConnectionInitiated(ep transport.Endpoint, info string) {
	e.table.MarkPending(ep, peertable.Connecting)
	if err := e.adapter.AcceptConnection(ep); err != nil {
		util.LogWarning("engine: accept_connection for %s failed: %v", ep, err)
	}
}

// onConnectionResult implements the Connecting --ConnectionResult--> rows.
func (e *Engine) onConnectionResult(ep transport.Endpoint, err error) {
	if err == nil {
		e.table.MarkConnected(ep)
		e.emitStatus()
		return
	}
	util.LogWarning("engine: connection to %s failed: %v", ep, err)
	if !e.table.IsConnected(ep) {
		e.table.MarkLost(ep, time.Now())
	}
}

// onDisconnected implements the Connected --Disconnected--> Lost row.
func (e *Engine) onDisconnected(ep transport.Endpoint) {
	e.markLostAndProbe(ep)
	e.emitStatus()
}

func (e *Engine) markLostAndProbe(ep transport.Endpoint) {
	e.table.MarkLost(ep, time.Now())
	e.startDiscovery()
	e.scheduleAfter(config.ReconnectProbeDelay, reconnectProbeMsg{endpoint: ep})
}

// onReconnectProbe implements the post-disconnect reconnect probe: 5s
// after a peer is lost, nudge discovery again if it is still absent.
func (e *Engine) onReconnectProbe(ep transport.Endpoint) {
	if _, stillLost := e.table.LostSince(ep); stillLost {
		e.startDiscovery()
	}
}

// onPayloadReceived implements the inbound payload handling operation.
func (e *Engine) onPayloadReceived(sender transport.Endpoint, data []byte) {
	a, err := alert.Decode(data)
	if err != nil {
		util.LogDebug("engine: decode from %s failed: %v", sender, err)
		return
	}

	if !e.seen.Insert(a.ID) {
		e.droppedDuplicateCount++
		return
	}

	e.seenCount++
	e.bus.Publish(eventbus.AlertReceived{
		ID:        a.ID,
		Text:      a.Text,
		Timestamp: a.Timestamp,
		TTL:       a.TTL,
	})

	if a.CanForward() {
		e.forwardedCount++
		e.broadcast(alert.Encode(a.Forward()), sender)
	}
}

// onSendAlert implements the send_alert operation. The originating
// node never sees its own alert as an AlertReceived event; that is a
// UI concern outside this package.
func (e *Engine) onSendAlert(text string) {
	a := alert.New(text)
	e.broadcast(alert.Encode(a), "")
}

// ---------------------------------------------------------------------------
// Advertising and discovery start/stop protocols.
// ---------------------------------------------------------------------------

func (e *Engine) startAdvertising() {
	if e.terminal.isSet() || e.flags.IsAdvertising() {
		return
	}
	err := e.adapter.StartAdvertising(e.cfg.ServiceID, e.cfg.LocalName)
	switch {
	case err == nil, transport.IsStateConflict(err):
		e.flags.advertising = AdvertisingOn
	case transport.IsFatal(err):
		util.LogError("engine: advertising unsupported: %v", err)
		e.bus.Publish(eventbus.Status{Message: "advertising unavailable: " + err.Error()})
		e.goTerminal()
	default:
		util.LogWarning("engine: start_advertising failed: %v", err)
		e.scheduleAfter(config.AdvertisingRetry, advertisingRetryMsg{})
	}
}

func (e *Engine) startDiscovery() {
	if e.terminal.isSet() {
		return
	}
	switch e.flags.discovery {
	case DiscoveryOn:
		return
	case DiscoveryStopping:
		e.flags.pendingDiscoveryStart = true
		return
	}

	err := e.adapter.StartDiscovery(e.cfg.ServiceID)
	switch {
	case err == nil, transport.IsStateConflict(err):
		e.flags.discovery = DiscoveryOn
		e.flags.pendingDiscoveryStart = false
	case transport.IsFatal(err):
		util.LogError("engine: discovery unsupported: %v", err)
		e.bus.Publish(eventbus.Status{Message: "discovery unavailable: " + err.Error()})
		e.goTerminal()
	default:
		util.LogWarning("engine: start_discovery failed: %v", err)
		e.scheduleAfter(config.DiscoveryStartRetry, discoveryStartAttemptMsg{})
	}
}

// stopDiscovery implements the discovery stop protocol. Only Shutdown
// calls this; ordinary operation never stops discovery once started.
func (e *Engine) stopDiscovery() {
	if e.flags.discovery != DiscoveryOn {
		return
	}
	e.flags.discovery = DiscoveryStopping
	if err := e.adapter.StopDiscovery(); err != nil {
		util.LogWarning("engine: stop_discovery failed: %v", err)
	}
	e.flags.discovery = DiscoveryOff

	if e.flags.pendingDiscoveryStart {
		e.flags.pendingDiscoveryStart = false
		e.scheduleAfter(config.DiscoveryStopSettle, discoveryStartAttemptMsg{})
	}
}

// ---------------------------------------------------------------------------
// Periodic timers.
// ---------------------------------------------------------------------------

func (e *Engine) onDiscoveryMaintenanceTick() {
	e.table.EvictExpired(time.Now(), config.LostWindow)
	if !e.flags.IsDiscovering() && !e.flags.IsStoppingDiscovery() &&
		(e.table.LostCount() > 0 || e.table.ConnectedCount() == 0) {
		e.startDiscovery()
	}
}

func (e *Engine) onStatusCheckTick() {
	if !e.flags.IsAdvertising() {
		e.startAdvertising()
	}
	if !e.flags.IsDiscovering() && !e.flags.IsStoppingDiscovery() &&
		(e.table.LostCount() > 0 || e.table.ConnectedCount() == 0) {
		e.startDiscovery()
	}
	e.emitStatus()
}
