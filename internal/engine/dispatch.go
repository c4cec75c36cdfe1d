package engine

import (
	"sync"
	"time"

	"github.com/1ureka/meshrelay/internal/config"
	"github.com/1ureka/meshrelay/internal/eventbus"
	"github.com/1ureka/meshrelay/internal/util"
)

// run is the engine's single dispatch goroutine: the only place that
// ever touches PeerTable, SeenSet, or Flags. Everything else — timers,
// transport callbacks, host API calls — communicates with it purely by
// pushing a message onto e.msgs.
func (e *Engine) run() {
	defer e.wg.Done()

	e.startAdvertising()
	if !e.terminal.isSet() {
		e.scheduleAfter(config.AdvertiseDelay, discoveryStartAttemptMsg{})
	}

	if !e.terminal.isSet() {
		e.stopTimers = e.startTimers()
	}
	defer e.stopTimersIfStarted()

	for {
		select {
		case msg := <-e.msgs:
			if e.dispatch(msg) {
				return
			}
		case <-e.ctx.Done():
			return
		}
	}
}

// dispatch handles one message and reports whether the dispatch loop
// should terminate (true only for a shutdown message).
func (e *Engine) dispatch(msg message) bool {
	switch m := msg.(type) {
	case sendAlertMsg:
		e.onSendAlert(m.text)
	case endpointFoundMsg:
		e.onEndpointFound(m.endpoint, m.name, m.serviceID)
	case endpointLostMsg:
		e.onEndpointLost(m.endpoint)
	case connectionInitiatedMsg:
		e.onConnectionInitiated(m.endpoint, m.info)
	case connectionResultMsg:
		e.onConnectionResult(m.endpoint, m.err)
	case disconnectedMsg:
		e.onDisconnected(m.endpoint)
	case payloadReceivedMsg:
		e.onPayloadReceived(m.endpoint, m.data)
	case requestConnectionResultMsg:
		e.onRequestConnectionResult(m.endpoint, m.err)
	case retryRequestConnectionMsg:
		e.onRetryRequestConnection(m.endpoint)
	case reconnectProbeMsg:
		e.onReconnectProbe(m.endpoint)
	case advertisingRetryMsg:
		e.startAdvertising()
	case discoveryStartAttemptMsg:
		e.startDiscovery()
	case discoveryMaintenanceTickMsg:
		e.onDiscoveryMaintenanceTick()
	case statusCheckTickMsg:
		e.onStatusCheckTick()
	case statsRequestMsg:
		m.result <- e.snapshotStats()
	case shutdownMsg:
		e.doShutdown()
		close(m.done)
		return true
	}
	return false
}

// startTimers launches the two periodic tickers and returns a function
// that stops them; called once from run(). The returned function is
// idempotent (guarded by sync.Once) since a TransportFatal error can
// stop the timers immediately from within peerstate.go, and run()'s
// own deferred cleanup must still be safe to call afterward.
func (e *Engine) startTimers() func() {
	discoveryTicker := time.NewTicker(config.DiscoveryMaintenance)
	statusTicker := time.NewTicker(config.StatusCheckInterval)

	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-discoveryTicker.C:
				e.post(discoveryMaintenanceTickMsg{})
			case <-statusTicker.C:
				e.post(statusCheckTickMsg{})
			case <-stop:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			discoveryTicker.Stop()
			statusTicker.Stop()
			close(stop)
		})
	}
}

// stopTimersIfStarted stops the periodic timers if they were ever
// started. run() defers this unconditionally since a terminal
// TransportFatal error observed before startTimers was even reached
// (e.g. on the very first startAdvertising call) leaves e.stopTimers
// nil.
func (e *Engine) stopTimersIfStarted() {
	if e.stopTimers != nil {
		e.stopTimers()
	}
}

// goTerminal marks the engine terminal and stops its periodic timers,
// implementing the TransportFatal contract: a terminal status is
// already published by the caller, this half ensures no further timer
// tick drives advertising/discovery retries and SendAlert starts
// rejecting immediately.
func (e *Engine) goTerminal() {
	e.terminal.mark()
	e.stopTimersIfStarted()
}

func (e *Engine) snapshotStats() EngineStats {
	return EngineStats{
		PeersConnected:         e.table.ConnectedCount(),
		PeersLost:              e.table.LostCount(),
		AlertsSeen:             e.seenCount,
		AlertsForwarded:        e.forwardedCount,
		AlertsDroppedDuplicate: e.droppedDuplicateCount,
	}
}

// doShutdown implements §5's cancellation sequence: stop discovery and
// advertising, close all endpoints, then clear every piece of state
// the engine owns.
func (e *Engine) doShutdown() {
	e.stopDiscovery()
	if err := e.adapter.StopAdvertising(); err != nil {
		util.LogWarning("engine: stop_advertising failed: %v", err)
	}
	if err := e.adapter.StopAllEndpoints(); err != nil {
		util.LogWarning("engine: stop_all_endpoints failed: %v", err)
	}

	e.table.Clear()
	e.seen.Clear()
	e.flags = Flags{}

	e.bus.Publish(eventbus.Status{Message: "Status: 0 peers connected"})
	e.cancel()
}
