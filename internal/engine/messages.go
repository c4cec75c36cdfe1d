package engine

import "github.com/1ureka/meshrelay/internal/transport"

// message is the tagged union pushed onto the dispatch channel: every
// transport callback, timer fire, and host API call becomes one of
// these before it can touch engine state, so that run() is the only
// goroutine that ever does.
type message interface {
	isMessage()
}

type sendAlertMsg struct {
	text string
}

type shutdownMsg struct {
	done chan struct{}
}

type statsRequestMsg struct {
	result chan EngineStats
}

type endpointFoundMsg struct {
	endpoint  transport.Endpoint
	name      string
	serviceID string
}

type endpointLostMsg struct {
	endpoint transport.Endpoint
}

type connectionInitiatedMsg struct {
	endpoint transport.Endpoint
	info     string
}

type connectionResultMsg struct {
	endpoint transport.Endpoint
	err      error
}

type disconnectedMsg struct {
	endpoint transport.Endpoint
}

type payloadReceivedMsg struct {
	endpoint transport.Endpoint
	data     []byte
}

// requestConnectionResultMsg carries the synchronous ok/fail outcome
// of an adapter.RequestConnection call, run off the dispatch loop
// since it may block on a network dial.
type requestConnectionResultMsg struct {
	endpoint transport.Endpoint
	err      error
}

type retryRequestConnectionMsg struct {
	endpoint transport.Endpoint
}

type reconnectProbeMsg struct {
	endpoint transport.Endpoint
}

type advertisingRetryMsg struct{}

type discoveryStartAttemptMsg struct{}

type discoveryMaintenanceTickMsg struct{}

type statusCheckTickMsg struct{}

func (sendAlertMsg) isMessage()               {}
func (shutdownMsg) isMessage()                {}
func (statsRequestMsg) isMessage()            {}
func (endpointFoundMsg) isMessage()           {}
func (endpointLostMsg) isMessage()            {}
func (connectionInitiatedMsg) isMessage()     {}
func (connectionResultMsg) isMessage()        {}
func (disconnectedMsg) isMessage()            {}
func (payloadReceivedMsg) isMessage()         {}
func (requestConnectionResultMsg) isMessage() {}
func (retryRequestConnectionMsg) isMessage()  {}
func (reconnectProbeMsg) isMessage()          {}
func (advertisingRetryMsg) isMessage()        {}
func (discoveryStartAttemptMsg) isMessage()   {}
func (discoveryMaintenanceTickMsg) isMessage() {}
func (statusCheckTickMsg) isMessage()         {}
