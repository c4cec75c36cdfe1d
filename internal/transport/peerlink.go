package transport

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/meshrelay/internal/util"
)

// STUN servers for ICE candidate gathering. No TURN — meshrelay is
// designed for direct same-LAN connectivity; STUN merely helps ICE
// pick the right local candidate when peers sit behind distinct
// interfaces (Wi-Fi Direct/hotspot topologies).
var stunServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

const (
	highWaterMark  = 256 * 1024 // pause sending when bufferedAmount exceeds this
	lowWaterMark   = 64 * 1024  // resume sending when bufferedAmount drops below this
	sendBufferSize = 32         // outgoing payload channel capacity
)

// peerLink wraps a single PeerConnection + DataChannel pair for one
// endpoint. Its lifecycle is governed by the DataChannel state and the
// context passed at construction — mirroring the shape of a
// point-to-point transport wrapper, generalized here to carry whole
// alert payloads instead of framed tunnel packets.
type peerLink struct {
	endpoint Endpoint

	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel

	inbox chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	openOnce   sync.Once
	openSignal chan struct{}

	drainSignal chan struct{}
}

// newPeerLink creates a PeerConnection and its DataChannel up front,
// pre-negotiated with a fixed channel ID shared by both sides — this
// way each side can build its half of the link independently instead
// of the answering side waiting on OnDataChannel.
func newPeerLink(ctx context.Context, endpoint Endpoint, dcID uint16) (*peerLink, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: stunServers}},
	})
	if err != nil {
		return nil, err
	}

	ordered := false
	negotiated := true
	dc, err := pc.CreateDataChannel("meshrelay", &webrtc.DataChannelInit{
		Ordered:    &ordered,
		Negotiated: &negotiated,
		ID:         &dcID,
	})
	if err != nil {
		pc.Close()
		return nil, err
	}

	lCtx, lCancel := context.WithCancel(ctx)

	l := &peerLink{
		endpoint:    endpoint,
		pc:          pc,
		dc:          dc,
		inbox:       make(chan []byte, sendBufferSize),
		ctx:         lCtx,
		cancel:      lCancel,
		openSignal:  make(chan struct{}),
		drainSignal: make(chan struct{}, 1),
	}

	dc.OnOpen(func() { l.openOnce.Do(func() { close(l.openSignal) }) })
	dc.SetBufferedAmountLowThreshold(uint64(lowWaterMark))
	dc.OnBufferedAmountLow(func() {
		select {
		case l.drainSignal <- struct{}{}:
		default:
		}
	})

	return l, nil
}

// run starts the single-writer send loop: it waits for the DataChannel
// to open, then drains inbox with backpressure awareness, exactly the
// way a single serialized writer per DataChannel avoids interleaving
// partial frames.
func (l *peerLink) run(onDisconnect func()) {
	dcCtx, dcCancel := context.WithCancel(l.ctx)

	l.dc.OnClose(func() {
		dcCancel()
	})

	go func() {
		select {
		case <-l.openSignal:
		case <-dcCtx.Done():
			onDisconnect()
			return
		}

		for {
			select {
			case data := <-l.inbox:
				if l.dc.BufferedAmount() > uint64(highWaterMark) {
					select {
					case <-l.drainSignal:
					case <-dcCtx.Done():
						onDisconnect()
						return
					}
				}
				if err := l.dc.Send(data); err != nil {
					util.LogWarning("transport[%s]: send failed: %v", l.endpoint, err)
					onDisconnect()
					return
				}
			case <-dcCtx.Done():
				onDisconnect()
				return
			}
		}
	}()
}

// enqueue schedules data for transmission. It never blocks the caller
// for long: if the buffer is full the payload is dropped and reported,
// consistent with per-recipient send failures being tolerated during
// broadcast fan-out.
func (l *peerLink) enqueue(data []byte) error {
	select {
	case l.inbox <- data:
		return nil
	case <-l.ctx.Done():
		return ErrNotConnected
	default:
		return errors.New("transport: send buffer full")
	}
}

func (l *peerLink) ready() <-chan struct{} { return l.openSignal }
func (l *peerLink) done() <-chan struct{}  { return l.ctx.Done() }

func (l *peerLink) close() error {
	l.cancel()
	var dcErr error
	if l.dc != nil {
		dcErr = l.dc.Close()
	}
	return errors.Join(dcErr, l.pc.Close())
}
