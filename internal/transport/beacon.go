package transport

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/1ureka/meshrelay/internal/util"
)

// beaconGroup and beaconPort define a private, admin-scoped multicast
// channel used purely for peer announcement — distinct from the
// well-known mDNS group (224.0.0.251:5353) so a meshrelay node never
// answers or interferes with unrelated mDNS traffic on the same LAN.
const (
	beaconGroup    = "239.255.42.99"
	beaconPort     = 42424
	beaconInterval = 3 * time.Second
	beaconMaxSize  = 1024
)

// announcement is the small JSON envelope broadcast on the beacon
// channel. It carries just enough for a listening peer to raise
// EndpointFound and know where to dial for the SDP/ICE rendezvous.
type announcement struct {
	ServiceID  string `json:"service_id"`
	Name       string `json:"name"`
	Endpoint   string `json:"endpoint"`
	Rendezvous string `json:"rendezvous"` // host:port of this node's WS signaling listener
}

// beacon owns the multicast socket pair: one for sending our own
// announcement on a ticker, one for receiving everyone else's.
type beacon struct {
	self announcement

	sendConn *net.UDPConn
	recvConn *net.UDPConn

	stopSend chan struct{}
	stopRecv chan struct{}
}

func newBeacon(self announcement) (*beacon, error) {
	groupAddr := &net.UDPAddr{IP: net.ParseIP(beaconGroup), Port: beaconPort}

	sendConn, err := net.DialUDP("udp4", nil, groupAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: beacon dial: %w", err)
	}

	recvConn, err := net.ListenMulticastUDP("udp4", nil, groupAddr)
	if err != nil {
		sendConn.Close()
		return nil, fmt.Errorf("transport: beacon listen: %w", err)
	}
	recvConn.SetReadBuffer(beaconMaxSize * 8)

	return &beacon{
		self:     self,
		sendConn: sendConn,
		recvConn: recvConn,
		stopSend: make(chan struct{}),
		stopRecv: make(chan struct{}),
	}, nil
}

// startAdvertising begins periodically broadcasting self on the beacon
// channel until stopAdvertising is called.
func (b *beacon) startAdvertising() {
	go func() {
		ticker := time.NewTicker(beaconInterval)
		defer ticker.Stop()

		b.announce()
		for {
			select {
			case <-ticker.C:
				b.announce()
			case <-b.stopSend:
				return
			}
		}
	}()
}

func (b *beacon) announce() {
	data, err := json.Marshal(b.self)
	if err != nil {
		util.LogError("transport: marshal announcement: %v", err)
		return
	}
	if _, err := b.sendConn.Write(data); err != nil {
		util.LogWarning("transport: beacon send failed: %v", err)
	}
}

func (b *beacon) stopAdvertising() {
	select {
	case <-b.stopSend:
	default:
		close(b.stopSend)
	}
}

// startDiscovery reads announcements off the multicast socket and
// invokes fn for every one that does not originate from this node.
// Runs until stopDiscovery is called or the socket is closed.
func (b *beacon) startDiscovery(fn func(announcement)) {
	go func() {
		buf := make([]byte, beaconMaxSize)
		for {
			select {
			case <-b.stopRecv:
				return
			default:
			}

			b.recvConn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
			n, _, err := b.recvConn.ReadFromUDP(buf)
			if err != nil {
				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					continue
				}
				select {
				case <-b.stopRecv:
					return
				default:
					util.LogDebug("transport: beacon read: %v", err)
					continue
				}
			}

			var a announcement
			if err := json.Unmarshal(buf[:n], &a); err != nil {
				continue // not one of ours; ignore silently
			}
			if a.Endpoint == b.self.Endpoint {
				continue // our own announcement, looped back
			}
			fn(a)
		}
	}()
}

func (b *beacon) stopDiscovery() {
	select {
	case <-b.stopRecv:
	default:
		close(b.stopRecv)
	}
}

func (b *beacon) close() {
	b.stopAdvertising()
	b.stopDiscovery()
	b.sendConn.Close()
	b.recvConn.Close()
}
