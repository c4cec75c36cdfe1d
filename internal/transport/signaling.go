package transport

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/meshrelay/internal/util"
)

// negotiatedDataChannelID is fixed and shared by both sides of every
// link: with Negotiated=true neither side waits on the other's
// OnDataChannel callback, so the SDP/ICE exchange below is the only
// round trip needed before the channel opens.
const negotiatedDataChannelID uint16 = 0

const signalingTimeout = 15 * time.Second

// sigMessage is the wire format for the WebSocket rendezvous. Only the
// fields relevant to Type are populated; the rest are left zero.
type sigMessage struct {
	Type      string `json:"type"` // hello, hello_ack, offer, answer, candidate, reject
	LocalName string `json:"local_name,omitempty"`
	Endpoint  string `json:"endpoint,omitempty"`
	SDP       string `json:"sdp,omitempty"`
	Candidate string `json:"candidate,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// runRequesterHandshake drives the offering side of a link: it already
// holds an open WebSocket (dialed in RequestConnection) and now
// negotiates the DataChannel over it. The engine is told about the
// outcome purely through cb.ConnectionInitiated/ConnectionResult; the
// WebSocket itself is discarded once the DataChannel opens or the
// attempt fails.
func (t *LANTransport) runRequesterHandshake(endpoint Endpoint, localName string, conn *websocket.Conn) {
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(signalingTimeout))

	if err := writeJSON(conn, sigMessage{
		Type:      "hello",
		LocalName: localName,
		Endpoint:  string(t.selfEndpoint),
	}); err != nil {
		util.LogWarning("transport[%s]: hello failed: %v", endpoint, err)
		t.cb.ConnectionResult(endpoint, err)
		return
	}

	ack, err := readMessage(conn)
	if err != nil || ack.Type != "hello_ack" {
		if err == nil {
			err = errRejected(ack.Reason)
		}
		util.LogWarning("transport[%s]: hello_ack failed: %v", endpoint, err)
		t.cb.ConnectionResult(endpoint, err)
		return
	}

	t.cb.ConnectionInitiated(endpoint, "outgoing")

	link, err := newPeerLink(t.ctx, endpoint, negotiatedDataChannelID)
	if err != nil {
		t.cb.ConnectionResult(endpoint, err)
		return
	}
	t.registerLink(endpoint, link)

	link.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		writeJSON(conn, sigMessage{Type: "candidate", Candidate: c.ToJSON().Candidate})
	})

	offer, err := link.pc.CreateOffer(nil)
	if err != nil {
		t.failLink(endpoint, link, err)
		return
	}
	if err := link.pc.SetLocalDescription(offer); err != nil {
		t.failLink(endpoint, link, err)
		return
	}
	if err := writeJSON(conn, sigMessage{Type: "offer", SDP: offer.SDP}); err != nil {
		t.failLink(endpoint, link, err)
		return
	}

	if !t.pumpRemoteDescriptionAndCandidates(conn, link, "answer") {
		return
	}

	t.awaitLinkOpen(endpoint, link, conn)
}

// handleIncomingLink is the WebSocket handler for inbound rendezvous
// connections: every dial from a requester lands here first.
func (t *LANTransport) handleIncomingLink(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		util.LogWarning("transport: upgrade failed: %v", err)
		return
	}
	go t.runAcceptorHandshake(conn)
}

// runAcceptorHandshake drives the answering side. It gates the SDP
// exchange behind an AcceptConnection call from the engine, matching
// the request/accept choreography the transition table expects on
// both ends of a link.
func (t *LANTransport) runAcceptorHandshake(conn *websocket.Conn) {
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(signalingTimeout))

	hello, err := readMessage(conn)
	if err != nil || hello.Type != "hello" {
		util.LogWarning("transport: expected hello: %v", err)
		return
	}
	endpoint := Endpoint(hello.Endpoint)

	gate := make(chan struct{})
	t.mu.Lock()
	t.pendingAccept[endpoint] = gate
	t.mu.Unlock()

	t.cb.ConnectionInitiated(endpoint, "incoming")

	select {
	case <-gate:
	case <-time.After(signalingTimeout):
		writeJSON(conn, sigMessage{Type: "reject", Reason: "accept timeout"})
		t.cb.ConnectionResult(endpoint, errRejected("accept timeout"))
		return
	case <-t.ctx.Done():
		return
	}

	if err := writeJSON(conn, sigMessage{Type: "hello_ack"}); err != nil {
		t.cb.ConnectionResult(endpoint, err)
		return
	}

	link, err := newPeerLink(t.ctx, endpoint, negotiatedDataChannelID)
	if err != nil {
		t.cb.ConnectionResult(endpoint, err)
		return
	}
	t.registerLink(endpoint, link)

	link.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		writeJSON(conn, sigMessage{Type: "candidate", Candidate: c.ToJSON().Candidate})
	})

	if !t.pumpRemoteDescriptionAndCandidates(conn, link, "offer") {
		return
	}

	answer, err := link.pc.CreateAnswer(nil)
	if err != nil {
		t.failLink(endpoint, link, err)
		return
	}
	if err := link.pc.SetLocalDescription(answer); err != nil {
		t.failLink(endpoint, link, err)
		return
	}
	if err := writeJSON(conn, sigMessage{Type: "answer", SDP: answer.SDP}); err != nil {
		t.failLink(endpoint, link, err)
		return
	}

	t.awaitLinkOpen(endpoint, link, conn)
}

// pumpRemoteDescriptionAndCandidates reads signaling messages until it
// has consumed the expected SDP message type (offer or answer),
// applying any interleaved trickle-ICE candidates along the way. It
// returns false if the exchange failed, having already reported the
// failure via ConnectionResult and closed the link.
func (t *LANTransport) pumpRemoteDescriptionAndCandidates(conn *websocket.Conn, link *peerLink, want string) bool {
	sdpType := webrtc.SDPTypeOffer
	if want == "answer" {
		sdpType = webrtc.SDPTypeAnswer
	}

	for {
		msg, err := readMessage(conn)
		if err != nil {
			t.failLink(link.endpoint, link, err)
			return false
		}

		switch msg.Type {
		case want:
			desc := webrtc.SessionDescription{Type: sdpType, SDP: msg.SDP}
			if err := link.pc.SetRemoteDescription(desc); err != nil {
				t.failLink(link.endpoint, link, err)
				return false
			}
			return true
		case "candidate":
			if err := link.pc.AddICECandidate(webrtc.ICECandidateInit{Candidate: msg.Candidate}); err != nil {
				util.LogDebug("transport[%s]: candidate rejected: %v", link.endpoint, err)
			}
		case "reject":
			t.failLink(link.endpoint, link, errRejected(msg.Reason))
			return false
		default:
			util.LogDebug("transport[%s]: unexpected message %q", link.endpoint, msg.Type)
		}
	}
}

// awaitLinkOpen blocks until the DataChannel opens, signalingTimeout
// elapses, or the transport's context ends, then reports the outcome
// (nothing is reported on transport shutdown) and, on success, hands the
// link over to run() for its lifetime as the data plane.
func (t *LANTransport) awaitLinkOpen(endpoint Endpoint, link *peerLink, conn *websocket.Conn) {
	select {
	case <-link.ready():
	case <-time.After(signalingTimeout):
		t.failLink(endpoint, link, errRejected("data channel open timeout"))
		return
	case <-t.ctx.Done():
		return
	}

	link.dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		t.cb.PayloadReceived(endpoint, msg.Data)
	})

	link.run(func() {
		t.removeLink(endpoint)
		t.cb.Disconnected(endpoint)
	})

	t.cb.ConnectionResult(endpoint, nil)
}

func (t *LANTransport) failLink(endpoint Endpoint, link *peerLink, err error) {
	t.removeLink(endpoint)
	link.close()
	t.cb.ConnectionResult(endpoint, err)
}

func writeJSON(conn *websocket.Conn, v sigMessage) error {
	return conn.WriteJSON(v)
}

func readMessage(conn *websocket.Conn) (sigMessage, error) {
	var msg sigMessage
	_, data, err := conn.ReadMessage()
	if err != nil {
		return msg, err
	}
	err = json.Unmarshal(data, &msg)
	return msg, err
}

type rejectedError string

func (e rejectedError) Error() string { return "transport: rejected: " + string(e) }

func errRejected(reason string) error {
	if reason == "" {
		reason = "unspecified"
	}
	return rejectedError(reason)
}
