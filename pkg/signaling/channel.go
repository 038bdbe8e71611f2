// Package signaling keeps the control socket of a streaming session.
//
// The socket carries the WebRTC offer/answer and ICE candidates
// relayed between this client and the streaming server.
package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/opencloud/opencloud/pkg/com"
	"github.com/opencloud/opencloud/pkg/config"
	"github.com/opencloud/opencloud/pkg/logger"
	"github.com/opencloud/opencloud/pkg/monitoring"
	"github.com/opencloud/opencloud/pkg/network/websocket"
)

const protocolVersion = 2

var ErrNotConnected = errors.New("signaling: not connected")

// Error is a failed connection.
type Error struct {
	Op  string
	URL string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("signaling: %s %s: %v", e.Op, e.URL, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	}
	return "unknown"
}

// Key identifies the signaling connection.
type Key struct {
	SessionID string
	Server    string
	URL       string
}

// Address is the sign-in URL of the key.
// The URL wins over the server, the default path is /nvst/.
func (k Key) Address(peerID int) (url.URL, error) {
	base := k.URL
	if base == "" {
		if k.Server == "" {
			return url.URL{}, errors.New("no signaling address")
		}
		base = "wss://" + k.Server + "/nvst/"
	}
	u, err := url.Parse(base)
	if err != nil {
		return url.URL{}, err
	}
	u = u.JoinPath("sign_in")
	u.RawQuery = url.Values{
		"peer_id": {strconv.Itoa(peerID)},
		"version": {strconv.Itoa(protocolVersion)},
	}.Encode()
	return *u, nil
}

func (k Key) subprotocol() string { return "x-nv-sessionid." + k.SessionID }

// Channel is a single signaling socket.
// Connect, Disconnect and Send* are safe for concurrent use,
// inbound frames are handled one at a time in the arrival order.
type Channel struct {
	conf   config.Signaling
	log    *logger.Logger
	events *com.Listeners[Event]

	mu    sync.Mutex
	state State
	key   Key
	gen   uint64
	ws    *websocket.WS
	stop  chan struct{}
	ackID int
}

const defaultHeartbeat = 5 * time.Second

func New(conf config.Signaling, log *logger.Logger) *Channel {
	if conf.Heartbeat <= 0 {
		conf.Heartbeat = defaultHeartbeat
	}
	return &Channel{
		conf:   conf,
		log:    log.Module("signaling"),
		events: com.NewListeners[Event](),
	}
}

// Subscribe adds the event listener, call the returned function to remove it.
func (c *Channel) Subscribe(fn func(Event)) (dispose func()) { return c.events.Subscribe(fn) }

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) Key() Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.key
}

// Connect opens the socket for the key.
// The same key while connecting or connected does nothing,
// a different one closes the current socket first.
func (c *Channel) Connect(ctx context.Context, key Key) error {
	c.mu.Lock()
	if c.key == key && (c.state == StateConnecting || c.state == StateConnected) {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	c.Disconnect()

	address, err := key.Address(c.conf.LocalPeerID)
	if err != nil {
		return &Error{Op: "connect", URL: key.URL, Err: err}
	}

	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.key, c.state = key, StateConnecting
	c.mu.Unlock()

	c.log.Info().Msgf("Connecting to %v", address.Host)
	ws, err := websocket.NewClient(ctx, address, websocket.Options{
		Subprotocols:     []string{key.subprotocol()},
		HandshakeTimeout: c.conf.HandshakeTimeout,
		InsecureTLS:      c.conf.InsecureTLS,
	}, c.log)
	if err != nil {
		c.mu.Lock()
		if c.gen == gen {
			c.state, c.key = StateIdle, Key{}
		}
		c.mu.Unlock()
		return &Error{Op: "connect", URL: address.String(), Err: err}
	}

	c.mu.Lock()
	if c.gen != gen {
		// disconnected while dialing
		c.mu.Unlock()
		ws.Close()
		return &Error{Op: "connect", URL: address.String(), Err: ErrNotConnected}
	}
	stop := make(chan struct{})
	c.ws, c.stop, c.state, c.ackID = ws, stop, StateConnected, 0
	c.mu.Unlock()

	// peer_info is queued before any ack of the inbound frames
	if err = c.announce(); err != nil {
		c.log.Warn().Err(err).Msg("Couldn't announce the peer")
	}
	ws.OnMessage = func(message []byte) { c.handle(ws, message) }
	ws.OnClose = func(reason string) { c.remoteClose(gen, reason) }
	ws.Listen()
	monitoring.SignalingConnections.Set(1)
	go c.heartbeat(ws, stop)

	c.log.Info().Str("session", key.SessionID).Str("protocol", ws.Subprotocol()).Msg("Signaling connected")
	c.events.Emit(Connected{Key: key})
	return nil
}

// Disconnect stops the heartbeat and closes the socket.
// Safe to call anytime and many times.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()
	if c.teardown(gen) {
		c.log.Info().Msg("Signaling disconnected")
	}
}

func (c *Channel) remoteClose(gen uint64, reason string) {
	if !c.teardown(gen) {
		return
	}
	c.log.Warn().Msgf("Signaling closed by the server: %v", reason)
	c.events.Emit(Disconnected{Reason: reason})
}

// teardown resets the channel if it's still in the generation.
func (c *Channel) teardown(gen uint64) bool {
	c.mu.Lock()
	if c.gen != gen || c.state == StateIdle || c.state == StateClosing {
		c.mu.Unlock()
		return false
	}
	c.gen++
	gen = c.gen
	ws, stop := c.ws, c.stop
	c.ws, c.stop, c.key, c.state = nil, nil, Key{}, StateClosing
	c.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if ws != nil {
		ws.Close()
		monitoring.SignalingConnections.Set(0)
	}

	c.mu.Lock()
	if c.gen == gen {
		c.state = StateIdle
	}
	c.mu.Unlock()
	return true
}

// SendAnswer relays the SDP answer to the remote peer.
func (c *Channel) SendAnswer(sdp string) error {
	return c.relay("answer", map[string]string{"type": "answer", "sdp": sdp})
}

// SendIceCandidate relays the local ICE candidate to the remote peer.
func (c *Channel) SendIceCandidate(candidate Candidate) error {
	return c.relay("candidate", candidate)
}

func (c *Channel) relay(kind string, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.send(kind, func(ackID int) any {
		return outbound{AckID: ackID, PeerMsg: &peerMsg{
			From: c.conf.LocalPeerID,
			To:   c.conf.RemotePeerID,
			Msg:  string(data),
		}}
	})
}

func (c *Channel) announce() error {
	return c.send("peer_info", func(ackID int) any {
		return outbound{AckID: ackID, PeerInfo: &peerInfo{
			ID:             c.conf.LocalPeerID,
			Name:           "peer-" + strconv.Itoa(c.conf.LocalPeerID),
			Browser:        "Chrome",
			BrowserVersion: "131",
			Connected:      true,
			Resolution:     "1920x1080",
			Version:        protocolVersion,
		}}
	})
}

// send writes the frame made with the next ack id of the connection.
func (c *Channel) send(kind string, frame func(ackID int) any) error {
	c.mu.Lock()
	if c.state != StateConnected || c.ws == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.ackID++
	ws, data := c.ws, frame(c.ackID)
	c.mu.Unlock()
	return c.write(ws, kind, data)
}

func (c *Channel) write(ws *websocket.WS, kind string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err = ws.Write(data); err != nil {
		if errors.Is(err, websocket.ErrClosed) {
			return ErrNotConnected
		}
		return err
	}
	monitoring.SignalingFrames.WithLabelValues("out", kind).Inc()
	return nil
}

func (c *Channel) heartbeat(ws *websocket.WS, stop chan struct{}) {
	t := time.NewTicker(c.conf.Heartbeat)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if err := c.write(ws, "hb", hbFrame{Hb: 1}); err != nil {
				return
			}
		case <-stop:
			return
		case <-ws.Done:
			return
		}
	}
}

// handle processes a frame from the server.
// Called on the socket reader goroutine.
func (c *Channel) handle(ws *websocket.WS, message []byte) {
	var f inbound
	if err := json.Unmarshal(message, &f); err != nil {
		monitoring.SignalingFrames.WithLabelValues("in", "malformed").Inc()
		c.log.Debug().Err(err).Msg("Malformed frame")
		c.events.Emit(Log{Message: fmt.Sprintf("malformed frame: %v", err), Frame: string(message)})
		return
	}
	kind := f.kind()
	monitoring.SignalingFrames.WithLabelValues("in", kind).Inc()

	if f.AckID != nil && f.origin() != c.conf.LocalPeerID {
		if err := c.write(ws, "ack", ackFrame{Ack: *f.AckID}); err != nil {
			c.log.Debug().Err(err).Msg("Couldn't ack")
		}
	}

	switch kind {
	case "hb":
		_ = c.write(ws, "hb", hbFrame{Hb: 1})
	case "peer_msg":
		ev := decodeInner(f.PeerMsg.Msg)
		if l, ok := ev.(Log); ok {
			c.log.Warn().Msg(l.Message)
		}
		c.events.Emit(ev)
	case "ack", "peer_info":
		c.log.Trace().Msgf("%v frame", kind)
	default:
		c.log.Debug().Msgf("Unknown frame: %s", message)
		c.events.Emit(Log{Message: "unknown frame", Frame: string(message)})
	}
}
