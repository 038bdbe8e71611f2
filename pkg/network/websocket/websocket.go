package websocket

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/opencloud/opencloud/pkg/logger"
)

const (
	maxMessageSize = 64 * 1024
	writeWait      = 10 * time.Second
	sendQueue      = 32
)

var ErrClosed = errors.New("socket closed")

type WS struct {
	conn conn
	send chan []byte

	// OnMessage is called for every incoming message
	// one at a time in the order of arrival.
	OnMessage MessageHandler
	// OnClose is called once when the socket was closed not by us.
	OnClose CloseHandler

	closing   chan struct{}
	closeOnce sync.Once
	local     atomic.Bool
	shutdown  sync.WaitGroup
	listen    sync.Once
	Done      chan struct{}

	log *logger.Logger
}

type (
	MessageHandler func(message []byte)
	CloseHandler   func(reason string)
)

type Options struct {
	Header           http.Header
	Subprotocols     []string
	HandshakeTimeout time.Duration
	InsecureTLS      bool
}

// NewClient dials the address.
// Call Listen to start processing messages.
func NewClient(ctx context.Context, address url.URL, opts Options, log *logger.Logger) (*WS, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
		Subprotocols:     opts.Subprotocols,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
	}
	if address.Scheme == "wss" && opts.InsecureTLS {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	conn, resp, err := dialer.DialContext(ctx, address.String(), opts.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %v: %w (%v)", address.Host, err, resp.Status)
		}
		return nil, fmt.Errorf("dial %v: %w", address.Host, err)
	}
	return newSocket(conn, log), nil
}

func newSocket(conn *websocket.Conn, log *logger.Logger) *WS {
	if log == nil {
		log = logger.Nop()
	}
	return &WS{
		conn:    newConn(conn, maxMessageSize, writeWait),
		send:    make(chan []byte, sendQueue),
		closing: make(chan struct{}),
		Done:    make(chan struct{}),
		log:     log,
	}
}

// Listen starts the reader and writer goroutines.
// Repeated calls do nothing.
func (ws *WS) Listen() {
	ws.listen.Do(func() {
		ws.shutdown.Add(2)
		go ws.writer()
		go ws.reader()
		go func() {
			ws.shutdown.Wait()
			_ = ws.conn.close()
			close(ws.Done)
		}()
	})
}

// reader pumps messages from the websocket connection to the OnMessage callback.
// Blocking, must be called as goroutine. Serializes all websocket reads.
func (ws *WS) reader() {
	var reason string
	defer func() {
		remote := !ws.local.Load()
		ws.close()
		if remote && ws.OnClose != nil {
			ws.OnClose(reason)
		}
		ws.log.Debug().Str(logger.DirectionField, "x").Msg("reader closed")
		ws.shutdown.Done()
	}()
	for {
		message, err := ws.conn.read()
		if err != nil {
			reason = closeReason(err)
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !ws.isClosing() {
				ws.log.Warn().Err(err).Msg("read")
			}
			return
		}
		ws.log.Trace().Str(logger.DirectionField, "←").Msg(string(message))
		if ws.OnMessage != nil {
			ws.OnMessage(message)
		}
	}
}

// writer pumps messages from the send channel to the websocket connection.
// Blocking, must be called as goroutine. Serializes all websocket writes.
func (ws *WS) writer() {
	defer func() {
		ws.shutdown.Done()
		ws.log.Debug().Str(logger.DirectionField, "x").Msg("writer closed")
	}()
	for {
		select {
		case message := <-ws.send:
			ws.log.Trace().Str(logger.DirectionField, "→").Msg(string(message))
			if err := ws.conn.write(websocket.TextMessage, message); err != nil {
				ws.log.Warn().Err(err).Msg("write")
				ws.close()
				_ = ws.conn.close()
				return
			}
		case <-ws.closing:
			_ = ws.conn.bye()
			// unblocks the reader
			_ = ws.conn.close()
			return
		}
	}
}

// Write queues the data for sending.
func (ws *WS) Write(data []byte) error {
	select {
	case <-ws.closing:
		return ErrClosed
	default:
	}
	select {
	case ws.send <- data:
		return nil
	case <-ws.closing:
		return ErrClosed
	}
}

// Close sends the close frame and shuts the socket down.
// Safe to call many times.
func (ws *WS) Close() { ws.local.Store(true); ws.close() }

func (ws *WS) Subprotocol() string { return ws.conn.sock.Subprotocol() }

func (ws *WS) close() { ws.closeOnce.Do(func() { close(ws.closing) }) }

func (ws *WS) isClosing() bool {
	select {
	case <-ws.closing:
		return true
	default:
		return false
	}
}

func closeReason(err error) string {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		if ce.Text != "" {
			return fmt.Sprintf("%d: %s", ce.Code, ce.Text)
		}
		return fmt.Sprintf("%d", ce.Code)
	}
	return err.Error()
}
