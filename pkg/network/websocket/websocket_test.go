package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	Subprotocols: []string{"test.proto"},
	CheckOrigin:  func(r *http.Request) bool { return true },
}

func echoServer(t *testing.T, closeAfter int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("no socket, %v", err)
			return
		}
		defer conn.Close()
		for i := 0; ; i++ {
			if closeAfter > 0 && i == closeAfter {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye"))
				return
			}
			mt, m, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err = conn.WriteMessage(mt, m); err != nil {
				return
			}
		}
	}))
}

func wsURL(s *httptest.Server) url.URL {
	u, _ := url.Parse(s.URL)
	u.Scheme = "ws"
	return *u
}

func TestWebsocketEcho(t *testing.T) {
	server := echoServer(t, 0)
	defer server.Close()

	ws, err := NewClient(context.Background(), wsURL(server), Options{Subprotocols: []string{"test.proto"}}, nil)
	if err != nil {
		t.Fatalf("couldn't connect: %v", err)
	}
	if ws.Subprotocol() != "test.proto" {
		t.Errorf("unexpected subprotocol %q", ws.Subprotocol())
	}

	const n = 50
	var mu sync.Mutex
	var got []string
	all := make(chan struct{})
	ws.OnMessage = func(m []byte) {
		mu.Lock()
		got = append(got, string(m))
		if len(got) == n {
			close(all)
		}
		mu.Unlock()
	}
	closed := false
	ws.OnClose = func(string) { closed = true }
	ws.Listen()

	for i := 0; i < n; i++ {
		if err := ws.Write([]byte(strings.Repeat("x", i+1))); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	select {
	case <-all:
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout, got %v messages", len(got))
	}
	for i, m := range got {
		if len(m) != i+1 {
			t.Errorf("message %v is out of order", i)
		}
	}

	ws.Close()
	ws.Close()
	<-ws.Done
	if closed {
		t.Errorf("local close should not call OnClose")
	}
	if err := ws.Write([]byte("late")); err != ErrClosed {
		t.Errorf("expected closed error, got %v", err)
	}
}

func TestWebsocketRemoteClose(t *testing.T) {
	server := echoServer(t, 1)
	defer server.Close()

	ws, err := NewClient(context.Background(), wsURL(server), Options{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	reason := make(chan string, 1)
	ws.OnClose = func(r string) { reason <- r }
	ws.Listen()
	_ = ws.Write([]byte("hi"))

	select {
	case r := <-reason:
		if r != "1001: bye" {
			t.Errorf("unexpected reason %q", r)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no close")
	}
	<-ws.Done
}

func TestWebsocketDialFail(t *testing.T) {
	_, err := NewClient(context.Background(), url.URL{Scheme: "ws", Host: "127.0.0.1:1"}, Options{HandshakeTimeout: time.Second}, nil)
	if err == nil {
		t.Errorf("expected a dial error")
	}
}
