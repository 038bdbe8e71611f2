package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/opencloud/opencloud/pkg/auth"
	"github.com/opencloud/opencloud/pkg/config"
	"github.com/opencloud/opencloud/pkg/logger"
	"github.com/opencloud/opencloud/pkg/store"
	pion "github.com/pion/webrtc/v3"
)

// cloud is a fake streaming service: the session API on plain HTTP
// and the signaling socket on TLS with a remote peer sending the offer.
type cloud struct {
	api     *httptest.Server
	sig     *httptest.Server
	answers chan string
	stopped atomic.Value
}

func newCloud(t *testing.T) *cloud {
	c := &cloud{answers: make(chan string, 1)}
	c.sig = httptest.NewTLSServer(http.HandlerFunc(c.signaling(t)))
	t.Cleanup(c.sig.Close)

	mux := http.NewServeMux()
	mux.HandleFunc("PUT /v2/session", func(w http.ResponseWriter, r *http.Request) {
		reply(w, `{"requestStatus":{"statusCode":1},"session":{"sessionId":"s-1","status":1}}`)
	})
	mux.HandleFunc("GET /v2/session/s-1", func(w http.ResponseWriter, r *http.Request) {
		path := "wss" + strings.TrimPrefix(c.sig.URL, "https") + "/nvst/"
		reply(w, `{"requestStatus":{"statusCode":1},"session":{"sessionId":"s-1","status":2,`+
			`"connectionInfo":[{"usage":14,"resourcePath":"`+path+`"}]}}`)
	})
	mux.HandleFunc("DELETE /v2/session/s-1", func(w http.ResponseWriter, r *http.Request) {
		c.stopped.Store(true)
		reply(w, `{"requestStatus":{"statusCode":1}}`)
	})
	mux.HandleFunc("GET /v2/session", func(w http.ResponseWriter, r *http.Request) {
		reply(w, `{"requestStatus":{"statusCode":1},"sessions":[]}`)
	})
	c.api = httptest.NewServer(mux)
	t.Cleanup(c.api.Close)
	return c
}

func reply(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func (c *cloud) signaling(t *testing.T) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		up := websocket.Upgrader{Subprotocols: websocket.Subprotocols(r)}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer func() { _ = conn.Close() }()

		remote, err := pion.NewPeerConnection(pion.Configuration{})
		if err != nil {
			t.Errorf("peer: %v", err)
			return
		}
		defer func() { _ = remote.Close() }()
		_, _ = remote.AddTransceiverFromKind(pion.RTPCodecTypeVideo, pion.RTPTransceiverInit{Direction: pion.RTPTransceiverDirectionSendonly})
		offer, _ := remote.CreateOffer(nil)
		_ = remote.SetLocalDescription(offer)

		msg, _ := json.Marshal(map[string]string{"type": "offer", "sdp": offer.SDP})
		frame, _ := json.Marshal(map[string]any{
			"ackid":    1,
			"peer_msg": map[string]any{"from": 1, "to": 2, "msg": string(msg)},
		})
		if err = conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var f struct {
				PeerMsg *struct {
					Msg string `json:"msg"`
				} `json:"peer_msg"`
			}
			if json.Unmarshal(data, &f) != nil || f.PeerMsg == nil {
				continue
			}
			var in struct {
				Type string `json:"type"`
				SDP  string `json:"sdp"`
			}
			if json.Unmarshal([]byte(f.PeerMsg.Msg), &in) == nil && in.Type == "answer" {
				if err = remote.SetRemoteDescription(pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: in.SDP}); err != nil {
					t.Errorf("bad answer: %v", err)
				}
				c.answers <- in.SDP
			}
		}
	}
}

func testConfig() config.Config {
	return config.Config{
		Auth:   config.Auth{HTTPTimeout: 5 * time.Second},
		Client: config.Client{ID: "id", Type: "NATIVE", Version: "1", DeviceID: "dev"},
		Session: config.Session{
			ClaimAttempts: 2,
			ClaimDelay:    10 * time.Millisecond,
			PollInterval:  10 * time.Millisecond,
			PollTimeout:   5 * time.Second,
			HTTPTimeout:   5 * time.Second,
		},
		Signaling: config.Signaling{
			Heartbeat:        time.Hour,
			HandshakeTimeout: 2 * time.Second,
			LocalPeerID:      2,
			RemotePeerID:     1,
			InsecureTLS:      true,
		},
	}
}

func loggedIn(t *testing.T, base string) store.Store {
	st := store.NewMemStore()
	s := auth.Session{
		Provider: auth.Provider{IdpID: "idp", StreamingBaseURL: base},
		Tokens:   auth.Tokens{AccessToken: "tok", RefreshToken: "r", ExpiresAt: time.Now().Add(time.Hour)},
		User:     auth.User{UserID: "u", DisplayName: "alice", MembershipTier: auth.TierFree},
	}
	data, _ := json.Marshal(map[string]any{"session": s})
	if err := st.Set(store.KeyAuthState, string(data)); err != nil {
		t.Fatal(err)
	}
	return st
}

func TestPlay(t *testing.T) {
	cl := newCloud(t)
	c, err := New(testConfig(), loggedIn(t, cl.api.URL+"/"), nil, logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	c.Run()
	defer func() { _ = c.Shutdown(context.Background()) }()

	if _, err = c.Login(context.Background(), ""); err != nil {
		t.Fatalf("login: %v", err)
	}
	info, err := c.Play(context.Background(), "app-1")
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if !strings.HasPrefix(info.SignalingURL, "wss://127.0.0.1") {
		t.Errorf("signaling = %v", info.SignalingURL)
	}

	select {
	case answer := <-cl.answers:
		if !strings.Contains(answer, "m=video") {
			t.Errorf("answer = %v", answer)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no answer")
	}

	if c.Active() == nil {
		t.Fatal("no active stream")
	}
	c.Stop(context.Background())
	if stopped, _ := cl.stopped.Load().(bool); !stopped {
		t.Errorf("session isn't stopped")
	}
	if c.Active() != nil {
		t.Errorf("stream is still active")
	}
}

func TestPlayWithoutLogin(t *testing.T) {
	c, err := New(testConfig(), store.NewMemStore(), nil, logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	_ = c.Auth.Initialize(context.Background())
	if _, err = c.Play(context.Background(), "app-1"); !errors.Is(err, auth.ErrNoSession) {
		t.Errorf("err = %v", err)
	}
}

func TestResumeNotActive(t *testing.T) {
	cl := newCloud(t)
	c, err := New(testConfig(), loggedIn(t, cl.api.URL+"/"), nil, logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	_ = c.Auth.Initialize(context.Background())
	if _, err = c.Resume(context.Background(), "s-9"); !errors.Is(err, ErrNotActive) {
		t.Errorf("err = %v", err)
	}
}
