// Package client puts together the login, the session lifecycle,
// the signaling and the answering peer into one streaming client.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/opencloud/opencloud/pkg/auth"
	"github.com/opencloud/opencloud/pkg/catalog"
	"github.com/opencloud/opencloud/pkg/config"
	"github.com/opencloud/opencloud/pkg/logger"
	"github.com/opencloud/opencloud/pkg/monitoring"
	"github.com/opencloud/opencloud/pkg/network"
	"github.com/opencloud/opencloud/pkg/service"
	"github.com/opencloud/opencloud/pkg/session"
	"github.com/opencloud/opencloud/pkg/settings"
	"github.com/opencloud/opencloud/pkg/signaling"
	"github.com/opencloud/opencloud/pkg/store"
	"github.com/opencloud/opencloud/pkg/webrtc"
	pion "github.com/pion/webrtc/v3"
)

var (
	ErrNotReady  = errors.New("session is not ready in time")
	ErrNotActive = errors.New("session is not active")
)

type Client struct {
	conf  config.Config
	log   *logger.Logger
	store store.Store

	Auth     *auth.Authority
	Sessions *session.Orchestrator
	Signal   *signaling.Channel
	Catalog  *catalog.Catalog

	peers    *webrtc.ApiFactory
	services service.Group
	expired  func()

	mu     sync.Mutex
	stream *stream
}

// stream is the running session with its connections.
type stream struct {
	info    *session.Info
	peer    *webrtc.Peer
	dispose func()
}

func New(conf config.Config, st store.Store, surface auth.Surface, log *logger.Logger) (*Client, error) {
	peers, err := webrtc.NewApiFactory(conf.Webrtc, log, nil)
	if err != nil {
		return nil, fmt.Errorf("webrtc: %w", err)
	}
	authority := auth.New(conf.Auth, st, surface, log, auth.WithDeviceID(conf.Client.DeviceID))
	c := &Client{
		conf:     conf,
		log:      log,
		store:    st,
		Auth:     authority,
		Sessions: session.New(conf.Session, conf.Client, authority, log),
		Signal:   signaling.New(conf.Signaling, log),
		Catalog:  catalog.New(conf.Catalog, nil, log),
		peers:    peers,
	}
	if conf.Monitoring.IsEnabled() {
		c.services.Add(monitoring.New(conf.Monitoring, log))
	}
	c.expired = authority.OnSessionExpired(func(reason string) {
		c.log.Warn().Msgf("Login again, the session has expired: %v", reason)
		c.hangUp()
	})
	return c, nil
}

func (c *Client) Run() { c.services.Start() }

// Shutdown ends the stream and stops the services.
func (c *Client) Shutdown(ctx context.Context) error {
	c.expired()
	c.Stop(ctx)
	return c.services.Shutdown(ctx)
}

// Login makes sure there is a valid login, asking the user if not.
func (c *Client) Login(ctx context.Context, provider string) (*auth.Session, error) {
	if err := c.Auth.Initialize(ctx); err != nil {
		return nil, err
	}
	r := c.Auth.EnsureValidSession(ctx, false)
	if r.Session != nil && r.Outcome != auth.OutcomeFailed && r.Session.Tokens.ExpiresAt.After(time.Now()) {
		return r.Session, nil
	}
	return c.Auth.Login(ctx, provider)
}

func (c *Client) base() (string, error) {
	s := c.Auth.Session()
	if s == nil {
		return "", auth.ErrNoSession
	}
	return s.Provider.StreamingBaseURL, nil
}

// Play starts a new session of the app and connects to it.
func (c *Client) Play(ctx context.Context, appID string) (*session.Info, error) {
	base, err := c.base()
	if err != nil {
		return nil, err
	}
	st, err := settings.Load(c.store)
	if err != nil {
		c.log.Warn().Err(err).Msg("Using the default stream settings")
	}
	info, err := c.Sessions.Create(ctx, base, appID, st, false)
	if err != nil {
		return nil, err
	}
	if info, err = c.waitReady(ctx, base, info); err != nil {
		c.Sessions.Stop(context.WithoutCancel(ctx), base, info.SessionID, info.ServerIP)
		return nil, err
	}
	if err = c.connect(ctx, info, st.Codec); err != nil {
		return nil, err
	}
	return info, nil
}

// Resume claims one of the active sessions and connects to it.
func (c *Client) Resume(ctx context.Context, id string) (*session.Info, error) {
	base, err := c.base()
	if err != nil {
		return nil, err
	}
	var found *session.Info
	for _, s := range c.Sessions.Active(ctx, base) {
		if s.SessionID == id {
			found = &s
			break
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %v", ErrNotActive, id)
	}
	info, err := c.Sessions.Claim(ctx, base, id, found.ServerIP)
	if err != nil {
		return nil, err
	}
	st, err := settings.Load(c.store)
	if err != nil {
		c.log.Warn().Err(err).Msg("Using the default stream settings")
	}
	if err = c.connect(ctx, info, st.Codec); err != nil {
		return nil, err
	}
	return info, nil
}

// waitReady polls the session until its signaling address is known.
func (c *Client) waitReady(ctx context.Context, base string, info *session.Info) (*session.Info, error) {
	ctx, cancel := context.WithTimeout(ctx, c.conf.Session.PollTimeout)
	defer cancel()
	for !info.HasSignaling() {
		if err := network.Sleep(ctx, c.conf.Session.PollInterval); err != nil {
			return info, fmt.Errorf("%w: %v", ErrNotReady, err)
		}
		next, err := c.Sessions.Poll(ctx, base, info.SessionID, info.ServerIP)
		if err != nil {
			return info, err
		}
		if next.QueuePosition > 0 {
			c.log.Info().Msgf("Queue position: %v", next.QueuePosition)
		}
		info = next
	}
	return info, nil
}

func (c *Client) connect(ctx context.Context, info *session.Info, codec string) error {
	c.hangUp()

	peer, err := c.peers.NewPeer(session.ToPion(info.IceServers))
	if err != nil {
		return err
	}
	peer.PreferCodec(codec)
	peer.OnICECandidate(func(ice pion.ICECandidateInit) {
		err := c.Signal.SendIceCandidate(signaling.Candidate{
			Candidate:     ice.Candidate,
			SDPMid:        ice.SDPMid,
			SDPMLineIndex: ice.SDPMLineIndex,
		})
		if err != nil {
			c.log.Warn().Err(err).Msg("Couldn't send a candidate")
		}
	})
	peer.OnTrack(func(track *pion.TrackRemote) {
		// no decoding here, the media is drained
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := track.Read(buf); err != nil {
					return
				}
			}
		}()
	})
	peer.OnStateChange(func(s pion.PeerConnectionState) { c.log.Info().Msgf("Stream connection: %v", s) })

	dispose := c.Signal.Subscribe(func(e signaling.Event) {
		switch ev := e.(type) {
		case signaling.Offer:
			answer, err := peer.Answer(ev.SDP)
			if err != nil {
				c.log.Error().Err(err).Msg("Couldn't answer the offer")
				return
			}
			if err = c.Signal.SendAnswer(answer); err != nil {
				c.log.Error().Err(err).Msg("Couldn't send the answer")
			}
		case signaling.RemoteICE:
			err := peer.AddICECandidate(pion.ICECandidateInit{
				Candidate:     ev.Candidate.Candidate,
				SDPMid:        ev.Candidate.SDPMid,
				SDPMLineIndex: ev.Candidate.SDPMLineIndex,
			})
			if err != nil {
				c.log.Warn().Err(err).Msg("Couldn't add the remote candidate")
			}
		case signaling.Disconnected:
			c.log.Warn().Msgf("Signaling is gone: %v", ev.Reason)
		case signaling.Log:
			c.log.Debug().Msgf("Signaling: %v", ev.Message)
		}
	})

	c.mu.Lock()
	c.stream = &stream{info: info, peer: peer, dispose: dispose}
	c.mu.Unlock()

	err = c.Signal.Connect(ctx, signaling.Key{
		SessionID: info.SessionID,
		Server:    info.SignalingServer,
		URL:       info.SignalingURL,
	})
	if err != nil {
		c.hangUp()
		return err
	}
	return nil
}

// Active returns the current stream session or nil.
func (c *Client) Active() *session.Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return nil
	}
	return c.stream.info
}

// Stop hangs up and ends the remote session.
func (c *Client) Stop(ctx context.Context) {
	c.mu.Lock()
	s := c.stream
	c.mu.Unlock()
	if s == nil {
		return
	}
	c.hangUp()
	c.Sessions.Stop(ctx, s.info.Zone, s.info.SessionID, s.info.ServerIP)
}

// hangUp drops the connections but keeps the remote session.
func (c *Client) hangUp() {
	c.mu.Lock()
	s := c.stream
	c.stream = nil
	c.mu.Unlock()
	c.Signal.Disconnect()
	if s == nil {
		return
	}
	s.dispose()
	if err := s.peer.Close(); err != nil {
		c.log.Warn().Err(err).Msg("Peer close")
	}
}
