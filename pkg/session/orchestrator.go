// Package session drives remote streaming sessions through their
// lifecycle: create, poll, claim, stop and list.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/opencloud/opencloud/pkg/auth"
	"github.com/opencloud/opencloud/pkg/config"
	"github.com/opencloud/opencloud/pkg/logger"
	"github.com/opencloud/opencloud/pkg/monitoring"
	"github.com/opencloud/opencloud/pkg/network"
	"github.com/opencloud/opencloud/pkg/settings"
)

// Authorizer gives bearer tokens and handles the authorization failures.
type Authorizer interface {
	AccessToken(ctx context.Context) (string, error)
	HandleAPIError(ctx context.Context, err error) auth.Recovery
}

type Orchestrator struct {
	conf   config.Session
	client config.Client
	tokens Authorizer
	http   *http.Client
	retry  network.Retry
	now    func() time.Time
	log    *logger.Logger
}

type Option func(*Orchestrator)

func WithHTTPClient(c *http.Client) Option { return func(o *Orchestrator) { o.http = c } }

// WithRetry replaces the claim retry policy.
func WithRetry(r network.Retry) Option { return func(o *Orchestrator) { o.retry = r } }

func New(conf config.Session, client config.Client, tokens Authorizer, log *logger.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		conf:   conf,
		client: client,
		tokens: tokens,
		retry:  network.NewRetry(conf.ClaimAttempts, conf.ClaimDelay),
		now:    time.Now,
		log:    log.Module("session"),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.http == nil {
		o.http = &http.Client{Timeout: conf.HTTPTimeout}
	}
	return o
}

// Create requests a new session of the app.
// The returned session is not streamable yet, poll it until it is.
func (o *Orchestrator) Create(ctx context.Context, base, appID string, st settings.Stream, accountLinked bool) (info *Info, err error) {
	defer func() { monitoring.SessionRequests.WithLabelValues("create", monitoring.Result(err)).Inc() }()

	address, err := endpoint(base, "", "")
	if err != nil {
		return nil, &Error{Op: "create", Err: err}
	}
	req := newCreateRequest(appID, st, accountLinked, o.client.DeviceID, o.client.Version, o.now())
	env, err := o.call(ctx, "create", http.MethodPut, address, req)
	if err != nil {
		return nil, err
	}
	if env.Session == nil {
		return nil, &Error{Op: "create", Err: ErrNoSession}
	}
	info = env.Session.info(base)
	o.log.Info().Str("id", info.SessionID).Msgf("Session created, status: %v", info.Status)
	return info, nil
}

// Poll reads the session state once.
// A streamable session gets its signaling address resolved when
// possible, otherwise the signaling fields stay empty and
// the session should be polled again.
func (o *Orchestrator) Poll(ctx context.Context, base, id, serverIP string) (info *Info, err error) {
	defer func() { monitoring.SessionRequests.WithLabelValues("poll", monitoring.Result(err)).Inc() }()

	s, err := o.get(ctx, "poll", base, id, serverIP)
	if err != nil {
		return nil, err
	}
	info = s.info(base)
	switch {
	case s.Status == StatusFailed:
		return nil, &Error{Op: "poll", Code: int(s.Status), Err: fmt.Errorf("session %v has failed", id)}
	case s.Status.IsStreamable():
		if sig, err := ResolveSignaling(s.ConnectionInfo, s.controlIP()); err == nil {
			apply(info, sig)
		} else {
			o.log.Debug().Err(err).Msg("Signaling is not resolved yet")
		}
	}
	o.log.Debug().Str("id", id).Msgf("Session status: %v, queue: %v", info.Status, info.QueuePosition)
	return info, nil
}

// Claim waits for the existing session to become streamable
// with a fixed number of attempts and a constant delay between them.
func (o *Orchestrator) Claim(ctx context.Context, base, id, serverIP string) (info *Info, err error) {
	defer func() { monitoring.SessionRequests.WithLabelValues("claim", monitoring.Result(err)).Inc() }()

	err = o.retry.Do(ctx, func(attempt int) (bool, error) {
		s, err := o.get(ctx, "claim", base, id, serverIP)
		if err != nil {
			if isAuthFailure(err) {
				return true, err
			}
			o.log.Debug().Err(err).Msgf("Claim attempt %v failed", attempt+1)
			return false, nil
		}
		switch {
		case s.Status.IsStreamable():
			sig, err := ResolveSignaling(s.ConnectionInfo, s.controlIP())
			if err != nil {
				return true, err
			}
			info = s.info(base)
			apply(info, sig)
			return true, nil
		case s.Status.IsPending():
			o.log.Debug().Msgf("Claim attempt %v, status: %v", attempt+1, s.Status)
			return false, nil
		default:
			return true, &Error{Op: "claim", Code: int(s.Status), Err: fmt.Errorf("session %v is %v", id, s.Status)}
		}
	})
	if errors.Is(err, network.ErrRetryExhausted) {
		return nil, fmt.Errorf("%w: %v", ErrClaimExhausted, id)
	}
	if err != nil {
		return nil, err
	}
	o.log.Info().Str("id", id).Msg("Session claimed")
	return info, nil
}

// Stop asks to end the session. Errors are only logged.
func (o *Orchestrator) Stop(ctx context.Context, base, id, serverIP string) {
	address, err := endpoint(base, serverIP, id)
	if err == nil {
		_, err = o.call(ctx, "stop", http.MethodDelete, address, nil)
	}
	monitoring.SessionRequests.WithLabelValues("stop", monitoring.Result(err)).Inc()
	if err != nil {
		o.log.Warn().Err(err).Str("id", id).Msg("Couldn't stop the session")
		return
	}
	o.log.Info().Str("id", id).Msg("Session stopped")
}

// Active lists the sessions of the user. Errors give an empty list.
func (o *Orchestrator) Active(ctx context.Context, base string) []Info {
	address, err := endpoint(base, "", "")
	var env envelope
	if err == nil {
		env, err = o.call(ctx, "list", http.MethodGet, address, nil)
	}
	monitoring.SessionRequests.WithLabelValues("list", monitoring.Result(err)).Inc()
	if err != nil {
		o.log.Warn().Err(err).Msg("Couldn't list the sessions")
		return []Info{}
	}
	list := make([]Info, 0, len(env.Sessions))
	for i := range env.Sessions {
		s := &env.Sessions[i]
		info := s.info(base)
		if s.Status.IsStreamable() {
			if sig, err := ResolveSignaling(s.ConnectionInfo, s.controlIP()); err == nil {
				apply(info, sig)
			}
		}
		list = append(list, *info)
	}
	return list
}

func apply(info *Info, sig Signaling) {
	info.SignalingServer = sig.Server
	info.SignalingURL = sig.URL
	info.Media = sig.Media
}

func (o *Orchestrator) get(ctx context.Context, op, base, id, serverIP string) (*remoteSession, error) {
	address, err := endpoint(base, serverIP, id)
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	env, err := o.call(ctx, op, http.MethodGet, address, nil)
	if err != nil {
		return nil, err
	}
	if env.Session == nil {
		return nil, &Error{Op: op, Err: ErrNoSession}
	}
	return env.Session, nil
}

// call does the request with one retry after the authorization failure.
func (o *Orchestrator) call(ctx context.Context, op, method, address string, body any) (envelope, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return envelope{}, &Error{Op: op, Err: err}
		}
	}
	token, err := o.tokens.AccessToken(ctx)
	if err != nil {
		return envelope{}, &Error{Op: op, Err: err}
	}
	env, err := o.send(ctx, op, method, address, token, payload)
	if auth.IsUnauthorized(err) {
		if rec := o.tokens.HandleAPIError(ctx, err); rec.Retry {
			env, err = o.send(ctx, op, method, address, rec.Token, payload)
		}
	}
	return env, err
}

func (o *Orchestrator) send(ctx context.Context, op, method, address, token string, payload []byte) (envelope, error) {
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, address, rd)
	if err != nil {
		return envelope{}, &Error{Op: op, Err: err}
	}
	o.headers(req, token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := o.http.Do(req)
	if err != nil {
		return envelope{}, &Error{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return envelope{}, &Error{Op: op, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return envelope{}, &Error{Op: op, Status: resp.StatusCode, Body: string(raw)}
	}

	var env envelope
	if len(bytes.TrimSpace(raw)) == 0 {
		return env, nil
	}
	if err = json.Unmarshal(raw, &env); err != nil {
		return envelope{}, &Error{Op: op, Status: resp.StatusCode, Body: string(raw), Err: err}
	}
	if !env.RequestStatus.ok() {
		return envelope{}, &Error{Op: op, Status: resp.StatusCode, Code: env.RequestStatus.StatusCode, Body: string(raw)}
	}
	return env, nil
}

func (o *Orchestrator) headers(req *http.Request, token string) {
	h := req.Header
	h.Set("Authorization", auth.AuthScheme+" "+token)
	h.Set("Accept", "application/json")
	h.Set("nv-client-id", o.client.ID)
	h.Set("nv-client-type", o.client.Type)
	h.Set("nv-client-version", o.client.Version)
	h.Set("nv-client-streamer", "WEBRTC")
	h.Set("nv-device-os", o.client.DeviceOS)
	h.Set("nv-device-type", o.client.DeviceType)
	h.Set("x-device-id", o.client.DeviceID)
	h.Set("User-Agent", o.client.UserAgent)
}

// endpoint builds the session URL, the server IP replaces
// the host of the zone base when it's known.
func endpoint(base, serverIP, id string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("bad zone address %q", base)
	}
	if serverIP != "" {
		u.Host = serverIP
	}
	elems := []string{"v2", "session"}
	if id != "" {
		elems = append(elems, id)
	}
	return u.JoinPath(elems...).String(), nil
}

func isAuthFailure(err error) bool {
	return errors.Is(err, auth.ErrNoSession) || errors.Is(err, auth.ErrSessionExpired) || auth.IsUnauthorized(err)
}
