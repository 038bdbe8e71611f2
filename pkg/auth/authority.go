// Package auth keeps the user logged in.
//
// The Authority does the OAuth PKCE login through an external Surface,
// hands out valid bearer tokens, refreshes them with at most one
// network refresh in flight and tells subscribers when the session
// can't be recovered anymore.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/opencloud/opencloud/pkg/com"
	"github.com/opencloud/opencloud/pkg/config"
	"github.com/opencloud/opencloud/pkg/logger"
	"github.com/opencloud/opencloud/pkg/monitoring"
	"github.com/opencloud/opencloud/pkg/store"
	"golang.org/x/sync/singleflight"
)

// RefreshWindow is how long before the expiry the tokens are refreshed.
const RefreshWindow = 10 * time.Minute

var ErrLoginInProgress = errors.New("auth: login in progress")

type Authority struct {
	conf     config.Auth
	deviceID string
	store    store.Store
	surface  Surface
	http     *http.Client
	now      func() time.Time
	log      *logger.Logger

	initOnce sync.Once
	initErr  error

	flight    singleflight.Group
	expired   *com.Listeners[string]
	persistMu sync.Mutex

	mu           sync.Mutex
	session      *Session
	pending      *pkce
	providers    []Provider
	subscription *Subscription
	regionID     string
}

type Option func(*Authority)

func WithHTTPClient(c *http.Client) Option  { return func(a *Authority) { a.http = c } }
func WithClock(now func() time.Time) Option { return func(a *Authority) { a.now = now } }
func WithDeviceID(id string) Option         { return func(a *Authority) { a.deviceID = id } }

func New(conf config.Auth, st store.Store, surface Surface, log *logger.Logger, opts ...Option) *Authority {
	a := &Authority{
		conf:    conf,
		store:   st,
		surface: surface,
		now:     time.Now,
		log:     log.Module("auth"),
		expired: com.NewListeners[string](),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.http == nil {
		a.http = &http.Client{Timeout: conf.HTTPTimeout}
	}
	if a.deviceID == "" {
		a.deviceID = uuid.Must(uuid.NewV4()).String()
	}
	return a
}

type persistedState struct {
	Session *Session `json:"session,omitempty"`
}

// Initialize loads the saved session.
// It runs once per Authority, concurrent callers wait for the same load.
func (a *Authority) Initialize(context.Context) error {
	a.initOnce.Do(func() { a.initErr = a.load() })
	return a.initErr
}

func (a *Authority) load() error {
	raw, err := a.store.Get(store.KeyAuthState)
	if err != nil {
		a.log.Error().Err(err).Msg("Couldn't read the saved session")
		return err
	}
	if raw == "" {
		return nil
	}
	var st persistedState
	if err = json.Unmarshal([]byte(raw), &st); err != nil {
		a.log.Warn().Err(err).Msg("Saved session is broken, ignoring")
		return nil
	}
	if st.Session == nil || st.Session.Tokens.AccessToken == "" {
		return nil
	}
	s := st.Session
	s.Provider = s.Provider.normalize()
	if s.Tokens.ExpiresAt.IsZero() {
		s.Tokens.ExpiresAt = a.now()
	}
	a.mu.Lock()
	a.session = s
	a.mu.Unlock()
	a.log.Info().Msgf("Restored session of %v", s.User.DisplayName)
	return nil
}

func (a *Authority) persist() error {
	a.persistMu.Lock()
	defer a.persistMu.Unlock()

	a.mu.Lock()
	st := persistedState{Session: a.session.clone()}
	a.mu.Unlock()

	data, err := json.Marshal(st)
	if err == nil {
		err = a.store.Set(store.KeyAuthState, string(data))
	}
	if err != nil {
		a.log.Error().Err(err).Msg("Couldn't save the session")
	}
	return err
}

// Session returns a copy of the current session or nil.
func (a *Authority) Session() *Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session.clone()
}

// Login does the PKCE authorization code flow with the selected provider.
// The selector is a provider idp id or code, empty means the default one.
func (a *Authority) Login(ctx context.Context, selector string) (s *Session, err error) {
	defer func() { monitoring.AuthLogins.WithLabelValues(monitoring.Result(err)).Inc() }()
	_ = a.Initialize(ctx)

	provider, err := a.resolveProvider(ctx, selector)
	if err != nil {
		return nil, err
	}
	p, err := newPKCE()
	if err != nil {
		return nil, &Error{Op: "login", Err: err}
	}

	a.mu.Lock()
	if a.pending != nil {
		a.mu.Unlock()
		return nil, ErrLoginInProgress
	}
	a.pending = p
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.pending = nil
		a.mu.Unlock()
	}()

	a.log.Info().Msgf("Login with %v", provider.DisplayName)
	redirected, err := a.surface.Authorize(ctx, a.authCodeURL(p, provider), a.conf.RedirectURI)
	if err != nil {
		return nil, &Error{Op: "login", Err: err}
	}
	code, err := codeFromRedirect(redirected, p.state)
	if err != nil {
		return nil, err
	}
	resp, err := a.exchangeCode(ctx, code, p)
	if err != nil {
		return nil, err
	}
	tokens := a.tokens(resp, nil)
	user, err := a.identity(ctx, tokens)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.session = &Session{Provider: provider, Tokens: tokens, User: user}
	a.subscription, a.regionID = nil, ""
	a.mu.Unlock()
	_ = a.persist()
	a.enrichTier(ctx)

	s = a.Session()
	a.log.Info().Msgf("Logged in as %v [%v]", s.User.DisplayName, s.User.MembershipTier)
	return s, nil
}

// EnsureValidSession returns the session with tokens that
// won't expire soon, refreshing them when needed or forced.
func (a *Authority) EnsureValidSession(ctx context.Context, force bool) Result {
	_ = a.Initialize(ctx)

	s := a.Session()
	if s == nil {
		return Result{Outcome: OutcomeNotAttempted}
	}
	if !force && s.Tokens.ExpiresIn(a.now()) > RefreshWindow {
		return Result{Session: s, Outcome: OutcomeNotAttempted}
	}
	if !s.Tokens.HasRefresh() {
		return Result{Session: s, Outcome: OutcomeMissingRefreshToken}
	}
	return a.lockedRefresh(ctx, s.Tokens.AccessToken)
}

// AccessToken returns a bearer token that is not expired.
func (a *Authority) AccessToken(ctx context.Context) (string, error) {
	r := a.EnsureValidSession(ctx, false)
	if r.Session == nil {
		return "", ErrNoSession
	}
	if !r.Session.Tokens.ExpiresAt.After(a.now()) {
		return "", &Error{Op: "token", Err: errors.Join(ErrSessionExpired, r.Err)}
	}
	return r.Session.Tokens.AccessToken, nil
}

// HandleAPIError reacts to an error of some API call.
// On authorization failures the tokens get refreshed once and
// the caller is asked to retry with the new token. When that's not
// possible the user is logged out and the session expired
// subscribers are notified.
func (a *Authority) HandleAPIError(ctx context.Context, err error) Recovery {
	if !IsUnauthorized(err) {
		return Recovery{}
	}
	s := a.Session()
	if s == nil {
		a.expire("no session")
		return Recovery{}
	}
	if !s.Tokens.HasRefresh() {
		a.expire("no refresh token")
		return Recovery{}
	}
	r := a.lockedRefresh(ctx, s.Tokens.AccessToken)
	if r.Outcome == OutcomeRefreshed && r.Session != nil {
		return Recovery{Retry: true, Token: r.Session.Tokens.AccessToken}
	}
	if ctx.Err() != nil && errors.Is(r.Err, ctx.Err()) {
		return Recovery{}
	}
	reason := "refresh failed"
	if r.Err != nil {
		reason += ": " + r.Err.Error()
	}
	a.expire(reason)
	return Recovery{}
}

// OnSessionExpired subscribes to the unrecoverable session loss.
// Call the returned function to unsubscribe.
func (a *Authority) OnSessionExpired(fn func(reason string)) (dispose func()) {
	return a.expired.Subscribe(fn)
}

// Logout forgets the session with all the cached user data.
func (a *Authority) Logout() error {
	a.mu.Lock()
	a.session = nil
	a.subscription = nil
	a.regionID = ""
	a.mu.Unlock()
	a.log.Info().Msg("Logout")
	return a.persist()
}

func (a *Authority) expire(reason string) {
	a.log.Warn().Msgf("Session expired: %v", reason)
	_ = a.Logout()
	a.expired.Emit(reason)
}

type refreshResult struct {
	session *Session
	outcome RefreshOutcome
}

// lockedRefresh joins the refresh in flight or starts a new one.
// The observed param is the access token the caller wants to replace,
// if it's already replaced, the current session is returned.
func (a *Authority) lockedRefresh(ctx context.Context, observed string) Result {
	ch := a.flight.DoChan("refresh", func() (any, error) {
		// the refresh outlives callers that stop waiting
		return a.refresh(context.WithoutCancel(ctx), observed)
	})
	select {
	case res := <-ch:
		r, _ := res.Val.(refreshResult)
		return Result{Session: r.session, Outcome: r.outcome, Err: res.Err}
	case <-ctx.Done():
		return Result{Session: a.Session(), Outcome: OutcomeFailed, Err: ctx.Err()}
	}
}

func (a *Authority) refresh(ctx context.Context, observed string) (refreshResult, error) {
	s := a.Session()
	if s == nil {
		return refreshResult{outcome: OutcomeFailed}, ErrNoSession
	}
	if s.Tokens.AccessToken != observed {
		return refreshResult{session: s, outcome: OutcomeRefreshed}, nil
	}
	rt := s.Tokens.RefreshToken
	if rt == "" {
		return refreshResult{session: s, outcome: OutcomeMissingRefreshToken}, nil
	}

	resp, err := a.refreshGrant(ctx, rt)
	if err != nil {
		a.log.Warn().Err(err).Msg("Refresh grant failed, trying token exchange")
		var err2 error
		if resp, err2 = a.exchangeGrant(ctx, rt); err2 != nil {
			monitoring.AuthRefresh.WithLabelValues(OutcomeFailed.String()).Inc()
			a.log.Error().Err(err2).Msg("Token exchange failed")
			return refreshResult{session: s, outcome: OutcomeFailed}, errors.Join(err, err2)
		}
	}

	tokens := a.tokens(resp, &s.Tokens)
	user, err := a.identity(ctx, tokens)
	if err != nil {
		a.log.Warn().Err(err).Msg("Couldn't update the user, keeping the old one")
		user = s.User
	} else {
		user.MembershipTier = s.User.MembershipTier
	}

	a.mu.Lock()
	if a.session == nil {
		a.mu.Unlock()
		return refreshResult{outcome: OutcomeFailed}, ErrNoSession
	}
	a.session = &Session{Provider: s.Provider, Tokens: tokens, User: user}
	a.mu.Unlock()
	_ = a.persist()
	a.enrichTier(ctx)

	monitoring.AuthRefresh.WithLabelValues(OutcomeRefreshed.String()).Inc()
	a.log.Debug().Msgf("Tokens refreshed, expire at %v", tokens.ExpiresAt.Format(time.RFC3339))
	return refreshResult{session: a.Session(), outcome: OutcomeRefreshed}, nil
}
