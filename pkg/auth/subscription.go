package auth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
)

// AuthScheme is the authorization header scheme of the streaming services.
const AuthScheme = "GFNJWT"

// RegionID returns the id of the compute region (vpc id)
// serving the session provider. Best-effort, empty on errors.
func (a *Authority) RegionID(ctx context.Context) string {
	a.mu.Lock()
	id, s := a.regionID, a.session
	a.mu.Unlock()
	if id != "" || s == nil {
		return id
	}

	var info struct {
		RequestStatus struct {
			ServerID string `json:"serverId"`
		} `json:"requestStatus"`
	}
	if err := a.getJSON(ctx, "server info", s.Provider.StreamingBaseURL+"v2/serverInfo", s.Tokens.AccessToken, &info); err != nil {
		a.log.Warn().Err(err).Msg("Region is not available")
		return ""
	}
	id = info.RequestStatus.ServerID

	a.mu.Lock()
	if a.session != nil {
		a.regionID = id
	}
	a.mu.Unlock()
	return id
}

// Subscription returns the cached subscription of the user
// or nil if it's unknown.
func (a *Authority) Subscription() *Subscription {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.subscription == nil {
		return nil
	}
	sub := *a.subscription
	return &sub
}

// enrichTier refines the membership tier of the session user
// with the subscription lookup. Errors are only logged.
func (a *Authority) enrichTier(ctx context.Context) {
	a.mu.Lock()
	s := a.session
	a.mu.Unlock()
	if s == nil || a.conf.SubscriptionURL == "" {
		return
	}

	q := url.Values{
		"serviceName":  {"gfn_pc"},
		"languageCode": {a.conf.Locale},
		"userId":       {s.User.UserID},
	}
	if vpc := a.RegionID(ctx); vpc != "" {
		q.Set("vpcId", vpc)
	}
	var sub Subscription
	if err := a.getJSON(ctx, "subscription", a.conf.SubscriptionURL+"?"+q.Encode(), s.Tokens.AccessToken, &sub); err != nil {
		a.log.Warn().Err(err).Msg("Subscription lookup failed")
		return
	}
	if sub.MembershipTier == "" {
		return
	}

	a.mu.Lock()
	a.subscription = &sub
	changed := false
	if a.session != nil && a.session.User.MembershipTier != sub.MembershipTier {
		next := a.session.clone()
		next.User.MembershipTier = sub.MembershipTier
		a.session = next
		changed = true
	}
	a.mu.Unlock()
	if changed {
		_ = a.persist()
	}
	a.log.Debug().Msgf("Membership tier: %v", sub.MembershipTier)
}

func (a *Authority) getJSON(ctx context.Context, op, address, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, address, nil)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", AuthScheme+" "+token)
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newHTTPError(op, resp.StatusCode, body)
	}
	if err = json.Unmarshal(body, out); err != nil {
		return &Error{Op: op, Err: err}
	}
	return nil
}
