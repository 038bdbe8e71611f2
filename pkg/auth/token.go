package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	defaultExpiry = 86400 * time.Second

	grantTokenExchange   = "urn:ietf:params:oauth:grant-type:token-exchange"
	tokenTypeRefresh     = "urn:ietf:params:oauth:token-type:refresh_token"
	tokenTypeAccessToken = "urn:ietf:params:oauth:token-type:access_token"
)

// tokenResponse is the token endpoint answer.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
}

func (a *Authority) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID: a.conf.ClientID,
		Endpoint: oauth2.Endpoint{
			AuthURL:   a.conf.AuthorizeURL,
			TokenURL:  a.conf.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: a.conf.RedirectURI,
		Scopes:      a.conf.Scopes,
	}
}

// httpCtx makes oauth2 use our HTTP client.
func (a *Authority) httpCtx(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, a.http)
}

func (a *Authority) authCodeURL(p *pkce, provider Provider) string {
	return a.oauthConfig().AuthCodeURL(p.state,
		oauth2.S256ChallengeOption(p.verifier),
		oauth2.SetAuthURLParam("nonce", p.nonce),
		oauth2.SetAuthURLParam("idp_id", provider.IdpID),
		oauth2.SetAuthURLParam("device_id", a.deviceID),
		oauth2.SetAuthURLParam("ui_locales", a.conf.Locale),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
}

// exchangeCode swaps the authorization code for tokens (authorization_code grant).
func (a *Authority) exchangeCode(ctx context.Context, code string, p *pkce) (tokenResponse, error) {
	tok, err := a.oauthConfig().Exchange(a.httpCtx(ctx), code, oauth2.VerifierOption(p.verifier))
	if err != nil {
		return tokenResponse{}, oauthError("exchange", err)
	}
	return fromOAuth2(tok), nil
}

// refreshGrant is the primary refresh_token grant.
func (a *Authority) refreshGrant(ctx context.Context, refreshToken string) (tokenResponse, error) {
	// an empty access token makes the source go for a new one
	src := a.oauthConfig().TokenSource(a.httpCtx(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return tokenResponse{}, oauthError("refresh", err)
	}
	return fromOAuth2(tok), nil
}

// exchangeGrant is the fallback refresh with the token-exchange grant
// where the refresh token is the subject.
func (a *Authority) exchangeGrant(ctx context.Context, refreshToken string) (tokenResponse, error) {
	form := url.Values{
		"grant_type":           {grantTokenExchange},
		"client_id":            {a.conf.ClientID},
		"subject_token":        {refreshToken},
		"subject_token_type":   {tokenTypeRefresh},
		"requested_token_type": {tokenTypeAccessToken},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.conf.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return tokenResponse{}, &Error{Op: "token exchange", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return tokenResponse{}, &Error{Op: "token exchange", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return tokenResponse{}, newHTTPError("token exchange", resp.StatusCode, body)
	}
	var out tokenResponse
	if err = json.Unmarshal(body, &out); err != nil {
		return tokenResponse{}, &Error{Op: "token exchange", Err: err}
	}
	if out.AccessToken == "" {
		return tokenResponse{}, &Error{Op: "token exchange", Err: ErrMissingAccessToken}
	}
	return out, nil
}

// tokens makes a new token set, the values missing
// in the response are taken from the previous set.
// The expiry never goes back from the previous one.
func (a *Authority) tokens(r tokenResponse, prev *Tokens) Tokens {
	expiresIn := time.Duration(r.ExpiresIn) * time.Second
	if expiresIn <= 0 {
		expiresIn = defaultExpiry
	}
	t := Tokens{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		IDToken:      r.IDToken,
		ExpiresAt:    a.now().Add(expiresIn),
	}
	if prev != nil {
		if t.RefreshToken == "" {
			t.RefreshToken = prev.RefreshToken
		}
		if t.IDToken == "" {
			t.IDToken = prev.IDToken
		}
		if t.ExpiresAt.Before(prev.ExpiresAt) {
			t.ExpiresAt = prev.ExpiresAt
		}
	}
	return t
}

func fromOAuth2(tok *oauth2.Token) tokenResponse {
	r := tokenResponse{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}
	if id, ok := tok.Extra("id_token").(string); ok {
		r.IDToken = id
	}
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		r.ExpiresIn = int64(v)
	case int64:
		r.ExpiresIn = v
	case json.Number:
		r.ExpiresIn, _ = v.Int64()
	case string:
		r.ExpiresIn, _ = strconv.ParseInt(v, 10, 64)
	}
	return r
}

func oauthError(op string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		return &Error{Op: op, Status: status, Body: truncate(re.Body), Err: err}
	}
	return &Error{Op: op, Err: err}
}
