package auth

import (
	"crypto/rand"
	"encoding/base64"
	"net/url"
)

const verifierBytes = 64

// pkce is the pending state of a login in progress.
type pkce struct {
	verifier string
	state    string
	nonce    string
}

func newPKCE() (*pkce, error) {
	v, err := randomString(verifierBytes)
	if err != nil {
		return nil, err
	}
	state, err := randomString(16)
	if err != nil {
		return nil, err
	}
	nonce, err := randomString(16)
	if err != nil {
		return nil, err
	}
	return &pkce{verifier: v, state: state, nonce: nonce}, nil
}

func randomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// codeFromRedirect extracts the authorization code from the redirect URL.
// The state is checked only when the redirect has it.
func codeFromRedirect(redirected string, state string) (string, error) {
	u, err := url.Parse(redirected)
	if err != nil {
		return "", &Error{Op: "login", Err: err}
	}
	q := u.Query()
	if e := q.Get("error"); e != "" {
		desc := q.Get("error_description")
		if desc == "" {
			desc = e
		}
		return "", &Error{Op: "login", Body: desc, Err: ErrNoCode}
	}
	if s := q.Get("state"); s != "" && s != state {
		return "", &Error{Op: "login", Err: ErrStateMismatch}
	}
	code := q.Get("code")
	if code == "" {
		return "", &Error{Op: "login", Err: ErrNoCode}
	}
	return code, nil
}
