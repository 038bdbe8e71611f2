package auth

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/opencloud/opencloud/pkg/config"
	"github.com/opencloud/opencloud/pkg/logger"
	"github.com/opencloud/opencloud/pkg/store"
	"golang.org/x/oauth2"
)

func TestAuthCodeURL(t *testing.T) {
	a := New(config.Auth{ClientID: "client", AuthorizeURL: "https://idp.example.com/authorize",
		RedirectURI: "http://localhost:2259", Locale: "en_US"},
		store.NewMemStore(), nil, logger.Nop(), WithDeviceID("dev-1"))
	p, err := newPKCE()
	if err != nil {
		t.Fatal(err)
	}
	u, err := url.Parse(a.authCodeURL(p, Provider{IdpID: "idp-nv"}))
	if err != nil {
		t.Fatal(err)
	}
	q := u.Query()
	want := map[string]string{
		"code_challenge":        oauth2.S256ChallengeFromVerifier(p.verifier),
		"code_challenge_method": "S256",
		"state":                 p.state,
		"nonce":                 p.nonce,
		"idp_id":                "idp-nv",
		"device_id":             "dev-1",
		"client_id":             "client",
		"response_type":         "code",
	}
	for k, v := range want {
		if got := q.Get(k); got != v {
			t.Errorf("%v = %q, want %q", k, got, v)
		}
	}
	if q.Get("code_verifier") != "" {
		t.Errorf("the verifier is leaked")
	}
}

func TestNewPKCE(t *testing.T) {
	p, err := newPKCE()
	if err != nil {
		t.Fatal(err)
	}
	// 64 bytes in base64url without padding
	if len(p.verifier) != 86 || strings.ContainsAny(p.verifier, "+/=") {
		t.Errorf("verifier = %v", p.verifier)
	}
	q, _ := newPKCE()
	if p.verifier == q.verifier || p.state == q.state {
		t.Errorf("not random")
	}
}

func TestCodeFromRedirect(t *testing.T) {
	tests := []struct {
		url  string
		code string
		err  error
	}{
		{url: "http://localhost:2259/?code=abc&state=s", code: "abc"},
		{url: "http://localhost:2259/?code=abc", code: "abc"},
		{url: "http://localhost:2259/?code=abc&state=x", err: ErrStateMismatch},
		{url: "http://localhost:2259/?error=access_denied&error_description=nope", err: ErrNoCode},
		{url: "http://localhost:2259/", err: ErrNoCode},
	}
	for _, test := range tests {
		code, err := codeFromRedirect(test.url, "s")
		if !errors.Is(err, test.err) {
			t.Errorf("%v: err = %v, want %v", test.url, err, test.err)
		}
		if code != test.code {
			t.Errorf("%v: code = %v, want %v", test.url, code, test.code)
		}
	}
}

func TestConsoleSurface(t *testing.T) {
	var out strings.Builder
	c := ConsoleSurface{
		In:  strings.NewReader("\nsomething else\n  http://localhost:2259/?code=x  \n"),
		Out: &out,
	}
	got, err := c.Authorize(context.Background(), "https://login/authorize", "http://localhost:2259")
	if err != nil {
		t.Fatal(err)
	}
	if got != "http://localhost:2259/?code=x" {
		t.Errorf("got %v", got)
	}
	if !strings.Contains(out.String(), "https://login/authorize") {
		t.Errorf("no URL in the output: %v", out.String())
	}

	c.In = strings.NewReader("nothing\n")
	if _, err = c.Authorize(context.Background(), "u", "http://localhost:2259"); !errors.Is(err, ErrLoginCancelled) {
		t.Errorf("err = %v", err)
	}
}

func TestIsUnauthorized(t *testing.T) {
	if !IsUnauthorized(errors.Join(errors.New("x"), &Error{Status: 401})) {
		t.Errorf("wrapped 401 not detected")
	}
	if IsUnauthorized(&Error{Status: 403}) || IsUnauthorized(nil) {
		t.Errorf("false positive")
	}
}
