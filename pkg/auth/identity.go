package auth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type userinfo struct {
	Sub               string `json:"sub"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	Email             string `json:"email,omitempty"`
	Picture           string `json:"picture,omitempty"`
}

func (u userinfo) user() User {
	name := u.PreferredUsername
	if name == "" && u.Email != "" {
		name, _, _ = strings.Cut(u.Email, "@")
	}
	if name == "" {
		name = u.Sub
	}
	return User{
		UserID:         u.Sub,
		DisplayName:    name,
		Email:          u.Email,
		AvatarURL:      u.Picture,
		MembershipTier: TierFree,
	}
}

// identity finds out who the user is.
// The ID token claims go first, the userinfo endpoint is used
// only when the claims are missing or unusable.
func (a *Authority) identity(ctx context.Context, t Tokens) (User, error) {
	if info, ok := claimsOf(t.IDToken); ok {
		return info.user(), nil
	}
	a.log.Debug().Msg("No usable ID token claims, asking userinfo")
	info, err := a.userinfo(ctx, t.AccessToken)
	if err != nil {
		return User{}, err
	}
	return info.user(), nil
}

// claimsOf reads the ID token claims without the signature check,
// the token came straight from the token endpoint over TLS.
func claimsOf(idToken string) (userinfo, bool) {
	if idToken == "" {
		return userinfo{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return userinfo{}, false
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return userinfo{}, false
	}
	str := func(k string) string { s, _ := claims[k].(string); return s }
	return userinfo{
		Sub:               sub,
		PreferredUsername: str("preferred_username"),
		Email:             str("email"),
		Picture:           str("picture"),
	}, true
}

func (a *Authority) userinfo(ctx context.Context, accessToken string) (userinfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.conf.UserinfoURL, nil)
	if err != nil {
		return userinfo{}, &Error{Op: "userinfo", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return userinfo{}, &Error{Op: "userinfo", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return userinfo{}, newHTTPError("userinfo", resp.StatusCode, body)
	}
	var info userinfo
	if err = json.Unmarshal(body, &info); err != nil {
		return userinfo{}, &Error{Op: "userinfo", Err: err}
	}
	if info.Sub == "" {
		return userinfo{}, &Error{Op: "userinfo", Body: "no sub"}
	}
	return info, nil
}
