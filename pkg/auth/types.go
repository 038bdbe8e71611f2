package auth

import (
	"strings"
	"time"
)

// Tokens is a set of OAuth tokens.
// ExpiresAt is always set.
type Tokens struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	IDToken      string    `json:"idToken,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

func (t Tokens) HasRefresh() bool { return t.RefreshToken != "" }

// ExpiresIn returns the time left until the access token expiry.
func (t Tokens) ExpiresIn(now time.Time) time.Duration { return t.ExpiresAt.Sub(now) }

type User struct {
	UserID         string `json:"userId"`
	DisplayName    string `json:"displayName"`
	Email          string `json:"email,omitempty"`
	AvatarURL      string `json:"avatarUrl,omitempty"`
	MembershipTier string `json:"membershipTier"`
}

const TierFree = "FREE"

// Provider is a login (identity) provider with its own streaming service.
type Provider struct {
	IdpID            string `json:"idpId"`
	Code             string `json:"code"`
	DisplayName      string `json:"displayName"`
	StreamingBaseURL string `json:"streamingBaseUrl"`
	Priority         int    `json:"priority"`
}

// normalize makes the base URL end with a slash.
func (p Provider) normalize() Provider {
	if p.StreamingBaseURL != "" && !strings.HasSuffix(p.StreamingBaseURL, "/") {
		p.StreamingBaseURL += "/"
	}
	return p
}

// Session is the logged-in state.
// Values are never changed in place, every change makes a new copy.
type Session struct {
	Provider Provider `json:"provider"`
	Tokens   Tokens   `json:"tokens"`
	User     User     `json:"user"`
}

func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// Subscription is the membership info of the user.
type Subscription struct {
	MembershipTier         string `json:"membershipTier"`
	Type                   string `json:"type,omitempty"`
	RemainingTimeInMinutes int    `json:"remainingTimeInMinutes,omitempty"`
	TotalTimeInMinutes     int    `json:"totalTimeInMinutes,omitempty"`
}

// RefreshOutcome tells what happened to the tokens in EnsureValidSession.
type RefreshOutcome int

const (
	OutcomeNotAttempted RefreshOutcome = iota
	OutcomeRefreshed
	OutcomeFailed
	OutcomeMissingRefreshToken
)

func (o RefreshOutcome) String() string {
	switch o {
	case OutcomeNotAttempted:
		return "not_attempted"
	case OutcomeRefreshed:
		return "refreshed"
	case OutcomeFailed:
		return "failed"
	case OutcomeMissingRefreshToken:
		return "missing_refresh_token"
	}
	return "unknown"
}

// Result of EnsureValidSession.
// Session is nil when there is no saved session.
// Err explains the failed outcome.
type Result struct {
	Session *Session
	Outcome RefreshOutcome
	Err     error
}

// Recovery is the decision after an API authorization failure.
type Recovery struct {
	Retry bool
	Token string
}
