package auth

import (
	"errors"
	"fmt"
	"net/http"
)

const maxErrorBody = 256

var (
	ErrNoSession          = errors.New("auth: no session")
	ErrLoginCancelled     = errors.New("auth: login cancelled")
	ErrNoCode             = errors.New("auth: no authorization code in the redirect")
	ErrUnknownProvider    = errors.New("auth: unknown login provider")
	ErrStateMismatch      = errors.New("auth: state mismatch")
	ErrSessionExpired     = errors.New("auth: session expired")
	ErrMissingAccessToken = errors.New("auth: no access token in the response")
)

// Error is a login, refresh or userinfo failure.
type Error struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Status > 0 && e.Body != "":
		return fmt.Sprintf("auth: %s: status %d: %s", e.Op, e.Status, e.Body)
	case e.Status > 0:
		return fmt.Sprintf("auth: %s: status %d", e.Op, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("auth: %s: %v", e.Op, e.Err)
	}
	return "auth: " + e.Op
}

func (e *Error) Unwrap() error   { return e.Err }
func (e *Error) HTTPStatus() int { return e.Status }

func newHTTPError(op string, status int, body []byte) *Error {
	return &Error{Op: op, Status: status, Body: truncate(body)}
}

func truncate(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody]) + "…"
	}
	return string(body)
}

// IsUnauthorized checks if the error came from a 401 response.
// Any error in the chain with the HTTPStatus() int method is considered.
func IsUnauthorized(err error) bool {
	var s interface{ HTTPStatus() int }
	if errors.As(err, &s) {
		return s.HTTPStatus() == http.StatusUnauthorized
	}
	return false
}
