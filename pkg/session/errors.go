package session

import (
	"errors"
	"fmt"
)

var (
	ErrClaimExhausted = errors.New("session: claim attempts exhausted")
	ErrNoSignaling    = errors.New("session: no signaling address")
	ErrNoSession      = errors.New("session: no session in the response")
)

// Error is a failed session service call.
// Code is the service status code (requestStatus.statusCode) or
// the session status, Body is the raw response.
type Error struct {
	Op     string
	Status int
	Code   int
	Body   string
	Err    error
}

func (e *Error) Error() string {
	msg := "session: " + e.Op
	if e.Status > 0 {
		msg += fmt.Sprintf(": status %d", e.Status)
	}
	if e.Code != 0 {
		msg += fmt.Sprintf(": code %d", e.Code)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Body != "" {
		body := e.Body
		if len(body) > 256 {
			body = body[:256] + "…"
		}
		msg += ": " + body
	}
	return msg
}

func (e *Error) Unwrap() error   { return e.Err }
func (e *Error) HTTPStatus() int { return e.Status }
