package network

import (
	"context"
	"errors"
	"time"
)

var ErrRetryExhausted = errors.New("retry attempts exhausted")

// Retry runs some function a fixed number of times
// with a constant delay between the calls.
type Retry struct {
	attempts int
	delay    time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewRetry(attempts int, delay time.Duration) Retry {
	if attempts < 1 {
		attempts = 1
	}
	return Retry{attempts: attempts, delay: delay, sleep: Sleep}
}

// WithSleep replaces the wait function, mostly for tests.
func (r Retry) WithSleep(fn func(ctx context.Context, d time.Duration) error) Retry {
	r.sleep = fn
	return r
}

func (r Retry) Attempts() int        { return r.attempts }
func (r Retry) Delay() time.Duration { return r.delay }

// Do calls fn until it says stop or the attempts run out.
// The delay goes only between the attempts.
// The error of the stopping call is returned as is.
func (r Retry) Do(ctx context.Context, fn func(attempt int) (stop bool, err error)) error {
	for i := 0; i < r.attempts; i++ {
		if i > 0 {
			if err := r.sleep(ctx, r.delay); err != nil {
				return err
			}
		}
		if stop, err := fn(i); stop {
			return err
		}
	}
	return ErrRetryExhausted
}

// Sleep waits for d or until the context is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
