package auth

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// Surface shows the authorization page to the user.
// It returns the first URL the page navigates to
// that starts with the redirect prefix.
type Surface interface {
	Authorize(ctx context.Context, authURL, redirectPrefix string) (string, error)
}

// SurfaceFunc is a function adapter for Surface.
type SurfaceFunc func(ctx context.Context, authURL, redirectPrefix string) (string, error)

func (f SurfaceFunc) Authorize(ctx context.Context, authURL, redirectPrefix string) (string, error) {
	return f(ctx, authURL, redirectPrefix)
}

// ConsoleSurface asks the user to open the URL in a browser
// and paste back the address of the page they were redirected to.
type ConsoleSurface struct {
	In  io.Reader
	Out io.Writer
}

func (c ConsoleSurface) Authorize(ctx context.Context, authURL, redirectPrefix string) (string, error) {
	_, _ = fmt.Fprintf(c.Out, "Open this address in your browser and log in:\n\n  %s\n\n", authURL)
	_, _ = fmt.Fprintf(c.Out, "Then paste the address starting with %s here:\n", redirectPrefix)

	lines := make(chan string)
	done := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		scanner := bufio.NewScanner(c.In)
		scanner.Buffer(make([]byte, 0, 4096), 64*1024)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-stop:
				return
			}
		}
		done <- scanner.Err()
	}()

	for {
		select {
		case line := <-lines:
			if strings.HasPrefix(line, redirectPrefix) {
				return line, nil
			}
			if line != "" {
				_, _ = fmt.Fprintf(c.Out, "The address should start with %s\n", redirectPrefix)
			}
		case err := <-done:
			if err != nil {
				return "", err
			}
			return "", ErrLoginCancelled
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}
