package service

import (
	"context"
	"errors"
	"fmt"
)

// Service is a background part of the client, like the monitoring server.
type Service interface {
	Run()
	Shutdown(ctx context.Context) error
}

// Group starts services in the order they were added
// and stops them in reverse.
type Group struct {
	list []Service
}

func (g *Group) Add(services ...Service) { g.list = append(g.list, services...) }

func (g *Group) Len() int { return len(g.list) }

func (g *Group) Start() {
	for _, s := range g.list {
		s.Run()
	}
}

// Shutdown stops every service even if some of them fail.
func (g *Group) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(g.list) - 1; i >= 0; i-- {
		if err := g.list[i].Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, fmt.Errorf("stop %v: %w", g.list[i], err))
		}
	}
	return errors.Join(errs...)
}
