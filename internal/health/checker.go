// Package health exposes the liveness and readiness signals consumed by the
// orchestration layer. Liveness is "the process is up"; readiness verifies
// the core can actually reach its backends, which is cheap but not free, so
// the two stay distinct.
package health

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Pinger is any dependency with a cheap reachability probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function to the Pinger interface.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// Checker fans a readiness probe out over every registered dependency.
type Checker struct {
	deps map[string]Pinger
}

// NewChecker builds an empty checker.
func NewChecker() *Checker {
	return &Checker{deps: make(map[string]Pinger)}
}

// Register adds a named dependency. Not safe for concurrent use; call during
// startup wiring only.
func (c *Checker) Register(name string, p Pinger) {
	c.deps[name] = p
}

// Ready probes all dependencies concurrently and returns the first failure.
func (c *Checker) Ready(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for name, dep := range c.deps {
		g.Go(func() error {
			if err := dep.Ping(ctx); err != nil {
				return &DependencyError{Name: name, Err: err}
			}
			return nil
		})
	}
	return g.Wait()
}

// DependencyError names the dependency that failed a readiness probe.
type DependencyError struct {
	Name string
	Err  error
}

func (e *DependencyError) Error() string {
	return "dependency " + e.Name + " not ready: " + e.Err.Error()
}

func (e *DependencyError) Unwrap() error { return e.Err }
