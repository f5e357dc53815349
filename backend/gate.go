package backend

import (
	"context"
	"errors"
	"sync"
)

// Gate decorates an Engine with a bound on concurrent Respond calls.
//
// This is a molecule that composes a channel semaphore with the Engine
// contract: callers queue FIFO on the semaphore and still honor their
// context while waiting. Probe and Kind pass through ungated.
type Gate struct {
	inner Engine
	slots chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewGate wraps inner with a limit on in-flight Respond calls.
// A limit <= 0 means unbounded; the engine is returned unwrapped.
func NewGate(inner Engine, limit int) Engine {
	if limit <= 0 {
		return inner
	}
	return &Gate{
		inner: inner,
		slots: make(chan struct{}, limit),
	}
}

// Kind returns the wrapped engine's kind.
func (g *Gate) Kind() string { return g.inner.Kind() }

// Probe passes through to the wrapped engine without taking a slot.
func (g *Gate) Probe(ctx context.Context) (Availability, string) {
	g.mu.Lock()
	closed := g.closed
	g.mu.Unlock()
	if closed {
		return Unavailable, "backend closed"
	}
	return g.inner.Probe(ctx)
}

// Respond acquires a slot, then delegates. Waiting respects the caller's
// context; a call that never gets a slot fails with the context's error.
func (g *Gate) Respond(ctx context.Context, transcript []Turn, opts ResolvedOptions) (string, error) {
	g.mu.Lock()
	closed := g.closed
	g.mu.Unlock()
	if closed {
		return "", errors.New("backend closed")
	}

	select {
	case g.slots <- struct{}{}:
		defer func() { <-g.slots }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	return g.inner.Respond(ctx, transcript, opts)
}

// Close marks the gate closed and closes the wrapped engine. In-flight
// calls finish; new calls fail fast without touching the engine.
func (g *Gate) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	g.mu.Unlock()

	return g.inner.Close()
}

// InFlight returns the number of Respond calls currently holding a slot.
func (g *Gate) InFlight() int {
	return len(g.slots)
}
