// Package shutdown coordinates ordered teardown of library resources.
package shutdown

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"libai/core"
)

// DefaultEntryTimeout bounds a single teardown entry when the registry was
// created without an explicit timeout.
const DefaultEntryTimeout = 10 * time.Second

// entry holds a registered teardown function with metadata.
type entry struct {
	name     string
	fn       core.ShutdownFunc
	priority int // lower = earlier execution
}

// Registry maintains an ordered collection of teardown functions.
//
// This is a molecule that composes core.ShutdownFunc with priority ordering
// and thread-safe registration. Library.Close runs the registry so the
// pieces come down in a fixed order: history flush before backend close
// before log sync.
//
// Usage:
//
//	registry := NewRegistry(5 * time.Second)
//
//	// Register handlers (lower priority runs first)
//	registry.Register("history", 10, func(ctx context.Context) error {
//	    return store.Close()
//	})
//	registry.Register("backend", 20, func(ctx context.Context) error {
//	    return engine.Close()
//	})
//
//	errs := registry.Run(context.Background())
type Registry struct {
	mu           sync.Mutex
	entries      []entry
	closed       bool
	entryTimeout time.Duration
}

// NewRegistry creates a Registry ready to accept registrations.
// entryTimeout bounds each teardown function individually; zero means
// DefaultEntryTimeout.
func NewRegistry(entryTimeout time.Duration) *Registry {
	if entryTimeout <= 0 {
		entryTimeout = DefaultEntryTimeout
	}
	return &Registry{
		entries:      make([]entry, 0),
		entryTimeout: entryTimeout,
	}
}

// Register adds a teardown function with a name and priority.
// Lower priority values execute earlier. Registration after Run has been
// called is a no-op.
//
// Priority convention in this codebase:
//   - 10: history store (flush pending writes while the backend is alive)
//   - 20: backend engine
//   - 30: log sync (last, so teardown itself is logged)
func (r *Registry) Register(name string, priority int, fn core.ShutdownFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	r.entries = append(r.entries, entry{
		name:     name,
		fn:       fn,
		priority: priority,
	})
}

// Run executes all registered teardown functions in priority order.
// Every function runs even if earlier ones fail; errors are collected,
// labeled with the entry name, and returned. Each entry gets its own
// timeout derived from ctx.
//
// After Run completes the registry is closed; a second Run returns nil.
func (r *Registry) Run(ctx context.Context) []error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true

	sorted := make([]entry, len(r.entries))
	copy(sorted, r.entries)
	timeout := r.entryTimeout
	r.mu.Unlock()

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].priority < sorted[j].priority
	})

	var errs []error
	for _, e := range sorted {
		entryCtx, cancel := context.WithTimeout(ctx, timeout)
		err := runEntry(entryCtx, e)
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("shutdown %s: %w", e.name, err))
		}
	}
	return errs
}

// runEntry runs one teardown function, honoring the entry context even if
// the function itself ignores cancellation.
func runEntry(ctx context.Context, e entry) error {
	done := make(chan error, 1)
	go func() {
		done <- e.fn(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Names returns the names of all registered functions in execution order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	sorted := make([]entry, len(r.entries))
	copy(sorted, r.entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].priority < sorted[j].priority
	})

	names := make([]string, len(sorted))
	for i, e := range sorted {
		names[i] = e.name
	}
	return names
}

// Count returns the number of registered teardown functions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// IsClosed returns true if Run has been called.
func (r *Registry) IsClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
