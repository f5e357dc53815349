package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Echo is a deterministic in-process engine for tests and development
// machines without a live model. It replies with a canned greeting for
// greeting-shaped prompts and otherwise echoes the prompt back, so
// transcripts stay human-readable in smoke runs.
type Echo struct {
	mu     sync.Mutex
	closed bool

	// FailWith, when set, makes every Respond call fail with this error.
	// Tests use it to exercise the failure path.
	FailWith error
}

// NewEcho creates a ready Echo engine.
func NewEcho() *Echo {
	return &Echo{}
}

// Kind returns "echo".
func (e *Echo) Kind() string { return "echo" }

// Probe reports Available until the engine is closed.
func (e *Echo) Probe(ctx context.Context) (Availability, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return Unavailable, "echo engine closed"
	}
	return Available, ""
}

// Respond replies deterministically from the last user turn.
func (e *Echo) Respond(ctx context.Context, transcript []Turn, opts ResolvedOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	e.mu.Lock()
	closed := e.closed
	failWith := e.FailWith
	e.mu.Unlock()

	if closed {
		return "", errors.New("echo engine closed")
	}
	if failWith != nil {
		return "", failWith
	}

	prompt := lastUserTurn(transcript)
	if prompt == "" {
		return "", errors.New("transcript has no user turn")
	}

	switch prompt {
	case "Hello", "hello", "Hi", "hi":
		return "Hello! How can I help you today?", nil
	default:
		return fmt.Sprintf("You said: %s", prompt), nil
	}
}

// SetFailure configures the engine to fail every Respond call with err.
// Passing nil restores normal operation.
func (e *Echo) SetFailure(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.FailWith = err
}

// Close marks the engine closed. Subsequent Respond calls fail and Probe
// reports Unavailable.
func (e *Echo) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// lastUserTurn returns the text of the most recent user turn, or "".
func lastUserTurn(transcript []Turn) string {
	for i := len(transcript) - 1; i >= 0; i-- {
		if transcript[i].Role == RoleUser {
			return transcript[i].Text
		}
	}
	return ""
}
