// Package fmshim reaches the platform-native on-device language model
// through a dynamically loaded shim library that exports C entry points.
// The shim is loaded with purego (dlopen/dlsym), so no cgo is needed on
// the Go side.
//
// On platforms without the shim (or when built with the fmstub tag) the
// engine loads a stub that reports DeviceNotEligible, which keeps the
// fmshim configuration valid on development machines.
package fmshim

import (
	"context"
	"errors"
	"strings"
	"sync"

	"libai/backend"
)

// Shim availability codes, as returned by CheckModelAvailability.
// These mirror the platform's model availability enumeration.
const (
	shimAvailable         = 0
	shimAINotEnabled      = 1
	shimNotReady          = 2
	shimDeviceNotEligible = 3
)

// Config holds the engine settings.
type Config struct {
	// ShimPath is the shim library location. Empty means probe the
	// well-known install locations for this platform.
	ShimPath string

	// Instructions is an optional default system instruction passed to
	// shim sessions that have no system turn of their own.
	Instructions string
}

// shimBindings is the loaded-library contract. The real implementation
// lives behind a build tag; the stub satisfies it everywhere else.
type shimBindings interface {
	availability() (int, string)
	respond(transcript string, instructions string, temperature float64, maxTokens int) (string, error)
	close() error
}

// Engine is the platform-shim backend.Engine implementation.
type Engine struct {
	shim         shimBindings
	instructions string

	mu     sync.Mutex
	closed bool
}

// New loads the shim library and returns a ready engine.
// Loading failures are returned as errors so the caller can fall back;
// an ineligible device is NOT a loading failure (the stub loads fine and
// reports DeviceNotEligible from Probe).
func New(cfg Config) (*Engine, error) {
	shim, err := loadShim(cfg.ShimPath)
	if err != nil {
		return nil, err
	}
	return &Engine{
		shim:         shim,
		instructions: cfg.Instructions,
	}, nil
}

// Kind returns "fmshim".
func (e *Engine) Kind() string { return "fmshim" }

// Probe queries the shim's model availability. The result is produced
// fresh on every call.
func (e *Engine) Probe(ctx context.Context) (backend.Availability, string) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return backend.Unavailable, "backend closed"
	}

	code, reason := e.shim.availability()
	switch code {
	case shimAvailable:
		return backend.Available, ""
	case shimAINotEnabled:
		if reason == "" {
			reason = "on-device intelligence is not enabled"
		}
		return backend.Unavailable, reason
	case shimNotReady:
		if reason == "" {
			reason = "model assets are not ready"
		}
		return backend.Unavailable, reason
	case shimDeviceNotEligible:
		if reason == "" {
			reason = "this device is not eligible for the on-device model"
		}
		return backend.DeviceNotEligible, reason
	default:
		if reason == "" {
			reason = "model availability unknown"
		}
		return backend.Unavailable, reason
	}
}

// Respond serializes the transcript and round-trips it through the shim.
// The shim session is created per call: transcript state lives in the
// runtime, not in the platform session.
func (e *Engine) Respond(ctx context.Context, transcript []backend.Turn, opts backend.ResolvedOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return "", errors.New("backend closed")
	}
	if len(transcript) == 0 {
		return "", errors.New("transcript is empty")
	}

	instructions := opts.SystemPrompt
	if instructions == "" {
		instructions = e.instructions
	}
	// A leading system turn in the transcript takes precedence over both.
	body := transcript
	if body[0].Role == backend.RoleSystem {
		instructions = body[0].Text
		body = body[1:]
	}

	return e.shim.respond(renderTranscript(body), instructions, opts.Temperature, opts.MaxTokens)
}

// Close releases the shim library resources.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	return e.shim.close()
}

// renderTranscript flattens a transcript into the prompt text the shim
// receives: one "role: text" line per turn.
func renderTranscript(transcript []backend.Turn) string {
	var sb strings.Builder
	for i, turn := range transcript {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(turn.Role)
		sb.WriteString(": ")
		sb.WriteString(turn.Text)
	}
	return sb.String()
}
