// Package backend defines the inference engine contract and the adapters
// shared by every backend implementation.
package backend

import "context"

// Turn roles, aligned with the chat-completion convention so adapters can
// pass them through without mapping tables.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one entry of a conversational transcript.
// This is a pure data structure with no behavior.
type Turn struct {
	// Role is one of RoleSystem, RoleUser, RoleAssistant
	Role string `json:"role"`

	// Text is the turn content
	Text string `json:"text"`
}

// Availability is the tri-state result of a platform capability probe.
type Availability int

const (
	// Available means the model can be used right now.
	Available Availability = 0

	// Unavailable means the model exists on this device but cannot
	// currently be used (not enabled, not ready, busy).
	Unavailable Availability = 1

	// DeviceNotEligible means this device cannot run the model at all.
	DeviceNotEligible Availability = 2
)

// String returns the string representation of an availability state.
func (a Availability) String() string {
	switch a {
	case Available:
		return "available"
	case Unavailable:
		return "unavailable"
	case DeviceNotEligible:
		return "device_not_eligible"
	default:
		return "unknown"
	}
}

// ResolvedOptions are the fully merged generation options an engine
// receives. Zero values mean "engine default": the option-merging layer
// above resolves caller, session, and library defaults before a request
// reaches the engine.
type ResolvedOptions struct {
	// Temperature for sampling; 0 means engine default
	Temperature float64

	// MaxTokens bounds the reply length; 0 means engine default
	MaxTokens int

	// SystemPrompt is prepended as a system turn when the transcript
	// does not already start with one; empty means none
	SystemPrompt string
}

// Engine is the inference collaborator contract. Implementations are safe
// for concurrent use; a single Engine is shared by every context of a
// library instance.
//
// Respond is a blocking synchronous round trip. Any returned error is
// treated as an opaque failure by the runtime: its message is recorded on
// the owning context and the request is counted as failed.
type Engine interface {
	// Kind returns the backend identifier ("fmshim", "openai", "echo").
	Kind() string

	// Probe reports whether the engine can currently serve requests,
	// with an optional human-readable reason. The result is produced
	// fresh on every call and never cached.
	Probe(ctx context.Context) (Availability, string)

	// Respond turns a transcript plus resolved options into a reply.
	Respond(ctx context.Context, transcript []Turn, opts ResolvedOptions) (string, error)

	// Close releases engine resources. After Close, Probe reports
	// Unavailable and Respond fails.
	Close() error
}

// EstimateTokens approximates the token count of a text using the
// 4-characters-per-token heuristic. Good enough for telemetry and context
// budgeting; not a tokenizer.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// TranscriptTokens sums the token estimate over a transcript.
func TranscriptTokens(transcript []Turn) int {
	total := 0
	for _, turn := range transcript {
		total += EstimateTokens(turn.Text)
	}
	return total
}
