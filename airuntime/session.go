package airuntime

import (
	"strings"
	"sync"

	"libai/backend"
)

// SessionID identifies a session within its owning context. Ids are
// allocated monotonically from 1 and never reused while the context is
// alive; InvalidSessionID is the failure sentinel.
type SessionID int32

// InvalidSessionID is returned by NewSession when allocation fails.
const InvalidSessionID SessionID = 0

// Session statuses.
const (
	sessionActive = iota
	sessionClosed
)

// session is one conversational transcript. The mutex serializes generate
// calls on the same session so the append-prompt/append-reply pair stays
// atomic; distinct sessions proceed independently.
type session struct {
	id SessionID

	// opts are the session-level generation defaults, merged under
	// per-call options on each generate.
	opts *GenerationOptions

	mu         sync.Mutex
	transcript []backend.Turn
	status     int
}

func newSession(id SessionID, opts *GenerationOptions) *session {
	return &session{
		id:   id,
		opts: opts.clone(),
	}
}

// appendTurn records a turn. Caller holds s.mu.
func (s *session) appendTurn(role, text string) {
	s.transcript = append(s.transcript, backend.Turn{Role: role, Text: text})
}

// snapshot copies the transcript so the engine round trip works on an
// immutable view. Caller holds s.mu.
func (s *session) snapshot() []backend.Turn {
	out := make([]backend.Turn, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// renderHistory serializes a transcript in the documented stable format:
// one "role: text" line per turn, joined with a single newline, no
// trailing newline.
func renderHistory(transcript []backend.Turn) string {
	lines := make([]string, len(transcript))
	for i, turn := range transcript {
		lines[i] = turn.Role + ": " + turn.Text
	}
	return strings.Join(lines, "\n")
}
