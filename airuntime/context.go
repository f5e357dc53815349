package airuntime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"libai/backend"
	"libai/core"
	"libai/history"
	"libai/logging"
	"libai/telemetry"
)

// Stats are the per-context request counters. The three values are updated
// under one lock, so total == successful + failed holds at every snapshot.
type Stats struct {
	// TotalRequests counts every generate attempt on this context
	TotalRequests uint64 `json:"total_requests"`

	// SuccessfulRequests counts attempts that returned a reply
	SuccessfulRequests uint64 `json:"successful_requests"`

	// FailedRequests counts attempts that returned an error
	FailedRequests uint64 `json:"failed_requests"`
}

// Context multiplexes a set of sessions over one library instance and is
// the unit of error reporting and statistics aggregation.
//
// A Context is safe for concurrent use: the session map has its own
// RWMutex, each session serializes its own generates, and the stats triple
// plus last_error share a dedicated mutex.
type Context struct {
	id  uint64
	lib *Library

	// mu guards the session map, creation order, id allocator, and the
	// closed flag.
	mu          sync.RWMutex
	sessions    map[SessionID]*session
	order       []SessionID
	nextSession SessionID
	closed      bool

	// statsMu guards the counters and lastError together.
	statsMu   sync.Mutex
	stats     Stats
	lastError string

	log *logging.Logger
}

func newContext(id uint64, lib *Library) *Context {
	return &Context{
		id:       id,
		lib:      lib,
		sessions: make(map[SessionID]*session),
		log:      lib.log.With(zap.Uint64("context_id", id)),
	}
}

// ID returns the context's library-unique identifier.
func (c *Context) ID() uint64 {
	return c.id
}

// NewSession allocates a session with a fresh unique id and an empty
// transcript. The opts become the session's generation defaults, merged
// under per-call options on each generate; nil means library defaults.
//
// If the backend reports it cannot currently serve, the call fails with
// ErrSessionAllocationFailed, records the reason in LastError, and returns
// InvalidSessionID.
func (c *Context) NewSession(opts *GenerationOptions) (SessionID, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return InvalidSessionID, core.NewRuntimeError("new_session", core.ErrInvalidContext, "context is closed")
	}
	c.mu.Unlock()

	// Probe outside the map lock; the round trip may touch the platform.
	if avail, reason := c.lib.engine.Probe(context.Background()); avail != backend.Available {
		msg := fmt.Sprintf("backend %s: %s", avail, reason)
		c.setLastError(msg)
		c.log.Warn("session allocation refused", zap.String("reason", msg))
		return InvalidSessionID, core.NewRuntimeError("new_session", core.ErrSessionAllocationFailed, msg)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return InvalidSessionID, core.NewRuntimeError("new_session", core.ErrInvalidContext, "context is closed")
	}
	c.nextSession++
	sid := c.nextSession
	c.sessions[sid] = newSession(sid, opts)
	c.order = append(c.order, sid)
	c.mu.Unlock()

	if c.lib.store != nil {
		c.lib.store.RecordSession(c.id, int32(sid))
	}
	c.log.Info("session created", zap.Int32("session_id", int32(sid)))
	return sid, nil
}

// Generate performs one blocking prompt/reply round trip on the given
// session. The prompt is appended as a user turn before the backend call;
// on failure the user turn stays in the transcript (no rollback) and the
// session remains active and usable.
//
// Same-session calls are serialized; calls on different sessions of this
// context proceed concurrently.
func (c *Context) Generate(ctx context.Context, sid SessionID, prompt string, opts *GenerationOptions) (string, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		// A dead context is not a unit of aggregation: no counters move.
		return "", core.NewRuntimeError("generate", core.ErrInvalidContext, "context is closed")
	}
	sess, ok := c.sessions[sid]
	c.mu.RUnlock()

	if !ok {
		msg := fmt.Sprintf("no active session with id %d", sid)
		c.recordFailure(msg)
		return "", core.NewRuntimeError("generate", core.ErrInvalidSession, msg)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.status != sessionActive {
		msg := fmt.Sprintf("session %d is closed", sid)
		c.recordFailure(msg)
		return "", core.NewRuntimeError("generate", core.ErrInvalidSession, msg)
	}

	requestID := uuid.NewString()
	sess.appendTurn(backend.RoleUser, prompt)
	if c.lib.store != nil {
		// Persisted history mirrors the transcript, so the user turn is
		// recorded now: a failed exchange keeps its prompt either way.
		c.lib.store.RecordTurn(history.TurnRow{
			ContextID: c.id,
			SessionID: int32(sid),
			Role:      backend.RoleUser,
			Text:      prompt,
		})
	}
	transcript := sess.snapshot()
	resolved := resolveOptions(c.lib.cfg, sess.opts, opts)

	callCtx := ctx
	var cancel context.CancelFunc
	if c.lib.cfg.RequestTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, c.lib.cfg.RequestTimeout)
		defer cancel()
	}

	start := time.Now()
	reply, err := c.lib.engine.Respond(callCtx, transcript, resolved)
	latency := time.Since(start)
	promptTokens := backend.TranscriptTokens(transcript)

	if err != nil {
		failure := core.BackendFailure("generate", err)
		c.recordFailure(failure.Message)
		c.observeRequest(telemetry.RequestRecord{
			RequestID:    requestID,
			Backend:      c.lib.engine.Kind(),
			Status:       telemetry.StatusError,
			Latency:      latency,
			PromptTokens: promptTokens,
			ErrorMsg:     failure.Message,
		}, sid)
		c.log.Error("generate failed",
			zap.String("request_id", requestID),
			zap.Int32("session_id", int32(sid)),
			zap.Duration("latency", latency),
			zap.Error(err),
		)
		return "", failure
	}

	sess.appendTurn(backend.RoleAssistant, reply)
	c.recordSuccess()
	c.observeRequest(telemetry.RequestRecord{
		RequestID:    requestID,
		Backend:      c.lib.engine.Kind(),
		Status:       telemetry.StatusSuccess,
		Latency:      latency,
		PromptTokens: promptTokens,
		ReplyTokens:  backend.EstimateTokens(reply),
	}, sid)
	if c.lib.store != nil {
		c.lib.store.RecordTurn(history.TurnRow{
			ContextID: c.id,
			SessionID: int32(sid),
			Role:      backend.RoleAssistant,
			Text:      reply,
		})
	}
	c.log.Info("generate complete",
		zap.String("request_id", requestID),
		zap.Int32("session_id", int32(sid)),
		zap.Duration("latency", latency),
		zap.String("prompt", prompt),
		zap.String("reply", reply),
	)
	return reply, nil
}

// SessionHistory returns the session's transcript serialized one turn per
// line as "role: text", lines joined with a single newline. An empty
// transcript yields an empty string.
func (c *Context) SessionHistory(sid SessionID) (string, error) {
	c.mu.RLock()
	sess, ok := c.sessions[sid]
	closed := c.closed
	c.mu.RUnlock()

	if closed {
		return "", core.NewRuntimeError("session_history", core.ErrInvalidContext, "context is closed")
	}
	if !ok {
		return "", core.NewRuntimeError("session_history", core.ErrInvalidSession,
			fmt.Sprintf("no active session with id %d", sid))
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return renderHistory(sess.transcript), nil
}

// CloseSession destroys a session. The id is never reused; later
// operations on it fail with ErrInvalidSession.
func (c *Context) CloseSession(sid SessionID) error {
	c.mu.Lock()
	sess, ok := c.sessions[sid]
	if ok {
		delete(c.sessions, sid)
		for i, id := range c.order {
			if id == sid {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
	}
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return core.NewRuntimeError("close_session", core.ErrInvalidContext, "context is closed")
	}
	if !ok {
		return core.NewRuntimeError("close_session", core.ErrInvalidSession,
			fmt.Sprintf("no active session with id %d", sid))
	}

	sess.mu.Lock()
	sess.status = sessionClosed
	sess.mu.Unlock()

	c.log.Info("session closed", zap.Int32("session_id", int32(sid)))
	return nil
}

// Sessions enumerates the live session ids in creation order.
func (c *Context) Sessions() []SessionID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]SessionID, len(c.order))
	copy(out, c.order)
	return out
}

// Stats returns a snapshot of the request counters.
func (c *Context) Stats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

// LastError returns the most recent error message recorded on this
// context, or the empty string. Reading never clears it.
func (c *Context) LastError() string {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.lastError
}

// Close destroys the context and all of its sessions and releases it from
// the owning library. Further use fails with ErrInvalidContext.
func (c *Context) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return core.NewRuntimeError("context_close", core.ErrInvalidContext, "context already closed")
	}
	c.closed = true
	sessions := make([]*session, 0, len(c.sessions))
	for _, sess := range c.sessions {
		sessions = append(sessions, sess)
	}
	c.sessions = make(map[SessionID]*session)
	c.order = nil
	c.mu.Unlock()

	for _, sess := range sessions {
		sess.mu.Lock()
		sess.status = sessionClosed
		sess.mu.Unlock()
	}

	c.lib.releaseContext(c.id)
	c.log.Info("context closed", zap.Int("sessions_closed", len(sessions)))
	return nil
}

func (c *Context) recordSuccess() {
	c.statsMu.Lock()
	c.stats.TotalRequests++
	c.stats.SuccessfulRequests++
	c.statsMu.Unlock()
}

func (c *Context) recordFailure(msg string) {
	c.statsMu.Lock()
	c.stats.TotalRequests++
	c.stats.FailedRequests++
	c.lastError = msg
	c.statsMu.Unlock()
}

func (c *Context) setLastError(msg string) {
	c.statsMu.Lock()
	c.lastError = msg
	c.statsMu.Unlock()
}

// observeRequest forwards one request outcome to telemetry and, when
// persistence is on, the history store.
func (c *Context) observeRequest(rec telemetry.RequestRecord, sid SessionID) {
	c.lib.metrics.Record(rec)
	if c.lib.store != nil {
		c.lib.store.RecordRequest(history.RequestRow{
			RequestID:    rec.RequestID,
			ContextID:    c.id,
			SessionID:    int32(sid),
			Backend:      rec.Backend,
			Status:       rec.Status,
			Latency:      rec.Latency,
			PromptTokens: rec.PromptTokens,
			ReplyTokens:  rec.ReplyTokens,
			ErrorMsg:     rec.ErrorMsg,
		})
	}
}
