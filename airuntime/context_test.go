package airuntime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"libai/backend"
	"libai/core"
)

// newTestLibrary builds an echo-backed library. MaxConcurrent is negative
// so tests can reach the raw engine for failure injection.
func newTestLibrary(t *testing.T) *Library {
	t.Helper()
	lib, err := New(core.Config{Backend: core.BackendEcho, MaxConcurrent: -1})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = lib.Close() })
	return lib
}

func echoEngine(t *testing.T, lib *Library) *backend.Echo {
	t.Helper()
	echo, ok := lib.engine.(*backend.Echo)
	if !ok {
		t.Fatalf("engine is %T, want *backend.Echo", lib.engine)
	}
	return echo
}

func mustContext(t *testing.T, lib *Library) *Context {
	t.Helper()
	ctx, err := lib.NewContext()
	if err != nil {
		t.Fatalf("NewContext() error = %v", err)
	}
	return ctx
}

func mustSession(t *testing.T, c *Context) SessionID {
	t.Helper()
	sid, err := c.NewSession(nil)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	return sid
}

func TestCanonicalFlow(t *testing.T) {
	lib := newTestLibrary(t)
	c := mustContext(t, lib)

	sid := mustSession(t, c)
	if sid != 1 {
		t.Errorf("first session id = %d, want 1", sid)
	}

	reply, err := c.Generate(context.Background(), sid, "Hello", nil)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if reply == "" {
		t.Fatal("Generate() returned an empty reply")
	}

	stats := c.Stats()
	want := Stats{TotalRequests: 1, SuccessfulRequests: 1, FailedRequests: 0}
	if stats != want {
		t.Errorf("Stats() = %+v, want %+v", stats, want)
	}

	history, err := c.SessionHistory(sid)
	if err != nil {
		t.Fatalf("SessionHistory() error = %v", err)
	}
	wantHistory := "user: Hello\nassistant: " + reply
	if history != wantHistory {
		t.Errorf("SessionHistory() = %q, want %q", history, wantHistory)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Context.Close() error = %v", err)
	}
	if err := lib.Close(); err != nil {
		t.Fatalf("Library.Close() error = %v", err)
	}
}

func TestSessionIDsUniqueAndIncreasing(t *testing.T) {
	lib := newTestLibrary(t)
	c := mustContext(t, lib)

	var prev SessionID
	for i := 0; i < 5; i++ {
		sid := mustSession(t, c)
		if sid <= prev {
			t.Fatalf("session id %d not greater than previous %d", sid, prev)
		}
		prev = sid
	}

	// Closing a session must not free its id for reuse.
	if err := c.CloseSession(3); err != nil {
		t.Fatalf("CloseSession(3) error = %v", err)
	}
	if sid := mustSession(t, c); sid != 6 {
		t.Errorf("id after close = %d, want 6 (no reuse)", sid)
	}
}

func TestSessionsEnumerationOrder(t *testing.T) {
	lib := newTestLibrary(t)
	c := mustContext(t, lib)

	for i := 0; i < 3; i++ {
		mustSession(t, c)
	}
	if err := c.CloseSession(2); err != nil {
		t.Fatalf("CloseSession(2) error = %v", err)
	}

	got := c.Sessions()
	want := []SessionID{1, 3}
	if len(got) != len(want) {
		t.Fatalf("Sessions() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Sessions()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestGenerateUnknownSession(t *testing.T) {
	lib := newTestLibrary(t)
	c := mustContext(t, lib)
	sid := mustSession(t, c)

	_, err := c.Generate(context.Background(), 99, "Hello", nil)
	if !errors.Is(err, core.ErrInvalidSession) {
		t.Fatalf("Generate(unknown) error = %v, want ErrInvalidSession", err)
	}

	stats := c.Stats()
	want := Stats{TotalRequests: 1, SuccessfulRequests: 0, FailedRequests: 1}
	if stats != want {
		t.Errorf("Stats() = %+v, want %+v", stats, want)
	}
	if c.LastError() == "" {
		t.Error("LastError() is empty after a failed generate")
	}

	// The valid session's transcript must be untouched.
	history, err := c.SessionHistory(sid)
	if err != nil {
		t.Fatalf("SessionHistory() error = %v", err)
	}
	if history != "" {
		t.Errorf("valid session transcript touched: %q", history)
	}
}

func TestGenerateOnClosedSession(t *testing.T) {
	lib := newTestLibrary(t)
	c := mustContext(t, lib)
	sid := mustSession(t, c)

	if err := c.CloseSession(sid); err != nil {
		t.Fatalf("CloseSession() error = %v", err)
	}

	if _, err := c.Generate(context.Background(), sid, "Hello", nil); !errors.Is(err, core.ErrInvalidSession) {
		t.Errorf("Generate(closed) error = %v, want ErrInvalidSession", err)
	}
	if _, err := c.SessionHistory(sid); !errors.Is(err, core.ErrInvalidSession) {
		t.Errorf("SessionHistory(closed) error = %v, want ErrInvalidSession", err)
	}
	if err := c.CloseSession(sid); !errors.Is(err, core.ErrInvalidSession) {
		t.Errorf("second CloseSession error = %v, want ErrInvalidSession", err)
	}
}

func TestGenerateBackendFailureKeepsUserTurn(t *testing.T) {
	lib := newTestLibrary(t)
	c := mustContext(t, lib)
	sid := mustSession(t, c)

	echoEngine(t, lib).SetFailure(errors.New("model overloaded"))

	_, err := c.Generate(context.Background(), sid, "Hello", nil)
	if !errors.Is(err, core.ErrBackend) {
		t.Fatalf("Generate() error = %v, want ErrBackend", err)
	}

	stats := c.Stats()
	want := Stats{TotalRequests: 1, SuccessfulRequests: 0, FailedRequests: 1}
	if stats != want {
		t.Errorf("Stats() = %+v, want %+v", stats, want)
	}

	// No rollback: the prompt stays as a dangling user turn.
	history, err := c.SessionHistory(sid)
	if err != nil {
		t.Fatalf("SessionHistory() error = %v", err)
	}
	if history != "user: Hello" {
		t.Errorf("SessionHistory() = %q, want %q", history, "user: Hello")
	}

	// The session stays active: clearing the failure makes it usable.
	echoEngine(t, lib).SetFailure(nil)
	if _, err := c.Generate(context.Background(), sid, "Hi", nil); err != nil {
		t.Fatalf("Generate() after recovery error = %v", err)
	}
	if got := c.Stats(); got.TotalRequests != got.SuccessfulRequests+got.FailedRequests {
		t.Errorf("stats invariant broken: %+v", got)
	}
}

func TestNewSessionWhenBackendUnavailable(t *testing.T) {
	lib := newTestLibrary(t)
	c := mustContext(t, lib)

	// A closed engine probes Unavailable.
	if err := echoEngine(t, lib).Close(); err != nil {
		t.Fatalf("engine close error = %v", err)
	}

	sid, err := c.NewSession(nil)
	if !errors.Is(err, core.ErrSessionAllocationFailed) {
		t.Fatalf("NewSession() error = %v, want ErrSessionAllocationFailed", err)
	}
	if sid != InvalidSessionID {
		t.Errorf("NewSession() id = %d, want %d", sid, InvalidSessionID)
	}
	if c.LastError() == "" {
		t.Error("LastError() is empty after refused allocation")
	}
}

func TestContextUseAfterClose(t *testing.T) {
	lib := newTestLibrary(t)
	c := mustContext(t, lib)
	sid := mustSession(t, c)

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, err := c.NewSession(nil); !errors.Is(err, core.ErrInvalidContext) {
		t.Errorf("NewSession() error = %v, want ErrInvalidContext", err)
	}
	if _, err := c.Generate(context.Background(), sid, "Hello", nil); !errors.Is(err, core.ErrInvalidContext) {
		t.Errorf("Generate() error = %v, want ErrInvalidContext", err)
	}
	if _, err := c.SessionHistory(sid); !errors.Is(err, core.ErrInvalidContext) {
		t.Errorf("SessionHistory() error = %v, want ErrInvalidContext", err)
	}
	if err := c.Close(); !errors.Is(err, core.ErrInvalidContext) {
		t.Errorf("second Close() error = %v, want ErrInvalidContext", err)
	}
}

func TestMultiTurnHistoryOrder(t *testing.T) {
	lib := newTestLibrary(t)
	c := mustContext(t, lib)
	sid := mustSession(t, c)

	prompts := []string{"first", "second", "third"}
	for _, p := range prompts {
		if _, err := c.Generate(context.Background(), sid, p, nil); err != nil {
			t.Fatalf("Generate(%q) error = %v", p, err)
		}
	}

	history, err := c.SessionHistory(sid)
	if err != nil {
		t.Fatalf("SessionHistory() error = %v", err)
	}
	want := "user: first\nassistant: You said: first\n" +
		"user: second\nassistant: You said: second\n" +
		"user: third\nassistant: You said: third"
	if history != want {
		t.Errorf("SessionHistory() = %q, want %q", history, want)
	}
}

func TestConcurrentGeneratesDistinctSessions(t *testing.T) {
	lib := newTestLibrary(t)
	c := mustContext(t, lib)

	const sessions = 8
	ids := make([]SessionID, sessions)
	for i := range ids {
		ids[i] = mustSession(t, c)
	}

	var wg sync.WaitGroup
	for i, sid := range ids {
		wg.Add(1)
		go func(i int, sid SessionID) {
			defer wg.Done()
			if _, err := c.Generate(context.Background(), sid, fmt.Sprintf("prompt %d", i), nil); err != nil {
				t.Errorf("Generate(session %d) error = %v", sid, err)
			}
		}(i, sid)
	}
	wg.Wait()

	stats := c.Stats()
	if stats.TotalRequests != sessions || stats.SuccessfulRequests != sessions {
		t.Errorf("Stats() = %+v, want %d successes", stats, sessions)
	}
	for i, sid := range ids {
		history, err := c.SessionHistory(sid)
		if err != nil {
			t.Fatalf("SessionHistory(%d) error = %v", sid, err)
		}
		want := fmt.Sprintf("user: prompt %d\nassistant: You said: prompt %d", i, i)
		if history != want {
			t.Errorf("session %d history = %q, want %q", sid, history, want)
		}
	}
}

func TestConcurrentGeneratesSameSessionSerialized(t *testing.T) {
	lib := newTestLibrary(t)
	c := mustContext(t, lib)
	sid := mustSession(t, c)

	const calls = 16
	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Generate(context.Background(), sid, "Hello", nil); err != nil {
				t.Errorf("Generate() error = %v", err)
			}
		}()
	}
	wg.Wait()

	stats := c.Stats()
	if stats.TotalRequests != stats.SuccessfulRequests+stats.FailedRequests {
		t.Errorf("stats invariant broken: %+v", stats)
	}
	if stats.SuccessfulRequests != calls {
		t.Errorf("SuccessfulRequests = %d, want %d", stats.SuccessfulRequests, calls)
	}

	// Serialization keeps the transcript strictly alternating.
	history, err := c.SessionHistory(sid)
	if err != nil {
		t.Fatalf("SessionHistory() error = %v", err)
	}
	lines := strings.Split(history, "\n")
	for i, line := range lines {
		wantPrefix := "user: "
		if i%2 == 1 {
			wantPrefix = "assistant: "
		}
		if !strings.HasPrefix(line, wantPrefix) {
			t.Fatalf("line %d = %q, want prefix %q", i, line, wantPrefix)
		}
	}
	if len(lines) != calls*2 {
		t.Errorf("transcript lines = %d, want %d", len(lines), calls*2)
	}
}
