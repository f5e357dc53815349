// The capi package is the C edge of libai, built as a c-shared library:
//
//	go build -buildmode=c-shared -o libai.dylib ./capi
//
// It guards one process-wide library cell, maps contexts to opaque
// generation-checked handles, and converts strings exactly once per
// boundary crossing. Internal code never sees C types; this file owns
// every allocation that crosses.
package main

/*
#include <stdint.h>
#include <stdlib.h>

// Mirrors of the ai.h wire structs. ai.h itself cannot be included here:
// its const-qualified prototypes would collide with the declarations cgo
// generates for the exported functions.

typedef struct {
	uint64_t total_requests;
	uint64_t successful_requests;
	uint64_t failed_requests;
} ai_stats_t;

typedef struct {
	double      temperature;
	int32_t     max_tokens;
	const char* system_prompt;
} ai_options_t;
*/
import "C"

import (
	"context"
	"sync"
	"sync/atomic"
	"unsafe"

	"libai/airuntime"
	"libai/backend"
	"libai/core"
	"libai/handles"
)

// Cell lifecycle states. Init transitions idle -> starting -> ready with
// compare-and-swap, so a racing second init loses cleanly instead of
// double-building.
const (
	cellIdle int32 = iota
	cellStarting
	cellReady
)

var (
	cellState atomic.Int32
	cellLib   atomic.Pointer[airuntime.Library]

	// reasonMu guards the reason captured by the most recent
	// ai_check_availability; the probe itself is never cached.
	reasonMu   sync.Mutex
	lastReason string

	contexts = handles.NewArena[*contextSlot]()

	versionOnce sync.Once
	versionC    *C.char

	descMu    sync.Mutex
	descCache = map[int32]*C.char{}
)

// contextSlot pairs a context with its borrowed last-error buffer. The
// buffer is owned here: freed on replace and on ai_context_free, never by
// the caller.
type contextSlot struct {
	ctx *airuntime.Context

	mu        sync.Mutex
	lastErrGo string
	lastErrC  *C.char
}

// borrowedError returns the C view of the context's last error, reusing
// the existing buffer while the message is unchanged.
func (s *contextSlot) borrowedError() *C.char {
	msg := s.ctx.LastError()
	if msg == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastErrC == nil || s.lastErrGo != msg {
		if s.lastErrC != nil {
			C.free(unsafe.Pointer(s.lastErrC))
		}
		s.lastErrC = C.CString(msg)
		s.lastErrGo = msg
	}
	return s.lastErrC
}

func (s *contextSlot) release() {
	s.mu.Lock()
	if s.lastErrC != nil {
		C.free(unsafe.Pointer(s.lastErrC))
		s.lastErrC = nil
	}
	s.mu.Unlock()
}

// recoverToCode converts a panic into a result code. No panic may cross
// the C boundary.
func recoverToCode(code *C.int32_t) {
	if r := recover(); r != nil {
		*code = C.int32_t(core.ResultBackend)
	}
}

// recoverToNil converts a panic into a NULL return.
func recoverToNil(out **C.char) {
	if r := recover(); r != nil {
		*out = nil
	}
}

// recoverSwallow drops a panic in void and handle-returning exports.
func recoverSwallow() {
	_ = recover()
}

func library() *airuntime.Library {
	if cellState.Load() != cellReady {
		return nil
	}
	return cellLib.Load()
}

// goOptions translates the optional C options struct; NULL pointer and
// per-field sentinels mean inherit.
func goOptions(p *C.ai_options_t) *airuntime.GenerationOptions {
	if p == nil {
		return nil
	}
	opts := &airuntime.GenerationOptions{}
	if t := float64(p.temperature); t >= 0 {
		opts.Temperature = &t
	}
	if m := int(p.max_tokens); m > 0 {
		opts.MaxTokens = &m
	}
	if p.system_prompt != nil {
		s := C.GoString(p.system_prompt)
		opts.SystemPrompt = &s
	}
	return opts
}

//export ai_init
func ai_init() (code C.int32_t) {
	defer recoverToCode(&code)

	if !cellState.CompareAndSwap(cellIdle, cellStarting) {
		// Soft: the cell is initialized (or becoming so); state is usable.
		return C.int32_t(core.ResultAlreadyInitialized)
	}

	cfg, err := core.LoadConfig()
	if err != nil {
		cellState.Store(cellIdle)
		return C.int32_t(core.ResultOf(err))
	}
	lib, err := airuntime.New(cfg)
	if err != nil {
		cellState.Store(cellIdle)
		return C.int32_t(core.ResultOf(err))
	}

	cellLib.Store(lib)
	cellState.Store(cellReady)
	return C.int32_t(core.ResultSuccess)
}

//export ai_cleanup
func ai_cleanup() (code C.int32_t) {
	defer recoverToCode(&code)

	lib := library()
	if lib == nil {
		return C.int32_t(core.ResultNotInitialized)
	}
	if err := lib.Close(); err != nil {
		return C.int32_t(core.ResultOf(err))
	}

	cellLib.Store(nil)
	cellState.Store(cellIdle)
	reasonMu.Lock()
	lastReason = ""
	reasonMu.Unlock()
	return C.int32_t(core.ResultSuccess)
}

//export ai_get_version
func ai_get_version() *C.char {
	defer recoverSwallow()

	versionOnce.Do(func() {
		versionC = C.CString(core.GetVersion())
	})
	return versionC
}

//export ai_check_availability
func ai_check_availability() (code C.int32_t) {
	defer recoverToCode(&code)

	lib := library()
	if lib == nil {
		reasonMu.Lock()
		lastReason = "library not initialized"
		reasonMu.Unlock()
		return C.int32_t(backend.Unavailable)
	}

	avail, reason := lib.CheckAvailability(context.Background())
	reasonMu.Lock()
	lastReason = reason
	reasonMu.Unlock()
	return C.int32_t(avail)
}

//export ai_get_availability_reason
func ai_get_availability_reason() (out *C.char) {
	defer recoverToNil(&out)

	reasonMu.Lock()
	reason := lastReason
	reasonMu.Unlock()
	if reason == "" {
		return nil
	}
	return C.CString(reason)
}

//export ai_context_create
func ai_context_create() C.uint64_t {
	defer recoverSwallow()

	lib := library()
	if lib == nil {
		return 0
	}
	ctx, err := lib.NewContext()
	if err != nil {
		return 0
	}
	return C.uint64_t(contexts.Put(&contextSlot{ctx: ctx}))
}

//export ai_context_free
func ai_context_free(h C.uint64_t) {
	defer recoverSwallow()

	slot, ok := contexts.Remove(handles.Handle(h))
	if !ok {
		return
	}
	_ = slot.ctx.Close()
	slot.release()
}

//export ai_create_session
func ai_create_session(h C.uint64_t, opts *C.ai_options_t) (sid C.int32_t) {
	defer func() {
		if r := recover(); r != nil {
			sid = C.int32_t(airuntime.InvalidSessionID)
		}
	}()

	slot, ok := contexts.Get(handles.Handle(h))
	if !ok {
		return C.int32_t(airuntime.InvalidSessionID)
	}
	id, err := slot.ctx.NewSession(goOptions(opts))
	if err != nil {
		return C.int32_t(airuntime.InvalidSessionID)
	}
	return C.int32_t(id)
}

//export ai_destroy_session
func ai_destroy_session(h C.uint64_t, sessionID C.int32_t) (code C.int32_t) {
	defer recoverToCode(&code)

	slot, ok := contexts.Get(handles.Handle(h))
	if !ok {
		return C.int32_t(core.ResultInvalidContext)
	}
	if err := slot.ctx.CloseSession(airuntime.SessionID(sessionID)); err != nil {
		return C.int32_t(core.ResultOf(err))
	}
	return C.int32_t(core.ResultSuccess)
}

//export ai_generate_response
func ai_generate_response(h C.uint64_t, sessionID C.int32_t, prompt *C.char, opts *C.ai_options_t) (out *C.char) {
	defer recoverToNil(&out)

	slot, ok := contexts.Get(handles.Handle(h))
	if !ok || prompt == nil {
		return nil
	}
	reply, err := slot.ctx.Generate(context.Background(),
		airuntime.SessionID(sessionID), C.GoString(prompt), goOptions(opts))
	if err != nil {
		return nil
	}
	return C.CString(reply)
}

//export ai_get_session_history
func ai_get_session_history(h C.uint64_t, sessionID C.int32_t) (out *C.char) {
	defer recoverToNil(&out)

	slot, ok := contexts.Get(handles.Handle(h))
	if !ok {
		return nil
	}
	history, err := slot.ctx.SessionHistory(airuntime.SessionID(sessionID))
	if err != nil {
		return nil
	}
	return C.CString(history)
}

//export ai_get_stats
func ai_get_stats(h C.uint64_t, out *C.ai_stats_t) (code C.int32_t) {
	defer recoverToCode(&code)

	slot, ok := contexts.Get(handles.Handle(h))
	if !ok {
		return C.int32_t(core.ResultInvalidContext)
	}
	if out == nil {
		return C.int32_t(core.ResultBackend)
	}
	stats := slot.ctx.Stats()
	out.total_requests = C.uint64_t(stats.TotalRequests)
	out.successful_requests = C.uint64_t(stats.SuccessfulRequests)
	out.failed_requests = C.uint64_t(stats.FailedRequests)
	return C.int32_t(core.ResultSuccess)
}

//export ai_get_last_error
func ai_get_last_error(h C.uint64_t) (out *C.char) {
	defer recoverToNil(&out)

	slot, ok := contexts.Get(handles.Handle(h))
	if !ok {
		return nil
	}
	return slot.borrowedError()
}

//export ai_get_error_description
func ai_get_error_description(code C.int32_t) *C.char {
	defer recoverSwallow()

	descMu.Lock()
	defer descMu.Unlock()
	if cached, ok := descCache[int32(code)]; ok {
		return cached
	}
	c := C.CString(core.Describe(core.Result(code)))
	descCache[int32(code)] = c
	return c
}

//export ai_free_string
func ai_free_string(s *C.char) {
	defer recoverSwallow()

	if s != nil {
		C.free(unsafe.Pointer(s))
	}
}

func main() {}
