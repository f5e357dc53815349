//go:build darwin && !fmstub

package fmshim

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

// wellKnownShimPaths are probed in order when no explicit path is given.
var wellKnownShimPaths = []string{
	"/usr/local/lib/libFMShim.dylib",
	"/opt/homebrew/lib/libFMShim.dylib",
	"libFMShim.dylib",
}

// darwinShim wraps the loaded shim library and its resolved symbols.
type darwinShim struct {
	lib uintptr

	createSession                 func() uintptr
	createSessionWithInstructions func(string) uintptr
	releaseSession                func(uintptr)
	checkModelAvailability        func() int32
	getAvailabilityReason         func() uintptr
	respondWithOptions            func(uintptr, string, string) uintptr

	libcFree func(uintptr)

	mu     sync.Mutex
	closed bool
}

// loadShim dlopens the shim library and resolves every symbol up front so
// a partially exported library fails at load, not mid-request.
func loadShim(path string) (shimBindings, error) {
	shimPath := path
	if shimPath == "" {
		shimPath = findShimLibrary()
	}

	lib, err := purego.Dlopen(shimPath, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("failed to load shim library from %s: %w", shimPath, err)
	}

	s := &darwinShim{lib: lib}
	symbols := []struct {
		name string
		fn   interface{}
	}{
		{"CreateSession", &s.createSession},
		{"CreateSessionWithInstructions", &s.createSessionWithInstructions},
		{"ReleaseSession", &s.releaseSession},
		{"CheckModelAvailability", &s.checkModelAvailability},
		{"GetAvailabilityReason", &s.getAvailabilityReason},
		{"RespondWithOptions", &s.respondWithOptions},
	}
	for _, sym := range symbols {
		if _, err := purego.Dlsym(lib, sym.name); err != nil {
			return nil, fmt.Errorf("shim library is missing %s: %w", sym.name, err)
		}
		purego.RegisterLibFunc(sym.fn, lib, sym.name)
	}

	// libc free releases the strings the shim hands back.
	libc, err := purego.Dlopen("/usr/lib/libSystem.B.dylib", purego.RTLD_NOW)
	if err != nil {
		return nil, fmt.Errorf("failed to load libSystem: %w", err)
	}
	purego.RegisterLibFunc(&s.libcFree, libc, "free")

	return s, nil
}

// findShimLibrary returns the first well-known path that exists, falling
// back to the bare name so the dynamic loader search path applies.
func findShimLibrary() string {
	for _, candidate := range wellKnownShimPaths {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return wellKnownShimPaths[len(wellKnownShimPaths)-1]
}

func (s *darwinShim) availability() (int, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return shimNotReady, "shim library closed"
	}

	code := int(s.checkModelAvailability())
	reason := ""
	if code != shimAvailable {
		reason = s.takeString(s.getAvailabilityReason())
	}
	return code, reason
}

func (s *darwinShim) respond(transcript string, instructions string, temperature float64, maxTokens int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", errors.New("shim library closed")
	}

	var session uintptr
	if instructions != "" {
		session = s.createSessionWithInstructions(instructions)
	} else {
		session = s.createSession()
	}
	if session == 0 {
		return "", errors.New("shim failed to create a session")
	}
	defer s.releaseSession(session)

	optionsJSON := fmt.Sprintf(`{"temperature":%g,"maximumResponseTokens":%d}`, temperature, maxTokens)
	reply := s.takeString(s.respondWithOptions(session, transcript, optionsJSON))
	if reply == "" {
		return "", errors.New("shim returned no reply")
	}
	// The shim reports its own failures in-band with an "Error:" prefix.
	if len(reply) > 6 && reply[:6] == "Error:" {
		return "", errors.New(reply[6:])
	}
	return reply, nil
}

func (s *darwinShim) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	// dlclose is deliberately skipped: the platform framework does not
	// support unloading once model assets are mapped.
	return nil
}

// takeString copies a C string returned by the shim into a Go string and
// frees the original buffer. A NULL pointer yields "".
func (s *darwinShim) takeString(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	defer s.libcFree(ptr)

	length := 0
	for *(*byte)(unsafe.Pointer(ptr + uintptr(length))) != 0 {
		length++
	}
	return string(unsafe.Slice((*byte)(unsafe.Pointer(ptr)), length))
}
