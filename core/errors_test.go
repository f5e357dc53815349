package core

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestResultOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Result
	}{
		{
			name: "nil error",
			err:  nil,
			want: ResultSuccess,
		},
		{
			name: "bare sentinel",
			err:  ErrInvalidSession,
			want: ResultInvalidSession,
		},
		{
			name: "wrapped sentinel",
			err:  fmt.Errorf("create: %w", ErrNotInitialized),
			want: ResultNotInitialized,
		},
		{
			name: "runtime error wrapping sentinel",
			err:  NewRuntimeError("create_session", ErrSessionAllocationFailed, "backend refused"),
			want: ResultSessionAllocationFailed,
		},
		{
			name: "backend failure",
			err:  BackendFailure("generate", errors.New("connection refused")),
			want: ResultBackend,
		},
		{
			name: "unrecognized error maps to backend",
			err:  errors.New("something else"),
			want: ResultBackend,
		},
		{
			name: "contexts still open",
			err:  ErrContextsStillOpen,
			want: ResultContextsStillOpen,
		},
		{
			name: "already initialized",
			err:  ErrAlreadyInitialized,
			want: ResultAlreadyInitialized,
		},
		{
			name: "device unavailable",
			err:  fmt.Errorf("probe: %w", ErrDeviceUnavailable),
			want: ResultDeviceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResultOf(tt.err); got != tt.want {
				t.Errorf("ResultOf(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestRuntimeErrorError(t *testing.T) {
	err := NewRuntimeError("generate", ErrInvalidSession, "session 42 not found")
	if got := err.Error(); !strings.Contains(got, "generate") || !strings.Contains(got, "session 42 not found") {
		t.Errorf("Error() = %q, want op and message included", got)
	}

	// Without a message the registry description is used.
	bare := &RuntimeError{Op: "cleanup", Code: ResultContextsStillOpen}
	if got := bare.Error(); !strings.Contains(got, "contexts still open") {
		t.Errorf("Error() = %q, want registry description", got)
	}
}

func TestRuntimeErrorUnwrap(t *testing.T) {
	err := NewRuntimeError("generate", ErrInvalidSession, "bad id")
	if !errors.Is(err, ErrInvalidSession) {
		t.Error("errors.Is should match the wrapped sentinel")
	}

	var runtimeErr *RuntimeError
	if !errors.As(err, &runtimeErr) {
		t.Fatal("errors.As should extract *RuntimeError")
	}
	if runtimeErr.Code != ResultInvalidSession {
		t.Errorf("Code = %d, want %d", runtimeErr.Code, ResultInvalidSession)
	}
}

func TestBackendFailure(t *testing.T) {
	cause := errors.New("upstream timed out")
	err := BackendFailure("generate", cause)

	if !errors.Is(err, ErrBackend) {
		t.Error("backend failure should match ErrBackend")
	}
	if err.Message != "upstream timed out" {
		t.Errorf("Message = %q, want the cause text verbatim", err.Message)
	}
	if err.Code != ResultBackend {
		t.Errorf("Code = %d, want %d", err.Code, ResultBackend)
	}
}

func TestConfigErrorError(t *testing.T) {
	tests := []struct {
		name       string
		err        *ConfigError
		wantSubstr []string
	}{
		{
			name:       "invalid backend includes action",
			err:        ErrInvalidBackend("cloud"),
			wantSubstr: []string{"cloud", "LIBAI_BACKEND"},
		},
		{
			name:       "missing shim path",
			err:        ErrMissingShimPath(),
			wantSubstr: []string{"LIBAI_SHIM_PATH"},
		},
		{
			name:       "invalid base url",
			err:        ErrInvalidBaseURL("ftp://x", "scheme must be http or https"),
			wantSubstr: []string{"ftp://x", "scheme"},
		},
		{
			name:       "no action",
			err:        &ConfigError{Code: "X", Message: "just a message"},
			wantSubstr: []string{"just a message"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			for _, substr := range tt.wantSubstr {
				if !strings.Contains(got, substr) {
					t.Errorf("Error() = %q, want it to contain %q", got, substr)
				}
			}
		})
	}
}

func TestIsConfigError(t *testing.T) {
	cfgErr := ErrMissingConfig("LIBAI_BACKEND")

	if got, ok := IsConfigError(cfgErr); !ok || got.Code != ErrCodeMissingConfig {
		t.Errorf("IsConfigError() = (%v, %v), want the original ConfigError", got, ok)
	}
	if got, ok := IsConfigError(fmt.Errorf("wrapped: %w", cfgErr)); !ok || got.Code != ErrCodeMissingConfig {
		t.Errorf("IsConfigError(wrapped) = (%v, %v), want unwrapping to succeed", got, ok)
	}
	if _, ok := IsConfigError(errors.New("plain")); ok {
		t.Error("IsConfigError(plain) should be false")
	}
	if got := GetErrorCode(cfgErr); got != ErrCodeMissingConfig {
		t.Errorf("GetErrorCode() = %q, want %q", got, ErrCodeMissingConfig)
	}
	if got := GetErrorCode(errors.New("plain")); got != "" {
		t.Errorf("GetErrorCode(plain) = %q, want empty", got)
	}
}
