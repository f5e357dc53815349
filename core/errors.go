package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for the runtime failure conditions.
// These are used for error checking with errors.Is().
var (
	// ErrNotInitialized indicates an operation was attempted before init
	// or after teardown.
	ErrNotInitialized = errors.New("libai: library not initialized")

	// ErrAlreadyInitialized indicates init was called twice. This is a soft
	// condition: the library stays initialized and usable.
	ErrAlreadyInitialized = errors.New("libai: library already initialized")

	// ErrDeviceUnavailable indicates the on-device model cannot currently
	// be used on this host.
	ErrDeviceUnavailable = errors.New("libai: device model unavailable")

	// ErrContextAllocationFailed indicates a context could not be allocated.
	ErrContextAllocationFailed = errors.New("libai: context allocation failed")

	// ErrInvalidContext indicates the context handle is unknown, stale,
	// or already closed.
	ErrInvalidContext = errors.New("libai: invalid context")

	// ErrInvalidSession indicates the session id does not belong to the
	// context or the session has been closed.
	ErrInvalidSession = errors.New("libai: invalid session")

	// ErrSessionAllocationFailed indicates a session could not be created,
	// typically because the backend refused or resources were exhausted.
	ErrSessionAllocationFailed = errors.New("libai: session allocation failed")

	// ErrBackend indicates the inference backend reported a failure.
	// The backend's message is carried by the wrapping RuntimeError.
	ErrBackend = errors.New("libai: backend error")

	// ErrContextsStillOpen indicates Close was refused because live
	// contexts still exist.
	ErrContextsStillOpen = errors.New("libai: contexts still open")
)

// RuntimeError is the structured error for runtime operations.
// It carries the operation that failed, the ABI result code, a
// human-readable message, and an optional wrapped cause.
type RuntimeError struct {
	Op      string // Operation that failed (e.g., "generate", "create_session")
	Code    Result // ABI result code for the C boundary
	Message string // Human-readable message (stored in the context's last_error)
	Err     error  // Wrapped sentinel or underlying error
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("libai %s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("libai %s: %s", e.Op, Describe(e.Code))
}

// Unwrap returns the wrapped error, allowing use with errors.Is and errors.As.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError creates a RuntimeError wrapping the given sentinel.
// The code is derived from the sentinel so the two can never disagree.
func NewRuntimeError(op string, sentinel error, message string) *RuntimeError {
	return &RuntimeError{
		Op:      op,
		Code:    ResultOf(sentinel),
		Message: message,
		Err:     sentinel,
	}
}

// BackendFailure wraps an opaque backend error for the given operation.
// The backend's message is preserved verbatim; the chain matches ErrBackend.
func BackendFailure(op string, cause error) *RuntimeError {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &RuntimeError{
		Op:      op,
		Code:    ResultBackend,
		Message: msg,
		Err:     fmt.Errorf("%w: %v", ErrBackend, cause),
	}
}

// ResultOf maps any error chain onto the ABI result-code enumeration.
// nil maps to ResultSuccess; errors that match no sentinel map to
// ResultBackend (the backend is the only opaque failure source).
func ResultOf(err error) Result {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, ErrNotInitialized):
		return ResultNotInitialized
	case errors.Is(err, ErrAlreadyInitialized):
		return ResultAlreadyInitialized
	case errors.Is(err, ErrDeviceUnavailable):
		return ResultDeviceUnavailable
	case errors.Is(err, ErrContextAllocationFailed):
		return ResultContextAllocationFailed
	case errors.Is(err, ErrInvalidContext):
		return ResultInvalidContext
	case errors.Is(err, ErrInvalidSession):
		return ResultInvalidSession
	case errors.Is(err, ErrSessionAllocationFailed):
		return ResultSessionAllocationFailed
	case errors.Is(err, ErrContextsStillOpen):
		return ResultContextsStillOpen
	default:
		return ResultBackend
	}
}

// ConfigError represents a configuration-related error with actionable instructions.
type ConfigError struct {
	Code    string // Error code for programmatic handling
	Message string // Human-readable error message
	Action  string // Actionable instruction for resolution
}

func (e *ConfigError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s. %s", e.Message, e.Action)
	}
	return e.Message
}

// Error codes for configuration errors
const (
	ErrCodeInvalidBackend  = "INVALID_BACKEND"
	ErrCodeMissingShimPath = "MISSING_SHIM_PATH"
	ErrCodeMissingAuth     = "MISSING_AUTH"
	ErrCodeInvalidBaseURL  = "INVALID_BASE_URL"
	ErrCodeMissingConfig   = "MISSING_CONFIG"
)

// ErrInvalidBackend returns an error for an unrecognized backend kind.
func ErrInvalidBackend(kind string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidBackend,
		Message: fmt.Sprintf("Unknown backend kind '%s'", kind),
		Action:  "Set LIBAI_BACKEND to one of: fmshim, openai, echo",
	}
}

// ErrMissingShimPath returns an error for a missing platform shim library path.
func ErrMissingShimPath() *ConfigError {
	return &ConfigError{
		Code:    ErrCodeMissingShimPath,
		Message: "Platform shim library path is not configured",
		Action:  "Set LIBAI_SHIM_PATH to the location of the platform shim library",
	}
}

// ErrMissingAuth returns an error for missing API credentials.
func ErrMissingAuth(service string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeMissingAuth,
		Message: fmt.Sprintf("Missing authentication credentials for %s", service),
		Action:  "Set LIBAI_OPENAI_API_KEY in your .env file (or switch to a local backend)",
	}
}

// ErrInvalidBaseURL returns an error for an invalid backend base URL.
func ErrInvalidBaseURL(url string, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidBaseURL,
		Message: fmt.Sprintf("Invalid LIBAI_OPENAI_BASE_URL '%s': %s", url, reason),
		Action:  "Set LIBAI_OPENAI_BASE_URL to a valid URL (e.g., http://localhost:8080/v1)",
	}
}

// ErrMissingConfig returns an error for missing required configuration.
func ErrMissingConfig(varName string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeMissingConfig,
		Message: fmt.Sprintf("Missing required configuration: %s", varName),
		Action:  fmt.Sprintf("Set %s in your .env file", varName),
	}
}

// IsConfigError checks if an error is a ConfigError and returns it if so.
func IsConfigError(err error) (*ConfigError, bool) {
	var configErr *ConfigError
	if errors.As(err, &configErr) {
		return configErr, true
	}
	return nil, false
}

// GetErrorCode extracts the error code from an error if it's a ConfigError.
func GetErrorCode(err error) string {
	if configErr, ok := IsConfigError(err); ok {
		return configErr.Code
	}
	return ""
}
