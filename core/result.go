package core

// Result is the stable result-code enumeration shared with the C boundary.
// The numeric values are part of the ABI (mirrored in ai.h) and must never
// be renumbered; new codes are appended only.
type Result int32

const (
	// ResultSuccess indicates the operation completed normally.
	ResultSuccess Result = 0

	// ResultNotInitialized indicates the library has not been initialized
	// (or has already been torn down).
	ResultNotInitialized Result = 1

	// ResultAlreadyInitialized is a soft code: init was called on an
	// already-initialized library. The library remains usable.
	ResultAlreadyInitialized Result = 2

	// ResultDeviceUnavailable indicates the on-device model cannot be used
	// on this host (not eligible, not enabled, or not ready).
	ResultDeviceUnavailable Result = 3

	// ResultContextAllocationFailed indicates a context could not be allocated.
	ResultContextAllocationFailed Result = 4

	// ResultInvalidContext indicates the context handle is unknown, stale,
	// or already freed.
	ResultInvalidContext Result = 5

	// ResultInvalidSession indicates the session id does not belong to the
	// context or the session has been closed.
	ResultInvalidSession Result = 6

	// ResultSessionAllocationFailed indicates a session could not be created.
	ResultSessionAllocationFailed Result = 7

	// ResultBackend indicates the inference backend reported a failure.
	ResultBackend Result = 8

	// ResultContextsStillOpen indicates teardown was refused because live
	// contexts still exist.
	ResultContextsStillOpen Result = 9
)

// resultDescriptions maps every defined result code to its stable
// human-readable description. The strings are part of the observable
// surface (ai_get_error_description) and should not be reworded casually.
var resultDescriptions = map[Result]string{
	ResultSuccess:                 "success",
	ResultNotInitialized:          "library not initialized",
	ResultAlreadyInitialized:      "library already initialized",
	ResultDeviceUnavailable:       "device model unavailable",
	ResultContextAllocationFailed: "context allocation failed",
	ResultInvalidContext:          "invalid context handle",
	ResultInvalidSession:          "invalid session id",
	ResultSessionAllocationFailed: "session allocation failed",
	ResultBackend:                 "backend error",
	ResultContextsStillOpen:       "contexts still open",
}

// Describe returns the human-readable description for a result code.
// This is a total function: unknown codes map to a generic description
// rather than failing.
//
// Example:
//
//	Describe(ResultInvalidSession)  // "invalid session id"
//	Describe(Result(999))           // "unknown error"
func Describe(code Result) string {
	if desc, ok := resultDescriptions[code]; ok {
		return desc
	}
	return "unknown error"
}

// String implements fmt.Stringer for log output.
func (r Result) String() string {
	return Describe(r)
}

// IsSuccess returns true for codes that indicate a usable outcome.
// ResultAlreadyInitialized is soft: the library is initialized and usable
// after it is returned.
func (r Result) IsSuccess() bool {
	return r == ResultSuccess || r == ResultAlreadyInitialized
}
