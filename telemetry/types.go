// Package telemetry provides process-local aggregation of generation
// request outcomes across every context of a library instance.
// This file contains pure data types with no behavior.
package telemetry

import "time"

// RequestRecord represents a single generation request outcome.
// This is a pure data structure for tracking individual round trips.
type RequestRecord struct {
	// RequestID is the correlation id attached to logs and history rows
	RequestID string `json:"request_id"`

	// Backend identifies the engine that served the request
	Backend string `json:"backend"`

	// Status indicates the outcome: "success" or "error"
	Status string `json:"status"`

	// Latency is the backend round-trip duration
	Latency time.Duration `json:"latency"`

	// PromptTokens is the estimated token count of the transcript sent
	PromptTokens int `json:"prompt_tokens"`

	// ReplyTokens is the estimated token count of the reply
	ReplyTokens int `json:"reply_tokens"`

	// ErrorMsg contains failure details when Status is "error"
	ErrorMsg string `json:"error_msg,omitempty"`
}

// Status constants for RequestRecord
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// LatencyStats represents aggregated latency over a set of requests.
// This is a pure data structure with no behavior.
type LatencyStats struct {
	// Count is the number of requests aggregated
	Count int64 `json:"count"`

	// Total is the summed latency across all requests
	Total time.Duration `json:"total"`

	// Min is the fastest observed request (zero until the first record)
	Min time.Duration `json:"min"`

	// Max is the slowest observed request
	Max time.Duration `json:"max"`
}

// Average returns the mean latency, or zero when nothing was recorded.
func (s LatencyStats) Average() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// Snapshot is an immutable copy of the aggregated telemetry.
type Snapshot struct {
	// TotalRequests counts every recorded request
	TotalRequests int64 `json:"total_requests"`

	// SuccessfulRequests counts requests with StatusSuccess
	SuccessfulRequests int64 `json:"successful_requests"`

	// FailedRequests counts requests with StatusError
	FailedRequests int64 `json:"failed_requests"`

	// PromptTokens is the summed prompt token estimate
	PromptTokens int64 `json:"prompt_tokens"`

	// ReplyTokens is the summed reply token estimate
	ReplyTokens int64 `json:"reply_tokens"`

	// ByBackend holds per-backend latency aggregation
	ByBackend map[string]LatencyStats `json:"by_backend"`

	// LastError is the most recent failure message (empty if none)
	LastError string `json:"last_error,omitempty"`

	// LastErrorAt is when the most recent failure was recorded
	LastErrorAt time.Time `json:"last_error_at,omitempty"`

	// StartTime is when the aggregator was created
	StartTime time.Time `json:"start_time"`
}
