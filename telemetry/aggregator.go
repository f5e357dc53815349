// Package telemetry provides the Aggregator organism for in-memory
// request telemetry. One Aggregator serves all contexts of a library
// instance; per-context counters live in the runtime itself.
package telemetry

import (
	"sync"
	"time"
)

// Aggregator is thread-safe in-memory storage for request telemetry.
//
// Usage:
//
//	agg := NewAggregator()
//	agg.Record(RequestRecord{Backend: "echo", Status: StatusSuccess, Latency: 12 * time.Millisecond})
//	snap := agg.Snapshot()
type Aggregator struct {
	mu sync.RWMutex

	totalRequests      int64
	successfulRequests int64
	failedRequests     int64

	promptTokens int64
	replyTokens  int64

	byBackend map[string]LatencyStats

	lastError   string
	lastErrorAt time.Time

	startTime time.Time
}

// NewAggregator creates an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		byBackend: make(map[string]LatencyStats),
		startTime: time.Now(),
	}
}

// Record logs a completed request outcome.
func (a *Aggregator) Record(rec RequestRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalRequests++
	switch rec.Status {
	case StatusSuccess:
		a.successfulRequests++
	case StatusError:
		a.failedRequests++
		a.lastError = rec.ErrorMsg
		a.lastErrorAt = time.Now()
	}

	a.promptTokens += int64(rec.PromptTokens)
	a.replyTokens += int64(rec.ReplyTokens)

	stats := a.byBackend[rec.Backend]
	stats.Count++
	stats.Total += rec.Latency
	if stats.Min == 0 || rec.Latency < stats.Min {
		stats.Min = rec.Latency
	}
	if rec.Latency > stats.Max {
		stats.Max = rec.Latency
	}
	a.byBackend[rec.Backend] = stats
}

// Snapshot returns an immutable copy of the aggregated telemetry.
// The ByBackend map is copied; callers may retain the snapshot freely.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	byBackend := make(map[string]LatencyStats, len(a.byBackend))
	for backend, stats := range a.byBackend {
		byBackend[backend] = stats
	}

	return Snapshot{
		TotalRequests:      a.totalRequests,
		SuccessfulRequests: a.successfulRequests,
		FailedRequests:     a.failedRequests,
		PromptTokens:       a.promptTokens,
		ReplyTokens:        a.replyTokens,
		ByBackend:          byBackend,
		LastError:          a.lastError,
		LastErrorAt:        a.lastErrorAt,
		StartTime:          a.startTime,
	}
}

// Reset clears all aggregated values. The start time is refreshed.
// Intended for tests and long-lived diagnostic sessions.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalRequests = 0
	a.successfulRequests = 0
	a.failedRequests = 0
	a.promptTokens = 0
	a.replyTokens = 0
	a.byBackend = make(map[string]LatencyStats)
	a.lastError = ""
	a.lastErrorAt = time.Time{}
	a.startTime = time.Now()
}
