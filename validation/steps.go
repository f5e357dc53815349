// Package validation runs the canonical smoke flow against a configured
// library and reports each step with colored pass/fail output. It backs
// the aicheck CLI and doubles as a quick embedder sanity check.
package validation

import "time"

// Step is a single smoke-flow step with its outcome.
type Step struct {
	Name    string
	Status  StepStatus
	Message string
	Error   error
	Latency time.Duration
}

// StepStatus is the lifecycle state of a step.
type StepStatus int

const (
	StepPending StepStatus = iota
	StepRunning
	StepPassed
	StepFailed
	StepWarning
	StepSkipped
)

// String returns the string representation of a step status.
func (s StepStatus) String() string {
	switch s {
	case StepPending:
		return "pending"
	case StepRunning:
		return "running"
	case StepPassed:
		return "passed"
	case StepFailed:
		return "failed"
	case StepWarning:
		return "warning"
	case StepSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// SuiteResult is the aggregate outcome of one smoke run.
type SuiteResult struct {
	Steps        []Step
	TotalSteps   int
	PassedSteps  int
	FailedSteps  int
	SkippedSteps int
	Warnings     int
	Duration     time.Duration
	Success      bool
}

// Errors returns the errors of all failed steps.
func (r SuiteResult) Errors() []error {
	var errs []error
	for _, step := range r.Steps {
		if step.Status == StepFailed && step.Error != nil {
			errs = append(errs, step.Error)
		}
	}
	return errs
}
