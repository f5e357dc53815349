package validation

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"libai/airuntime"
	"libai/backend"
	"libai/core"
)

// smokePrompt is the prompt sent by the generate step. Every backend is
// expected to produce a non-empty reply for a plain greeting.
const smokePrompt = "Hello"

// SmokeSuite runs the end-to-end happy path against one library instance:
// init, version, availability probe, context, session, generate, history,
// stats, teardown. Steps that depend on an earlier failure are skipped,
// and teardown always runs for whatever was brought up.
type SmokeSuite struct {
	cfg          core.Config
	output       io.Writer
	showProgress bool
	failFast     bool
}

// NewSmokeSuite creates a suite for the given configuration.
func NewSmokeSuite(cfg core.Config) *SmokeSuite {
	return &SmokeSuite{
		cfg:          cfg,
		output:       os.Stdout,
		showProgress: true,
	}
}

// WithOutput sets the progress writer.
func (s *SmokeSuite) WithOutput(w io.Writer) *SmokeSuite {
	s.output = w
	return s
}

// WithShowProgress enables or disables progress output.
func (s *SmokeSuite) WithShowProgress(show bool) *SmokeSuite {
	s.showProgress = show
	return s
}

// WithFailFast stops after the first failed step (teardown still runs).
func (s *SmokeSuite) WithFailFast(failFast bool) *SmokeSuite {
	s.failFast = failFast
	return s
}

// Run executes the smoke flow and returns the aggregate result.
func (s *SmokeSuite) Run() SuiteResult {
	startTime := time.Now()
	steps := make([]Step, 0, 10)

	if s.showProgress {
		s.printHeader("libai Smoke Check")
	}

	var lib *airuntime.Library
	step := s.runStep("Library Initialization", func() (bool, string, error) {
		var err error
		lib, err = airuntime.New(s.cfg)
		if err != nil {
			return false, "", err
		}
		return true, fmt.Sprintf("backend: %s", lib.Backend()), nil
	})
	steps = append(steps, step)

	if lib == nil {
		// Nothing came up; skip the rest and report.
		for _, name := range []string{
			"Version", "Model Availability", "Context Creation",
			"Session Creation", "Generate Response", "Session History",
			"Statistics", "Context Teardown", "Library Shutdown",
		} {
			steps = append(steps, s.skipStep(name, "library initialization failed"))
		}
		return s.finish(steps, startTime)
	}

	step = s.runStep("Version", func() (bool, string, error) {
		v := lib.Version()
		if v == "" {
			return false, "", fmt.Errorf("empty version string")
		}
		return true, v, nil
	})
	steps = append(steps, step)

	step = s.runStep("Model Availability", func() (bool, string, error) {
		avail, reason := lib.CheckAvailability(context.Background())
		if avail != backend.Available {
			return false, "", fmt.Errorf("%s: %s", avail, reason)
		}
		return true, avail.String(), nil
	})
	steps = append(steps, step)
	available := step.Status == StepPassed

	stop := s.failFast && !available

	var libCtx *airuntime.Context
	if !stop {
		step = s.runStep("Context Creation", func() (bool, string, error) {
			var err error
			libCtx, err = lib.NewContext()
			if err != nil {
				return false, "", err
			}
			return true, fmt.Sprintf("context %d", libCtx.ID()), nil
		})
		steps = append(steps, step)
	} else {
		steps = append(steps, s.skipStep("Context Creation", "model unavailable"))
	}

	var sid airuntime.SessionID
	if libCtx != nil && available {
		step = s.runStep("Session Creation", func() (bool, string, error) {
			var err error
			sid, err = libCtx.NewSession(nil)
			if err != nil {
				return false, "", err
			}
			return true, fmt.Sprintf("session %d", sid), nil
		})
		steps = append(steps, step)
	} else {
		steps = append(steps, s.skipStep("Session Creation", "no usable context"))
	}

	var reply string
	if sid != airuntime.InvalidSessionID {
		step = s.runStep("Generate Response", func() (bool, string, error) {
			var err error
			reply, err = libCtx.Generate(context.Background(), sid, smokePrompt, nil)
			if err != nil {
				return false, "", err
			}
			if reply == "" {
				return false, "", fmt.Errorf("empty reply")
			}
			return true, fmt.Sprintf("%d chars", len(reply)), nil
		})
		steps = append(steps, step)

		step = s.runStep("Session History", func() (bool, string, error) {
			history, err := libCtx.SessionHistory(sid)
			if err != nil {
				return false, "", err
			}
			lines := strings.Split(history, "\n")
			if reply != "" && len(lines) != 2 {
				return false, "", fmt.Errorf("history has %d lines, want 2", len(lines))
			}
			if !strings.HasPrefix(lines[0], "user: ") {
				return false, "", fmt.Errorf("first line %q lacks the user prefix", lines[0])
			}
			return true, fmt.Sprintf("%d turns", len(lines)), nil
		})
		steps = append(steps, step)

		step = s.runStep("Statistics", func() (bool, string, error) {
			stats := libCtx.Stats()
			if stats.TotalRequests != stats.SuccessfulRequests+stats.FailedRequests {
				return false, "", fmt.Errorf("counter invariant broken: %+v", stats)
			}
			if reply != "" && stats.SuccessfulRequests == 0 {
				return false, "", fmt.Errorf("no success recorded after a reply")
			}
			return true, fmt.Sprintf("total %d, ok %d, failed %d",
				stats.TotalRequests, stats.SuccessfulRequests, stats.FailedRequests), nil
		})
		steps = append(steps, step)
	} else {
		steps = append(steps, s.skipStep("Generate Response", "no session"))
		steps = append(steps, s.skipStep("Session History", "no session"))
		steps = append(steps, s.skipStep("Statistics", "no session"))
	}

	// Teardown runs for whatever was brought up, in reverse order.
	if libCtx != nil {
		step = s.runStep("Context Teardown", func() (bool, string, error) {
			if err := libCtx.Close(); err != nil {
				return false, "", err
			}
			return true, "", nil
		})
		steps = append(steps, step)
	} else {
		steps = append(steps, s.skipStep("Context Teardown", "no context"))
	}

	step = s.runStep("Library Shutdown", func() (bool, string, error) {
		if err := lib.Close(); err != nil {
			return false, "", err
		}
		return true, "", nil
	})
	steps = append(steps, step)

	return s.finish(steps, startTime)
}

// runStep executes one step with timing and progress output.
func (s *SmokeSuite) runStep(name string, fn func() (bool, string, error)) Step {
	step := Step{Name: name, Status: StepRunning}

	if s.showProgress {
		fmt.Fprintf(s.output, "  ◌ %s...", name)
	}

	startTime := time.Now()
	passed, message, err := fn()
	step.Latency = time.Since(startTime)
	step.Message = message
	step.Error = err

	if passed {
		step.Status = StepPassed
	} else {
		step.Status = StepFailed
	}

	if s.showProgress {
		s.printStep(step)
	}
	return step
}

func (s *SmokeSuite) skipStep(name, reason string) Step {
	step := Step{Name: name, Status: StepSkipped, Message: reason}
	if s.showProgress {
		s.printStep(step)
	}
	return step
}

// finish builds the aggregate result and prints the summary.
func (s *SmokeSuite) finish(steps []Step, startTime time.Time) SuiteResult {
	result := SuiteResult{
		Steps:      steps,
		TotalSteps: len(steps),
		Duration:   time.Since(startTime),
		Success:    true,
	}
	for _, step := range steps {
		switch step.Status {
		case StepPassed:
			result.PassedSteps++
		case StepFailed:
			result.FailedSteps++
			result.Success = false
		case StepSkipped:
			result.SkippedSteps++
		case StepWarning:
			result.Warnings++
		}
	}

	if s.showProgress {
		s.printSummary(result)
	}
	return result
}

func (s *SmokeSuite) printHeader(title string) {
	fmt.Fprintln(s.output)
	headerColor := color.New(color.FgCyan, color.Bold)
	headerColor.Fprintf(s.output, "━━━ %s ━━━\n", title)
	fmt.Fprintln(s.output)
}

// printStep prints a completed step with its status indicator.
func (s *SmokeSuite) printStep(step Step) {
	var icon string
	var clr *color.Color

	switch step.Status {
	case StepPassed:
		icon = "✓"
		clr = color.New(color.FgGreen)
	case StepFailed:
		icon = "✗"
		clr = color.New(color.FgRed)
	case StepWarning:
		icon = "!"
		clr = color.New(color.FgYellow)
	case StepSkipped:
		icon = "○"
		clr = color.New(color.FgHiBlack)
	default:
		icon = "?"
		clr = color.New(color.FgWhite)
	}

	fmt.Fprintf(s.output, "\r")
	clr.Fprintf(s.output, "  %s %s", icon, step.Name)
	if step.Message != "" {
		color.New(color.FgHiBlack).Fprintf(s.output, " - %s", step.Message)
	}
	fmt.Fprintln(s.output)

	if step.Status == StepFailed && step.Error != nil {
		color.New(color.FgRed).Fprintf(s.output, "    └─ %s\n", step.Error.Error())
	}
}

func (s *SmokeSuite) printSummary(result SuiteResult) {
	fmt.Fprintln(s.output)

	if result.Success {
		successColor := color.New(color.FgGreen, color.Bold)
		successColor.Fprintf(s.output, "━━━ Smoke Check Passed ")
		color.New(color.FgHiBlack).Fprintf(s.output, "(%d/%d steps in %v)",
			result.PassedSteps, result.TotalSteps, result.Duration.Round(time.Millisecond))
		successColor.Fprintln(s.output, " ━━━")
	} else {
		failColor := color.New(color.FgRed, color.Bold)
		failColor.Fprintf(s.output, "━━━ Smoke Check Failed ")
		color.New(color.FgHiBlack).Fprintf(s.output, "(%d passed, %d failed, %d skipped)",
			result.PassedSteps, result.FailedSteps, result.SkippedSteps)
		failColor.Fprintln(s.output, " ━━━")
	}

	fmt.Fprintln(s.output)
}
