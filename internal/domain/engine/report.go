// Package engine executes ordered provisioning steps and accumulates
// the run report.
package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/nvmeprep/internal/domain/step"
)

// Outcome represents what happened to a single step during a run.
type Outcome string

const (
	// OutcomeSkipped means the step was already satisfied.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeApplied means remediation ran and verification confirmed it.
	OutcomeApplied Outcome = "applied"
	// OutcomeFailed means remediation or verification failed.
	OutcomeFailed Outcome = "failed"
	// OutcomeRebootRequired means the change is staged and the host
	// must be rebooted before re-invoking the run.
	OutcomeRebootRequired Outcome = "reboot-required"
	// OutcomeWouldApply is recorded in dry-run mode for steps that
	// would be remediated.
	OutcomeWouldApply Outcome = "would-apply"
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	return string(o)
}

// StepResult captures the outcome of executing a single step.
type StepResult struct {
	stepID   step.StepID
	outcome  Outcome
	err      error
	note     string
	warning  bool
	duration time.Duration
}

// NewStepResult creates a new StepResult.
func NewStepResult(stepID step.StepID, outcome Outcome, err error) StepResult {
	return StepResult{
		stepID:  stepID,
		outcome: outcome,
		err:     err,
	}
}

// StepID returns the ID of the step that was executed.
func (r StepResult) StepID() step.StepID {
	return r.stepID
}

// Outcome returns the final outcome of the step.
func (r StepResult) Outcome() Outcome {
	return r.outcome
}

// Error returns any error that occurred during execution.
func (r StepResult) Error() error {
	return r.err
}

// Note returns the step's operator-facing annotation, if any.
func (r StepResult) Note() string {
	return r.note
}

// Warning reports whether the result carries a warning annotation
// (soft failure or degraded success).
func (r StepResult) Warning() bool {
	return r.warning
}

// Duration returns how long the step took to execute.
func (r StepResult) Duration() time.Duration {
	return r.duration
}

// WithDuration returns a new StepResult with duration set.
func (r StepResult) WithDuration(d time.Duration) StepResult {
	r.duration = d
	return r
}

// WithNote returns a new StepResult with an annotation set.
func (r StepResult) WithNote(note string) StepResult {
	r.note = note
	return r
}

// WithWarning returns a new StepResult flagged as a warning.
func (r StepResult) WithWarning() StepResult {
	r.warning = true
	return r
}

// Verdict is the overall result of a run.
type Verdict string

const (
	// VerdictSuccess means every step skipped or applied cleanly.
	VerdictSuccess Verdict = "success"
	// VerdictDegraded means the run completed but with warnings.
	VerdictDegraded Verdict = "degraded"
	// VerdictFailed means a fatal step halted the run.
	VerdictFailed Verdict = "failed"
	// VerdictRebootRequired means the run halted pending a reboot.
	VerdictRebootRequired Verdict = "reboot-required"
)

// String returns the string representation of the verdict.
func (v Verdict) String() string {
	return string(v)
}

// Report is the accumulated, append-only result of a run. It is
// written only by the engine and becomes read-only once finalized.
type Report struct {
	runID     string
	startedAt time.Time
	results   []StepResult
	finalized bool
}

// NewReport creates an empty Report with a fresh run ID.
func NewReport() *Report {
	return &Report{
		runID:     uuid.NewString(),
		startedAt: time.Now(),
		results:   make([]StepResult, 0),
	}
}

// RunID returns the unique identifier of this run.
func (r *Report) RunID() string {
	return r.runID
}

// StartedAt returns when the run began.
func (r *Report) StartedAt() time.Time {
	return r.startedAt
}

// Results returns the ordered per-step results.
func (r *Report) Results() []StepResult {
	return r.results
}

// Len returns the number of recorded results.
func (r *Report) Len() int {
	return len(r.results)
}

// append records a result. Panics if the report is already finalized;
// the engine is the only writer and finalizes exactly once.
func (r *Report) append(result StepResult) {
	if r.finalized {
		panic("engine: append to finalized report")
	}
	r.results = append(r.results, result)
}

// finalize marks the report read-only.
func (r *Report) finalize() {
	r.finalized = true
}

// Finalized reports whether the run has completed or halted.
func (r *Report) Finalized() bool {
	return r.finalized
}

// Verdict computes the overall run result from the recorded outcomes.
func (r *Report) Verdict() Verdict {
	verdict := VerdictSuccess
	for _, res := range r.results {
		switch res.outcome {
		case OutcomeRebootRequired:
			return VerdictRebootRequired
		case OutcomeFailed:
			if !res.warning {
				return VerdictFailed
			}
			verdict = VerdictDegraded
		case OutcomeSkipped, OutcomeApplied, OutcomeWouldApply:
			if res.warning {
				verdict = VerdictDegraded
			}
		}
	}
	return verdict
}

// Summary provides aggregate statistics about a run.
type Summary struct {
	Total          int
	Skipped        int
	Applied        int
	Failed         int
	RebootRequired int
	WouldApply     int
	Warnings       int
}

// Summary returns aggregate statistics.
func (r *Report) Summary() Summary {
	s := Summary{Total: len(r.results)}
	for _, res := range r.results {
		switch res.outcome {
		case OutcomeSkipped:
			s.Skipped++
		case OutcomeApplied:
			s.Applied++
		case OutcomeFailed:
			s.Failed++
		case OutcomeRebootRequired:
			s.RebootRequired++
		case OutcomeWouldApply:
			s.WouldApply++
		}
		if res.warning {
			s.Warnings++
		}
	}
	return s
}
