// Package step defines the contract for idempotent provisioning steps.
package step

// Step represents one idempotent unit of host configuration.
// Check and Verify are pure observations of host state; only Remediate
// mutates. Remediating an already-satisfied step must be a no-op, so a
// run can be re-invoked from the start at any time (including after a
// reboot) and skip cheaply over work already done.
type Step interface {
	// ID returns the unique identifier for this step.
	ID() StepID

	// Policy returns how the engine treats a failure of this step.
	Policy() Policy

	// Check determines the current status of this step without
	// mutating host state.
	Check(ctx RunContext) (Status, error)

	// Remediate attempts to move host state toward Satisfied.
	Remediate(ctx RunContext) error

	// Verify re-observes host state after remediation to confirm it
	// took effect. Like Check, it must not mutate.
	Verify(ctx RunContext) (Status, error)
}

// Noter is implemented by steps that attach an operator-facing note to
// their outcome, e.g. a degraded hugepage allocation or a protected
// device that was deliberately left alone.
type Noter interface {
	// Note returns the annotation for the most recent Check/Remediate
	// cycle, or empty if there is nothing to report.
	Note() string
}

// NoteOf returns the step's outcome note, or empty if the step does
// not provide one.
func NoteOf(s Step) string {
	if n, ok := s.(Noter); ok {
		return n.Note()
	}
	return ""
}

// Degrader is implemented by steps whose success can be partial:
// satisfied enough to continue, but worth surfacing in the run verdict.
type Degrader interface {
	// Degraded reports whether the most recent Check/Remediate cycle
	// ended in a degraded (partial) success.
	Degraded() bool
}

// IsDegraded reports whether the step ended its last cycle degraded.
func IsDegraded(s Step) bool {
	if d, ok := s.(Degrader); ok {
		return d.Degraded()
	}
	return false
}
