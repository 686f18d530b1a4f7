package step

// Policy determines how the engine routes a step failure.
type Policy string

const (
	// FatalOnFailure halts the entire run with a nonzero exit.
	FatalOnFailure Policy = "fatal"
	// WarnAndContinue records the failure and advances to the next step.
	WarnAndContinue Policy = "warn"
	// RequiresReboot halts the run and instructs the operator to
	// reboot and re-invoke from the start.
	RequiresReboot Policy = "reboot"
)

// String returns the string representation of the policy.
func (p Policy) String() string {
	return string(p)
}

// Halts returns true if a failure under this policy stops the run.
func (p Policy) Halts() bool {
	switch p {
	case FatalOnFailure, RequiresReboot:
		return true
	case WarnAndContinue:
		return false
	}
	return false
}
