package step

// Status represents the observed state of a step's desired condition.
type Status string

const (
	// StatusSatisfied indicates the desired state is already met.
	StatusSatisfied Status = "satisfied"
	// StatusUnsatisfied indicates the desired state is not met.
	StatusUnsatisfied Status = "unsatisfied"
	// StatusUnknown indicates the state could not be determined.
	StatusUnknown Status = "unknown"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// NeedsRemediation returns true if the status calls for remediation.
// Unknown is grouped with Unsatisfied: when the observation is
// inconclusive the engine attempts remediation and lets Verify decide.
func (s Status) NeedsRemediation() bool {
	switch s {
	case StatusUnsatisfied, StatusUnknown:
		return true
	case StatusSatisfied:
		return false
	}
	return false
}
