package step

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes for provisioning failures.
const (
	ErrCodePermissionDenied     = "PERMISSION_DENIED"
	ErrCodeDependencyMissing    = "DEPENDENCY_MISSING"
	ErrCodeResourceInsufficient = "RESOURCE_INSUFFICIENT"
	ErrCodeConfigurationPending = "CONFIGURATION_PENDING"
	ErrCodeExternalToolFailure  = "EXTERNAL_TOOL_FAILURE"
	ErrCodeSafetyViolation      = "SAFETY_VIOLATION"
)

// ErrRebootRequired signals from Remediate that the change is staged
// but needs a reboot to take effect. The engine halts the run with a
// RebootRequired outcome rather than a failure.
var ErrRebootRequired = errors.New("reboot required for configuration to take effect")

// StepError represents an operator-facing provisioning error with an
// actionable suggestion.
type StepError struct {
	Code       string // Error code for categorization
	Message    string // Operator-facing error message
	StepID     string // Step ID if applicable
	Suggestion string // Actionable suggestion to fix the error
	Underlying error  // Wrapped error for error chain
}

// Error returns the formatted error message.
func (e *StepError) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("step %q: %s", e.StepID, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying error for error chain support.
func (e *StepError) Unwrap() error {
	return e.Underlying
}

// Format returns a fully formatted error with all details.
func (e *StepError) Format() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.StepID != "" {
		b.WriteString(fmt.Sprintf("\n  Step: %s", e.StepID))
	}
	if e.Suggestion != "" {
		b.WriteString(fmt.Sprintf("\n  Suggestion: %s", e.Suggestion))
	}
	if e.Underlying != nil {
		b.WriteString(fmt.Sprintf("\n  Cause: %s", e.Underlying.Error()))
	}

	return b.String()
}

// NewStepError creates a new StepError with the given code and message.
func NewStepError(code, message string) *StepError {
	return &StepError{
		Code:    code,
		Message: message,
	}
}

// WithStepID returns a new StepError with step ID set.
func (e *StepError) WithStepID(stepID string) *StepError {
	clone := *e
	clone.StepID = stepID
	return &clone
}

// WithSuggestion returns a new StepError with suggestion set.
func (e *StepError) WithSuggestion(suggestion string) *StepError {
	clone := *e
	clone.Suggestion = suggestion
	return &clone
}

// WithUnderlying returns a new StepError wrapping another error.
func (e *StepError) WithUnderlying(err error) *StepError {
	clone := *e
	clone.Underlying = err
	return &clone
}

// CodeOf extracts the error code from an error chain, or empty.
func CodeOf(err error) string {
	var se *StepError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// Common provisioning error constructors.

// NewPermissionDeniedError creates an error for a run started without
// the required privilege.
func NewPermissionDeniedError() *StepError {
	return &StepError{
		Code:       ErrCodePermissionDenied,
		Message:    "provisioning must run with root privileges",
		Suggestion: "Re-run under sudo or as root; kernel tunables and driver bindings are not writable otherwise.",
	}
}

// NewDependencyMissingError creates an error for a package or tool
// still absent after an install attempt.
func NewDependencyMissingError(name string, err error) *StepError {
	return &StepError{
		Code:       ErrCodeDependencyMissing,
		Message:    fmt.Sprintf("dependency %q is not installed", name),
		Suggestion: "Check the package manager output; the package name may differ on this distribution.",
		Underlying: err,
	}
}

// NewResourceInsufficientError creates an error for a constrained
// resource that could not reach its documented minimum.
func NewResourceInsufficientError(resource string, allocated, minimum int64) *StepError {
	return &StepError{
		Code:       ErrCodeResourceInsufficient,
		Message:    fmt.Sprintf("%s allocation %d is below the required minimum %d", resource, allocated, minimum),
		Suggestion: "Free memory or lower the configured target, then re-run.",
	}
}

// NewConfigurationPendingError creates an error for a change that is
// staged but needs a reboot to take effect.
func NewConfigurationPendingError(what string) *StepError {
	return &StepError{
		Code:       ErrCodeConfigurationPending,
		Message:    fmt.Sprintf("%s is staged but requires a reboot to take effect", what),
		Suggestion: "Reboot the host and re-run; completed steps will be skipped.",
		Underlying: ErrRebootRequired,
	}
}

// NewExternalToolFailureError creates an error for a collaborator that
// exited nonzero or timed out.
func NewExternalToolFailureError(tool string, err error) *StepError {
	return &StepError{
		Code:       ErrCodeExternalToolFailure,
		Message:    fmt.Sprintf("external tool %q failed", tool),
		Suggestion: "Inspect the captured stderr above for the tool's own diagnostics.",
		Underlying: err,
	}
}

// NewSafetyViolationError creates an error for an action that would
// affect protected boot resources. Never downgraded to a warning.
func NewSafetyViolationError(resource string) *StepError {
	return &StepError{
		Code:       ErrCodeSafetyViolation,
		Message:    fmt.Sprintf("refusing to touch %s: it backs the active root filesystem", resource),
		Suggestion: "Remove the device from the configured bind list; binding it away would take the running system down.",
	}
}
