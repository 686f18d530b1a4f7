package config

import (
	"fmt"
	"strings"
)

// Error codes for categorization.
const (
	ErrCodeConfigParse      = "CONFIG_PARSE"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
)

// UserError represents an operator-facing error with an actionable
// suggestion.
type UserError struct {
	Code       string // Error code for categorization
	Message    string // Operator-facing error message
	Context    string // File path or config section
	Suggestion string // Actionable suggestion to fix the error
	Underlying error  // Wrapped error for error chain
}

// Error returns the formatted error message.
func (e *UserError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Context != "" {
		fmt.Fprintf(&b, " (at %s)", e.Context)
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain support.
func (e *UserError) Unwrap() error {
	return e.Underlying
}

// Is supports errors.Is() for comparing error codes.
func (e *UserError) Is(target error) bool {
	if t, ok := target.(*UserError); ok {
		return e.Code == t.Code
	}
	return false
}

// NewYAMLParseError creates an error for an unparseable config file.
func NewYAMLParseError(path string, err error) *UserError {
	return &UserError{
		Code:       ErrCodeConfigParse,
		Message:    "configuration file is not valid YAML",
		Context:    path,
		Suggestion: "Check indentation and quoting; a stray tab is the usual culprit.",
		Underlying: err,
	}
}

// NewValidationError creates an error for a config value an operator
// needs to fix.
func NewValidationError(section, message, suggestion string) *UserError {
	return &UserError{
		Code:       ErrCodeValidationFailed,
		Message:    message,
		Context:    section,
		Suggestion: suggestion,
	}
}
