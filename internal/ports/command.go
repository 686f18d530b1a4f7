// Package ports defines interfaces for external dependencies.
package ports

import (
	"context"
	"time"
)

// CommandResult represents the result of executing an external tool.
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
}

// Success returns true if the command exited with code 0.
func (r CommandResult) Success() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// CommandCall records a command invocation.
type CommandCall struct {
	Command string
	Args    []string
	Dir     string
}

// RunOpts configures a single external tool invocation.
type RunOpts struct {
	// Timeout is the budget for the invocation. Zero means no budget
	// beyond the caller's context.
	Timeout time.Duration
	// Dir is the working directory. Empty means the process default.
	Dir string
}

// CommandRunner executes external tools.
// A timed-out invocation returns a CommandResult with TimedOut set and
// a nil error; callers treat it as a failed invocation.
type CommandRunner interface {
	Run(ctx context.Context, command string, args ...string) (CommandResult, error)
	RunWith(ctx context.Context, opts RunOpts, command string, args ...string) (CommandResult, error)
}
