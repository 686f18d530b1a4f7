package command

import (
	"context"
	"strings"

	"github.com/felixgeelhaar/nvmeprep/internal/ports"
)

// FakeRunner is a scripted CommandRunner for tests. Results are keyed
// by the joined command line; unmatched commands succeed with empty
// output unless DefaultResult is overridden.
type FakeRunner struct {
	results       map[string]ports.CommandResult
	errs          map[string]error
	DefaultResult ports.CommandResult
	Calls         []ports.CommandCall
}

// NewFakeRunner creates an empty FakeRunner.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{
		results: make(map[string]ports.CommandResult),
		errs:    make(map[string]error),
	}
}

// Stub registers a result for an exact command line.
func (f *FakeRunner) Stub(commandLine string, result ports.CommandResult) {
	f.results[commandLine] = result
}

// StubError registers a transport-level error for an exact command line.
func (f *FakeRunner) StubError(commandLine string, err error) {
	f.errs[commandLine] = err
}

// Run records the call and returns the scripted result.
func (f *FakeRunner) Run(ctx context.Context, command string, args ...string) (ports.CommandResult, error) {
	return f.RunWith(ctx, ports.RunOpts{}, command, args...)
}

// RunWith records the call and returns the scripted result.
func (f *FakeRunner) RunWith(_ context.Context, opts ports.RunOpts, command string, args ...string) (ports.CommandResult, error) {
	f.Calls = append(f.Calls, ports.CommandCall{Command: command, Args: args, Dir: opts.Dir})

	key := strings.TrimSpace(command + " " + strings.Join(args, " "))
	if err, ok := f.errs[key]; ok {
		return ports.CommandResult{ExitCode: -1}, err
	}
	if result, ok := f.results[key]; ok {
		return result, nil
	}
	return f.DefaultResult, nil
}

// CalledWith reports whether any recorded call matches the command line.
func (f *FakeRunner) CalledWith(commandLine string) bool {
	for _, call := range f.Calls {
		key := strings.TrimSpace(call.Command + " " + strings.Join(call.Args, " "))
		if key == commandLine {
			return true
		}
	}
	return false
}

// Ensure FakeRunner implements ports.CommandRunner.
var _ ports.CommandRunner = (*FakeRunner)(nil)
