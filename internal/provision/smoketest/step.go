// Package smoketest runs the framework's sample binaries against the
// provisioned host to prove the stack works end to end.
package smoketest

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/felixgeelhaar/nvmeprep/internal/domain/step"
	"github.com/felixgeelhaar/nvmeprep/internal/ports"
)

// RunStep executes one sample binary and inspects its output. Smoke
// tests observe rather than mutate, so Check never reports satisfied:
// every run re-executes the binary against the host's current state.
type RunStep struct {
	hs      ports.HostState
	runner  ports.CommandRunner
	srcDir  string
	binary  string
	expect  string
	timeout time.Duration
	id      step.StepID

	passed bool
	note   string
}

// NewRunStep creates a smoke test step for one binary. The binary path
// is relative to the source directory.
func NewRunStep(hs ports.HostState, runner ports.CommandRunner, srcDir, binary, expect string, timeout time.Duration) *RunStep {
	return &RunStep{
		hs:      hs,
		runner:  runner,
		srcDir:  srcDir,
		binary:  binary,
		expect:  expect,
		timeout: timeout,
		id:      step.MustNewStepID("smoke:run:" + filepath.Base(binary)),
	}
}

// ID returns the step identifier.
func (s *RunStep) ID() step.StepID {
	return s.id
}

// Policy returns the failure policy. A failing sample app is worth
// reporting but does not invalidate the provisioning itself.
func (s *RunStep) Policy() step.Policy {
	return step.WarnAndContinue
}

// Note returns the annotation for the last cycle.
func (s *RunStep) Note() string {
	return s.note
}

func (s *RunStep) binaryPath() string {
	return filepath.Join(s.srcDir, s.binary)
}

// Check confirms the binary exists and forces a fresh run.
func (s *RunStep) Check(_ step.RunContext) (step.Status, error) {
	s.passed, s.note = false, ""

	if !s.hs.Exists(s.binaryPath()) {
		return step.StatusUnknown, step.NewStepError(step.ErrCodeDependencyMissing,
			fmt.Sprintf("smoke test binary %s does not exist", s.binaryPath())).
			WithStepID(s.id.String()).
			WithSuggestion("Check smoke.binaries against the framework's build output.")
	}
	return step.StatusUnsatisfied, nil
}

// Remediate runs the binary and records the outcome for Verify.
func (s *RunStep) Remediate(ctx step.RunContext) error {
	result, err := s.runner.RunWith(ctx.Context(),
		ports.RunOpts{Dir: s.srcDir, Timeout: s.timeout}, s.binaryPath())
	if err != nil {
		return step.NewExternalToolFailureError(s.binary, err).WithStepID(s.id.String())
	}

	switch {
	case result.TimedOut:
		return step.NewExternalToolFailureError(s.binary,
			fmt.Errorf("timed out after %s", s.timeout)).
			WithStepID(s.id.String()).
			WithSuggestion("A hang here usually means the hugepage pool or device binding is off; check the earlier steps' results.")
	case !result.Success():
		return step.NewExternalToolFailureError(s.binary,
			fmt.Errorf("exit code %d: %s", result.ExitCode, strings.TrimSpace(result.Stderr))).
			WithStepID(s.id.String())
	case s.expect != "" && !strings.Contains(result.Stdout, s.expect):
		return step.NewExternalToolFailureError(s.binary,
			fmt.Errorf("output does not contain %q", s.expect)).
			WithStepID(s.id.String())
	}

	s.passed = true
	s.note = "smoke test passed"
	return nil
}

// Verify reports the recorded run outcome.
func (s *RunStep) Verify(_ step.RunContext) (step.Status, error) {
	if s.passed {
		return step.StatusSatisfied, nil
	}
	return step.StatusUnsatisfied, nil
}

// Steps builds one smoke test step per configured binary.
func Steps(hs ports.HostState, runner ports.CommandRunner, srcDir string, binaries []string, expect string, timeout time.Duration) []step.Step {
	var steps []step.Step
	for _, binary := range binaries {
		steps = append(steps, NewRunStep(hs, runner, srcDir, binary, expect, timeout))
	}
	return steps
}
