package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/felixgeelhaar/nvmeprep/internal/adapters/logging"
	"github.com/felixgeelhaar/nvmeprep/internal/domain/step"
)

// fakeStep is a configurable step for engine tests.
type fakeStep struct {
	id       step.StepID
	policy   step.Policy
	checkFn  func(step.RunContext) (step.Status, error)
	remFn    func(step.RunContext) error
	verifyFn func(step.RunContext) (step.Status, error)
	note     string
	degraded bool

	checked    int
	remediated int
	verified   int
}

func newFakeStep(id string) *fakeStep {
	return &fakeStep{
		id:     step.MustNewStepID(id),
		policy: step.FatalOnFailure,
	}
}

func (s *fakeStep) ID() step.StepID     { return s.id }
func (s *fakeStep) Policy() step.Policy { return s.policy }
func (s *fakeStep) Note() string        { return s.note }
func (s *fakeStep) Degraded() bool      { return s.degraded }

func (s *fakeStep) Check(ctx step.RunContext) (step.Status, error) {
	s.checked++
	if s.checkFn != nil {
		return s.checkFn(ctx)
	}
	return step.StatusUnsatisfied, nil
}

func (s *fakeStep) Remediate(ctx step.RunContext) error {
	s.remediated++
	if s.remFn != nil {
		return s.remFn(ctx)
	}
	return nil
}

func (s *fakeStep) Verify(ctx step.RunContext) (step.Status, error) {
	s.verified++
	if s.verifyFn != nil {
		return s.verifyFn(ctx)
	}
	return step.StatusSatisfied, nil
}

func newEngine() *Engine {
	return New(logging.NewNopLogger())
}

func TestEngine_EmptyRun(t *testing.T) {
	report := newEngine().Run(context.Background(), nil)

	if report.Len() != 0 {
		t.Errorf("results len = %d, want 0", report.Len())
	}
	if !report.Finalized() {
		t.Error("report should be finalized")
	}
	if report.Verdict() != VerdictSuccess {
		t.Errorf("Verdict() = %v, want %v", report.Verdict(), VerdictSuccess)
	}
	if report.RunID() == "" {
		t.Error("report should carry a run ID")
	}
}

func TestEngine_SatisfiedStepIsSkipped(t *testing.T) {
	s := newFakeStep("pkg:install:gcc")
	s.checkFn = func(step.RunContext) (step.Status, error) {
		return step.StatusSatisfied, nil
	}

	report := newEngine().Run(context.Background(), []step.Step{s})

	if s.remediated != 0 {
		t.Error("satisfied step must not be remediated")
	}
	if got := report.Results()[0].Outcome(); got != OutcomeSkipped {
		t.Errorf("outcome = %v, want %v", got, OutcomeSkipped)
	}
}

func TestEngine_UnsatisfiedStepIsAppliedAndVerified(t *testing.T) {
	s := newFakeStep("pkg:install:gcc")

	report := newEngine().Run(context.Background(), []step.Step{s})

	if s.remediated != 1 || s.verified != 1 {
		t.Errorf("remediated=%d verified=%d, want 1 and 1", s.remediated, s.verified)
	}
	if got := report.Results()[0].Outcome(); got != OutcomeApplied {
		t.Errorf("outcome = %v, want %v", got, OutcomeApplied)
	}
	if report.Verdict() != VerdictSuccess {
		t.Errorf("Verdict() = %v, want %v", report.Verdict(), VerdictSuccess)
	}
}

func TestEngine_UnknownStatusTriggersRemediation(t *testing.T) {
	s := newFakeStep("pkg:install:gcc")
	s.checkFn = func(step.RunContext) (step.Status, error) {
		return step.StatusUnknown, nil
	}

	newEngine().Run(context.Background(), []step.Step{s})

	if s.remediated != 1 {
		t.Error("unknown status should attempt remediation")
	}
}

func TestEngine_FatalFailureHaltsRun(t *testing.T) {
	failing := newFakeStep("pci:bind:0000:01:00.0")
	failing.remFn = func(step.RunContext) error {
		return errors.New("bind failed")
	}
	later := newFakeStep("build:make")

	report := newEngine().Run(context.Background(), []step.Step{failing, later})

	if report.Len() != 1 {
		t.Fatalf("results len = %d, want 1 (run must halt)", report.Len())
	}
	if later.checked != 0 {
		t.Error("no step after a fatal failure may execute")
	}
	if report.Verdict() != VerdictFailed {
		t.Errorf("Verdict() = %v, want %v", report.Verdict(), VerdictFailed)
	}
}

func TestEngine_WarnPolicyContinues(t *testing.T) {
	failing := newFakeStep("smoke:run:hello_world")
	failing.policy = step.WarnAndContinue
	failing.remFn = func(step.RunContext) error {
		return errors.New("sample binary crashed")
	}
	later := newFakeStep("build:make")

	report := newEngine().Run(context.Background(), []step.Step{failing, later})

	if report.Len() != 2 {
		t.Fatalf("results len = %d, want 2 (run must continue)", report.Len())
	}
	first := report.Results()[0]
	if first.Outcome() != OutcomeFailed || !first.Warning() {
		t.Errorf("outcome = %v warning = %v, want failed with warning", first.Outcome(), first.Warning())
	}
	if later.remediated != 1 {
		t.Error("step after a soft failure should still run")
	}
	if report.Verdict() != VerdictDegraded {
		t.Errorf("Verdict() = %v, want %v", report.Verdict(), VerdictDegraded)
	}
}

func TestEngine_FailedVerificationRoutedByPolicy(t *testing.T) {
	s := newFakeStep("hugepages:reserve:2048kB")
	s.verifyFn = func(step.RunContext) (step.Status, error) {
		return step.StatusUnsatisfied, nil
	}

	report := newEngine().Run(context.Background(), []step.Step{s})

	result := report.Results()[0]
	if result.Outcome() != OutcomeFailed {
		t.Errorf("outcome = %v, want %v", result.Outcome(), OutcomeFailed)
	}
	if result.Error() == nil {
		t.Error("failed verification should carry an error")
	}
}

func TestEngine_RebootRequiredFromRemediate(t *testing.T) {
	reboot := newFakeStep("kernel:cmdline:intel_iommu")
	reboot.policy = step.RequiresReboot
	reboot.remFn = func(step.RunContext) error {
		return step.NewConfigurationPendingError("IOMMU kernel parameters")
	}
	later := newFakeStep("build:make")

	report := newEngine().Run(context.Background(), []step.Step{reboot, later})

	if report.Len() != 1 {
		t.Fatalf("results len = %d, want 1 (run must halt for reboot)", report.Len())
	}
	if got := report.Results()[0].Outcome(); got != OutcomeRebootRequired {
		t.Errorf("outcome = %v, want %v", got, OutcomeRebootRequired)
	}
	if report.Verdict() != VerdictRebootRequired {
		t.Errorf("Verdict() = %v, want %v", report.Verdict(), VerdictRebootRequired)
	}
	if later.checked != 0 {
		t.Error("no step may run after a reboot-required halt")
	}
}

func TestEngine_RebootPolicyOnUnsatisfiedVerify(t *testing.T) {
	s := newFakeStep("kernel:cmdline:intel_iommu")
	s.policy = step.RequiresReboot
	s.verifyFn = func(step.RunContext) (step.Status, error) {
		// Staged in the boot config but not live until reboot.
		return step.StatusUnsatisfied, nil
	}

	report := newEngine().Run(context.Background(), []step.Step{s})

	if got := report.Results()[0].Outcome(); got != OutcomeRebootRequired {
		t.Errorf("outcome = %v, want %v", got, OutcomeRebootRequired)
	}
}

// Invoking the sequence twice with no intervening host change yields
// Skipped for every step previously Applied.
func TestEngine_IdempotentSecondRun(t *testing.T) {
	satisfied := false
	s := newFakeStep("hugepages:reserve:2048kB")
	s.checkFn = func(step.RunContext) (step.Status, error) {
		if satisfied {
			return step.StatusSatisfied, nil
		}
		return step.StatusUnsatisfied, nil
	}
	s.remFn = func(step.RunContext) error {
		satisfied = true
		return nil
	}

	engine := newEngine()

	first := engine.Run(context.Background(), []step.Step{s})
	if got := first.Results()[0].Outcome(); got != OutcomeApplied {
		t.Fatalf("first run outcome = %v, want %v", got, OutcomeApplied)
	}

	second := engine.Run(context.Background(), []step.Step{s})
	if got := second.Results()[0].Outcome(); got != OutcomeSkipped {
		t.Errorf("second run outcome = %v, want %v", got, OutcomeSkipped)
	}
	if s.remediated != 1 {
		t.Errorf("remediated %d times, want exactly 1", s.remediated)
	}
}

func TestEngine_DryRunNeverRemediates(t *testing.T) {
	s := newFakeStep("pkg:install:gcc")

	report := newEngine().WithDryRun(true).Run(context.Background(), []step.Step{s})

	if s.remediated != 0 {
		t.Error("dry run must not remediate")
	}
	if got := report.Results()[0].Outcome(); got != OutcomeWouldApply {
		t.Errorf("outcome = %v, want %v", got, OutcomeWouldApply)
	}
}

func TestEngine_CancellationBetweenSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	first := newFakeStep("pkg:install:gcc")
	first.remFn = func(step.RunContext) error {
		cancel() // cancel mid-run; current step still completes
		return nil
	}
	second := newFakeStep("build:make")

	report := newEngine().Run(ctx, []step.Step{first, second})

	if report.Len() != 1 {
		t.Fatalf("results len = %d, want 1 (truncated report)", report.Len())
	}
	if second.checked != 0 {
		t.Error("cancellation between steps must prevent the next check")
	}
}

func TestEngine_DegradedApplySetsWarning(t *testing.T) {
	s := newFakeStep("hugepages:reserve:2048kB")
	s.degraded = true
	s.note = "allocated 300 of 2048 pages"

	report := newEngine().Run(context.Background(), []step.Step{s})

	result := report.Results()[0]
	if result.Outcome() != OutcomeApplied {
		t.Errorf("outcome = %v, want %v", result.Outcome(), OutcomeApplied)
	}
	if !result.Warning() {
		t.Error("degraded apply should carry a warning")
	}
	if result.Note() != "allocated 300 of 2048 pages" {
		t.Errorf("note = %q", result.Note())
	}
	if report.Verdict() != VerdictDegraded {
		t.Errorf("Verdict() = %v, want %v", report.Verdict(), VerdictDegraded)
	}
}

func TestEngine_CheckErrorIsFailure(t *testing.T) {
	s := newFakeStep("pci:bind:0000:01:00.0")
	s.checkFn = func(step.RunContext) (step.Status, error) {
		return step.StatusUnknown, errors.New("sysfs unreadable")
	}

	report := newEngine().Run(context.Background(), []step.Step{s})

	if got := report.Results()[0].Outcome(); got != OutcomeFailed {
		t.Errorf("outcome = %v, want %v", got, OutcomeFailed)
	}
	if s.remediated != 0 {
		t.Error("a failed check must not remediate")
	}
}
