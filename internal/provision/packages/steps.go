package packages

import (
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/nvmeprep/internal/domain/step"
	"github.com/felixgeelhaar/nvmeprep/internal/ports"
	"github.com/felixgeelhaar/nvmeprep/internal/validation"
)

// installTimeout bounds one package manager invocation.
const installTimeout = 10 * time.Minute

// InstallStep installs a single package if it is not already present.
type InstallStep struct {
	pkg    string
	mgr    Manager
	id     step.StepID
	runner ports.CommandRunner
}

// NewInstallStep creates a step that ensures one package is installed.
// The step ID is sanitized; the package name itself is validated at
// remediation time, before any tool runs.
func NewInstallStep(pkg string, mgr Manager, runner ports.CommandRunner) *InstallStep {
	return &InstallStep{
		pkg:    pkg,
		mgr:    mgr,
		id:     step.MustNewStepID("pkg:install:" + sanitizeID(pkg)),
		runner: runner,
	}
}

// sanitizeID maps a package name onto the step ID character set.
// "g++" becomes "gpp" rather than losing its suffix entirely.
func sanitizeID(pkg string) string {
	pkg = strings.ReplaceAll(pkg, "+", "p")
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '_', r == '-':
			return r
		default:
			return '-'
		}
	}, pkg)
	mapped = strings.Trim(mapped, "-")
	if mapped == "" {
		mapped = "unnamed"
	}
	return mapped
}

// ID returns the step identifier.
func (s *InstallStep) ID() step.StepID {
	return s.id
}

// Policy returns the failure policy. Missing build dependencies make
// every later step pointless, so failures are fatal.
func (s *InstallStep) Policy() step.Policy {
	return step.FatalOnFailure
}

// Check queries the package manager for the package.
func (s *InstallStep) Check(ctx step.RunContext) (step.Status, error) {
	return s.query(ctx)
}

// Remediate installs the package and confirms the install took.
func (s *InstallStep) Remediate(ctx step.RunContext) error {
	if err := validation.ValidatePackageName(s.pkg); err != nil {
		return fmt.Errorf("invalid package name: %w", err)
	}

	argv := s.mgr.installArgv(s.pkg)
	result, err := s.runner.RunWith(ctx.Context(), ports.RunOpts{Timeout: installTimeout}, argv[0], argv[1:]...)
	if err != nil {
		return step.NewExternalToolFailureError(argv[0], err).WithStepID(s.id.String())
	}
	if !result.Success() {
		return step.NewExternalToolFailureError(argv[0],
			fmt.Errorf("exit code %d: %s", result.ExitCode, strings.TrimSpace(result.Stderr))).
			WithStepID(s.id.String())
	}

	// The manager can exit 0 without installing (held packages,
	// repository skew); re-query so the failure is classified as a
	// missing dependency rather than a verification mismatch.
	status, err := s.query(ctx)
	if err != nil {
		return err
	}
	if status != step.StatusSatisfied {
		return step.NewDependencyMissingError(s.pkg, nil).WithStepID(s.id.String())
	}
	return nil
}

// Verify re-queries the package manager.
func (s *InstallStep) Verify(ctx step.RunContext) (step.Status, error) {
	return s.query(ctx)
}

// query asks the package manager whether the package is installed.
func (s *InstallStep) query(ctx step.RunContext) (step.Status, error) {
	argv := s.mgr.queryArgv(s.pkg)
	result, err := s.runner.Run(ctx.Context(), argv[0], argv[1:]...)
	if err != nil {
		return step.StatusUnknown, err
	}

	if !result.Success() {
		return step.StatusUnsatisfied, nil
	}
	// Exact comparison: dpkg's status vocabulary includes
	// "not-installed" and "half-installed", which a substring match
	// would mistake for "installed".
	if s.mgr.installedOutput != "" && strings.TrimSpace(result.Stdout) != s.mgr.installedOutput {
		return step.StatusUnsatisfied, nil
	}
	return step.StatusSatisfied, nil
}

// Steps builds install steps for the manager's base set plus extras,
// de-duplicated, in stable order.
func Steps(mgr Manager, extra []string, runner ports.CommandRunner) []step.Step {
	seen := make(map[string]bool)
	var steps []step.Step
	for _, pkg := range append(append([]string{}, mgr.base...), extra...) {
		if seen[pkg] {
			continue
		}
		seen[pkg] = true
		steps = append(steps, NewInstallStep(pkg, mgr, runner))
	}
	return steps
}
