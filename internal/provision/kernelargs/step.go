// Package kernelargs stages IOMMU kernel command-line parameters
// through the bootloader configuration.
package kernelargs

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/felixgeelhaar/nvmeprep/internal/domain/step"
	"github.com/felixgeelhaar/nvmeprep/internal/ports"
	"github.com/felixgeelhaar/nvmeprep/internal/validation"
)

const (
	cmdlinePath     = "/proc/cmdline"
	cpuinfoPath     = "/proc/cpuinfo"
	grubDefaultPath = "/etc/default/grub"
	grubKey         = "GRUB_CMDLINE_LINUX"

	regenTimeout = 2 * time.Minute
)

var grubLinePattern = regexp.MustCompile(`(?m)^\s*` + grubKey + `=.*$`)

// IOMMUStep ensures the kernel boots with the IOMMU enabled so device
// DMA can be safely delegated to userspace. Changes to the boot
// command line only take effect after a reboot, so remediation stages
// the parameters and reports the pending state.
type IOMMUStep struct {
	hs          ports.HostState
	runner      ports.CommandRunner
	passthrough bool
	id          step.StepID

	note string
}

// NewIOMMUStep creates the kernel command-line step.
func NewIOMMUStep(hs ports.HostState, runner ports.CommandRunner, passthrough bool) *IOMMUStep {
	return &IOMMUStep{
		hs:          hs,
		runner:      runner,
		passthrough: passthrough,
		id:          step.MustNewStepID("kernel:cmdline:iommu"),
	}
}

// ID returns the step identifier.
func (s *IOMMUStep) ID() step.StepID {
	return s.id
}

// Policy returns the failure policy. Kernel parameters cannot take
// effect within this boot.
func (s *IOMMUStep) Policy() step.Policy {
	return step.RequiresReboot
}

// Note returns the annotation for the last cycle.
func (s *IOMMUStep) Note() string {
	return s.note
}

// requiredArgs derives the parameters for this host's CPU vendor.
func (s *IOMMUStep) requiredArgs() ([]string, error) {
	cpuinfo, err := s.hs.ReadFile(cpuinfoPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", cpuinfoPath, err)
	}

	var args []string
	switch {
	case strings.Contains(cpuinfo, "GenuineIntel"):
		args = []string{"intel_iommu=on"}
	case strings.Contains(cpuinfo, "AuthenticAMD"):
		args = []string{"amd_iommu=on"}
	default:
		return nil, step.NewStepError(step.ErrCodeDependencyMissing,
			"unrecognized CPU vendor; cannot pick an IOMMU kernel parameter").
			WithStepID(s.id.String()).
			WithSuggestion("Add the IOMMU parameter for your platform to the kernel command line manually.")
	}
	if s.passthrough {
		args = append(args, "iommu=pt")
	}
	return args, nil
}

// Check reads the running kernel's command line.
func (s *IOMMUStep) Check(_ step.RunContext) (step.Status, error) {
	s.note = ""

	required, err := s.requiredArgs()
	if err != nil {
		return step.StatusUnknown, err
	}

	cmdline, err := s.hs.ReadFile(cmdlinePath)
	if err != nil {
		return step.StatusUnknown, fmt.Errorf("reading %s: %w", cmdlinePath, err)
	}

	if missingArgs(cmdline, required) == nil {
		return step.StatusSatisfied, nil
	}
	return step.StatusUnsatisfied, nil
}

// Remediate stages the missing parameters in the bootloader default
// and regenerates the grub configuration. It always reports a pending
// reboot; the parameters cannot become active in this boot.
func (s *IOMMUStep) Remediate(ctx step.RunContext) error {
	required, err := s.requiredArgs()
	if err != nil {
		return err
	}
	for _, arg := range required {
		if err := validation.ValidateKernelArg(arg); err != nil {
			return fmt.Errorf("invalid kernel argument: %w", err)
		}
	}

	raw, err := s.hs.ReadFile(grubDefaultPath)
	if err != nil {
		return step.NewStepError(step.ErrCodeDependencyMissing,
			fmt.Sprintf("cannot read %s", grubDefaultPath)).
			WithStepID(s.id.String()).
			WithUnderlying(err).
			WithSuggestion("Only GRUB-managed hosts are supported; stage the IOMMU parameters in your bootloader by hand.")
	}

	staged, err := stagedCmdline(raw)
	if err != nil {
		return err
	}

	missing := missingArgs(staged, required)
	if missing == nil {
		// Already staged by an earlier run; the operator has not
		// rebooted yet.
		s.note = "parameters already staged in " + grubDefaultPath
		return step.NewConfigurationPendingError("IOMMU kernel parameters").WithStepID(s.id.String())
	}

	updated := rewriteGrubDefault(raw, strings.TrimSpace(staged+" "+strings.Join(missing, " ")))
	if err := s.hs.WriteFile(grubDefaultPath, updated); err != nil {
		return fmt.Errorf("writing %s: %w", grubDefaultPath, err)
	}

	if err := s.regenerate(ctx); err != nil {
		return err
	}

	s.note = "staged " + strings.Join(missing, " ") + " in " + grubDefaultPath
	return step.NewConfigurationPendingError("IOMMU kernel parameters").WithStepID(s.id.String())
}

// Verify re-reads the running command line. Within the same boot this
// stays unsatisfied; the engine pairs that with the reboot policy.
func (s *IOMMUStep) Verify(ctx step.RunContext) (step.Status, error) {
	return s.Check(ctx)
}

// regenerate rebuilds the grub configuration from the staged default.
func (s *IOMMUStep) regenerate(ctx step.RunContext) error {
	argv := []string{"update-grub"}
	if !s.hs.Exists("/usr/sbin/update-grub") {
		argv = []string{"grub2-mkconfig", "-o", "/boot/grub2/grub.cfg"}
	}

	result, err := s.runner.RunWith(ctx.Context(), ports.RunOpts{Timeout: regenTimeout}, argv[0], argv[1:]...)
	if err != nil {
		return step.NewExternalToolFailureError(argv[0], err).WithStepID(s.id.String())
	}
	if !result.Success() {
		return step.NewExternalToolFailureError(argv[0],
			fmt.Errorf("exit code %d: %s", result.ExitCode, strings.TrimSpace(result.Stderr))).
			WithStepID(s.id.String())
	}
	return nil
}

// stagedCmdline extracts GRUB_CMDLINE_LINUX from /etc/default/grub.
// The file is shell syntax; ini parsing handles the KEY="value" shape
// and the quoting.
func stagedCmdline(raw string) (string, error) {
	f, err := ini.LoadSources(ini.LoadOptions{
		AllowBooleanKeys: true,
	}, []byte(raw))
	if err != nil {
		return "", fmt.Errorf("parsing %s: %w", grubDefaultPath, err)
	}
	return f.Section("").Key(grubKey).String(), nil
}

// rewriteGrubDefault replaces the GRUB_CMDLINE_LINUX line in place,
// appending one if the file never set it. Only that line changes; the
// file is sourced by shell scripts and must otherwise stay untouched.
func rewriteGrubDefault(raw, cmdline string) string {
	line := fmt.Sprintf(`%s="%s"`, grubKey, cmdline)
	if grubLinePattern.MatchString(raw) {
		return grubLinePattern.ReplaceAllString(raw, line)
	}
	if raw != "" && !strings.HasSuffix(raw, "\n") {
		raw += "\n"
	}
	return raw + line + "\n"
}

// missingArgs returns the required arguments absent from a kernel
// command line, nil when all are present.
func missingArgs(cmdline string, required []string) []string {
	present := make(map[string]bool)
	for _, tok := range strings.Fields(cmdline) {
		present[tok] = true
	}

	var missing []string
	for _, arg := range required {
		if !present[arg] {
			missing = append(missing, arg)
		}
	}
	return missing
}
