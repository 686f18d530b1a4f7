package driverbind

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/nvmeprep/internal/domain/step"
	"github.com/felixgeelhaar/nvmeprep/internal/ports"
	"github.com/felixgeelhaar/nvmeprep/internal/validation"
)

const pciDriversDir = "/sys/bus/pci/drivers"

// BindStep rebinds one NVMe controller to the target driver. The
// controller backing the root filesystem is constructed with protected
// set; it reports a degraded skip from Check and refuses remediation
// outright.
type BindStep struct {
	hs        ports.HostState
	runner    ports.CommandRunner
	bdf       string
	driver    string
	protected bool
	id        step.StepID

	note     string
	degraded bool
}

// NewBindStep creates a bind step for one controller.
func NewBindStep(hs ports.HostState, runner ports.CommandRunner, bdf, driver string, protected bool) (*BindStep, error) {
	if err := validation.ValidateBDF(bdf); err != nil {
		return nil, err
	}
	return &BindStep{
		hs:        hs,
		runner:    runner,
		bdf:       strings.ToLower(bdf),
		driver:    driver,
		protected: protected,
		id:        step.MustNewStepID("driver:bind:" + strings.ToLower(bdf)),
	}, nil
}

// ID returns the step identifier.
func (s *BindStep) ID() step.StepID {
	return s.id
}

// Policy returns the failure policy. A controller that cannot be
// handed to userspace defeats the point of provisioning.
func (s *BindStep) Policy() step.Policy {
	return step.FatalOnFailure
}

// Note returns the annotation for the last cycle.
func (s *BindStep) Note() string {
	return s.note
}

// Degraded reports whether the last cycle ended in a protective skip.
func (s *BindStep) Degraded() bool {
	return s.degraded
}

func (s *BindStep) devicePath(file string) string {
	return pciDevicesDir + "/" + s.bdf + "/" + file
}

func (s *BindStep) driverPath(file string) string {
	return pciDriversDir + "/" + s.driver + "/" + file
}

// Check resolves the controller's current driver. The protected
// controller is always satisfied: leaving it alone is the correct
// end state.
func (s *BindStep) Check(_ step.RunContext) (step.Status, error) {
	s.note, s.degraded = "", false

	if s.protected {
		s.degraded = true
		s.note = fmt.Sprintf("%s backs the root filesystem; left on its kernel driver", s.bdf)
		return step.StatusSatisfied, nil
	}

	if currentDriver(s.hs, s.bdf) == s.driver {
		return step.StatusSatisfied, nil
	}
	return step.StatusUnsatisfied, nil
}

// Remediate unbinds the controller from its current driver and binds
// it to the target driver, loading the driver module if needed.
func (s *BindStep) Remediate(ctx step.RunContext) error {
	if s.protected {
		// Check never routes the protected controller here; this
		// guard keeps a direct caller from shooting the host.
		return step.NewSafetyViolationError("controller " + s.bdf).WithStepID(s.id.String())
	}

	if current := currentDriver(s.hs, s.bdf); current != "" && current != s.driver {
		unbind := pciDriversDir + "/" + current + "/unbind"
		if err := s.hs.WriteFile(unbind, s.bdf); err != nil {
			return fmt.Errorf("unbinding %s from %s: %w", s.bdf, current, err)
		}
	}

	if err := s.ensureDriverLoaded(ctx); err != nil {
		return err
	}

	// Registering the device's PCI ID with the driver usually triggers
	// the bind on its own. The write fails when the ID is already
	// registered, which is fine.
	if vendor, device, err := s.readIDs(); err == nil {
		_ = s.hs.WriteFile(s.driverPath("new_id"), vendor+" "+device)
	}

	if currentDriver(s.hs, s.bdf) != s.driver {
		if err := s.hs.WriteFile(s.driverPath("bind"), s.bdf); err != nil {
			return fmt.Errorf("binding %s to %s: %w", s.bdf, s.driver, err)
		}
	}
	return nil
}

// Verify re-resolves the driver symlink.
func (s *BindStep) Verify(_ step.RunContext) (step.Status, error) {
	if s.protected {
		return step.StatusSatisfied, nil
	}
	if currentDriver(s.hs, s.bdf) == s.driver {
		return step.StatusSatisfied, nil
	}
	return step.StatusUnsatisfied, nil
}

// ensureDriverLoaded loads the target driver module when its sysfs
// directory is absent.
func (s *BindStep) ensureDriverLoaded(ctx step.RunContext) error {
	if s.hs.Exists(pciDriversDir + "/" + s.driver) {
		return nil
	}

	result, err := s.runner.Run(ctx.Context(), "modprobe", s.driver)
	if err != nil {
		return step.NewExternalToolFailureError("modprobe", err).WithStepID(s.id.String())
	}
	if !result.Success() {
		return step.NewStepError(step.ErrCodeDependencyMissing,
			fmt.Sprintf("driver module %q cannot be loaded", s.driver)).
			WithStepID(s.id.String()).
			WithUnderlying(fmt.Errorf("modprobe exit code %d: %s", result.ExitCode, strings.TrimSpace(result.Stderr))).
			WithSuggestion("Install the kernel modules package for the running kernel, or enable the driver in your kernel build.")
	}
	return nil
}

// readIDs reads the controller's PCI vendor and device IDs, without
// the 0x prefix sysfs reports them with.
func (s *BindStep) readIDs() (vendor, device string, err error) {
	vendor, err = s.hs.ReadFile(s.devicePath("vendor"))
	if err != nil {
		return "", "", err
	}
	device, err = s.hs.ReadFile(s.devicePath("device"))
	if err != nil {
		return "", "", err
	}
	return strings.TrimPrefix(strings.TrimSpace(vendor), "0x"),
		strings.TrimPrefix(strings.TrimSpace(device), "0x"), nil
}

// Steps discovers NVMe controllers, applies the include and exclude
// lists, and builds one bind step per controller. The controller
// backing the root filesystem is never filtered out; it stays in the
// run as a protected step so the report shows it was seen and spared.
func Steps(hs ports.HostState, runner ports.CommandRunner, driver string, include, exclude []string) ([]step.Step, error) {
	devices, err := Discover(hs)
	if err != nil {
		return nil, err
	}

	protected, err := ProtectedBDFs(hs)
	if err != nil {
		return nil, err
	}

	var steps []step.Step
	for _, d := range Filter(devices, include, exclude) {
		isProtected := containsBDF(protected, d.BDF)
		s, err := NewBindStep(hs, runner, d.BDF, driver, isProtected)
		if err != nil {
			return nil, fmt.Errorf("device %s: %w", d.BDF, err)
		}
		steps = append(steps, s)
	}
	return steps, nil
}

// containsBDF reports whether a PCI address is in the list, ignoring
// hex case.
func containsBDF(bdfs []string, bdf string) bool {
	for _, b := range bdfs {
		if strings.EqualFold(b, bdf) {
			return true
		}
	}
	return false
}
