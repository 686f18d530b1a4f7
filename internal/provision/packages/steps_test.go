package packages

import (
	"context"
	"errors"
	"testing"

	"github.com/felixgeelhaar/nvmeprep/internal/adapters/command"
	"github.com/felixgeelhaar/nvmeprep/internal/adapters/hoststate"
	"github.com/felixgeelhaar/nvmeprep/internal/domain/step"
	"github.com/felixgeelhaar/nvmeprep/internal/ports"
)

func aptManager(t *testing.T) Manager {
	t.Helper()
	hs := hoststate.NewFake()
	hs.SetFile("/usr/bin/apt-get", "")
	mgr, err := Detect(hs)
	if err != nil {
		t.Fatal(err)
	}
	return mgr
}

func TestDetect(t *testing.T) {
	tests := []struct {
		binary string
		want   string
	}{
		{"/usr/bin/apt-get", "apt"},
		{"/usr/bin/dnf", "dnf"},
		{"/usr/bin/pacman", "pacman"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			hs := hoststate.NewFake()
			hs.SetFile(tt.binary, "")
			mgr, err := Detect(hs)
			if err != nil {
				t.Fatalf("Detect() error = %v", err)
			}
			if mgr.Name != tt.want {
				t.Errorf("Detect() = %q, want %q", mgr.Name, tt.want)
			}
			if len(mgr.Base()) == 0 {
				t.Error("manager should carry a base package set")
			}
		})
	}
}

func TestDetect_NoneFound(t *testing.T) {
	if _, err := Detect(hoststate.NewFake()); err == nil {
		t.Error("Detect() should fail with no known manager present")
	}
}

func TestInstallStep_CheckInstalled(t *testing.T) {
	runner := command.NewFakeRunner()
	runner.Stub("dpkg-query -W -f=${db:Status-Status} gcc", ports.CommandResult{Stdout: "installed"})

	s := NewInstallStep("gcc", aptManager(t), runner)
	status, err := s.Check(step.NewRunContext(context.Background()))
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if status != step.StatusSatisfied {
		t.Errorf("status = %v, want satisfied", status)
	}
}

func TestInstallStep_CheckRemovedPackage(t *testing.T) {
	// dpkg-query exits 0 for known-but-removed packages.
	runner := command.NewFakeRunner()
	runner.Stub("dpkg-query -W -f=${db:Status-Status} gcc", ports.CommandResult{Stdout: "config-files"})

	s := NewInstallStep("gcc", aptManager(t), runner)
	status, _ := s.Check(step.NewRunContext(context.Background()))
	if status != step.StatusUnsatisfied {
		t.Errorf("status = %v, want unsatisfied", status)
	}
}

func TestInstallStep_CheckNeverInstalledPackage(t *testing.T) {
	// The "not-installed" status contains "installed"; only an exact
	// comparison keeps it from passing as present.
	runner := command.NewFakeRunner()
	runner.Stub("dpkg-query -W -f=${db:Status-Status} gcc", ports.CommandResult{Stdout: "not-installed\n"})

	s := NewInstallStep("gcc", aptManager(t), runner)
	status, err := s.Check(step.NewRunContext(context.Background()))
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if status != step.StatusUnsatisfied {
		t.Errorf("status = %v, want unsatisfied", status)
	}
}

func TestInstallStep_CheckMissing(t *testing.T) {
	runner := command.NewFakeRunner()
	runner.Stub("dpkg-query -W -f=${db:Status-Status} gcc", ports.CommandResult{ExitCode: 1})

	s := NewInstallStep("gcc", aptManager(t), runner)
	status, _ := s.Check(step.NewRunContext(context.Background()))
	if status != step.StatusUnsatisfied {
		t.Errorf("status = %v, want unsatisfied", status)
	}
}

func TestInstallStep_RemediateInstalls(t *testing.T) {
	runner := command.NewFakeRunner()
	runner.DefaultResult = ports.CommandResult{Stdout: "installed"}

	s := NewInstallStep("gcc", aptManager(t), runner)
	if err := s.Remediate(step.NewRunContext(context.Background())); err != nil {
		t.Fatalf("Remediate() error = %v", err)
	}
	if !runner.CalledWith("apt-get install -y gcc") {
		t.Errorf("install not invoked; calls: %+v", runner.Calls)
	}
}

func TestInstallStep_RemediateToolFailure(t *testing.T) {
	runner := command.NewFakeRunner()
	runner.Stub("apt-get install -y gcc", ports.CommandResult{ExitCode: 100, Stderr: "held broken packages"})

	s := NewInstallStep("gcc", aptManager(t), runner)
	err := s.Remediate(step.NewRunContext(context.Background()))
	if step.CodeOf(err) != step.ErrCodeExternalToolFailure {
		t.Errorf("error code = %q, want %q (err=%v)", step.CodeOf(err), step.ErrCodeExternalToolFailure, err)
	}
}

func TestInstallStep_RemediateStillMissing(t *testing.T) {
	// Install exits 0 but the package never lands.
	runner := command.NewFakeRunner()
	runner.Stub("dpkg-query -W -f=${db:Status-Status} gcc", ports.CommandResult{ExitCode: 1})

	s := NewInstallStep("gcc", aptManager(t), runner)
	err := s.Remediate(step.NewRunContext(context.Background()))
	if step.CodeOf(err) != step.ErrCodeDependencyMissing {
		t.Errorf("error code = %q, want %q (err=%v)", step.CodeOf(err), step.ErrCodeDependencyMissing, err)
	}
}

func TestInstallStep_RemediateRejectsBadName(t *testing.T) {
	runner := command.NewFakeRunner()

	s := NewInstallStep("gcc; rm -rf /", aptManager(t), runner)
	if err := s.Remediate(step.NewRunContext(context.Background())); err == nil {
		t.Fatal("Remediate() should reject an invalid package name")
	}
	if len(runner.Calls) != 0 {
		t.Error("no external tool may run for an invalid package name")
	}
}

func TestInstallStep_TimeoutIsToolFailure(t *testing.T) {
	runner := command.NewFakeRunner()
	runner.Stub("apt-get install -y gcc", ports.CommandResult{TimedOut: true, ExitCode: -1})

	s := NewInstallStep("gcc", aptManager(t), runner)
	err := s.Remediate(step.NewRunContext(context.Background()))
	if step.CodeOf(err) != step.ErrCodeExternalToolFailure {
		t.Errorf("error code = %q, want %q", step.CodeOf(err), step.ErrCodeExternalToolFailure)
	}
}

func TestSteps_DeduplicatesAndOrders(t *testing.T) {
	mgr := aptManager(t)
	steps := Steps(mgr, []string{"meson", "gcc"}, command.NewFakeRunner())

	want := len(mgr.Base()) + 1 // gcc already in the base set
	if len(steps) != want {
		t.Errorf("len(steps) = %d, want %d", len(steps), want)
	}
	last := steps[len(steps)-1]
	if last.ID().String() != "pkg:install:meson" {
		t.Errorf("extras should come after the base set, got %s", last.ID())
	}
}

func TestInstallStep_QueryTransportError(t *testing.T) {
	runner := command.NewFakeRunner()
	runner.StubError("dpkg-query -W -f=${db:Status-Status} gcc", errors.New("exec not found"))

	s := NewInstallStep("gcc", aptManager(t), runner)
	status, err := s.Check(step.NewRunContext(context.Background()))
	if err == nil {
		t.Error("transport errors should surface from Check")
	}
	if status != step.StatusUnknown {
		t.Errorf("status = %v, want unknown", status)
	}
}
