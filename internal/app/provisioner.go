// Package app wires configuration, host adapters and provisioning
// steps into runnable workflows for the CLI.
package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/felixgeelhaar/nvmeprep/internal/adapters/command"
	"github.com/felixgeelhaar/nvmeprep/internal/adapters/hoststate"
	"github.com/felixgeelhaar/nvmeprep/internal/adapters/logging"
	"github.com/felixgeelhaar/nvmeprep/internal/domain/config"
	"github.com/felixgeelhaar/nvmeprep/internal/domain/engine"
	"github.com/felixgeelhaar/nvmeprep/internal/domain/step"
	"github.com/felixgeelhaar/nvmeprep/internal/ports"
	"github.com/felixgeelhaar/nvmeprep/internal/provision/build"
	"github.com/felixgeelhaar/nvmeprep/internal/provision/driverbind"
	"github.com/felixgeelhaar/nvmeprep/internal/provision/hugepages"
	"github.com/felixgeelhaar/nvmeprep/internal/provision/kernelargs"
	"github.com/felixgeelhaar/nvmeprep/internal/provision/packages"
	"github.com/felixgeelhaar/nvmeprep/internal/provision/smoketest"
)

// Provisioner assembles and runs the full provisioning sequence.
type Provisioner struct {
	cfg    *config.Config
	hs     ports.HostState
	runner ports.CommandRunner
	logger ports.Logger
	dryRun bool
	euid   func() int
}

// Option customizes a Provisioner.
type Option func(*Provisioner)

// WithHostState overrides the host state adapter.
func WithHostState(hs ports.HostState) Option {
	return func(p *Provisioner) { p.hs = hs }
}

// WithRunner overrides the command runner.
func WithRunner(r ports.CommandRunner) Option {
	return func(p *Provisioner) { p.runner = r }
}

// WithLogger overrides the logger.
func WithLogger(l ports.Logger) Option {
	return func(p *Provisioner) { p.logger = l }
}

// WithDryRun makes the run check-only.
func WithDryRun(dryRun bool) Option {
	return func(p *Provisioner) { p.dryRun = dryRun }
}

// WithEUID overrides effective-UID resolution.
func WithEUID(euid func() int) Option {
	return func(p *Provisioner) { p.euid = euid }
}

// NewProvisioner creates a Provisioner against the live host. Options
// swap in fakes for tests.
func NewProvisioner(cfg *config.Config, opts ...Option) *Provisioner {
	p := &Provisioner{
		cfg:    cfg,
		hs:     hoststate.NewReal(),
		runner: command.NewRealRunner(),
		logger: logging.NewNopLogger(),
		euid:   unix.Geteuid,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes the provisioning sequence and returns the report.
// Everything here mutates kernel and system state, so anything but a
// dry run demands root up front rather than failing step by step.
func (p *Provisioner) Run(ctx context.Context) (*engine.Report, error) {
	if !p.dryRun && p.euid() != 0 {
		return nil, step.NewPermissionDeniedError()
	}

	steps, err := p.Steps()
	if err != nil {
		return nil, err
	}

	p.logger.Info(ctx, "starting provisioning run",
		ports.F("steps", len(steps)),
		ports.F("dry_run", p.dryRun))

	return engine.New(p.logger).WithDryRun(p.dryRun).Run(ctx, steps), nil
}

// Steps assembles the ordered step list from the configuration.
// Ordering matters: packages must exist before the source builds, the
// IOMMU must be staged before devices move to a userspace driver, and
// smoke tests exercise everything before them.
func (p *Provisioner) Steps() ([]step.Step, error) {
	var steps []step.Step

	mgr, err := packages.Detect(p.hs)
	if err != nil {
		return nil, err
	}
	steps = append(steps, packages.Steps(mgr, p.cfg.Packages.Extra, p.runner)...)

	if p.cfg.IOMMU.Enabled {
		steps = append(steps, kernelargs.NewIOMMUStep(p.hs, p.runner, p.cfg.IOMMU.Passthrough))
	}

	hp := p.cfg.Hugepages
	steps = append(steps, hugepages.NewReserveStep(p.hs, hp.SizingPolicy(),
		hp.PageSizeKB, hp.TargetPages, hp.ReserveMB))

	bindSteps, err := driverbind.Steps(p.hs, p.runner, p.cfg.Devices.TargetDriver,
		p.cfg.Devices.Include, p.cfg.Devices.Exclude)
	if err != nil {
		return nil, fmt.Errorf("enumerating NVMe controllers: %w", err)
	}
	steps = append(steps, bindSteps...)

	src := p.cfg.Source
	steps = append(steps, build.NewCompileStep(p.hs, p.runner, build.Options{
		Dir:            src.Dir,
		ConfigureFlags: src.ConfigureFlags,
		Jobs:           src.MakeJobs,
		Timeout:        time.Duration(src.TimeoutMinutes) * time.Minute,
		Artifact:       src.Artifact,
	}))

	smoke := p.cfg.Smoke
	steps = append(steps, smoketest.Steps(p.hs, p.runner, src.Dir, smoke.Binaries,
		smoke.ExpectSubstring, time.Duration(smoke.TimeoutSeconds)*time.Second)...)

	return steps, nil
}

// ExitCode maps a run verdict onto the process exit code. A degraded
// run still leaves a usable host, so it exits zero; the distinct
// reboot code lets wrapping automation reboot and re-invoke.
func ExitCode(v engine.Verdict) int {
	switch v {
	case engine.VerdictFailed:
		return 1
	case engine.VerdictRebootRequired:
		return 2
	case engine.VerdictSuccess, engine.VerdictDegraded:
		return 0
	}
	return 1
}
