// Package config defines and loads the nvmeprep configuration.
package config

import (
	"github.com/felixgeelhaar/nvmeprep/internal/domain/sizing"
	"github.com/felixgeelhaar/nvmeprep/internal/validation"
)

// Config is the root of nvmeprep.yaml. Every field has a usable
// default; a missing config file means "provision with defaults".
type Config struct {
	Packages  PackagesConfig  `yaml:"packages"`
	Hugepages HugepagesConfig `yaml:"hugepages"`
	IOMMU     IOMMUConfig     `yaml:"iommu"`
	Devices   DevicesConfig   `yaml:"devices"`
	Source    SourceConfig    `yaml:"source"`
	Smoke     SmokeConfig     `yaml:"smoke"`
}

// PackagesConfig selects build dependencies to install.
type PackagesConfig struct {
	// Extra packages installed on top of the built-in base set for
	// the detected package manager.
	Extra []string `yaml:"extra"`
}

// HugepagesConfig sizes the hugepage reservation.
type HugepagesConfig struct {
	PageSizeKB  int64 `yaml:"page_size_kb"`
	TargetPages int64 `yaml:"target_pages"`
	// FloorPages is the smallest request the reduction loop may make.
	FloorPages int64 `yaml:"floor_pages"`
	// MinPages is the absolute minimum acceptable allocation; below
	// it the step is fatal.
	MinPages        int64 `yaml:"min_pages"`
	ReductionFactor int64 `yaml:"reduction_factor"`
	MaxReductions   int   `yaml:"max_reductions"`
	// ReserveMB is memory held back from the target computation so
	// the reservation cannot starve the host.
	ReserveMB int64 `yaml:"reserve_mb"`
}

// SizingPolicy converts the hugepage knobs into a sizing policy.
func (h HugepagesConfig) SizingPolicy() sizing.Policy {
	return sizing.Policy{
		Factor:        h.ReductionFactor,
		Floor:         h.FloorPages,
		Minimum:       h.MinPages,
		MaxReductions: h.MaxReductions,
	}
}

// IOMMUConfig controls the kernel command-line requirement.
type IOMMUConfig struct {
	// Enabled gates the IOMMU boot-parameter step entirely.
	Enabled bool `yaml:"enabled"`
	// Passthrough adds iommu=pt alongside the vendor enable flag.
	Passthrough bool `yaml:"passthrough"`
}

// DevicesConfig selects NVMe controllers for driver rebinding.
type DevicesConfig struct {
	// TargetDriver is the userspace I/O driver to bind to.
	TargetDriver string `yaml:"target_driver"`
	// Include limits binding to these PCI addresses. Empty means all
	// detected NVMe controllers.
	Include []string `yaml:"include"`
	// Exclude removes PCI addresses from consideration.
	Exclude []string `yaml:"exclude"`
}

// SourceConfig locates and builds the storage framework source tree.
type SourceConfig struct {
	Dir            string   `yaml:"dir"`
	ConfigureFlags []string `yaml:"configure_flags"`
	MakeJobs       int      `yaml:"make_jobs"`
	TimeoutMinutes int      `yaml:"timeout_minutes"`
	// Artifact is a path relative to Dir whose presence marks a
	// completed build.
	Artifact string `yaml:"artifact"`
}

// SmokeConfig runs sample binaries after the build.
type SmokeConfig struct {
	// Binaries are paths relative to the source dir.
	Binaries []string `yaml:"binaries"`
	// ExpectSubstring, when set, must appear on a binary's stdout in
	// addition to exit code 0.
	ExpectSubstring string `yaml:"expect_substring"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
}

// Default returns the built-in configuration. It provisions the host
// with a 2 MiB hugepage pool sized for the framework's sample apps and
// binds every non-boot NVMe controller to vfio-pci.
func Default() *Config {
	return &Config{
		Hugepages: HugepagesConfig{
			PageSizeKB:      2048,
			TargetPages:     1024,
			FloorPages:      128,
			MinPages:        64,
			ReductionFactor: 2,
			MaxReductions:   8,
			ReserveMB:       1024,
		},
		IOMMU: IOMMUConfig{
			Enabled:     true,
			Passthrough: true,
		},
		Devices: DevicesConfig{
			TargetDriver: "vfio-pci",
		},
		Source: SourceConfig{
			Dir:            "/opt/spdk",
			MakeJobs:       0, // 0 means nproc
			TimeoutMinutes: 45,
			Artifact:       "build/lib",
		},
		Smoke: SmokeConfig{
			Binaries:        []string{"build/examples/hello_world"},
			TimeoutSeconds:  120,
			ExpectSubstring: "",
		},
	}
}

// applyDefaults fills zero-valued fields from Default.
func (c *Config) applyDefaults() {
	def := Default()

	if c.Hugepages.PageSizeKB == 0 {
		c.Hugepages.PageSizeKB = def.Hugepages.PageSizeKB
	}
	if c.Hugepages.TargetPages == 0 {
		c.Hugepages.TargetPages = def.Hugepages.TargetPages
	}
	if c.Hugepages.FloorPages == 0 {
		c.Hugepages.FloorPages = def.Hugepages.FloorPages
	}
	if c.Hugepages.MinPages == 0 {
		c.Hugepages.MinPages = def.Hugepages.MinPages
	}
	if c.Hugepages.ReductionFactor == 0 {
		c.Hugepages.ReductionFactor = def.Hugepages.ReductionFactor
	}
	if c.Hugepages.MaxReductions == 0 {
		c.Hugepages.MaxReductions = def.Hugepages.MaxReductions
	}
	if c.Hugepages.ReserveMB == 0 {
		c.Hugepages.ReserveMB = def.Hugepages.ReserveMB
	}
	if c.Devices.TargetDriver == "" {
		c.Devices.TargetDriver = def.Devices.TargetDriver
	}
	if c.Source.Dir == "" {
		c.Source.Dir = def.Source.Dir
	}
	if c.Source.TimeoutMinutes == 0 {
		c.Source.TimeoutMinutes = def.Source.TimeoutMinutes
	}
	if c.Source.Artifact == "" {
		c.Source.Artifact = def.Source.Artifact
	}
	if len(c.Smoke.Binaries) == 0 {
		c.Smoke.Binaries = def.Smoke.Binaries
	}
	if c.Smoke.TimeoutSeconds == 0 {
		c.Smoke.TimeoutSeconds = def.Smoke.TimeoutSeconds
	}
}

// Validate checks the configuration for operator mistakes.
func (c *Config) Validate() error {
	if err := c.Hugepages.SizingPolicy().Validate(); err != nil {
		return NewValidationError("hugepages", err.Error(),
			"Check floor_pages, min_pages and reduction_factor; the floor must be positive and at least the minimum.")
	}
	if c.Hugepages.TargetPages < c.Hugepages.MinPages {
		return NewValidationError("hugepages",
			"target_pages is below min_pages",
			"Raise target_pages or lower min_pages.")
	}

	for _, pkg := range c.Packages.Extra {
		if err := validation.ValidatePackageName(pkg); err != nil {
			return NewValidationError("packages.extra", err.Error(),
				"Package names may only contain alphanumerics, plus, dot, hyphen and underscore.")
		}
	}

	for _, bdf := range append(append([]string{}, c.Devices.Include...), c.Devices.Exclude...) {
		if err := validation.ValidateBDF(bdf); err != nil {
			return NewValidationError("devices", err.Error(),
				"PCI addresses use the extended form dddd:bb:dd.f, e.g. 0000:01:00.0.")
		}
	}

	return nil
}
