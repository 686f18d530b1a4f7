package app

import (
	"fmt"
	"path"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/felixgeelhaar/nvmeprep/internal/adapters/hoststate"
	"github.com/felixgeelhaar/nvmeprep/internal/domain/config"
	"github.com/felixgeelhaar/nvmeprep/internal/ports"
	"github.com/felixgeelhaar/nvmeprep/internal/provision/driverbind"
	"github.com/felixgeelhaar/nvmeprep/internal/provision/packages"
)

// Finding is one doctor probe result.
type Finding struct {
	Name   string
	OK     bool
	Detail string
}

// Doctor inspects the host without changing anything and reports
// whether provisioning is likely to succeed.
type Doctor struct {
	cfg   *config.Config
	hs    ports.HostState
	euid  func() int
	uname func() (string, error)
}

// DoctorOption customizes a Doctor.
type DoctorOption func(*Doctor)

// WithDoctorHostState overrides the host state adapter.
func WithDoctorHostState(hs ports.HostState) DoctorOption {
	return func(d *Doctor) { d.hs = hs }
}

// WithDoctorEUID overrides effective-UID resolution.
func WithDoctorEUID(euid func() int) DoctorOption {
	return func(d *Doctor) { d.euid = euid }
}

// WithDoctorUname overrides kernel release resolution.
func WithDoctorUname(uname func() (string, error)) DoctorOption {
	return func(d *Doctor) { d.uname = uname }
}

// NewDoctor creates a Doctor against the live host.
func NewDoctor(cfg *config.Config, opts ...DoctorOption) *Doctor {
	d := &Doctor{
		cfg:   cfg,
		hs:    hoststate.NewReal(),
		euid:  unix.Geteuid,
		uname: kernelRelease,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Diagnose runs every probe and returns the findings in a stable
// order.
func (d *Doctor) Diagnose() []Finding {
	return []Finding{
		d.kernel(),
		d.privileges(),
		d.packageManager(),
		d.iommu(),
		d.hugepageSupport(),
		d.controllers(),
		d.source(),
	}
}

func (d *Doctor) kernel() Finding {
	release, err := d.uname()
	if err != nil {
		return Finding{Name: "kernel", Detail: err.Error()}
	}
	return Finding{Name: "kernel", OK: true, Detail: release}
}

func (d *Doctor) privileges() Finding {
	if d.euid() == 0 {
		return Finding{Name: "privileges", OK: true, Detail: "running as root"}
	}
	return Finding{Name: "privileges", Detail: "not root; provisioning will refuse to run"}
}

func (d *Doctor) packageManager() Finding {
	mgr, err := packages.Detect(d.hs)
	if err != nil {
		return Finding{Name: "package manager", Detail: err.Error()}
	}
	return Finding{Name: "package manager", OK: true, Detail: mgr.Name}
}

func (d *Doctor) iommu() Finding {
	groups, err := d.hs.Glob("/sys/kernel/iommu_groups/*")
	if err == nil && len(groups) > 0 {
		return Finding{Name: "iommu", OK: true,
			Detail: fmt.Sprintf("%d IOMMU groups active", len(groups))}
	}
	return Finding{Name: "iommu",
		Detail: "no IOMMU groups; enable the IOMMU in firmware and kernel parameters"}
}

func (d *Doctor) hugepageSupport() Finding {
	want := fmt.Sprintf("hugepages-%dkB", d.cfg.Hugepages.PageSizeKB)
	dirs, err := d.hs.Glob("/sys/kernel/mm/hugepages/*")
	if err != nil || len(dirs) == 0 {
		return Finding{Name: "hugepages", Detail: "kernel exposes no hugepage sizes"}
	}

	var sizes []string
	for _, dir := range dirs {
		sizes = append(sizes, path.Base(dir))
	}
	for _, size := range sizes {
		if size == want {
			return Finding{Name: "hugepages", OK: true,
				Detail: "supported sizes: " + strings.Join(sizes, ", ")}
		}
	}
	return Finding{Name: "hugepages",
		Detail: fmt.Sprintf("configured size %s not offered (have %s)", want, strings.Join(sizes, ", "))}
}

func (d *Doctor) controllers() Finding {
	devices, err := driverbind.Discover(d.hs)
	if err != nil {
		return Finding{Name: "nvme controllers", Detail: err.Error()}
	}
	if len(devices) == 0 {
		return Finding{Name: "nvme controllers", Detail: "no NVMe controllers on the PCI bus"}
	}

	protected, err := driverbind.ProtectedBDFs(d.hs)
	if err != nil {
		return Finding{Name: "nvme controllers",
			Detail: fmt.Sprintf("cannot resolve the boot device: %v", err)}
	}
	var parts []string
	for _, dev := range devices {
		desc := dev.BDF
		if dev.Driver != "" {
			desc += " (" + dev.Driver + ")"
		}
		for _, p := range protected {
			if strings.EqualFold(dev.BDF, p) {
				desc += " [boot device]"
				break
			}
		}
		parts = append(parts, desc)
	}
	return Finding{Name: "nvme controllers", OK: true, Detail: strings.Join(parts, ", ")}
}

func (d *Doctor) source() Finding {
	if d.hs.Exists(d.cfg.Source.Dir) {
		return Finding{Name: "source", OK: true, Detail: d.cfg.Source.Dir}
	}
	return Finding{Name: "source",
		Detail: fmt.Sprintf("%s does not exist; clone the framework there or set source.dir", d.cfg.Source.Dir)}
}

// Healthy reports whether every finding passed.
func Healthy(findings []Finding) bool {
	for _, f := range findings {
		if !f.OK {
			return false
		}
	}
	return true
}

// kernelRelease reads the running kernel version from the live host.
func kernelRelease() (string, error) {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return "", err
	}
	return unix.ByteSliceToString(u.Release[:]), nil
}
