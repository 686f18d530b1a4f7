// Package driverbind rebinds NVMe controllers from the kernel driver
// to a userspace I/O driver, refusing to touch the controller that
// backs the root filesystem.
package driverbind

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/felixgeelhaar/nvmeprep/internal/ports"
)

const (
	// nvmeClass is the PCI class code for NVM Express controllers.
	nvmeClass = "0x010802"

	pciDevicesDir = "/sys/bus/pci/devices"
	mountsPath    = "/proc/mounts"
)

// nvmeNamespacePattern splits a namespace block device name into its
// controller, e.g. nvme0n1p2 -> nvme0.
var nvmeNamespacePattern = regexp.MustCompile(`^(nvme\d+)(?:c\d+)?n\d+(?:p\d+)?$`)

// bdfPattern matches an extended PCI address inside a sysfs path.
var bdfPattern = regexp.MustCompile(`[0-9a-fA-F]{4}:[0-9a-fA-F]{2}:[0-9a-fA-F]{2}\.[0-7]`)

// plainDiskPattern recognizes non-NVMe block devices that need no
// driver-bind protection: SATA/SCSI, IDE, virtio, Xen and MMC disks,
// with or without a partition suffix.
var plainDiskPattern = regexp.MustCompile(`^(?:sd[a-z]+|hd[a-z]+|vd[a-z]+|xvd[a-z]+)\d*$|^mmcblk\d+(?:p\d+)?$`)

// Device is one discovered NVMe controller.
type Device struct {
	BDF    string
	Driver string // current driver, empty when unbound
}

// Discover enumerates NVMe controllers on the PCI bus.
func Discover(hs ports.HostState) ([]Device, error) {
	classFiles, err := hs.Glob(pciDevicesDir + "/*/class")
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", pciDevicesDir, err)
	}

	var devices []Device
	for _, classFile := range classFiles {
		class, err := hs.ReadFile(classFile)
		if err != nil {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(class), nvmeClass) {
			continue
		}

		bdf := path.Base(path.Dir(classFile))
		devices = append(devices, Device{
			BDF:    bdf,
			Driver: currentDriver(hs, bdf),
		})
	}
	return devices, nil
}

// currentDriver resolves the driver a device is bound to, empty when
// unbound.
func currentDriver(hs ports.HostState, bdf string) string {
	target, err := hs.ReadLink(pciDevicesDir + "/" + bdf + "/driver")
	if err != nil {
		return ""
	}
	return path.Base(target)
}

// ProtectedBDFs resolves the PCI addresses of the NVMe controllers
// backing the root filesystem, empty when the root does not live on
// NVMe. Stacked roots (LVM, dm-crypt, RAID) are walked down to their
// physical members through sysfs, so a root on /dev/mapper/vg-root
// still protects the controllers underneath it. Those controllers
// must never be rebound: pulling their driver takes the running
// system down with it. A root whose backing store cannot be
// identified is an error, not an empty result.
func ProtectedBDFs(hs ports.HostState) ([]string, error) {
	mounts, err := hs.ReadFile(mountsPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", mountsPath, err)
	}

	rootDev := ""
	for _, line := range strings.Split(mounts, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[1] == "/" {
			rootDev = fields[0]
			break
		}
	}
	if rootDev == "" {
		return nil, fmt.Errorf("%s has no root mount", mountsPath)
	}

	name, err := rootBlockName(hs, rootDev)
	if err != nil {
		return nil, err
	}
	leaves, err := physicalLeaves(hs, name, 0)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var bdfs []string
	for _, leaf := range leaves {
		m := nvmeNamespacePattern.FindStringSubmatch(leaf)
		if m == nil {
			continue
		}
		bdf, err := controllerBDF(hs, m[1])
		if err != nil {
			return nil, err
		}
		if !seen[bdf] {
			seen[bdf] = true
			bdfs = append(bdfs, bdf)
		}
	}
	return bdfs, nil
}

// rootBlockName maps the root mount's device node onto the sysfs block
// device name. Device-mapper volumes mount under their /dev/mapper
// alias, which sysfs does not know; the alias is resolved to its dm-N
// node through the udev symlink or, failing that, the dm name files.
func rootBlockName(hs ports.HostState, dev string) (string, error) {
	if !strings.HasPrefix(dev, "/dev/") {
		return "", fmt.Errorf("root device %q is not a block device node; refusing to guess what backs it", dev)
	}
	if strings.HasPrefix(dev, "/dev/mapper/") {
		if target, err := hs.ReadLink(dev); err == nil {
			return path.Base(target), nil
		}
		return dmNodeByName(hs, path.Base(dev))
	}
	return path.Base(dev), nil
}

// dmNodeByName finds the dm-N node whose device-mapper name matches.
func dmNodeByName(hs ports.HostState, name string) (string, error) {
	nameFiles, err := hs.Glob("/sys/class/block/dm-*/dm/name")
	if err != nil {
		return "", err
	}
	for _, f := range nameFiles {
		if got, err := hs.ReadFile(f); err == nil && strings.TrimSpace(got) == name {
			return path.Base(path.Dir(path.Dir(f))), nil
		}
	}
	return "", fmt.Errorf("device-mapper volume %q has no dm node in sysfs", name)
}

// maxStackDepth bounds the slaves walk; real device stacks are a
// handful of layers deep at most.
const maxStackDepth = 8

// physicalLeaves walks a block device's slaves chain down to physical
// devices. NVMe namespaces and plain disks terminate the walk; a name
// that is neither and has no slaves is unidentifiable and errors, so
// the caller fails closed rather than provisioning without protection.
func physicalLeaves(hs ports.HostState, name string, depth int) ([]string, error) {
	if depth > maxStackDepth {
		return nil, fmt.Errorf("block device stack under %s exceeds %d layers", name, maxStackDepth)
	}
	if nvmeNamespacePattern.MatchString(name) {
		return []string{name}, nil
	}

	slaves, err := hs.Glob("/sys/class/block/" + name + "/slaves/*")
	if err != nil {
		return nil, err
	}
	if len(slaves) > 0 {
		var leaves []string
		for _, s := range slaves {
			sub, err := physicalLeaves(hs, path.Base(s), depth+1)
			if err != nil {
				return nil, err
			}
			leaves = append(leaves, sub...)
		}
		return leaves, nil
	}

	if plainDiskPattern.MatchString(name) {
		return nil, nil
	}
	return nil, fmt.Errorf("cannot identify the physical device behind root component %q", name)
}

// controllerBDF resolves an NVMe controller's PCI address from its
// sysfs device path.
func controllerBDF(hs ports.HostState, controller string) (string, error) {
	target, err := hs.ReadLink("/sys/class/nvme/" + controller)
	if err != nil {
		return "", fmt.Errorf("resolving controller %s: %w", controller, err)
	}

	bdfs := bdfPattern.FindAllString(target, -1)
	if len(bdfs) == 0 {
		return "", fmt.Errorf("no PCI address in sysfs path for %s: %s", controller, target)
	}
	// The device's own address is the deepest one; earlier matches are
	// bridges on the way down.
	return strings.ToLower(bdfs[len(bdfs)-1]), nil
}

// Filter applies include and exclude lists to discovered devices.
// An empty include list selects everything.
func Filter(devices []Device, include, exclude []string) []Device {
	included := make(map[string]bool, len(include))
	for _, bdf := range include {
		included[strings.ToLower(bdf)] = true
	}
	excluded := make(map[string]bool, len(exclude))
	for _, bdf := range exclude {
		excluded[strings.ToLower(bdf)] = true
	}

	var out []Device
	for _, d := range devices {
		key := strings.ToLower(d.BDF)
		if len(included) > 0 && !included[key] {
			continue
		}
		if excluded[key] {
			continue
		}
		out = append(out, d)
	}
	return out
}
