// Package packages provides provisioning steps that install build
// dependencies through the host's package manager.
package packages

import (
	"fmt"

	"github.com/felixgeelhaar/nvmeprep/internal/ports"
)

// Manager describes one supported package manager: how to detect it,
// query a package, and install a package.
type Manager struct {
	Name string

	// binary is the path whose presence selects this manager.
	binary string

	// queryArgv returns the command line that exits 0 when the
	// package is installed.
	queryArgv func(pkg string) []string

	// installArgv returns the non-interactive install command line.
	installArgv func(pkg string) []string

	// installedOutput, when non-empty, is the exact status the
	// query's trimmed stdout must equal. dpkg-query exits 0 for
	// known-but-removed packages, so exit status alone is not enough
	// there.
	installedOutput string

	// base is the package set every build of the framework needs on
	// this distribution family.
	base []string
}

// Supported managers, in detection order.
var managers = []Manager{
	{
		Name:   "apt",
		binary: "/usr/bin/apt-get",
		queryArgv: func(pkg string) []string {
			return []string{"dpkg-query", "-W", "-f=${db:Status-Status}", pkg}
		},
		installArgv: func(pkg string) []string {
			return []string{"apt-get", "install", "-y", pkg}
		},
		installedOutput: "installed",
		base: []string{
			"gcc", "g++", "make", "git", "libaio-dev", "libnuma-dev",
			"libssl-dev", "uuid-dev", "python3", "patchelf",
		},
	},
	{
		Name:   "dnf",
		binary: "/usr/bin/dnf",
		queryArgv: func(pkg string) []string {
			return []string{"rpm", "-q", pkg}
		},
		installArgv: func(pkg string) []string {
			return []string{"dnf", "install", "-y", pkg}
		},
		base: []string{
			"gcc", "gcc-c++", "make", "git", "libaio-devel", "numactl-devel",
			"openssl-devel", "libuuid-devel", "python3", "patchelf",
		},
	},
	{
		Name:   "pacman",
		binary: "/usr/bin/pacman",
		queryArgv: func(pkg string) []string {
			return []string{"pacman", "-Q", pkg}
		},
		installArgv: func(pkg string) []string {
			return []string{"pacman", "-S", "--noconfirm", pkg}
		},
		base: []string{
			"gcc", "make", "git", "libaio", "numactl", "openssl", "util-linux-libs", "python", "patchelf",
		},
	},
}

// Detect selects the host's package manager by probing for its binary.
func Detect(hs ports.HostState) (Manager, error) {
	for _, m := range managers {
		if hs.Exists(m.binary) {
			return m, nil
		}
	}
	return Manager{}, fmt.Errorf("no supported package manager found (looked for apt-get, dnf, pacman)")
}

// Base returns the built-in package set for this manager.
func (m Manager) Base() []string {
	return m.base
}
