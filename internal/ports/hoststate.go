package ports

// HostState is a narrow view of observable host configuration: kernel
// pseudo-files under /proc and /sys, plus the symlinks the kernel uses
// to expose driver bindings. Steps observe and mutate the host only
// through this port so they can be tested against a fake.
type HostState interface {
	// ReadFile reads a pseudo-file and returns its contents with
	// trailing whitespace trimmed.
	ReadFile(path string) (string, error)

	// WriteFile writes a value to a pseudo-file. Kernel control files
	// are not created by this call; writing to a missing path fails.
	WriteFile(path, value string) error

	// Exists reports whether a path is present.
	Exists(path string) bool

	// Glob returns the paths matching a shell pattern, sorted.
	Glob(pattern string) ([]string, error)

	// ReadLink returns the target of a symlink, or an error if the
	// path is not a symlink.
	ReadLink(path string) (string, error)
}
