// Package hoststate provides access to observable host configuration
// through kernel pseudo-files under /proc and /sys.
package hoststate

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/felixgeelhaar/nvmeprep/internal/ports"
)

// Real reads and writes the live /proc and /sys trees. An optional
// root prefix supports tests against a staged directory tree.
type Real struct {
	root string
}

// NewReal creates a host state view over the real filesystem.
func NewReal() *Real {
	return &Real{}
}

// NewRealAt creates a host state view rooted at the given directory.
func NewRealAt(root string) *Real {
	return &Real{root: root}
}

func (r *Real) path(p string) string {
	if r.root == "" {
		return p
	}
	return filepath.Join(r.root, p)
}

// ReadFile reads a pseudo-file, trimming trailing whitespace. Kernel
// control files conventionally end in a newline that callers never
// want.
func (r *Real) ReadFile(path string) (string, error) {
	data, err := os.ReadFile(r.path(path))
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\n\t "), nil
}

// WriteFile writes a value to a pseudo-file. The file must already
// exist; sysfs control files are created by the kernel, not by us.
// Truncation is a no-op on sysfs but matters for regular files such
// as /etc/default/grub.
func (r *Real) WriteFile(path, value string) error {
	f, err := os.OpenFile(r.path(path), os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.WriteString(value)
	return err
}

// Exists reports whether a path is present.
func (r *Real) Exists(path string) bool {
	_, err := os.Lstat(r.path(path))
	return err == nil
}

// Glob returns the paths matching a shell pattern, sorted, with the
// root prefix stripped.
func (r *Real) Glob(pattern string) ([]string, error) {
	matches, err := filepath.Glob(r.path(pattern))
	if err != nil {
		return nil, err
	}
	if r.root != "" {
		for i, m := range matches {
			matches[i] = strings.TrimPrefix(m, r.root)
		}
	}
	sort.Strings(matches)
	return matches, nil
}

// ReadLink returns the target of a symlink.
func (r *Real) ReadLink(path string) (string, error) {
	return os.Readlink(r.path(path))
}

// Ensure Real implements ports.HostState.
var _ ports.HostState = (*Real)(nil)
