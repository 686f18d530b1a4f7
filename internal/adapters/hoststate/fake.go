package hoststate

import (
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/felixgeelhaar/nvmeprep/internal/ports"
)

// Fake is an in-memory HostState for tests. Files and symlinks are
// plain maps; writes are recorded so tests can assert on mutations.
type Fake struct {
	mu       sync.Mutex
	files    map[string]string
	links    map[string]string
	writable map[string]bool
	Writes   []FakeWrite
}

// FakeWrite records one WriteFile call.
type FakeWrite struct {
	Path  string
	Value string
}

// NewFake creates an empty fake host state.
func NewFake() *Fake {
	return &Fake{
		files:    make(map[string]string),
		links:    make(map[string]string),
		writable: make(map[string]bool),
	}
}

// SetFile seeds a readable and writable pseudo-file.
func (f *Fake) SetFile(path, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = value
	f.writable[path] = true
}

// SetReadOnly seeds a pseudo-file that rejects writes.
func (f *Fake) SetReadOnly(path, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = value
	f.writable[path] = false
}

// SetLink seeds a symlink.
func (f *Fake) SetLink(path, target string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links[path] = target
}

// RemoveLink deletes a symlink, emulating a driver unbind.
func (f *Fake) RemoveLink(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.links, path)
}

// ReadFile returns the seeded contents.
func (f *Fake) ReadFile(path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.files[path]; ok {
		return strings.TrimRight(v, "\n\t "), nil
	}
	return "", &os.PathError{Op: "open", Path: path, Err: os.ErrNotExist}
}

// WriteFile records the write and updates the file.
func (f *Fake) WriteFile(path, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if writable, ok := f.writable[path]; ok && !writable {
		return &os.PathError{Op: "write", Path: path, Err: os.ErrPermission}
	}
	if _, ok := f.files[path]; !ok {
		return &os.PathError{Op: "open", Path: path, Err: os.ErrNotExist}
	}
	f.files[path] = value
	f.Writes = append(f.Writes, FakeWrite{Path: path, Value: value})
	return nil
}

// Exists reports whether a file or symlink was seeded.
func (f *Fake) Exists(p string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.files[p]; ok {
		return true
	}
	if _, ok := f.links[p]; ok {
		return true
	}
	// Directories exist implicitly when they prefix a seeded entry.
	prefix := strings.TrimSuffix(p, "/") + "/"
	for k := range f.files {
		if strings.HasPrefix(k, prefix) {
			return true
		}
	}
	for k := range f.links {
		if strings.HasPrefix(k, prefix) {
			return true
		}
	}
	return false
}

// Glob matches seeded files, symlinks and their implicit parent
// directories against a shell pattern, the way filepath.Glob sees a
// real tree.
func (f *Fake) Glob(pattern string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	candidates := make(map[string]bool)
	for _, m := range []map[string]string{f.files, f.links} {
		for k := range m {
			candidates[k] = true
			for dir := path.Dir(k); dir != "/" && dir != "."; dir = path.Dir(dir) {
				candidates[dir] = true
			}
		}
	}

	var matches []string
	for k := range candidates {
		ok, err := path.Match(pattern, k)
		if err != nil {
			return nil, err
		}
		if ok {
			matches = append(matches, k)
		}
	}
	sort.Strings(matches)
	return matches, nil
}

// ReadLink returns the seeded symlink target.
func (f *Fake) ReadLink(path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if target, ok := f.links[path]; ok {
		return target, nil
	}
	return "", &os.PathError{Op: "readlink", Path: path, Err: os.ErrNotExist}
}

// Ensure Fake implements ports.HostState.
var _ ports.HostState = (*Fake)(nil)
