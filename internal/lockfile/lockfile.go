// Package lockfile provides a single-instance guard for the dlctl CLI,
// adapted from the teacher's cmd/lock.go (gofrs/flock around a file path
// under the app's config dir) but exposed as a type instead of a package
// global, since an embedder may want more than one lock per process.
package lockfile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Lock wraps an advisory file lock used to guarantee only one scheduler
// instance runs against a given state/history directory at a time.
type Lock struct {
	fl   *flock.Flock
	path string
}

// Acquire tries to take an exclusive, non-blocking lock on <dir>/dlctl.lock.
// ok is false (with a nil error) if another process already holds it.
func Acquire(dir string) (l *Lock, ok bool, err error) {
	if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
		return nil, false, fmt.Errorf("ensuring lock directory: %w", mkErr)
	}

	path := filepath.Join(dir, "dlctl.lock")
	fl := flock.New(path)

	locked, err := fl.TryLock()
	if err != nil {
		return nil, false, fmt.Errorf("acquiring lock: %w", err)
	}
	if !locked {
		return nil, false, nil
	}
	return &Lock{fl: fl, path: path}, true, nil
}

// Release drops the lock. Safe to call on a nil *Lock.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}

// Path returns the lock file's location, for diagnostics.
func (l *Lock) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}
