package locks

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrSessionBusy reports that another process holds the session lock file.
var ErrSessionBusy = errors.New("another sheetfetch process is driving the catalog session")

// ProcessLock is an advisory lock file guarding the catalog session across
// processes.
type ProcessLock struct {
	path string
	lock *flock.Flock
}

// AcquireProcessLock takes the lock at path without blocking.
func AcquireProcessLock(path string) (*ProcessLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (%s)", ErrSessionBusy, path)
	}
	return &ProcessLock{path: path, lock: lock}, nil
}

// Path returns the lock file location.
func (p *ProcessLock) Path() string {
	if p == nil {
		return ""
	}
	return p.path
}

// Release unlocks the file. It is safe to call more than once.
func (p *ProcessLock) Release() error {
	if p == nil || p.lock == nil {
		return nil
	}
	if !p.lock.Locked() {
		return nil
	}
	return p.lock.Unlock()
}
