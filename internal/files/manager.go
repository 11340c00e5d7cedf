package files

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"sheetfetch/internal/logging"
	"sheetfetch/internal/services"
)

// Manager serializes filesystem mutations under one lock. Reads are not
// locked.
type Manager struct {
	lock   sync.Locker
	logger *slog.Logger
}

// NewManager returns a manager guarded by lock. A nil lock gets a private
// mutex.
func NewManager(lock sync.Locker, logger *slog.Logger) *Manager {
	if lock == nil {
		lock = &sync.Mutex{}
	}
	return &Manager{lock: lock, logger: logging.NewComponentLogger(logger, "files")}
}

func (m *Manager) guard(fn func() error) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	return fn()
}

func wrapFS(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return services.Wrap(services.ErrFilesystem, "files", op, path, err)
}

// MkdirAll creates dir and any missing parents.
func (m *Manager) MkdirAll(dir string) error {
	return wrapFS("mkdir", dir, m.guard(func() error {
		return os.MkdirAll(dir, 0o755)
	}))
}

// WriteFile writes data to path, creating the parent directory when missing.
func (m *Manager) WriteFile(path string, data []byte) error {
	return wrapFS("write", path, m.guard(func() error {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		return os.WriteFile(path, data, 0o644)
	}))
}

// CreateTemp creates an empty file in dir under the lock and returns its path.
// The caller fills the file without holding the lock and removes it with
// Remove.
func (m *Manager) CreateTemp(dir, pattern string) (string, error) {
	var path string
	err := m.guard(func() error {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		f, err := os.CreateTemp(dir, pattern)
		if err != nil {
			return err
		}
		path = f.Name()
		return f.Close()
	})
	return path, wrapFS("create temp", dir, err)
}

// WriteWith opens path for writing under the lock and hands it to fn.
func (m *Manager) WriteWith(path string, fn func(io.Writer) error) error {
	return wrapFS("write", path, m.guard(func() error {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return err
		}
		if err := fn(f); err != nil {
			_ = f.Close()
			_ = os.Remove(path)
			return err
		}
		return f.Close()
	}))
}

// Move renames src to dst, creating dst's parent. Moves across devices fall
// back to a verified copy followed by removal of src.
func (m *Manager) Move(src, dst string) error {
	return wrapFS("move", src+" -> "+dst, m.guard(func() error {
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		err := os.Rename(src, dst)
		if err == nil {
			return nil
		}
		var linkErr *os.LinkError
		if !errors.As(err, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
			return err
		}
		if err := copyFileVerified(src, dst); err != nil {
			return err
		}
		return os.Remove(src)
	}))
}

// Remove deletes path. A missing path is not an error.
func (m *Manager) Remove(path string) error {
	return wrapFS("remove", path, m.guard(func() error {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	}))
}

// RemoveAll deletes path and everything below it.
func (m *Manager) RemoveAll(path string) error {
	if path == "" || path == "/" {
		return wrapFS("remove tree", path, errors.New("refusing to remove root or empty path"))
	}
	return wrapFS("remove tree", path, m.guard(func() error {
		return os.RemoveAll(path)
	}))
}

// RemoveDirIfEmpty deletes dir when it has no entries left.
func (m *Manager) RemoveDirIfEmpty(dir string) error {
	return wrapFS("rmdir", dir, m.guard(func() error {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if len(entries) > 0 {
			return nil
		}
		return os.Remove(dir)
	}))
}

// Cleanup removes each path, logging failures and continuing with the rest.
// It returns the first error seen.
func (m *Manager) Cleanup(paths ...string) error {
	var first error
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := m.RemoveAll(path); err != nil {
			logging.WarnWithContext(m.logger, "cleanup failed", "cleanup_failed",
				logging.Path(path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "remove the directory manually"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// copyFileVerified streams src to dst with SHA256 and size verification and
// removes dst on mismatch.
func copyFileVerified(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		_ = out.Close()
	}()

	srcHasher := sha256.New()
	dstHasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(out, dstHasher), io.TeeReader(in, srcHasher))
	if err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if written != srcInfo.Size() {
		_ = os.Remove(dst)
		return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", srcInfo.Size(), written)
	}
	if !bytes.Equal(srcHasher.Sum(nil), dstHasher.Sum(nil)) {
		_ = os.Remove(dst)
		return errors.New("copy hash mismatch: file corrupted during copy")
	}
	return nil
}
