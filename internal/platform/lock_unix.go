//go:build unix

package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// AcquireLock takes a non-blocking exclusive flock on path, creating the
// file if needed. The directory must already exist; ErrLockDirMissing is
// returned otherwise. It returns ErrLocked when another process already
// holds the lock. The kernel drops the lock if the process dies, so an
// orphaned lock file is harmless.
func AcquireLock(path string) (*Lock, error) {
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrLockDirMissing, dir)
	}
	if err != nil {
		return nil, fmt.Errorf("checking lock directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("lock directory %s is not a directory", dir)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w (lock held on %s)", ErrLocked, path)
		}
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}

	return &Lock{release: func() {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		_ = f.Close()
	}}, nil
}
