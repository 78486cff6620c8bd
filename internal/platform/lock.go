package platform

import "errors"

var (
	// ErrLocked is returned by AcquireLock when another process holds the lock.
	ErrLocked = errors.New("another update is already in progress")

	// ErrLockDirMissing is returned by AcquireLock when the directory that
	// should hold the lock does not exist, which means the agent is not
	// installed there.
	ErrLockDirMissing = errors.New("lock directory does not exist")
)

// Lock is an exclusive cross-process lock on a well-known file. The zero
// value and a nil *Lock are safe to Release.
type Lock struct {
	release func()
}

// Release drops the lock. It is safe to call multiple times.
func (l *Lock) Release() {
	if l == nil || l.release == nil {
		return
	}
	l.release()
	l.release = nil
}
