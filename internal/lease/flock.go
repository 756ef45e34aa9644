package lease

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Iron-Ham/afkcode/internal/errors"
)

// LockFileName is created under the checklist base directory.
const LockFileName = ".gimme.lock"

// FileLock provides cross-process mutual exclusion over a checklist
// directory using flock(2). Each FileLock opens its own descriptor, so two
// FileLocks in the same process also exclude each other.
type FileLock struct {
	path string
	file *os.File
}

// NewFileLock creates a FileLock for dir. Call Lock/Unlock to acquire and release.
func NewFileLock(dir string) *FileLock {
	return &FileLock{
		path: filepath.Join(dir, LockFileName),
	}
}

// Path returns the lock file path.
func (fl *FileLock) Path() string {
	return fl.path
}

// TryLock attempts to acquire the lock without blocking.
// Returns true if the lock was acquired, false if it is held elsewhere.
func (fl *FileLock) TryLock() (bool, error) {
	f, err := os.OpenFile(fl.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return false, fmt.Errorf("open lock file: %w", err)
	}

	err = syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err != nil {
		_ = f.Close()
		if err == syscall.EWOULDBLOCK {
			return false, nil
		}
		return false, fmt.Errorf("flock: %w", err)
	}

	fl.file = f
	return true, nil
}

// LockTimeout polls TryLock every retry until the lock is acquired or
// timeout elapses. Expiry returns a retryable *errors.TimeoutError that
// matches errors.ErrLockTimeout.
func (fl *FileLock) LockTimeout(timeout, retry time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := fl.TryLock()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return errors.NewTimeoutError("acquire checklist lock "+fl.path, timeout).
				WithCause(errors.ErrLockTimeout)
		}
		time.Sleep(retry)
	}
}

// Unlock releases the file lock and closes the lock file.
// Unlock without a held lock is a no-op.
func (fl *FileLock) Unlock() error {
	if fl.file == nil {
		return nil
	}

	if err := syscall.Flock(int(fl.file.Fd()), syscall.LOCK_UN); err != nil {
		_ = fl.file.Close()
		fl.file = nil
		return fmt.Errorf("funlock: %w", err)
	}

	err := fl.file.Close()
	fl.file = nil
	return err
}
