package relations

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// LockFilename is the name of the index lock file
const LockFilename = "index.lock"

// ErrLockTimeout indicates the index is held by another process
var ErrLockTimeout = errors.New("index is locked by another process")

// FileLock is an exclusive flock(2) lock on the index directory, held for as long as a
// process has the index open.
type FileLock struct {
	path string
	file *os.File
}

// NewFileLock creates a new file lock at the given path.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// Lock acquires the lock, polling until it is available, timeout expires or ctx is
// canceled.
func (l *FileLock) Lock(ctx context.Context, timeout time.Duration) error {
	if l.file != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}

	deadline := time.Now().Add(timeout)
	poll := 10 * time.Millisecond
	for {
		err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			l.file = file
			return nil
		}
		if !errors.Is(err, syscall.EWOULDBLOCK) {
			_ = file.Close()
			return fmt.Errorf("flock failed: %w", err)
		}
		if time.Now().After(deadline) {
			_ = file.Close()
			return ErrLockTimeout
		}

		select {
		case <-ctx.Done():
			_ = file.Close()
			return ctx.Err()
		case <-time.After(poll):
			poll = min(poll*2, 500*time.Millisecond)
		}
	}
}

// Unlock releases the lock. Unlocking an unlocked FileLock is a no-op.
func (l *FileLock) Unlock() error {
	if l.file == nil {
		return nil
	}
	err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil

	if err != nil {
		return fmt.Errorf("flock unlock failed: %w", err)
	}
	return closeErr
}

// IsLocked returns true if the lock is currently held by this instance.
func (l *FileLock) IsLocked() bool {
	return l.file != nil
}
