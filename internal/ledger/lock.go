package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// DefaultLockTimeout bounds how long a save waits for another process.
const DefaultLockTimeout = 5 * time.Second

// ErrLockTimeout indicates the ledger lock was not acquired in time.
var ErrLockTimeout = errors.New("ledger lock acquisition timed out")

// fileLock is an exclusive flock(2) lock held on a sidecar file.
// The kernel releases it if the process dies.
type fileLock struct {
	path string
	file *os.File
}

func newFileLock(path string) *fileLock {
	return &fileLock{path: path}
}

// lock blocks until the lock is held, the timeout expires or ctx is done.
func (l *fileLock) lock(ctx context.Context, timeout time.Duration) error {
	if err := l.open(); err != nil {
		return err
	}

	deadline := time.Now().Add(timeout)
	pollInterval := 10 * time.Millisecond
	maxPollInterval := 250 * time.Millisecond

	for {
		err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			return nil
		}
		if !errors.Is(err, syscall.EWOULDBLOCK) {
			l.close()
			return fmt.Errorf("flock failed: %w", err)
		}
		if time.Now().After(deadline) {
			l.close()
			return ErrLockTimeout
		}

		select {
		case <-ctx.Done():
			l.close()
			return ctx.Err()
		case <-time.After(pollInterval):
			pollInterval = min(pollInterval*2, maxPollInterval)
		}
	}
}

// unlock releases the lock. Unlocking an unheld lock is a no-op.
func (l *fileLock) unlock() error {
	if l.file == nil {
		return nil
	}
	err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	l.close()
	if err != nil {
		return fmt.Errorf("flock unlock failed: %w", err)
	}
	return nil
}

func (l *fileLock) open() error {
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
	l.file = file
	return nil
}

func (l *fileLock) close() {
	_ = l.file.Close()
	l.file = nil
}
