package utils

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	dvderrors "github.com/dvdmaker/dvdmaker/internal/errors"
)

// staleLockAge is how old a lock file may be before it is presumed
// abandoned by a crashed process.
const staleLockAge = 5 * time.Minute

// lockPollInterval is how often a blocking Acquire retries.
const lockPollInterval = 100 * time.Millisecond

// FileLock is a file-based lock for cross-process synchronization of
// cache mutations. The lock file records the holder's pid and the
// acquisition time so stale locks from crashed processes can be
// reclaimed.
type FileLock struct {
	Path    string
	Timeout time.Duration

	locked bool
}

// NewFileLock returns an unacquired lock at path.
func NewFileLock(path string, timeout time.Duration) *FileLock {
	return &FileLock{Path: path, Timeout: timeout}
}

// Acquire blocks until the lock is obtained or the timeout elapses.
func (l *FileLock) Acquire() error {
	if l.locked {
		return dvderrors.ErrLockHeld
	}

	deadline := time.Now().Add(l.Timeout)
	for {
		if l.tryCreate() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w after %s: %s", dvderrors.ErrLockTimeout, l.Timeout, l.Path)
		}
		if l.isStale() {
			_ = os.Remove(l.Path)
			continue
		}
		time.Sleep(lockPollInterval)
	}
}

// TryAcquire attempts the lock without blocking and reports success.
func (l *FileLock) TryAcquire() (bool, error) {
	if l.locked {
		return false, dvderrors.ErrLockHeld
	}
	if l.tryCreate() {
		return true, nil
	}
	if l.isStale() {
		_ = os.Remove(l.Path)
		return l.tryCreate(), nil
	}
	return false, nil
}

// Release removes the lock file.
func (l *FileLock) Release() error {
	if !l.locked {
		return dvderrors.ErrLockNotHeld
	}
	l.locked = false
	if err := os.Remove(l.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file %s: %w", l.Path, err)
	}
	return nil
}

// tryCreate attempts exclusive creation of the lock file and writes
// the holder's pid and timestamp into it.
func (l *FileLock) tryCreate() bool {
	f, err := os.OpenFile(l.Path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return false
	}
	fmt.Fprintf(f, "%d\n%d\n", os.Getpid(), time.Now().Unix())
	f.Close()
	l.locked = true
	return true
}

// isStale reports whether the existing lock file was left behind by a
// crashed process: unreadable or malformed files, files older than
// staleLockAge, and files whose recorded pid no longer exists.
func (l *FileLock) isStale() bool {
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return false
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) < 2 {
		return true
	}
	pid, err := strconv.Atoi(lines[0])
	if err != nil {
		return true
	}
	stamp, err := strconv.ParseInt(lines[1], 10, 64)
	if err != nil {
		return true
	}

	if time.Since(time.Unix(stamp, 0)) > staleLockAge {
		return true
	}
	return !processExists(pid)
}

// processExists probes a pid with signal 0.
func processExists(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// WithLock runs fn while holding the lock at path.
func WithLock(path string, timeout time.Duration, fn func() error) error {
	lock := NewFileLock(path, timeout)
	if err := lock.Acquire(); err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()
	return fn()
}

// Retry runs fn up to maxRetries+1 times with exponential backoff,
// retrying on any error. The last error is returned when all attempts
// fail.
func Retry(maxRetries int, initialDelay time.Duration, fn func() error) error {
	delay := initialDelay
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt < maxRetries {
			time.Sleep(delay)
			delay *= 2
		}
	}
	return err
}
