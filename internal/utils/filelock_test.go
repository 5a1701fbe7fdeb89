package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	dvderrors "github.com/dvdmaker/dvdmaker/internal/errors"
)

func TestFileLockAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.lock")
	lock := NewFileLock(path, time.Second)

	if err := lock.Acquire(); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("lock file missing after acquire: %v", err)
	}

	if err := lock.Acquire(); !errors.Is(err, dvderrors.ErrLockHeld) {
		t.Errorf("re-acquire error = %v, want ErrLockHeld", err)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("lock file should be removed after release")
	}

	if err := lock.Release(); !errors.Is(err, dvderrors.ErrLockNotHeld) {
		t.Errorf("double release error = %v, want ErrLockNotHeld", err)
	}
}

func TestFileLockContention(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.lock")

	first := NewFileLock(path, time.Second)
	if err := first.Acquire(); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer func() { _ = first.Release() }()

	second := NewFileLock(path, 300*time.Millisecond)
	ok, err := second.TryAcquire()
	if err != nil {
		t.Fatalf("TryAcquire() error = %v", err)
	}
	if ok {
		t.Fatal("TryAcquire() succeeded while lock is held")
	}

	if err := second.Acquire(); !errors.Is(err, dvderrors.ErrLockTimeout) {
		t.Errorf("Acquire() error = %v, want ErrLockTimeout", err)
	}
}

func TestFileLockReclaimsStaleLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.lock")

	// A lock from a pid that no longer exists is stale regardless of age.
	stale := fmt.Sprintf("%d\n%d\n", 1<<30, time.Now().Unix())
	if err := os.WriteFile(path, []byte(stale), 0600); err != nil {
		t.Fatal(err)
	}

	lock := NewFileLock(path, time.Second)
	if err := lock.Acquire(); err != nil {
		t.Fatalf("Acquire() should reclaim stale lock, got error = %v", err)
	}
	_ = lock.Release()
}

func TestFileLockReclaimsExpiredLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.lock")

	// A lock held by a live pid but older than the stale age is reclaimed.
	old := fmt.Sprintf("%d\n%d\n", os.Getpid(), time.Now().Add(-10*time.Minute).Unix())
	if err := os.WriteFile(path, []byte(old), 0600); err != nil {
		t.Fatal(err)
	}

	lock := NewFileLock(path, time.Second)
	if err := lock.Acquire(); err != nil {
		t.Fatalf("Acquire() should reclaim expired lock, got error = %v", err)
	}
	_ = lock.Release()
}

func TestWithLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "op.lock")

	ran := false
	err := WithLock(path, time.Second, func() error {
		ran = true
		if _, statErr := os.Stat(path); statErr != nil {
			t.Error("lock file should exist while fn runs")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock() error = %v", err)
	}
	if !ran {
		t.Fatal("fn did not run")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("lock file should be removed after WithLock returns")
	}
}

func TestRetry(t *testing.T) {
	calls := 0
	err := Retry(3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}

	calls = 0
	err = Retry(2, time.Millisecond, func() error {
		calls++
		return fmt.Errorf("permanent")
	})
	if err == nil {
		t.Fatal("Retry() should return the last error")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (initial attempt + 2 retries)", calls)
	}
}
