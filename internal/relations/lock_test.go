package relations

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestFileLock_Exclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", LockFilename)
	first := NewFileLock(path)
	second := NewFileLock(path)

	if err := first.Lock(context.Background(), time.Second); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	if !first.IsLocked() {
		t.Error("Expected first lock to be held")
	}

	if err := second.Lock(context.Background(), 30*time.Millisecond); !errors.Is(err, ErrLockTimeout) {
		t.Errorf("Expected ErrLockTimeout, got %v", err)
	}
	if second.IsLocked() {
		t.Error("Expected second lock not to be held")
	}

	if err := first.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if err := second.Lock(context.Background(), time.Second); err != nil {
		t.Errorf("Expected lock after release, got %v", err)
	}
	if err := second.Unlock(); err != nil {
		t.Errorf("Unlock failed: %v", err)
	}
}

func TestFileLock_ContextCanceled(t *testing.T) {
	path := filepath.Join(t.TempDir(), LockFilename)
	holder := NewFileLock(path)
	if err := holder.Lock(context.Background(), time.Second); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = holder.Unlock() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewFileLock(path).Lock(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestFileLock_UnlockWithoutLock(t *testing.T) {
	if err := NewFileLock(filepath.Join(t.TempDir(), LockFilename)).Unlock(); err != nil {
		t.Errorf("Expected no-op unlock, got %v", err)
	}
}
