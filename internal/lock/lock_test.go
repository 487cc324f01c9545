package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sniperthink/chatqueue/internal/storage/pebblestore"
)

func openTestManager(t *testing.T) *Manager {
	t.Helper()
	st, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), NoSync: true})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	m := NewManager(st, nil)
	m.RetryDelay = time.Millisecond
	return m
}

func TestAcquireReleaseCycle(t *testing.T) {
	m := openTestManager(t)
	ctx := context.Background()

	token, err := m.Acquire(ctx, "msg:abc", time.Minute, 0)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if token == "" {
		t.Fatal("uncontended acquire returned no token")
	}
	if err := m.Release(ctx, "msg:abc", token); err != nil {
		t.Fatalf("release: %v", err)
	}
	// released lock is free again
	token2, err := m.Acquire(ctx, "msg:abc", time.Minute, 0)
	if err != nil || token2 == "" {
		t.Fatalf("reacquire: token=%q err=%v", token2, err)
	}
}

func TestAcquireContendedReturnsEmptyToken(t *testing.T) {
	m := openTestManager(t)
	ctx := context.Background()

	first, err := m.Acquire(ctx, "msg:abc", time.Minute, 0)
	if err != nil || first == "" {
		t.Fatalf("first acquire: %v", err)
	}
	second, err := m.Acquire(ctx, "msg:abc", time.Minute, 2)
	if err != nil {
		t.Fatalf("contended acquire errored: %v", err)
	}
	if second != "" {
		t.Fatalf("contended acquire returned token %q", second)
	}
}

func TestAcquireDistinctResourcesIndependent(t *testing.T) {
	m := openTestManager(t)
	ctx := context.Background()

	a, err := m.Acquire(ctx, "msg:a", time.Minute, 0)
	if err != nil || a == "" {
		t.Fatalf("acquire a: %v", err)
	}
	b, err := m.Acquire(ctx, "msg:b", time.Minute, 0)
	if err != nil || b == "" {
		t.Fatalf("acquire b: %v", err)
	}
}

func TestReleaseWrongToken(t *testing.T) {
	m := openTestManager(t)
	ctx := context.Background()

	token, _ := m.Acquire(ctx, "msg:abc", time.Minute, 0)
	if err := m.Release(ctx, "msg:abc", "forged"); !errors.Is(err, ErrNotHeld) {
		t.Fatalf("want ErrNotHeld, got %v", err)
	}
	// the real holder is unaffected
	if err := m.Release(ctx, "msg:abc", token); err != nil {
		t.Fatalf("release by holder: %v", err)
	}
}

func TestExtendRefreshesTTL(t *testing.T) {
	m := openTestManager(t)
	ctx := context.Background()

	token, _ := m.Acquire(ctx, "msg:abc", 50*time.Millisecond, 0)
	if err := m.Extend(ctx, "msg:abc", token, time.Minute); err != nil {
		t.Fatalf("extend: %v", err)
	}
	time.Sleep(80 * time.Millisecond)
	// still held: a second acquire must fail
	other, err := m.Acquire(ctx, "msg:abc", time.Minute, 0)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if other != "" {
		t.Fatal("extended lock expired anyway")
	}
}

func TestExpiredLockIsFree(t *testing.T) {
	m := openTestManager(t)
	ctx := context.Background()

	old, _ := m.Acquire(ctx, "msg:abc", 10*time.Millisecond, 0)
	time.Sleep(30 * time.Millisecond)

	token, err := m.Acquire(ctx, "msg:abc", time.Minute, 0)
	if err != nil || token == "" {
		t.Fatalf("acquire after expiry: token=%q err=%v", token, err)
	}
	// the old token can no longer release
	if err := m.Release(ctx, "msg:abc", old); !errors.Is(err, ErrNotHeld) {
		t.Fatalf("stale release: want ErrNotHeld, got %v", err)
	}
}
