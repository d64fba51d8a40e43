package lock

import (
	"context"
	"testing"
	"time"
)

func TestLocal(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLocal()
	l.now = func() time.Time { return clock }

	ok, err := l.TryLock(ctx, "k", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first TryLock: %v, %v", ok, err)
	}

	ok, _ = l.TryLock(ctx, "k", time.Minute)
	if ok {
		t.Fatal("second TryLock acquired a held key")
	}

	ok, _ = l.TryLock(ctx, "other", time.Minute)
	if !ok {
		t.Fatal("independent key should be free")
	}

	clock = clock.Add(2 * time.Minute)
	ok, _ = l.TryLock(ctx, "k", time.Minute)
	if !ok {
		t.Fatal("expired lock should be re-acquirable")
	}

	if err := l.Unlock(ctx, "k"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	ok, _ = l.TryLock(ctx, "k", time.Minute)
	if !ok {
		t.Fatal("released lock should be re-acquirable")
	}
}
