// Package lock provides the mutual exclusion used by the settlement
// scheduler when several engines share a store.
package lock

import (
	"context"
	"sync"
	"time"
)

// Locker is a non-blocking, TTL-bounded lock.
type Locker interface {
	// TryLock acquires key for ttl. It returns false without error when the
	// key is held by someone else.
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Unlock releases key if this Locker holds it.
	Unlock(ctx context.Context, key string) error
}

var _ Locker = (*Local)(nil)

// Local is an in-process Locker for single-node deployments and tests.
type Local struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

// NewLocal returns an empty Local locker.
func NewLocal() *Local {
	return &Local{held: make(map[string]time.Time), now: time.Now}
}

// TryLock acquires key unless an unexpired holder exists.
func (l *Local) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if exp, ok := l.held[key]; ok && now.Before(exp) {
		return false, nil
	}
	l.held[key] = now.Add(ttl)
	return true, nil
}

// Unlock releases key.
func (l *Local) Unlock(_ context.Context, key string) error {
	l.mu.Lock()
	delete(l.held, key)
	l.mu.Unlock()
	return nil
}
