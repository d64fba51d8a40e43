// Package redis implements lock.Locker on Redis SET NX.
package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/tally/lock"
)

const keyPrefix = "lock:"

// unlockScript deletes the key only while it still carries our token.
var unlockScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var _ lock.Locker = (*Locker)(nil)

// Locker holds locks under a per-instance token so that one replica never
// releases another replica's lock.
type Locker struct {
	client goredis.UniversalClient
	token  string
}

// New returns a Locker using client.
func New(client goredis.UniversalClient) *Locker {
	return &Locker{client: client, token: newToken()}
}

// TryLock acquires key using SetNX. Returns true if the lock was acquired.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	acquired, err := l.client.SetNX(ctx, keyPrefix+key, l.token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("tally/lock/redis: acquire %s: %w", key, err)
	}
	return acquired, nil
}

// Unlock releases key if it is still held by this Locker.
func (l *Locker) Unlock(ctx context.Context, key string) error {
	if err := unlockScript.Run(ctx, l.client, []string{keyPrefix + key}, l.token).Err(); err != nil {
		return fmt.Errorf("tally/lock/redis: release %s: %w", key, err)
	}
	return nil
}

func newToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
