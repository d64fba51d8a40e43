package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := goredis.NewClient(&goredis.Options{
		Addr: mr.Addr(),
	})

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestTryLock(t *testing.T) {
	ctx := context.Background()
	mr, client := setupTestRedis(t)

	a, b := New(client), New(client)

	ok, err := a.TryLock(ctx, "tally:settle", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("lock:tally:settle"))

	ok, err = b.TryLock(ctx, "tally:settle", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must not acquire")

	mr.FastForward(2 * time.Hour)
	ok, err = b.TryLock(ctx, "tally:settle", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok, "expired lock must be re-acquirable")
}

func TestUnlockOnlyOwnLock(t *testing.T) {
	ctx := context.Background()
	mr, client := setupTestRedis(t)

	owner, other := New(client), New(client)

	ok, err := owner.TryLock(ctx, "k", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, other.Unlock(ctx, "k"))
	assert.True(t, mr.Exists("lock:k"), "foreign unlock must not release")

	require.NoError(t, owner.Unlock(ctx, "k"))
	assert.False(t, mr.Exists("lock:k"))
}
