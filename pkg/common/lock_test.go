package common

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wahajws/amast-crm-sub000/pkg/types"
)

func newTestRedis(t *testing.T) (*RedisClient, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	rdb, err := NewRedisClient(types.RedisConfig{Addrs: []string{s.Addr()}, Mode: types.RedisModeSingle})
	require.NoError(t, err)
	return rdb, s
}

func TestRedisLockExclusive(t *testing.T) {
	rdb, _ := newTestRedis(t)
	ctx := context.Background()
	key := Keys.GmailSyncLock("u1", "INBOX")

	first := NewRedisLock(rdb)
	second := NewRedisLock(rdb)

	token, err := first.Acquire(ctx, key, RedisLockOptions{TtlS: 10})
	require.NoError(t, err)
	_, err = second.Acquire(ctx, key, RedisLockOptions{TtlS: 10})
	assert.ErrorIs(t, err, ErrLockNotObtained)

	require.NoError(t, first.Release(key, token))
	token, err = second.Acquire(ctx, key, RedisLockOptions{TtlS: 10})
	assert.NoError(t, err)
	assert.NoError(t, second.Release(key, token))
}

func TestRedisLockExpires(t *testing.T) {
	rdb, s := newTestRedis(t)
	ctx := context.Background()
	key := Keys.GmailSyncLock("u1", "Label_1")

	lock := NewRedisLock(rdb)
	_, err := lock.Acquire(ctx, key, RedisLockOptions{TtlS: 1})
	require.NoError(t, err)

	s.FastForward(2 * time.Second)

	other := NewRedisLock(rdb)
	_, err = other.Acquire(ctx, key, RedisLockOptions{TtlS: 1})
	assert.NoError(t, err)
}

func TestRedisLockExpiredHolderCannotReleaseNewHolder(t *testing.T) {
	rdb, s := newTestRedis(t)
	ctx := context.Background()
	key := Keys.GmailSyncLock("u1", "Label_1")

	// One process, two runs sharing the same RedisLock
	lock := NewRedisLock(rdb)
	stale, err := lock.Acquire(ctx, key, RedisLockOptions{TtlS: 1})
	require.NoError(t, err)

	s.FastForward(2 * time.Second)

	current, err := lock.Acquire(ctx, key, RedisLockOptions{TtlS: 60})
	require.NoError(t, err)
	assert.NotEqual(t, stale, current)

	assert.ErrorIs(t, lock.Release(key, stale), ErrLockNotHeld)
	assert.ErrorIs(t, lock.Refresh(ctx, key, stale, RedisLockOptions{TtlS: 60}), ErrLockNotHeld)

	_, err = NewRedisLock(rdb).Acquire(ctx, key, RedisLockOptions{TtlS: 60})
	assert.ErrorIs(t, err, ErrLockNotObtained, "current holder still owns the key")

	require.NoError(t, lock.Release(key, current))
}

func TestRedisLockRefreshExtendsLease(t *testing.T) {
	rdb, s := newTestRedis(t)
	ctx := context.Background()
	key := Keys.GmailSyncLock("u1", "INBOX")

	lock := NewRedisLock(rdb)
	token, err := lock.Acquire(ctx, key, RedisLockOptions{TtlS: 2})
	require.NoError(t, err)

	s.FastForward(time.Second)
	require.NoError(t, lock.Refresh(ctx, key, token, RedisLockOptions{TtlS: 10}))
	s.FastForward(5 * time.Second)

	_, err = NewRedisLock(rdb).Acquire(ctx, key, RedisLockOptions{TtlS: 10})
	assert.ErrorIs(t, err, ErrLockNotObtained)
	assert.NoError(t, lock.Release(key, token))
}

func TestRedisLockReleaseUnknownKey(t *testing.T) {
	rdb, _ := newTestRedis(t)
	assert.ErrorIs(t, NewRedisLock(rdb).Release("missing", "token"), ErrLockNotHeld)
}

func TestLocalLock(t *testing.T) {
	ctx := context.Background()
	lock := NewLocalLock()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	lock.nowFn = func() time.Time { return now }

	_, err := lock.Acquire(ctx, "a", RedisLockOptions{TtlS: 5})
	require.NoError(t, err)
	_, err = lock.Acquire(ctx, "a", RedisLockOptions{TtlS: 5})
	assert.ErrorIs(t, err, ErrLockNotObtained)
	_, err = lock.Acquire(ctx, "b", RedisLockOptions{TtlS: 5})
	assert.NoError(t, err, "keys are independent")

	now = now.Add(6 * time.Second)
	token, err := lock.Acquire(ctx, "a", RedisLockOptions{TtlS: 5})
	assert.NoError(t, err, "expired entry is reclaimed")

	require.NoError(t, lock.Release("a", token))
	assert.ErrorIs(t, lock.Release("a", token), ErrLockNotHeld)
}

func TestLocalLockExpiredHolderCannotReleaseNewHolder(t *testing.T) {
	ctx := context.Background()
	lock := NewLocalLock()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	lock.nowFn = func() time.Time { return now }

	stale, err := lock.Acquire(ctx, "k", RedisLockOptions{TtlS: 1})
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	current, err := lock.Acquire(ctx, "k", RedisLockOptions{TtlS: 60})
	require.NoError(t, err)

	assert.ErrorIs(t, lock.Release("k", stale), ErrLockNotHeld)
	assert.ErrorIs(t, lock.Refresh(ctx, "k", stale, RedisLockOptions{TtlS: 60}), ErrLockNotHeld)

	_, err = lock.Acquire(ctx, "k", RedisLockOptions{TtlS: 60})
	assert.ErrorIs(t, err, ErrLockNotObtained, "current holder still owns the key")

	assert.NoError(t, lock.Release("k", current))
}

func TestLocalLockRefresh(t *testing.T) {
	ctx := context.Background()
	lock := NewLocalLock()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	lock.nowFn = func() time.Time { return now }

	token, err := lock.Acquire(ctx, "k", RedisLockOptions{TtlS: 2})
	require.NoError(t, err)

	now = now.Add(time.Second)
	require.NoError(t, lock.Refresh(ctx, "k", token, RedisLockOptions{TtlS: 10}))

	now = now.Add(5 * time.Second)
	_, err = lock.Acquire(ctx, "k", RedisLockOptions{TtlS: 10})
	assert.ErrorIs(t, err, ErrLockNotObtained, "refreshed lease is still held")

	now = now.Add(10 * time.Second)
	assert.ErrorIs(t, lock.Refresh(ctx, "k", token, RedisLockOptions{TtlS: 10}), ErrLockNotHeld, "expired lease cannot be revived")
}
