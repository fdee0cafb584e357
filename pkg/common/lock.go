package common

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
)

var (
	ErrLockNotObtained = errors.New("lock not obtained")
	ErrLockNotHeld     = redislock.ErrLockNotHeld
)

type RedisLockOptions struct {
	TtlS    int
	Retries int
}

// KeyedLock is a named mutual exclusion lock. Acquire returns an owner
// token; Refresh and Release only act while that token still holds the key,
// so a holder whose lease expired cannot touch a newer holder's lock.
type KeyedLock interface {
	Acquire(ctx context.Context, key string, opts RedisLockOptions) (string, error)
	Refresh(ctx context.Context, key, token string, opts RedisLockOptions) error
	Release(key, token string) error
}

// RedisLock holds redislock handles for locks obtained through it, keyed by
// owner token
type RedisLock struct {
	client *redislock.Client
	mu     sync.Mutex
	locks  map[string]*redislock.Lock
}

func NewRedisLock(client *RedisClient) *RedisLock {
	return &RedisLock{
		client: redislock.New(client),
		locks:  make(map[string]*redislock.Lock),
	}
}

func (l *RedisLock) Acquire(ctx context.Context, key string, opts RedisLockOptions) (string, error) {
	retry := redislock.NoRetry()
	if opts.Retries > 0 {
		retry = redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), opts.Retries)
	}

	lock, err := l.client.Obtain(ctx, key, lockTTL(opts), &redislock.Options{RetryStrategy: retry})
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return "", ErrLockNotObtained
		}
		return "", err
	}

	l.mu.Lock()
	l.locks[lock.Token()] = lock
	l.mu.Unlock()
	return lock.Token(), nil
}

// Refresh extends the lease. Redis compares the token, so an expired lock
// that someone else obtained is reported as not held.
func (l *RedisLock) Refresh(ctx context.Context, key, token string, opts RedisLockOptions) error {
	lock, ok := l.handle(key, token)
	if !ok {
		return ErrLockNotHeld
	}
	if err := lock.Refresh(ctx, lockTTL(opts), nil); err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return ErrLockNotHeld
		}
		return err
	}
	return nil
}

func (l *RedisLock) Release(key, token string) error {
	lock, ok := l.handle(key, token)
	if !ok {
		return ErrLockNotHeld
	}

	l.mu.Lock()
	delete(l.locks, token)
	l.mu.Unlock()
	return lock.Release(context.Background())
}

func (l *RedisLock) handle(key, token string) (*redislock.Lock, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[token]
	if !ok || lock.Key() != key {
		return nil, false
	}
	return lock, true
}

// LocalLock is the in-process KeyedLock used when redis is not configured.
// Entries expire after their TTL so a crashed holder cannot wedge a key.
type LocalLock struct {
	mu    sync.Mutex
	held  map[string]localLease
	nowFn func() time.Time
}

type localLease struct {
	token     string
	expiresAt time.Time
}

func NewLocalLock() *LocalLock {
	return &LocalLock{
		held:  make(map[string]localLease),
		nowFn: time.Now,
	}
}

func (l *LocalLock) Acquire(ctx context.Context, key string, opts RedisLockOptions) (string, error) {
	attempts := opts.Retries + 1
	for i := 0; i < attempts; i++ {
		if token, ok := l.tryAcquire(key, lockTTL(opts)); ok {
			return token, nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return "", ErrLockNotObtained
}

func (l *LocalLock) tryAcquire(key string, ttl time.Duration) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFn()
	if lease, ok := l.held[key]; ok && now.Before(lease.expiresAt) {
		return "", false
	}
	token := uuid.NewString()
	l.held[key] = localLease{token: token, expiresAt: now.Add(ttl)}
	return token, true
}

func (l *LocalLock) Refresh(ctx context.Context, key, token string, opts RedisLockOptions) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFn()
	lease, ok := l.held[key]
	if !ok || lease.token != token || !now.Before(lease.expiresAt) {
		return ErrLockNotHeld
	}
	lease.expiresAt = now.Add(lockTTL(opts))
	l.held[key] = lease
	return nil
}

func (l *LocalLock) Release(key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lease, ok := l.held[key]; !ok || lease.token != token {
		return ErrLockNotHeld
	}
	delete(l.held, key)
	return nil
}

func lockTTL(opts RedisLockOptions) time.Duration {
	if opts.TtlS <= 0 {
		return 10 * time.Second
	}
	return time.Duration(opts.TtlS) * time.Second
}
