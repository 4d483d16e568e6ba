package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Ramsey-B/clover/pkg/redis"
)

// PageLocker admits one sync per page at a time. TryLock never waits.
type PageLocker interface {
	TryLock(ctx context.Context, pageID string) (unlock func(), ok bool, err error)
}

// LocalLocker is an in-process PageLocker.
type LocalLocker struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// NewLocalLocker returns a locker with no pages held.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{active: make(map[string]struct{})}
}

// TryLock returns ok=false without blocking when the page is already held.
func (l *LocalLocker) TryLock(_ context.Context, pageID string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.active[pageID]; busy {
		return nil, false, nil
	}
	l.active[pageID] = struct{}{}
	return func() {
		l.mu.Lock()
		delete(l.active, pageID)
		l.mu.Unlock()
	}, true, nil
}

// RedisLocker shares page locks between portal instances.
type RedisLocker struct {
	locker *redis.Locker
	ttl    time.Duration
}

// NewRedisLocker holds locks for ttl, or DefaultLockTTL when ttl is not positive.
func NewRedisLocker(locker *redis.Locker, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &RedisLocker{locker: locker, ttl: ttl}
}

// TryLock returns ok=false when another instance holds the page.
func (l *RedisLocker) TryLock(ctx context.Context, pageID string) (func(), bool, error) {
	lock, err := l.locker.Acquire(ctx, pageID, l.ttl)
	if errors.Is(err, redis.ErrLockNotAcquired) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return func() {
		// the caller's context may already be cancelled
		_ = lock.Release(context.Background())
	}, true, nil
}
