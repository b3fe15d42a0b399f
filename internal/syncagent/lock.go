package syncagent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const defaultLockTTL = 5 * time.Minute

// Lock guards a synchronization pass. A trigger that cannot acquire it is
// dropped. Extend is called before each resubmission and reports false once
// the lock has been lost.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Extend(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// LocalLock is the in-process boolean guard used by a standalone terminal.
type LocalLock struct {
	held atomic.Bool
}

func NewLocalLock() *LocalLock {
	return &LocalLock{}
}

func (l *LocalLock) Acquire(context.Context) (bool, error) {
	return l.held.CompareAndSwap(false, true), nil
}

// Extend reports whether the guard is held; it never expires.
func (l *LocalLock) Extend(context.Context) (bool, error) {
	return l.held.Load(), nil
}

func (l *LocalLock) Release(context.Context) error {
	l.held.Store(false)
	return nil
}

type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// RedisLock coordinates passes across terminals sharing one branch queue.
type RedisLock struct {
	client redisStore
	key    string
	ttl    time.Duration

	mu    sync.Mutex
	owner string
}

func NewRedisLock(client redisStore, key string, ttl time.Duration) (*RedisLock, error) {
	if client == nil {
		return nil, errors.New("redis client required for sync lock")
	}
	if key == "" {
		return nil, errors.New("sync lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{client: client, key: key, ttl: ttl}, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	owner := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("setnx: %w", err)
	}
	if ok {
		l.mu.Lock()
		l.owner = owner
		l.mu.Unlock()
	}
	return ok, nil
}

// ownerExtender is implemented by stores that can compare-and-renew in one
// round trip.
type ownerExtender interface {
	ExtendIfOwner(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
}

// Extend renews the TTL while this process still owns the lock. Once it
// reports false the caller must stop: another terminal may already be
// draining the queue.
func (l *RedisLock) Extend(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owner == "" {
		return false, nil
	}

	var held bool
	if extender, ok := l.client.(ownerExtender); ok {
		var err error
		if held, err = extender.ExtendIfOwner(ctx, l.key, l.owner, l.ttl); err != nil {
			return false, fmt.Errorf("extend sync lock: %w", err)
		}
	} else {
		value, err := l.client.Get(ctx, l.key)
		if err != nil && !errors.Is(err, goredis.Nil) {
			return false, fmt.Errorf("read sync lock owner: %w", err)
		}
		if held = err == nil && value == l.owner; held {
			if err := l.client.Set(ctx, l.key, l.owner, l.ttl); err != nil {
				return false, fmt.Errorf("extend sync lock: %w", err)
			}
		}
	}
	if !held {
		l.owner = ""
	}
	return held, nil
}

// ownerReleaser is implemented by stores that can compare-and-delete in one
// round trip.
type ownerReleaser interface {
	ReleaseIfOwner(ctx context.Context, key, owner string) (bool, error)
}

// Release frees the lock only while this process still owns it.
func (l *RedisLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owner == "" {
		return nil
	}
	owner := l.owner
	l.owner = ""

	if releaser, ok := l.client.(ownerReleaser); ok {
		if _, err := releaser.ReleaseIfOwner(ctx, l.key, owner); err != nil {
			return fmt.Errorf("release sync lock: %w", err)
		}
		return nil
	}

	value, err := l.client.Get(ctx, l.key)
	if errors.Is(err, goredis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read sync lock owner: %w", err)
	}
	if value != owner {
		return nil
	}
	if err := l.client.Del(ctx, l.key); err != nil {
		return fmt.Errorf("delete sync lock: %w", err)
	}
	return nil
}
