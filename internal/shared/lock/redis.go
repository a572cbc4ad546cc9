package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "docrecon:lock:"

// Redis is a Locker shared across processes, backed by redislock.
type Redis struct {
	rdb    *redis.Client
	client *redislock.Client
}

// NewRedis connects to addr and verifies it answers PING.
func NewRedis(ctx context.Context, addr string) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		PoolSize: 20,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping addr=%s: %w", addr, err)
	}
	return &Redis{rdb: rdb, client: redislock.New(rdb)}, nil
}

// Ping reports whether Redis is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error {
	return r.rdb.Close()
}

// Obtain claims key for ttl. The holder must Refresh before ttl elapses.
func (r *Redis) Obtain(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	l, err := r.client.Obtain(ctx, redisKeyPrefix+key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrNotObtained
	}
	if err != nil {
		return nil, fmt.Errorf("redis obtain key=%s: %w", key, err)
	}
	return redisLease{lock: l}, nil
}

type redisLease struct {
	lock *redislock.Lock
}

func (l redisLease) Refresh(ctx context.Context, ttl time.Duration) error {
	err := l.lock.Refresh(ctx, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return ErrNotObtained
	}
	return err
}

func (l redisLease) Release(ctx context.Context) error {
	err := l.lock.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		return nil
	}
	return err
}

var _ Locker = (*Redis)(nil)
