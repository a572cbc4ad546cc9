package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotObtained is returned when another holder owns the key.
var ErrNotObtained = errors.New("lock not obtained")

// Lease is a held lock.
type Lease interface {
	Refresh(ctx context.Context, ttl time.Duration) error
	Release(ctx context.Context) error
}

// Locker hands out exclusive leases keyed by name.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// Local is an in-process Locker. Leases never expire; ttl is ignored.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocal constructs a Local locker.
func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

// Obtain claims key or returns ErrNotObtained.
func (l *Local) Obtain(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, ErrNotObtained
	}
	l.held[key] = struct{}{}
	return &localLease{owner: l, key: key}, nil
}

type localLease struct {
	owner *Local
	key   string
	once  sync.Once
}

func (l *localLease) Refresh(ctx context.Context, ttl time.Duration) error {
	return ctx.Err()
}

func (l *localLease) Release(ctx context.Context) error {
	l.once.Do(func() {
		l.owner.mu.Lock()
		delete(l.owner.held, l.key)
		l.owner.mu.Unlock()
	})
	return nil
}

var _ Locker = (*Local)(nil)
