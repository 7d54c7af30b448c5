package ports

import (
	"context"
	"time"
)

// UnlockFunc releases a lock acquired through a Locker.
type UnlockFunc func(ctx context.Context) error

// Locker serializes writers that share a store across processes.
// Stores that are shared between runtimes (Redis) implement it so that two
// nodes saving the same graph do not interleave.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
