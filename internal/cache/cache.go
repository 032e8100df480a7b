package cache

import (
	"context"
	"time"
)

// Store is the byte-oriented cache used by services. Get reports a miss
// with ok == false and a nil error.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// Incr atomically increments the integer at key, starting from zero,
	// and returns the new value. The key never expires.
	Incr(ctx context.Context, key string) (int64, error)
	Close() error
}
