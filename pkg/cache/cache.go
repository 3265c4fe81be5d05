package cache

import (
	"context"
	"errors"
	"time"
)

var (
	ErrCacheMiss = errors.New("cache: key not found")
)

// Service defines cache operations interface.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, keys ...string) (bool, error)

	// TryLock takes key for owner if nobody holds it. Refresh and Unlock
	// only act while owner still holds the key, so an expired holder can
	// never release or extend a lock someone else has since taken.
	TryLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	Refresh(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key, owner string) error

	Close() error
}
