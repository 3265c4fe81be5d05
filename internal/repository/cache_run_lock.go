package repository

import (
	"context"
	"errors"
	"time"

	"Pattas/internal/domain/models"
	"Pattas/pkg/cache"
)

const (
	runLockKey = "runs:lock"
	lastRunKey = "runs:last"
)

// CacheRunLock is the single-run lock kept in the cache. With Redis it holds
// across instances; the memory backend only covers this process.
type CacheRunLock struct {
	c   cache.Service
	ttl time.Duration
}

func NewCacheRunLock(c cache.Service, ttl time.Duration) *CacheRunLock {
	return &CacheRunLock{c: c, ttl: ttl}
}

func (l *CacheRunLock) Acquire(ctx context.Context, owner string) (bool, error) {
	return l.c.TryLock(ctx, runLockKey, owner, l.ttl)
}

// Refresh extends the lock. false means owner no longer holds it.
func (l *CacheRunLock) Refresh(ctx context.Context, owner string) (bool, error) {
	return l.c.Refresh(ctx, runLockKey, owner, l.ttl)
}

func (l *CacheRunLock) Release(ctx context.Context, owner string) error {
	return l.c.Unlock(ctx, runLockKey, owner)
}

func (l *CacheRunLock) Held(ctx context.Context) (bool, error) {
	return l.c.Exists(ctx, runLockKey)
}

// CacheLastRun stores the most recent finished run as JSON. It survives
// restarts when the cache is Redis.
type CacheLastRun struct {
	c   cache.Service
	ttl time.Duration // 0 = keep forever
}

func NewCacheLastRun(c cache.Service, ttl time.Duration) *CacheLastRun {
	return &CacheLastRun{c: c, ttl: ttl}
}

func (s *CacheLastRun) SaveLast(ctx context.Context, run *models.Run) error {
	return s.c.Set(ctx, lastRunKey, run, s.ttl)
}

// Last returns nil, nil when no run has finished yet.
func (s *CacheLastRun) Last(ctx context.Context) (*models.Run, error) {
	var run models.Run
	if err := s.c.Get(ctx, lastRunKey, &run); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}
