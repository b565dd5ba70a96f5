// Package locking provides a short-lived mutual-exclusion primitive backed by
// a shared key-value store. The lock is best-effort: it reduces wasted
// duplicate gateway calls, but correctness against concurrent workers is
// upheld by the transaction store's conditional writes, not by the lock.
package locking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockService provides per-key mutual exclusion with automatic expiry
type LockService interface {
	// Acquire attempts a conditional "set if absent, with expiry". It returns
	// true only if this caller newly created the key. No ownership token is
	// issued: if the holder crashes, the key self-expires after ttl.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release unconditionally deletes the key. Safe to call even if the lock
	// already expired.
	Release(ctx context.Context, key string) error
}

// RedisLockService implements LockService on a Redis-compatible store
type RedisLockService struct {
	client redis.Cmdable
	logger *slog.Logger
}

// NewRedisLockService creates a Redis-backed lock service
func NewRedisLockService(logger *slog.Logger, client redis.Cmdable) *RedisLockService {
	return &RedisLockService{
		client: client,
		logger: logger,
	}
}

// Acquire issues SET key NX PX ttl
func (s *RedisLockService) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		s.logger.Error("Failed to acquire lock", "key", key, "error", err)
		return false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}

	if !ok {
		s.logger.Debug("Lock already held", "key", key)
	}
	return ok, nil
}

// Release issues DEL key. Idempotent: deleting a missing key is not an error.
func (s *RedisLockService) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		s.logger.Error("Failed to release lock", "key", key, "error", err)
		return fmt.Errorf("failed to release lock %s: %w", key, err)
	}
	return nil
}
