// internal/lock/redis.go
package lock

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// RedisOptions tunes the redsync mutex behind RedisLocker.
type RedisOptions struct {
	// Expiry bounds how long a crashed holder can keep the lock.
	Expiry     time.Duration
	Tries      int
	RetryDelay time.Duration
}

// DefaultRedisOptions returns defaults sized for a single ledger operation,
// including a gateway round trip.
func DefaultRedisOptions() RedisOptions {
	return RedisOptions{
		Expiry:     30 * time.Second,
		Tries:      60,
		RetryDelay: 250 * time.Millisecond,
	}
}

// RedisLocker is a Locker backed by a Redis mutex, for deployments running
// more than one process against the same store.
type RedisLocker struct {
	redsync *redsync.Redsync
	opts    RedisOptions
	logger  *slog.Logger
}

// NewRedisLocker creates a RedisLocker on top of an existing client.
func NewRedisLocker(client redis.UniversalClient, opts RedisOptions, logger *slog.Logger) *RedisLocker {
	if opts.Expiry <= 0 {
		opts.Expiry = DefaultRedisOptions().Expiry
	}
	if opts.Tries < 1 {
		opts.Tries = DefaultRedisOptions().Tries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRedisOptions().RetryDelay
	}
	return &RedisLocker{
		redsync: redsync.New(goredis.NewPool(client)),
		opts:    opts,
		logger:  logger,
	}
}

// WithLock acquires the Redis mutex for key, runs fn and releases the mutex.
func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if err := validate(key, fn); err != nil {
		return err
	}

	mutex := l.redsync.NewMutex(
		key,
		redsync.WithExpiry(l.opts.Expiry),
		redsync.WithTries(l.opts.Tries),
		redsync.WithRetryDelay(l.opts.RetryDelay),
	)

	if err := mutex.LockContext(ctx); err != nil {
		l.logger.Error("failed to acquire lock", "lock_key", safeKeyForLogs(key), "error", err)
		return acquireError(key, err)
	}

	defer func() {
		// The holder's context may already be cancelled; release regardless.
		unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if ok, err := mutex.UnlockContext(unlockCtx); !ok || err != nil {
			l.logger.Error("failed to release lock", "lock_key", safeKeyForLogs(key), "unlock_ok", ok, "error", err)
		}
	}()

	return fn(ctx)
}
