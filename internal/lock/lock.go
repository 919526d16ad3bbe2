// internal/lock/lock.go

// Package lock serializes work per account. Every balance or PIN mutation for
// an account runs inside WithLock on that account's key.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"chatpay-wallet/internal/util"
)

var (
	// ErrNilLockFn is returned when WithLock is called without a function.
	ErrNilLockFn = errors.New("lock function is nil")
	// ErrEmptyLockKey is returned when an empty lock key is provided.
	ErrEmptyLockKey = errors.New("lock key cannot be empty")
)

// Locker runs fn while holding an exclusive lock on key. The error returned by
// fn is passed through unchanged.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// AccountKey returns the lock key guarding one account.
func AccountKey(accountID int64) string {
	return "wallet:account:" + strconv.FormatInt(accountID, 10)
}

// WithLocks acquires every key in sorted order and runs fn while holding all
// of them. Duplicate keys are locked once. Sorting gives concurrent callers a
// single global acquisition order, so two transfers in opposite directions
// cannot deadlock.
func WithLocks(ctx context.Context, l Locker, keys []string, fn func(context.Context) error) error {
	sorted := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	var run func(ctx context.Context, i int) error
	run = func(ctx context.Context, i int) error {
		if i == len(sorted) {
			return fn(ctx)
		}
		return l.WithLock(ctx, sorted[i], func(ctx context.Context) error {
			return run(ctx, i+1)
		})
	}
	return run(ctx, 0)
}

func validate(key string, fn func(context.Context) error) error {
	if fn == nil {
		return ErrNilLockFn
	}
	if strings.TrimSpace(key) == "" {
		return ErrEmptyLockKey
	}
	return nil
}

func safeKeyForLogs(key string) string {
	const maxKeyLogLength = 128

	safe := strconv.QuoteToASCII(key)
	if len(safe) <= maxKeyLogLength {
		return safe
	}
	return safe[:maxKeyLogLength] + "...(truncated)"
}

func acquireError(key string, err error) error {
	return fmt.Errorf("lock %s: %w: %w", safeKeyForLogs(key), util.ErrLockNotAcquired, err)
}
