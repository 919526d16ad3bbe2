// internal/lock/memory.go
package lock

import (
	"context"
	"sync"
)

type memoryEntry struct {
	sem  chan struct{}
	refs int
}

// MemoryLocker is an in-process Locker with one mutex per key. Entries are
// reference counted and dropped when the last holder or waiter leaves, so
// the map does not grow with the number of accounts ever seen.
type MemoryLocker struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

// NewMemoryLocker creates an empty MemoryLocker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{entries: make(map[string]*memoryEntry)}
}

// WithLock blocks until key is free or ctx is done.
func (l *MemoryLocker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if err := validate(key, fn); err != nil {
		return err
	}

	entry := l.ref(key)
	defer l.unref(key)

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		return acquireError(key, ctx.Err())
	}
	defer func() { <-entry.sem }()

	return fn(ctx)
}

func (l *MemoryLocker) ref(key string) *memoryEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok {
		entry = &memoryEntry{sem: make(chan struct{}, 1)}
		l.entries[key] = entry
	}
	entry.refs++
	return entry
}

func (l *MemoryLocker) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := l.entries[key]
	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, key)
	}
}

// size reports the number of live entries.
func (l *MemoryLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
