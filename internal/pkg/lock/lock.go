// Package lock provides per-identity locking for ledger read-modify-write
// sequences.
package lock

import (
	"context"
	"sort"
	"sync"
)

// keyMutex is the mutex of one identity. refCount counts holders and
// waiters; the entry is dropped when it reaches zero.
type keyMutex struct {
	mu       sync.Mutex
	refCount int
}

// UserLock provides per-identity locking to prevent lost updates on the
// same ledger row. Only identities with a holder or waiter keep an entry.
type UserLock struct {
	mu    sync.Mutex
	locks map[string]*keyMutex
	pool  sync.Pool
}

// NewUserLock creates a new UserLock instance.
func NewUserLock() *UserLock {
	return &UserLock{
		locks: make(map[string]*keyMutex),
		pool: sync.Pool{
			New: func() any {
				return &keyMutex{}
			},
		},
	}
}

// acquire returns the mutex of key with one more reference.
func (ul *UserLock) acquire(key string) *keyMutex {
	ul.mu.Lock()
	defer ul.mu.Unlock()

	l, ok := ul.locks[key]
	if !ok {
		l = ul.pool.Get().(*keyMutex)
		l.refCount = 0
		ul.locks[key] = l
	}
	l.refCount++
	return l
}

// Lock acquires the lock for an identity.
func (ul *UserLock) Lock(key string) {
	ul.acquire(key).mu.Lock()
}

// Unlock releases the lock for an identity. Unlocking a key that is not
// locked is a no-op.
func (ul *UserLock) Unlock(key string) {
	ul.mu.Lock()
	l, ok := ul.locks[key]
	if !ok {
		ul.mu.Unlock()
		return
	}
	l.refCount--
	idle := l.refCount == 0
	if idle {
		delete(ul.locks, key)
	}
	ul.mu.Unlock()

	l.mu.Unlock()
	if idle {
		ul.pool.Put(l)
	}
}

// size returns the number of identities with a holder or waiter.
func (ul *UserLock) size() int {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	return len(ul.locks)
}

// WithLock executes fn while holding the identity's lock.
func (ul *UserLock) WithLock(ctx context.Context, key string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ul.Lock(key)
	defer ul.Unlock(key)
	return fn()
}

// WithLocks executes fn while holding the locks of every key. Keys are
// deduplicated and acquired in sorted order so that two callers locking the
// same pair can never deadlock.
func (ul *UserLock) WithLocks(ctx context.Context, keys []string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ordered := SortedUnique(keys)
	for _, k := range ordered {
		ul.Lock(k)
	}
	defer func() {
		for i := len(ordered) - 1; i >= 0; i-- {
			ul.Unlock(ordered[i])
		}
	}()
	return fn()
}

// SortedUnique returns the distinct keys in ascending order.
func SortedUnique(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
