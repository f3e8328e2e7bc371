// Package cache provides a small thread-safe secret cache keyed by string,
// with two freshness policies: a fixed time window and a decaying lease with
// a minimum-remaining threshold.
package cache

import (
	"sync"
	"time"
)

// Entry is a cached payload with its staleness metadata. Entries are replaced
// wholesale on refresh, never partially updated.
type Entry[T any] struct {
	Payload      T
	StoredAt     time.Time
	LeaseSeconds int // Only meaningful under LeasePolicy.
}

// Policy answers whether an entry is still usable and, for lease-based
// entries, how many seconds of lease remain.
type Policy interface {
	// Fresh reports whether an entry stored at storedAt with the given lease
	// is usable at time now. remaining is the recomputed remaining lease in
	// whole seconds; it is 0 under policies with no lease semantics.
	Fresh(now, storedAt time.Time, leaseSeconds int) (fresh bool, remaining int)
}

// WindowPolicy treats an entry as fresh for a fixed window after storage.
// An entry is stale at exactly the window boundary.
type WindowPolicy struct {
	Window time.Duration
}

func (p WindowPolicy) Fresh(now, storedAt time.Time, _ int) (bool, int) {
	return now.Sub(storedAt) < p.Window, 0
}

// LeasePolicy treats an entry as fresh while its remaining lease exceeds a
// threshold. An entry whose remaining lease is at or below the threshold is
// stale even though it has not technically expired, so consumers never
// receive credentials about to be revoked.
type LeasePolicy struct {
	Threshold time.Duration
}

func (p LeasePolicy) Fresh(now, storedAt time.Time, leaseSeconds int) (bool, int) {
	remaining := float64(leaseSeconds) - now.Sub(storedAt).Seconds()
	if remaining < 0 {
		remaining = 0
	}
	return remaining > p.Threshold.Seconds(), int(remaining)
}

// Cache maps lookup keys to entries under a single freshness policy. Each
// secret category owns its own instance; instances are never shared.
type Cache[T any] struct {
	policy Policy
	now    func() time.Time

	mu      sync.RWMutex
	entries map[string]Entry[T]
}

// New creates an empty cache with the given freshness policy.
func New[T any](policy Policy) *Cache[T] {
	return &Cache[T]{
		policy:  policy,
		now:     time.Now,
		entries: make(map[string]Entry[T]),
	}
}

// Get returns the entry for key, if present. Pure lookup, no side effects.
func (c *Cache[T]) Get(key string) (Entry[T], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	return entry, ok
}

// Put inserts or replaces the entry for key, stamping the storage time.
func (c *Cache[T]) Put(key string, payload T, leaseSeconds int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = Entry[T]{
		Payload:      payload,
		StoredAt:     c.now(),
		LeaseSeconds: leaseSeconds,
	}
}

// Fresh applies the cache's policy to an entry. For lease-based caches the
// returned remaining lease is the decayed value, not the original.
func (c *Cache[T]) Fresh(entry Entry[T]) (bool, int) {
	return c.policy.Fresh(c.now(), entry.StoredAt, entry.LeaseSeconds)
}

// Lookup combines Get and Fresh: it returns the entry only if present and
// fresh, along with the recomputed remaining lease.
func (c *Cache[T]) Lookup(key string) (Entry[T], int, bool) {
	entry, ok := c.Get(key)
	if !ok {
		return entry, 0, false
	}
	fresh, remaining := c.Fresh(entry)
	if !fresh {
		return entry, 0, false
	}
	return entry, remaining, true
}

// Keys returns the stored keys in no particular order.
func (c *Cache[T]) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	return keys
}

// Len returns the number of entries currently stored.
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
