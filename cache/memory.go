// Package cache provides the in-memory decision cache. It is keyed by
// principal and holds the principal's fully resolved permission set, so a
// single entry serves every check for that principal until a mutation
// invalidates it or the TTL lapses.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/meridianhq/aegis/id"
	"github.com/meridianhq/aegis/permission"
)

// Entry is one cached grant: a permission and the role that contributed
// it.
type Entry struct {
	Role       id.RoleID
	Permission permission.Permission
}

// Memory is an in-memory cache with TTL-based expiration. Invalidation
// on role and assignment mutations keeps it consistent within a single
// process; the TTL bounds staleness when several processes share a
// store.
type Memory struct {
	mu      sync.RWMutex
	sets    map[string]*cachedSet
	ttl     time.Duration
	maxSize int
}

type cachedSet struct {
	entries   []Entry
	expiresAt time.Time
}

// MemoryOption configures the memory cache.
type MemoryOption func(*Memory)

// WithTTL sets the entry time-to-live. Zero disables expiration.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(m *Memory) { m.ttl = ttl }
}

// WithMaxSize sets the maximum number of cached principals. Zero means
// unbounded.
func WithMaxSize(n int) MemoryOption {
	return func(m *Memory) { m.maxSize = n }
}

// NewMemory creates a new in-memory cache.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		sets:    make(map[string]*cachedSet),
		ttl:     5 * time.Minute,
		maxSize: 10000,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the cached permission set for a principal.
func (m *Memory) Get(_ context.Context, principalID string) ([]Entry, bool) {
	m.mu.RLock()
	s, ok := m.sets[principalID]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if m.ttl > 0 && time.Now().After(s.expiresAt) {
		m.dropExpired(principalID, s)
		return nil, false
	}
	return s.entries, true
}

// dropExpired removes the entry for principalID only if it is still the
// expired set observed by the caller. A concurrent Set may have replaced
// it with a fresh entry between the expiry check and this write lock.
func (m *Memory) dropExpired(principalID string, s *cachedSet) {
	m.mu.Lock()
	if cur, ok := m.sets[principalID]; ok && cur == s {
		delete(m.sets, principalID)
	}
	m.mu.Unlock()
}

// Set stores a principal's resolved permission set.
func (m *Memory) Set(_ context.Context, principalID string, entries []Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.maxSize > 0 && len(m.sets) >= m.maxSize {
		m.evictExpired()
		if len(m.sets) >= m.maxSize {
			m.evictOne()
		}
	}

	m.sets[principalID] = &cachedSet{
		entries:   entries,
		expiresAt: time.Now().Add(m.ttl),
	}
}

// Invalidate removes the cached set for a principal.
func (m *Memory) Invalidate(_ context.Context, principalID string) {
	m.mu.Lock()
	delete(m.sets, principalID)
	m.mu.Unlock()
}

// Len returns the number of cached principals.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sets)
}

// evictExpired removes all expired sets. Must hold write lock.
func (m *Memory) evictExpired() {
	if m.ttl <= 0 {
		return
	}
	now := time.Now()
	for k, s := range m.sets {
		if now.After(s.expiresAt) {
			delete(m.sets, k)
		}
	}
}

// evictOne removes one arbitrary set. Must hold write lock.
func (m *Memory) evictOne() {
	for k := range m.sets {
		delete(m.sets, k)
		return
	}
}
