package cache

import (
	"sync"
	"time"

	"github.com/tripfx/tripfx/internal/core"
)

// DefaultMaxEntries bounds the in-process tier when no size is configured.
const DefaultMaxEntries = 4096

// Memory is the in-process cache tier. Reads run concurrently; writes are
// serialized by a single lock.
type Memory struct {
	MaxEntries int
	Clock      func() time.Time

	mu      sync.RWMutex
	entries map[string]core.CacheEntry
}

// NewMemory returns an empty in-process tier holding at most maxEntries.
func NewMemory(maxEntries int) *Memory {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Memory{MaxEntries: maxEntries, entries: make(map[string]core.CacheEntry)}
}

// Get returns the entry for key when it is still valid.
func (m *Memory) Get(key string) (core.CacheEntry, bool) {
	if m == nil {
		return core.CacheEntry{}, false
	}
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || !entry.ValidAt(m.now()) {
		return core.CacheEntry{}, false
	}
	return entry, true
}

// Set stores entry, evicting expired entries and then the oldest when full.
func (m *Memory) Set(entry core.CacheEntry) {
	if m == nil || entry.Key == "" || entry.TTL <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(entry)
}

func (m *Memory) setLocked(entry core.CacheEntry) {
	if m.entries == nil {
		m.entries = make(map[string]core.CacheEntry)
	}
	if _, exists := m.entries[entry.Key]; !exists && m.MaxEntries > 0 && len(m.entries) >= m.MaxEntries {
		if m.purgeLocked(m.now()) == 0 {
			m.evictOldestLocked()
		}
	}
	m.entries[entry.Key] = entry
}

// SetIfNewer stores entry unless the tier already holds a valid entry for the
// key stored at or after entry.StoredAt. The check and the write happen under
// one lock, so a late promotion cannot replace a fresher Put.
func (m *Memory) SetIfNewer(entry core.CacheEntry) bool {
	if m == nil || entry.Key == "" || entry.TTL <= 0 {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.entries[entry.Key]; ok && existing.ValidAt(m.now()) && !existing.StoredAt.Before(entry.StoredAt) {
		return false
	}
	m.setLocked(entry)
	return true
}

// Delete removes key.
func (m *Memory) Delete(key string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

// Len returns the number of stored entries, including expired ones not yet purged.
func (m *Memory) Len() int {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Purge drops expired entries and returns how many were removed.
func (m *Memory) Purge() int {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.purgeLocked(m.now())
}

// Clear drops every entry.
func (m *Memory) Clear() int {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.entries)
	m.entries = make(map[string]core.CacheEntry)
	return n
}

func (m *Memory) purgeLocked(now time.Time) int {
	removed := 0
	for key, entry := range m.entries {
		if !entry.ValidAt(now) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

func (m *Memory) evictOldestLocked() {
	var (
		oldestKey string
		oldestAt  time.Time
	)
	for key, entry := range m.entries {
		if oldestKey == "" || entry.StoredAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = entry.StoredAt
		}
	}
	if oldestKey != "" {
		delete(m.entries, oldestKey)
	}
}

func (m *Memory) now() time.Time {
	if m != nil && m.Clock != nil {
		return m.Clock()
	}
	return time.Now().UTC()
}
