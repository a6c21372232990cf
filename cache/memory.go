package cache

import (
	"sync"
	"time"
)

// DefaultMemoryTTL is the ephemeral tier's default entry lifetime.
const DefaultMemoryTTL = 5 * time.Minute

// Memory is the in-process ephemeral tier.
type Memory struct {
	mu         sync.Mutex
	entries    map[string]Entry
	defaultTTL time.Duration
	now        func() time.Time
}

// NewMemory creates an empty ephemeral cache. ttl <= 0 uses DefaultMemoryTTL;
// a nil clock uses time.Now.
func NewMemory(ttl time.Duration, clock func() time.Time) *Memory {
	if ttl <= 0 {
		ttl = DefaultMemoryTTL
	}
	if clock == nil {
		clock = time.Now
	}
	return &Memory{entries: make(map[string]Entry), defaultTTL: ttl, now: clock}
}

// DefaultTTL returns the TTL used when Set is given ttl <= 0.
func (m *Memory) DefaultTTL() time.Duration { return m.defaultTTL }

// Get returns the live entry for key. An expired entry is removed and
// reported as a miss.
func (m *Memory) Get(key string) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return Entry{}, false
	}
	if e.Expired(m.now()) {
		delete(m.entries, key)
		return Entry{}, false
	}
	return e, true
}

// Set stores value under key for ttl (DefaultTTL when ttl <= 0).
func (m *Memory) Set(key string, value []byte, endpoint string, ttl time.Duration) Entry {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	e := NewEntry(key, value, endpoint, ttl, m.now())
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return e
}

// Delete removes key.
func (m *Memory) Delete(key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

// Clear removes every entry.
func (m *Memory) Clear() {
	m.mu.Lock()
	m.entries = make(map[string]Entry)
	m.mu.Unlock()
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// PurgeExpired removes expired entries and returns how many were removed.
func (m *Memory) PurgeExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	removed := 0
	for k, e := range m.entries {
		if e.Expired(now) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed
}
