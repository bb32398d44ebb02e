package store

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

// memoryEntry is one L1 cache entry. Recency is tracked through its position
// in the recency list, newest at the back.
type memoryEntry struct {
	key          string
	value        []byte
	cacheType    string
	createdAt    time.Time
	expiresAt    time.Time
	accessCount  int64
	lastAccessed time.Time
}

// KeyAccess is a point-in-time view of one entry's access statistics.
type KeyAccess struct {
	Key         string    `json:"key"`
	CacheType   string    `json:"cache_type"`
	AccessCount int64     `json:"access_count"`
	LastAccess  time.Time `json:"last_accessed"`
}

// Memory is the in-process L1 tier: a bounded map with strict
// least-recently-used eviction and per-entry TTL. It performs no I/O and is
// always available, so every TierStore method ignores its context and never
// returns an error.
//
// The map and the recency list form a single critical section. Callers must
// not hold any other lock while calling in, and Memory never calls out while
// holding its own.
type Memory struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	recency  *list.List // front = least recently used
	capacity int

	evictions atomic.Int64
	expired   atomic.Int64

	// Must be used for all time reads to keep expiry testable.
	clock clock.Clock
}

// NewMemory creates an L1 store bounded to capacity entries.
func NewMemory(capacity int) *Memory {
	return newMemoryWithClock(capacity, clock.New())
}

func newMemoryWithClock(capacity int, clk clock.Clock) *Memory {
	if capacity <= 0 {
		capacity = 1
	}
	return &Memory{
		entries:  make(map[string]*list.Element),
		recency:  list.New(),
		capacity: capacity,
		clock:    clk,
	}
}

var _ TierStore = (*Memory)(nil)

// Get returns the value for key and refreshes its recency. An entry past its
// expiry is removed on the spot and reported as absent; that removal counts
// toward ExpiredCount, not EvictionCount.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	element, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}

	entry := element.Value.(*memoryEntry)
	now := m.clock.Now()
	if now.After(entry.expiresAt) {
		m.removeLocked(element)
		m.expired.Add(1)
		return nil, false, nil
	}

	entry.accessCount++
	entry.lastAccessed = now
	m.recency.MoveToBack(element)
	return entry.value, true, nil
}

// Set inserts or replaces key. At capacity, the least-recently-used entry is
// evicted first.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration, cacheType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if element, ok := m.entries[key]; ok {
		m.removeLocked(element)
	}

	for len(m.entries) >= m.capacity {
		oldest := m.recency.Front()
		if oldest == nil {
			break
		}
		m.removeLocked(oldest)
		m.evictions.Add(1)
	}

	now := m.clock.Now()
	entry := &memoryEntry{
		key:          key,
		value:        value,
		cacheType:    cacheType,
		createdAt:    now,
		expiresAt:    now.Add(ttl),
		lastAccessed: now,
	}
	m.entries[key] = m.recency.PushBack(entry)
	return nil
}

// Delete removes key and reports whether it was present.
func (m *Memory) Delete(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	element, ok := m.entries[key]
	if !ok {
		return false, nil
	}
	m.removeLocked(element)
	return true, nil
}

// InvalidatePattern removes every key containing substring. O(n) over the
// current size.
func (m *Memory) InvalidatePattern(_ context.Context, substring string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, element := range m.entries {
		if strings.Contains(key, substring) {
			m.removeLocked(element)
			removed++
		}
	}
	return removed, nil
}

// Clear removes every entry and returns how many were held.
func (m *Memory) Clear() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := len(m.entries)
	m.entries = make(map[string]*list.Element)
	m.recency.Init()
	return count
}

// Size returns the current number of entries.
func (m *Memory) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Keys returns the keys of all live entries, in no particular order.
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.entries))
	for key := range m.entries {
		keys = append(keys, key)
	}
	return keys
}

// Capacity returns the configured maximum number of entries.
func (m *Memory) Capacity() int {
	return m.capacity
}

// EvictionCount returns how many entries have been evicted for capacity.
func (m *Memory) EvictionCount() int64 {
	return m.evictions.Load()
}

// ExpiredCount returns how many entries have been removed lazily on read
// because their TTL had passed.
func (m *Memory) ExpiredCount() int64 {
	return m.expired.Load()
}

// AccessSnapshot returns the access statistics of every live entry, in no
// particular order. Expired entries that have not been touched since their
// expiry may still appear.
func (m *Memory) AccessSnapshot() []KeyAccess {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := make([]KeyAccess, 0, len(m.entries))
	for _, element := range m.entries {
		entry := element.Value.(*memoryEntry)
		snapshot = append(snapshot, KeyAccess{
			Key:         entry.key,
			CacheType:   entry.cacheType,
			AccessCount: entry.accessCount,
			LastAccess:  entry.lastAccessed,
		})
	}
	return snapshot
}

func (m *Memory) removeLocked(element *list.Element) {
	entry := element.Value.(*memoryEntry)
	delete(m.entries, entry.key)
	m.recency.Remove(element)
}
