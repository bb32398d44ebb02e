package cache

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/senai/tiercache/config"
)

// AdaptiveTTL maps a base TTL and an observed access count to the effective
// TTL. Frequently accessed keys live longer:
//
//	count > 10  ->  base * multiplier * 2
//	count > 5   ->  base * multiplier
//	otherwise   ->  base
//
// The result is clamped to [MinTTL, MaxTTL]. Pure function, no side effects.
func AdaptiveTTL(baseTTL time.Duration, accessCount int64, cfg config.AdaptiveConfig) time.Duration {
	if !cfg.Enabled {
		return baseTTL
	}

	ttl := baseTTL
	switch {
	case accessCount > 10:
		ttl = time.Duration(float64(baseTTL) * cfg.Multiplier * 2)
	case accessCount > 5:
		ttl = time.Duration(float64(baseTTL) * cfg.Multiplier)
	}

	if ttl < cfg.MinTTL {
		ttl = cfg.MinTTL
	}
	if ttl > cfg.MaxTTL {
		ttl = cfg.MaxTTL
	}
	return ttl
}

// AccessPattern is the per-key record feeding the TTL calculation. It lives
// in memory only and resets on process restart.
type AccessPattern struct {
	AccessCount  int64     `json:"access_count"`
	LastAccessed time.Time `json:"last_accessed"`
	CacheType    string    `json:"cache_type"`
}

// AccessTracker counts accesses per key. It is guarded by its own lock,
// independent of any tier lock, and is never held across I/O.
type AccessTracker struct {
	mu       sync.Mutex
	patterns map[string]*AccessPattern
	clock    clock.Clock
}

func NewAccessTracker() *AccessTracker {
	return newAccessTrackerWithClock(clock.New())
}

func newAccessTrackerWithClock(clk clock.Clock) *AccessTracker {
	return &AccessTracker{
		patterns: make(map[string]*AccessPattern),
		clock:    clk,
	}
}

// Record notes one access to key.
func (t *AccessTracker) Record(key string, cacheType string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pattern, ok := t.patterns[key]
	if !ok {
		pattern = &AccessPattern{}
		t.patterns[key] = pattern
	}
	pattern.AccessCount++
	pattern.LastAccessed = t.clock.Now()
	pattern.CacheType = cacheType
}

// Count returns the number of recorded accesses for key.
func (t *AccessTracker) Count(key string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if pattern, ok := t.patterns[key]; ok {
		return pattern.AccessCount
	}
	return 0
}

// Pattern returns a copy of the record for key.
func (t *AccessTracker) Pattern(key string) (AccessPattern, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if pattern, ok := t.patterns[key]; ok {
		return *pattern, true
	}
	return AccessPattern{}, false
}

// Len returns the number of tracked keys.
func (t *AccessTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.patterns)
}
