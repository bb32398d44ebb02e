package cache

import (
	"sync"

	"github.com/senai/tiercache/store"
)

// Stats aggregates process-wide cache counters. Initialized at engine
// construction, monotonically incremented, never persisted. All mutation
// happens under its own lock, scoped to single counter updates.
type Stats struct {
	mu sync.Mutex

	hits   int64
	misses int64
	sets   int64

	tierHits   map[store.Tier]int64
	tierMisses map[store.Tier]int64
}

func newStats() *Stats {
	return &Stats{
		tierHits:   make(map[store.Tier]int64),
		tierMisses: make(map[store.Tier]int64),
	}
}

func (s *Stats) recordHit(tier store.Tier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits++
	s.tierHits[tier]++
}

func (s *Stats) recordTierMiss(tier store.Tier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tierMisses[tier]++
}

func (s *Stats) recordMiss() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.misses++
}

func (s *Stats) recordSet() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets++
}

// TierSnapshot is the per-tier slice of a stats snapshot.
type TierSnapshot struct {
	Enabled bool  `json:"enabled"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// L1Snapshot extends TierSnapshot with the counters only the in-process tier
// has.
type L1Snapshot struct {
	TierSnapshot
	Size      int   `json:"size"`
	Capacity  int   `json:"capacity"`
	Evictions int64 `json:"evictions"`
	Expired   int64 `json:"expired"`
}

// StatsSnapshot is a read-only copy of the counters at one point in time.
type StatsSnapshot struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Sets      int64   `json:"sets"`
	Evictions int64   `json:"evictions"`
	Expired   int64   `json:"expired"`
	HitRate   float64 `json:"hit_rate"`

	L1 L1Snapshot   `json:"l1"`
	L2 TierSnapshot `json:"l2"`
	L3 TierSnapshot `json:"l3"`
}

func (s *Stats) snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := StatsSnapshot{
		Hits:   s.hits,
		Misses: s.misses,
		Sets:   s.sets,
	}
	snapshot.L1.Hits = s.tierHits[store.TierL1]
	snapshot.L1.Misses = s.tierMisses[store.TierL1]
	snapshot.L2.Hits = s.tierHits[store.TierL2]
	snapshot.L2.Misses = s.tierMisses[store.TierL2]
	snapshot.L3.Hits = s.tierHits[store.TierL3]
	snapshot.L3.Misses = s.tierMisses[store.TierL3]

	if total := s.hits + s.misses; total > 0 {
		snapshot.HitRate = float64(s.hits) / float64(total)
	}
	return snapshot
}
