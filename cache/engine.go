package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/senai/tiercache/config"
	"github.com/senai/tiercache/monitoring"
	"github.com/senai/tiercache/store"
	"github.com/senai/tiercache/utils/heap"
)

// Engine coordinates the three cache tiers. Lookups cascade L1 -> L2 -> L3
// and promote on each miss-then-hit; writes fan out to every enabled tier
// with a tier-appropriate TTL. A slower tier being down degrades service but
// never fails the caller.
//
// Construct with New and release with Close; the engine owns one warming
// goroutine and one sweep goroutine.
type Engine struct {
	config  *config.Config
	logger  *zap.SugaredLogger
	clock   clock.Clock
	metrics *monitoring.CacheMetrics

	l1 *store.Memory
	l2 store.TierStore
	l3 store.DurableStore

	// l3Healthy flips off permanently when a delete against L3 fails hard,
	// so one dead database does not stall every subsequent call.
	l2Enabled bool
	l3Healthy atomic.Bool

	tracker *AccessTracker
	stats   *Stats

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds an engine over the given tiers. l2 and l3 may be nil, which
// disables those tiers. Background warming and sweeping start immediately
// when enabled in cfg.
func New(cfg *config.Config, l2 store.TierStore, l3 store.DurableStore, metrics *monitoring.CacheMetrics, logger *zap.SugaredLogger) *Engine {
	return newEngineWithClock(cfg, l2, l3, metrics, logger, clock.New(), true)
}

func newEngineWithClock(
	cfg *config.Config,
	l2 store.TierStore,
	l3 store.DurableStore,
	metrics *monitoring.CacheMetrics,
	logger *zap.SugaredLogger,
	clk clock.Clock,
	startBackground bool,
) *Engine {
	engine := &Engine{
		config:  cfg,
		logger:  logger,
		clock:   clk,
		metrics: metrics,
		l1:      store.NewMemory(cfg.L1.Capacity),
		l2:      l2,
		l3:      l3,
		tracker: newAccessTrackerWithClock(clk),
		stats:   newStats(),
	}
	engine.l2Enabled = cfg.L2.Enabled && l2 != nil
	engine.l3Healthy.Store(cfg.L3.Enabled && l3 != nil)

	if metrics != nil {
		metrics.RegisterL1(
			func() float64 { return float64(engine.l1.Size()) },
			func() float64 { return float64(engine.l1.EvictionCount()) },
			func() float64 { return float64(engine.l1.ExpiredCount()) },
		)
	}

	ctx, cancel := context.WithCancel(context.Background())
	engine.cancel = cancel
	if startBackground {
		engine.startBackground(ctx)
	}

	logger.Infow("Cache engine initialized",
		"l1_capacity", cfg.L1.Capacity,
		"l2_enabled", engine.l2Enabled,
		"l3_enabled", engine.l3Enabled())
	return engine
}

// Get looks key up tier by tier. Backend failures on L2/L3 count as misses
// for that tier and never propagate. The L1 lock is never held while waiting
// on L2/L3 I/O; each tier call is independent.
func (e *Engine) Get(ctx context.Context, key string, cacheType string) ([]byte, bool) {
	if value, found, _ := e.l1.Get(ctx, key); found {
		e.tracker.Record(key, cacheType)
		e.stats.recordHit(store.TierL1)
		e.metrics.RecordHit(string(store.TierL1), cacheType)
		return value, true
	}
	e.stats.recordTierMiss(store.TierL1)

	if e.l2Enabled {
		value, found, err := e.l2.Get(ctx, key)
		if err != nil {
			e.logger.Warnw("L2 lookup degraded", "key", key, "error", err)
		}
		if found {
			l1TTL := e.l1PromotionTTL(key)
			_ = e.l1.Set(ctx, key, value, l1TTL, cacheType)

			e.tracker.Record(key, cacheType)
			e.stats.recordHit(store.TierL2)
			e.metrics.RecordHit(string(store.TierL2), cacheType)
			return value, true
		}
		e.stats.recordTierMiss(store.TierL2)
	}

	if e.l3Enabled() {
		value, found, err := e.l3.Get(ctx, key)
		if err != nil {
			e.logger.Warnw("L3 lookup degraded", "key", key, "error", err)
		}
		if found {
			_ = e.l1.Set(ctx, key, value, e.l1PromotionTTL(key), cacheType)
			if e.l2Enabled {
				l2TTL := e.adaptiveTTL(key, e.config.L2.DefaultTTL)
				if err := e.l2.Set(ctx, key, value, l2TTL, cacheType); err != nil {
					e.logger.Warnw("L2 promotion failed", "key", key, "error", err)
				}
			}

			e.tracker.Record(key, cacheType)
			e.stats.recordHit(store.TierL3)
			e.metrics.RecordHit(string(store.TierL3), cacheType)
			return value, true
		}
		e.stats.recordTierMiss(store.TierL3)
	}

	e.stats.recordMiss()
	e.metrics.RecordMiss(cacheType)
	return nil, false
}

// Set writes value to every requested enabled tier. With no tiers given it
// writes to all enabled ones. A zero baseTTL falls back to the L2 default.
//
// The effective TTL adapts to the key's observed access frequency once, then
// each tier applies its policy: L1 is capped at twice its base TTL to
// protect capacity, L3 is floored at its base TTL to favor durability.
//
// The result is true when L1 succeeded, even if a slower tier failed
// (degraded success).
func (e *Engine) Set(ctx context.Context, key string, value []byte, baseTTL time.Duration, cacheType string, tiers ...store.Tier) bool {
	if len(tiers) == 0 {
		tiers = e.enabledTiers()
	}
	if baseTTL <= 0 {
		baseTTL = e.config.L2.DefaultTTL
	}

	adaptiveTTL := e.adaptiveTTL(key, baseTTL)

	l1Attempted := false
	l1Success := false
	allSuccess := true

	if tierRequested(tiers, store.TierL1) {
		l1Attempted = true
		l1TTL := minDuration(adaptiveTTL, 2*e.config.L1.DefaultTTL)
		_ = e.l1.Set(ctx, key, value, l1TTL, cacheType)
		l1Success = true
		e.metrics.RecordSet(string(store.TierL1))
	}

	if tierRequested(tiers, store.TierL2) && e.l2Enabled {
		if err := e.l2.Set(ctx, key, value, adaptiveTTL, cacheType); err != nil {
			e.logger.Warnw("L2 set degraded", "key", key, "error", err)
			allSuccess = false
		} else {
			e.metrics.RecordSet(string(store.TierL2))
		}
	}

	if tierRequested(tiers, store.TierL3) && e.l3Enabled() {
		l3TTL := maxDuration(adaptiveTTL, e.config.L3.DefaultTTL)
		if err := e.l3.Set(ctx, key, value, l3TTL, cacheType); err != nil {
			e.logger.Warnw("L3 set degraded", "key", key, "error", err)
			allSuccess = false
		} else {
			e.metrics.RecordSet(string(store.TierL3))
		}
	}

	success := allSuccess
	if l1Attempted {
		success = l1Success
	}
	if success {
		e.stats.recordSet()
	}
	return success
}

// Clear empties the in-process tier and returns how many entries it held.
// Slower tiers are left alone; use InvalidatePattern for cross-tier removal.
func (e *Engine) Clear() int {
	return e.l1.Clear()
}

// StatsSnapshot returns a copy of all counters plus tier topology.
func (e *Engine) StatsSnapshot() StatsSnapshot {
	snapshot := e.stats.snapshot()
	snapshot.L1.Enabled = true
	snapshot.L1.Size = e.l1.Size()
	snapshot.L1.Capacity = e.l1.Capacity()
	snapshot.L1.Evictions = e.l1.EvictionCount()
	snapshot.L1.Expired = e.l1.ExpiredCount()
	snapshot.L2.Enabled = e.l2Enabled
	snapshot.L3.Enabled = e.l3Enabled()
	snapshot.Evictions = snapshot.L1.Evictions
	snapshot.Expired = snapshot.L1.Expired
	return snapshot
}

// DurableCounts returns the number of live durable rows per cache type.
// Best-effort: an unavailable durable tier yields an empty map.
func (e *Engine) DurableCounts(ctx context.Context) map[string]int64 {
	if !e.l3Enabled() {
		return map[string]int64{}
	}
	counts, err := e.l3.CountByType(ctx)
	if err != nil {
		e.logger.Warnw("L3 type counts unavailable", "error", err)
		return map[string]int64{}
	}
	return counts
}

// HotKeys returns the n most-accessed live L1 entries, hottest first.
func (e *Engine) HotKeys(n int) []store.KeyAccess {
	if n <= 0 {
		return nil
	}

	// Keep a min-heap of the n hottest entries seen so far; the coldest of
	// them sits on top and gets displaced first.
	hottest := heap.NewMinHeap(func(a, b store.KeyAccess) bool {
		return a.AccessCount < b.AccessCount
	})
	for _, access := range e.l1.AccessSnapshot() {
		hottest.Push(access)
		if hottest.Len() > n {
			hottest.Pop()
		}
	}

	result := make([]store.KeyAccess, hottest.Len())
	for i := hottest.Len() - 1; i >= 0; i-- {
		result[i], _ = hottest.Pop()
	}
	return result
}

// Close stops the background workers and waits for them to finish.
func (e *Engine) Close() {
	e.cancel()
	e.wg.Wait()
	e.logger.Info("Cache engine stopped")
}

func (e *Engine) l3Enabled() bool {
	return e.l3Healthy.Load()
}

func (e *Engine) enabledTiers() []store.Tier {
	tiers := []store.Tier{store.TierL1}
	if e.l2Enabled {
		tiers = append(tiers, store.TierL2)
	}
	if e.l3Enabled() {
		tiers = append(tiers, store.TierL3)
	}
	return tiers
}

func (e *Engine) adaptiveTTL(key string, baseTTL time.Duration) time.Duration {
	return AdaptiveTTL(baseTTL, e.tracker.Count(key), e.config.Adaptive)
}

func (e *Engine) l1PromotionTTL(key string) time.Duration {
	return minDuration(e.adaptiveTTL(key, e.config.L1.DefaultTTL), 2*e.config.L1.DefaultTTL)
}

func tierRequested(tiers []store.Tier, tier store.Tier) bool {
	for _, t := range tiers {
		if t == tier {
			return true
		}
	}
	return false
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
