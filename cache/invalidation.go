package cache

import (
	"context"
	"time"

	"github.com/senai/tiercache/store"
)

// Delete removes key from the specified enabled tiers (all of them when none
// are given). The result is the logical AND over the tiers actually
// attempted. A hard L3 failure does not abort the delete; instead L3 is
// soft-disabled for the rest of the process lifetime, since a database that
// cannot delete is a database this engine should stop leaning on.
func (e *Engine) Delete(ctx context.Context, key string, tiers ...store.Tier) bool {
	if len(tiers) == 0 {
		tiers = store.AllTiers
	}

	success := true

	if tierRequested(tiers, store.TierL1) {
		deleted, _ := e.l1.Delete(ctx, key)
		success = deleted && success
		if deleted {
			e.metrics.RecordInvalidations(string(store.TierL1), 1)
		}
	}

	if tierRequested(tiers, store.TierL2) && e.l2Enabled {
		deleted, err := e.l2.Delete(ctx, key)
		if err != nil {
			e.logger.Warnw("L2 delete degraded", "key", key, "error", err)
			success = false
		} else if deleted {
			e.metrics.RecordInvalidations(string(store.TierL2), 1)
		}
	}

	if tierRequested(tiers, store.TierL3) && e.l3Enabled() {
		deleted, err := e.l3.Delete(ctx, key)
		if err != nil {
			e.logger.Errorw("L3 delete failed, disabling durable tier", "key", key, "error", err)
			e.l3Healthy.Store(false)
			success = false
		} else if deleted {
			e.metrics.RecordInvalidations(string(store.TierL3), 1)
		}
	}

	return success
}

// InvalidatePattern removes every entry whose key contains substring from
// the specified enabled tiers and returns the total removed. Substring
// containment only; no globs, no regular expressions.
func (e *Engine) InvalidatePattern(ctx context.Context, substring string, tiers ...store.Tier) int {
	if len(tiers) == 0 {
		tiers = store.AllTiers
	}

	total := 0

	if tierRequested(tiers, store.TierL1) {
		removed, _ := e.l1.InvalidatePattern(ctx, substring)
		e.metrics.RecordInvalidations(string(store.TierL1), removed)
		total += removed
	}

	if tierRequested(tiers, store.TierL2) && e.l2Enabled {
		removed, err := e.l2.InvalidatePattern(ctx, substring)
		if err != nil {
			e.logger.Warnw("L2 pattern invalidation degraded", "pattern", substring, "error", err)
		}
		e.metrics.RecordInvalidations(string(store.TierL2), removed)
		total += removed
	}

	if tierRequested(tiers, store.TierL3) && e.l3Enabled() {
		removed, err := e.l3.InvalidatePattern(ctx, substring)
		if err != nil {
			e.logger.Errorw("L3 pattern invalidation failed, disabling durable tier", "pattern", substring, "error", err)
			e.l3Healthy.Store(false)
		}
		e.metrics.RecordInvalidations(string(store.TierL3), removed)
		total += removed
	}

	return total
}

// InvalidateStale removes durable rows created more than maxAge ago,
// whether or not their TTL has passed. Only the durable tier is touched;
// stale L1/L2 entries age out through their TTLs.
func (e *Engine) InvalidateStale(ctx context.Context, maxAge time.Duration) (int, error) {
	if !e.l3Enabled() {
		return 0, nil
	}

	removed, err := e.l3.DeleteOlderThan(ctx, maxAge)
	if err != nil {
		e.logger.Errorw("L3 stale cleanup failed, disabling durable tier", "max_age", maxAge, "error", err)
		e.l3Healthy.Store(false)
		return removed, err
	}
	e.metrics.RecordInvalidations(string(store.TierL3), removed)
	return removed, nil
}

// InvalidateResponsesFor removes every cached generated-text response
// derived from userMessage across all tiers, without enumerating exact keys.
// The key contract embeds the message after the type prefix, so a substring
// match on that fragment covers every history/prompt/temperature variant.
func (e *Engine) InvalidateResponsesFor(ctx context.Context, userMessage string) int {
	return e.InvalidatePattern(ctx, ResponseKeyPrefix(userMessage))
}
