package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// WarmReport describes one warming run.
type WarmReport struct {
	RunID           string    `json:"run_id"`
	Promoted        int       `json:"promoted"`
	DurationSeconds float64   `json:"duration_seconds"`
	Timestamp       time.Time `json:"timestamp"`
}

func (e *Engine) startBackground(ctx context.Context) {
	if e.config.Warming.Enabled && e.l3Enabled() {
		e.wg.Add(1)
		go e.runWarmingLoop(ctx)
		e.logger.Infow("Cache warming enabled", "interval", e.config.Warming.Interval, "top_n", e.config.Warming.TopN)
	}
	if e.l3Enabled() && e.config.L3.SweepInterval > 0 {
		e.wg.Add(1)
		go e.runSweepLoop(ctx)
	}
}

func (e *Engine) runWarmingLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := e.clock.Ticker(e.config.Warming.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := e.WarmNow(ctx); err != nil {
				e.logger.Errorw("Cache warming run failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// WarmNow promotes the most-accessed non-expired L3 entries into L1 (and L2
// when enabled) using the tiers' default TTLs. It reads L3 but never deletes
// or mutates it. Safe to call concurrently with regular traffic; operators
// can trigger it through the HTTP API.
func (e *Engine) WarmNow(ctx context.Context) (*WarmReport, error) {
	report := &WarmReport{
		RunID:     uuid.NewString(),
		Timestamp: e.clock.Now(),
	}
	start := e.clock.Now()

	if !e.l3Enabled() {
		report.DurationSeconds = e.clock.Since(start).Seconds()
		return report, nil
	}

	rows, err := e.l3.TopAccessed(ctx, e.config.Warming.TopN)
	if err != nil {
		return report, err
	}

	for _, row := range rows {
		_ = e.l1.Set(ctx, row.Key, row.Value, e.config.L1.DefaultTTL, row.CacheType)
		if e.l2Enabled {
			if err := e.l2.Set(ctx, row.Key, row.Value, e.config.L2.DefaultTTL, row.CacheType); err != nil {
				e.logger.Warnw("L2 warm-up write failed", "key", row.Key, "error", err)
			}
		}
		report.Promoted++
	}

	report.DurationSeconds = e.clock.Since(start).Seconds()
	e.metrics.RecordWarmed(report.Promoted)
	if report.Promoted > 0 {
		e.logger.Infow("Cache warmed", "run_id", report.RunID, "promoted", report.Promoted)
	}
	return report, nil
}

// runSweepLoop periodically deletes expired rows from the durable tier so
// storage growth stays bounded. A failed sweep is logged and retried on the
// next tick, never fatal.
func (e *Engine) runSweepLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := e.clock.Ticker(e.config.L3.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !e.l3Enabled() {
				continue
			}
			deleted, err := e.l3.DeleteExpired(ctx)
			if err != nil {
				e.logger.Warnw("L3 expiry sweep failed", "error", err)
				continue
			}
			e.metrics.RecordSweepDeleted(deleted)
			if deleted > 0 {
				e.logger.Infow("L3 expiry sweep completed", "deleted", deleted)
			}
		case <-ctx.Done():
			return
		}
	}
}
