package store

import (
	"context"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
	"go.uber.org/zap"
)

const scanBatchSize = 256

// Valkey is the L2 tier: a shared Valkey (or Redis) key-value service.
// Every operation runs under its own timeout, and every backend failure is
// logged and returned wrapping ErrBackendUnavailable so the engine can
// degrade instead of failing the caller.
type Valkey struct {
	client  valkey.Client
	timeout time.Duration
	logger  *zap.SugaredLogger
}

// NewValkey wraps an already-dialed valkey client. timeout bounds each
// individual operation; zero means no bound beyond the caller's context.
func NewValkey(client valkey.Client, timeout time.Duration, logger *zap.SugaredLogger) *Valkey {
	return &Valkey{client: client, timeout: timeout, logger: logger}
}

var _ TierStore = (*Valkey)(nil)

func (v *Valkey) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := v.opContext(ctx)
	defer cancel()

	resp := v.client.Do(ctx, v.client.B().Get().Key(key).Build())
	if err := resp.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, false, nil
		}
		v.logger.Warnw("L2 get failed", "key", key, "error", err)
		return nil, false, fmt.Errorf("valkey get %q: %v: %w", key, err, ErrBackendUnavailable)
	}

	value, err := resp.AsBytes()
	if err != nil {
		v.logger.Warnw("L2 get decode failed", "key", key, "error", err)
		return nil, false, fmt.Errorf("valkey get %q: %v: %w", key, err, ErrBackendUnavailable)
	}
	return value, true, nil
}

func (v *Valkey) Set(ctx context.Context, key string, value []byte, ttl time.Duration, _ string) error {
	ctx, cancel := v.opContext(ctx)
	defer cancel()

	err := v.client.Do(ctx, v.client.B().Set().
		Key(key).
		Value(valkey.BinaryString(value)).
		Ex(ttl).
		Build(),
	).Error()
	if err != nil {
		v.logger.Warnw("L2 set failed", "key", key, "error", err)
		return fmt.Errorf("valkey set %q: %v: %w", key, err, ErrBackendUnavailable)
	}
	return nil
}

func (v *Valkey) Delete(ctx context.Context, key string) (bool, error) {
	ctx, cancel := v.opContext(ctx)
	defer cancel()

	resp := v.client.Do(ctx, v.client.B().Del().Key(key).Build())
	if err := resp.Error(); err != nil {
		v.logger.Warnw("L2 delete failed", "key", key, "error", err)
		return false, fmt.Errorf("valkey del %q: %v: %w", key, err, ErrBackendUnavailable)
	}

	deleted, err := resp.AsInt64()
	if err != nil {
		return false, fmt.Errorf("valkey del %q: %v: %w", key, err, ErrBackendUnavailable)
	}
	return deleted > 0, nil
}

// InvalidatePattern walks the keyspace with SCAN MATCH *substring* and
// deletes each batch of matches.
func (v *Valkey) InvalidatePattern(ctx context.Context, substring string) (int, error) {
	ctx, cancel := v.opContext(ctx)
	defer cancel()

	match := "*" + substring + "*"
	removed := 0
	var cursor uint64

	for {
		resp := v.client.Do(ctx, v.client.B().Scan().
			Cursor(cursor).
			Match(match).
			Count(scanBatchSize).
			Build(),
		)
		entry, err := resp.AsScanEntry()
		if err != nil {
			v.logger.Warnw("L2 pattern scan failed", "pattern", substring, "error", err)
			return removed, fmt.Errorf("valkey scan %q: %v: %w", substring, err, ErrBackendUnavailable)
		}

		if len(entry.Elements) > 0 {
			delResp := v.client.Do(ctx, v.client.B().Del().Key(entry.Elements...).Build())
			deleted, err := delResp.AsInt64()
			if err != nil {
				v.logger.Warnw("L2 pattern delete failed", "pattern", substring, "error", err)
				return removed, fmt.Errorf("valkey del batch: %v: %w", err, ErrBackendUnavailable)
			}
			removed += int(deleted)
		}

		cursor = entry.Cursor
		if cursor == 0 {
			return removed, nil
		}
	}
}

func (v *Valkey) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if v.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, v.timeout)
}
