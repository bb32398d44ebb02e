package store

import (
	"context"
	"errors"
	"time"
)

// Tier identifies one storage backend in the cache hierarchy. L1 is the
// fastest and smallest, L3 the slowest and most durable.
type Tier string

const (
	TierL1 Tier = "l1"
	TierL2 Tier = "l2"
	TierL3 Tier = "l3"
)

// AllTiers lists every tier in lookup order.
var AllTiers = []Tier{TierL1, TierL2, TierL3}

// ErrBackendUnavailable marks a connectivity or timeout failure of an
// external backend. Callers treat it as a soft miss, never as a failure of
// the overall lookup.
var ErrBackendUnavailable = errors.New("cache backend unavailable")

// IsUnavailable reports whether err stems from an unreachable backend.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrBackendUnavailable)
}

// TierStore is the uniform contract every tier implements. Values are opaque
// bytes; the store never interprets them. cacheType is a logical category
// ("embedding", "response", ...) used for metrics and durable bookkeeping,
// not for routing.
type TierStore interface {
	// Get returns the value for key, or found=false if the key is absent or
	// expired. A backend failure is returned as an error wrapping
	// ErrBackendUnavailable alongside found=false.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Set stores value under key with the given TTL, overwriting any
	// previous value.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration, cacheType string) error

	// Delete removes key and reports whether an entry existed.
	Delete(ctx context.Context, key string) (bool, error)

	// InvalidatePattern removes every key containing substring and returns
	// the number of entries removed. Plain substring containment, no globs.
	InvalidatePattern(ctx context.Context, substring string) (int, error)
}

// DurableRow is one persisted entry as read back from the durable tier.
type DurableRow struct {
	Key         string
	Value       []byte
	CacheType   string
	AccessCount int64
}

// DurableStore extends TierStore with the operations only the durable tier
// supports: warming candidates, expiry sweeps, and per-type accounting.
type DurableStore interface {
	TierStore

	// TopAccessed returns up to n non-expired rows ordered by access count
	// descending. It never mutates the rows it reads.
	TopAccessed(ctx context.Context, n int) ([]DurableRow, error)

	// DeleteExpired removes rows whose expiry has passed and returns the
	// number deleted.
	DeleteExpired(ctx context.Context) (int, error)

	// DeleteOlderThan removes rows created more than maxAge ago, expired or
	// not, and returns the number deleted.
	DeleteOlderThan(ctx context.Context, maxAge time.Duration) (int, error)

	// CountByType returns the number of non-expired rows per cache type.
	CountByType(ctx context.Context) (map[string]int64, error)
}
