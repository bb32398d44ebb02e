package store

import (
	"context"
	"database/sql"
	"time"

	// PostgreSQL driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Postgres is the L3 tier: a cache_entries table in a relational database.
// It is the only tier that survives restarts and the only one that tracks
// per-row access statistics, which feed the warming worker. Other processes
// may share the table; nothing here assumes exclusive access.
type Postgres struct {
	db      *sql.DB
	timeout time.Duration
	logger  *zap.SugaredLogger
}

// NewPostgres opens a connection pool against dsn and verifies it with a
// ping. timeout bounds each individual query.
func NewPostgres(dsn string, timeout time.Duration, logger *zap.SugaredLogger) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	// The cache is a side channel of the main application; keep its pool
	// footprint small.
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(2 * time.Hour)
	db.SetConnMaxIdleTime(15 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping database")
	}

	return &Postgres{db: db, timeout: timeout, logger: logger}, nil
}

// NewPostgresFromDB wraps an existing pool. Used by tests and by callers
// that share a pool with the business-entity layer.
func NewPostgresFromDB(db *sql.DB, timeout time.Duration, logger *zap.SugaredLogger) *Postgres {
	return &Postgres{db: db, timeout: timeout, logger: logger}
}

var _ DurableStore = (*Postgres)(nil)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS cache_entries (
		id SERIAL PRIMARY KEY,
		cache_key VARCHAR(512) UNIQUE NOT NULL,
		cache_value TEXT NOT NULL,
		cache_type VARCHAR(50) NOT NULL,
		expires_at TIMESTAMP NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		access_count INTEGER DEFAULT 0,
		last_accessed TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_cache_entries_key ON cache_entries (cache_key)`,
	`CREATE INDEX IF NOT EXISTS idx_cache_entries_type ON cache_entries (cache_type)`,
	`CREATE INDEX IF NOT EXISTS idx_cache_entries_expires ON cache_entries (expires_at)`,
	`CREATE INDEX IF NOT EXISTS idx_cache_entries_access_count ON cache_entries (access_count)`,
	`CREATE INDEX IF NOT EXISTS idx_cache_entries_last_accessed ON cache_entries (last_accessed)`,
}

// EnsureSchema creates the cache_entries table and its indexes if they do
// not exist yet.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to ensure cache schema")
		}
	}
	return nil
}

// Get returns the value for key if a non-expired row exists. Expiry is
// filtered at the query level; expired rows are left for the periodic sweep.
// On a hit the row's access statistics are updated best-effort: a failure to
// update them never fails the read.
func (p *Postgres) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := p.opContext(ctx)
	defer cancel()

	var value []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT cache_value FROM cache_entries WHERE cache_key = $1 AND expires_at > NOW()`,
		key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		p.logger.Warnw("L3 get failed", "key", key, "error", err)
		return nil, false, errors.Wrapf(ErrBackendUnavailable, "postgres get %q: %v", key, err)
	}

	if _, err := p.db.ExecContext(ctx,
		`UPDATE cache_entries SET access_count = access_count + 1, last_accessed = NOW() WHERE cache_key = $1`,
		key,
	); err != nil {
		p.logger.Warnw("L3 access stats update failed", "key", key, "error", err)
	}

	return value, true, nil
}

// Set upserts a row for key. An existing row keeps accumulating its access
// count so warming decisions survive value refreshes.
func (p *Postgres) Set(ctx context.Context, key string, value []byte, ttl time.Duration, cacheType string) error {
	ctx, cancel := p.opContext(ctx)
	defer cancel()

	_, err := p.db.ExecContext(ctx,
		`INSERT INTO cache_entries (cache_key, cache_value, cache_type, expires_at, access_count, last_accessed)
		 VALUES ($1, $2, $3, NOW() + $4 * INTERVAL '1 second', 1, NOW())
		 ON CONFLICT (cache_key) DO UPDATE SET
			cache_value = EXCLUDED.cache_value,
			cache_type = EXCLUDED.cache_type,
			expires_at = EXCLUDED.expires_at,
			access_count = cache_entries.access_count + 1,
			last_accessed = NOW()`,
		key, string(value), cacheType, int64(ttl.Seconds()),
	)
	if err != nil {
		p.logger.Warnw("L3 set failed", "key", key, "error", err)
		return errors.Wrapf(ErrBackendUnavailable, "postgres set %q: %v", key, err)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, key string) (bool, error) {
	ctx, cancel := p.opContext(ctx)
	defer cancel()

	result, err := p.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE cache_key = $1`, key)
	if err != nil {
		p.logger.Warnw("L3 delete failed", "key", key, "error", err)
		return false, errors.Wrapf(ErrBackendUnavailable, "postgres delete %q: %v", key, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrapf(ErrBackendUnavailable, "postgres delete %q: %v", key, err)
	}
	return affected > 0, nil
}

// InvalidatePattern deletes every row whose key contains substring.
func (p *Postgres) InvalidatePattern(ctx context.Context, substring string) (int, error) {
	ctx, cancel := p.opContext(ctx)
	defer cancel()

	result, err := p.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE cache_key LIKE '%' || $1 || '%'`,
		substring,
	)
	if err != nil {
		p.logger.Warnw("L3 pattern invalidation failed", "pattern", substring, "error", err)
		return 0, errors.Wrapf(ErrBackendUnavailable, "postgres invalidate %q: %v", substring, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrapf(ErrBackendUnavailable, "postgres invalidate %q: %v", substring, err)
	}
	return int(affected), nil
}

func (p *Postgres) TopAccessed(ctx context.Context, n int) ([]DurableRow, error) {
	ctx, cancel := p.opContext(ctx)
	defer cancel()

	rows, err := p.db.QueryContext(ctx,
		`SELECT cache_key, cache_value, cache_type, access_count
		 FROM cache_entries
		 WHERE expires_at > NOW()
		 ORDER BY access_count DESC
		 LIMIT $1`,
		n,
	)
	if err != nil {
		return nil, errors.Wrapf(ErrBackendUnavailable, "postgres top accessed: %v", err)
	}
	defer rows.Close()

	var result []DurableRow
	for rows.Next() {
		var row DurableRow
		var value string
		if err := rows.Scan(&row.Key, &value, &row.CacheType, &row.AccessCount); err != nil {
			return nil, errors.Wrap(err, "failed to scan cache entry")
		}
		row.Value = []byte(value)
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(ErrBackendUnavailable, "postgres top accessed: %v", err)
	}
	return result, nil
}

func (p *Postgres) DeleteExpired(ctx context.Context) (int, error) {
	ctx, cancel := p.opContext(ctx)
	defer cancel()

	result, err := p.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE expires_at < NOW()`)
	if err != nil {
		return 0, errors.Wrapf(ErrBackendUnavailable, "postgres expiry sweep: %v", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrapf(ErrBackendUnavailable, "postgres expiry sweep: %v", err)
	}
	return int(affected), nil
}

// DeleteOlderThan removes rows by creation age regardless of expiry. Used
// for operator-driven cleanup of stale durable entries.
func (p *Postgres) DeleteOlderThan(ctx context.Context, maxAge time.Duration) (int, error) {
	ctx, cancel := p.opContext(ctx)
	defer cancel()

	result, err := p.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE created_at < NOW() - $1 * INTERVAL '1 second'`,
		int64(maxAge.Seconds()),
	)
	if err != nil {
		return 0, errors.Wrapf(ErrBackendUnavailable, "postgres stale cleanup: %v", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrapf(ErrBackendUnavailable, "postgres stale cleanup: %v", err)
	}
	return int(affected), nil
}

func (p *Postgres) CountByType(ctx context.Context) (map[string]int64, error) {
	ctx, cancel := p.opContext(ctx)
	defer cancel()

	rows, err := p.db.QueryContext(ctx,
		`SELECT cache_type, COUNT(*) FROM cache_entries WHERE expires_at > NOW() GROUP BY cache_type`,
	)
	if err != nil {
		return nil, errors.Wrapf(ErrBackendUnavailable, "postgres count by type: %v", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var cacheType string
		var count int64
		if err := rows.Scan(&cacheType, &count); err != nil {
			return nil, errors.Wrap(err, "failed to scan type count")
		}
		counts[cacheType] = count
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(ErrBackendUnavailable, "postgres count by type: %v", err)
	}
	return counts, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.timeout)
}
