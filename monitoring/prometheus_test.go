package monitoring

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, metrics *CacheMetrics) string {
	t.Helper()
	request := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	recorder := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(recorder, request)
	require.Equal(t, http.StatusOK, recorder.Code)
	return recorder.Body.String()
}

func TestCacheMetrics(t *testing.T) {
	t.Run("counters appear in the exposition", func(t *testing.T) {
		metrics := NewCacheMetrics()

		metrics.RecordHit("l1", "embedding")
		metrics.RecordHit("l1", "embedding")
		metrics.RecordHit("l2", "response")
		metrics.RecordMiss("embedding")
		metrics.RecordSet("l3")
		metrics.RecordInvalidations("l1", 4)
		metrics.RecordWarmed(7)
		metrics.RecordSweepDeleted(2)

		body := scrape(t, metrics)
		assert.Contains(t, body, `tiercache_hits_total{cache_type="embedding",tier="l1"} 2`)
		assert.Contains(t, body, `tiercache_hits_total{cache_type="response",tier="l2"} 1`)
		assert.Contains(t, body, `tiercache_misses_total{cache_type="embedding"} 1`)
		assert.Contains(t, body, `tiercache_sets_total{tier="l3"} 1`)
		assert.Contains(t, body, `tiercache_invalidations_total{tier="l1"} 4`)
		assert.Contains(t, body, `tiercache_warmed_entries_total 7`)
		assert.Contains(t, body, `tiercache_sweep_deleted_total 2`)
	})

	t.Run("zero and negative counts are ignored", func(t *testing.T) {
		metrics := NewCacheMetrics()

		metrics.RecordInvalidations("l1", 0)
		metrics.RecordInvalidations("l1", -3)
		metrics.RecordWarmed(0)

		body := scrape(t, metrics)
		assert.False(t, strings.Contains(body, `tiercache_invalidations_total{tier="l1"}`))
	})

	t.Run("L1 callbacks are scraped live", func(t *testing.T) {
		metrics := NewCacheMetrics()

		size := 3.0
		metrics.RegisterL1(
			func() float64 { return size },
			func() float64 { return 5 },
			func() float64 { return 1 },
		)

		body := scrape(t, metrics)
		assert.Contains(t, body, "tiercache_l1_entries 3")
		assert.Contains(t, body, "tiercache_l1_evictions_total 5")
		assert.Contains(t, body, "tiercache_l1_expired_total 1")

		size = 10
		body = scrape(t, metrics)
		assert.Contains(t, body, "tiercache_l1_entries 10")
	})

	t.Run("nil receiver is safe", func(t *testing.T) {
		var metrics *CacheMetrics

		assert.NotPanics(t, func() {
			metrics.RecordHit("l1", "generic")
			metrics.RecordMiss("generic")
			metrics.RecordSet("l1")
			metrics.RecordInvalidations("l1", 1)
			metrics.RecordWarmed(1)
			metrics.RecordSweepDeleted(1)
			metrics.RegisterL1(nil, nil, nil)
		})
	})
}
