package cache

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestAPI(t *testing.T) (*Engine, *mux.Router) {
	t.Helper()
	engine := newTestEngine(t, testConfig(), newFakeTier(), newFakeDurable())

	router := mux.NewRouter()
	NewAPI(engine, zaptest.NewLogger(t).Sugar()).RegisterRoutes(router)
	return engine, router
}

func doRequest(router *mux.Router, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		encoded, _ := json.Marshal(body)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	request := httptest.NewRequest(method, path, reader)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func TestCacheAPI(t *testing.T) {
	ctx := context.Background()

	t.Run("GET /cache/stats", func(t *testing.T) {
		engine, router := newTestAPI(t)
		require.True(t, engine.Set(ctx, "k", []byte("v"), 0, TypeGeneric))
		_, found := engine.Get(ctx, "k", TypeGeneric)
		require.True(t, found)

		recorder := doRequest(router, http.MethodGet, "/cache/stats", nil)
		require.Equal(t, http.StatusOK, recorder.Code)

		var snapshot StatsSnapshot
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &snapshot))
		assert.Equal(t, int64(1), snapshot.Hits)
		assert.Equal(t, int64(1), snapshot.Sets)
		assert.True(t, snapshot.L1.Enabled)

		var withTypes struct {
			L3Types map[string]int64 `json:"l3_types"`
		}
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &withTypes))
		assert.Equal(t, int64(1), withTypes.L3Types[TypeGeneric])
	})

	t.Run("GET /cache/hotkeys", func(t *testing.T) {
		engine, router := newTestAPI(t)
		require.True(t, engine.Set(ctx, "hot", []byte("v"), 0, TypeGeneric))
		for i := 0; i < 3; i++ {
			engine.Get(ctx, "hot", TypeGeneric)
		}

		recorder := doRequest(router, http.MethodGet, "/cache/hotkeys?n=5", nil)
		require.Equal(t, http.StatusOK, recorder.Code)

		var body struct {
			HotKeys []struct {
				Key         string `json:"key"`
				AccessCount int64  `json:"access_count"`
			} `json:"hot_keys"`
			Count int `json:"count"`
		}
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
		require.Equal(t, 1, body.Count)
		assert.Equal(t, "hot", body.HotKeys[0].Key)
		assert.Equal(t, int64(3), body.HotKeys[0].AccessCount)
	})

	t.Run("GET /cache/hotkeys rejects a bad n", func(t *testing.T) {
		_, router := newTestAPI(t)

		recorder := doRequest(router, http.MethodGet, "/cache/hotkeys?n=zero", nil)
		assert.Equal(t, http.StatusBadRequest, recorder.Code)

		recorder = doRequest(router, http.MethodGet, "/cache/hotkeys?n=-3", nil)
		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})

	t.Run("POST /cache/clear", func(t *testing.T) {
		engine, router := newTestAPI(t)
		require.True(t, engine.Set(ctx, "k", []byte("v"), 0, TypeGeneric))

		recorder := doRequest(router, http.MethodPost, "/cache/clear", nil)
		require.Equal(t, http.StatusOK, recorder.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
		assert.Equal(t, float64(1), body["removed"])
		assert.Equal(t, 0, engine.StatsSnapshot().L1.Size)
	})

	t.Run("POST /cache/warm", func(t *testing.T) {
		_, router := newTestAPI(t)

		recorder := doRequest(router, http.MethodPost, "/cache/warm", nil)
		require.Equal(t, http.StatusOK, recorder.Code)

		var report WarmReport
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &report))
		assert.NotEmpty(t, report.RunID)
	})

	t.Run("POST /cache/invalidate by key", func(t *testing.T) {
		engine, router := newTestAPI(t)
		require.True(t, engine.Set(ctx, "k", []byte("v"), 0, TypeGeneric))

		recorder := doRequest(router, http.MethodPost, "/cache/invalidate", map[string]any{"key": "k"})
		require.Equal(t, http.StatusOK, recorder.Code)

		_, found := engine.Get(ctx, "k", TypeGeneric)
		assert.False(t, found)
	})

	t.Run("POST /cache/invalidate by pattern with tiers", func(t *testing.T) {
		engine, router := newTestAPI(t)
		require.True(t, engine.Set(ctx, "embedding:u1:a", []byte("1"), 0, TypeEmbedding))
		require.True(t, engine.Set(ctx, "embedding:u1:b", []byte("2"), 0, TypeEmbedding))

		recorder := doRequest(router, http.MethodPost, "/cache/invalidate", map[string]any{
			"pattern": "embedding:u1",
			"tiers":   []string{"l1"},
		})
		require.Equal(t, http.StatusOK, recorder.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
		assert.Equal(t, float64(2), body["removed"])
	})

	t.Run("POST /cache/invalidate validation", func(t *testing.T) {
		_, router := newTestAPI(t)

		// Neither key nor pattern.
		recorder := doRequest(router, http.MethodPost, "/cache/invalidate", map[string]any{})
		assert.Equal(t, http.StatusBadRequest, recorder.Code)

		// Both at once.
		recorder = doRequest(router, http.MethodPost, "/cache/invalidate", map[string]any{
			"key":     "k",
			"pattern": "p",
		})
		assert.Equal(t, http.StatusBadRequest, recorder.Code)

		// Unknown tier.
		recorder = doRequest(router, http.MethodPost, "/cache/invalidate", map[string]any{
			"key":   "k",
			"tiers": []string{"l9"},
		})
		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})

	t.Run("DELETE /cache/entries/{key}", func(t *testing.T) {
		engine, router := newTestAPI(t)
		require.True(t, engine.Set(ctx, "doomed", []byte("v"), 0, TypeGeneric))

		recorder := doRequest(router, http.MethodDelete, "/cache/entries/doomed", nil)
		require.Equal(t, http.StatusOK, recorder.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
		assert.Equal(t, "doomed", body["key"])
		assert.Equal(t, true, body["deleted"])

		_, found := engine.Get(ctx, "doomed", TypeGeneric)
		assert.False(t, found)
	})
}
