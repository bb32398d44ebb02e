package cache

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/senai/tiercache/store"
)

// CacheAPI provides REST API endpoints for cache management
type CacheAPI struct {
	engine *Engine
	logger *zap.SugaredLogger
}

// NewAPI creates a new cache API instance
func NewAPI(engine *Engine, logger *zap.SugaredLogger) *CacheAPI {
	return &CacheAPI{
		engine: engine,
		logger: logger,
	}
}

// RegisterRoutes registers all cache API routes
func (api *CacheAPI) RegisterRoutes(router *mux.Router) {
	// Statistics and monitoring
	router.HandleFunc("/cache/stats", api.GetStats).Methods("GET")
	router.HandleFunc("/cache/hotkeys", api.GetHotKeys).Methods("GET")

	// Cache management
	router.HandleFunc("/cache/clear", api.ClearCache).Methods("POST")
	router.HandleFunc("/cache/warm", api.WarmCache).Methods("POST")

	// Invalidation
	router.HandleFunc("/cache/invalidate", api.Invalidate).Methods("POST")
	router.HandleFunc("/cache/entries/{key}", api.DeleteEntry).Methods("DELETE")
}

// GetStats handles GET /cache/stats
func (api *CacheAPI) GetStats(w http.ResponseWriter, r *http.Request) {
	response := struct {
		StatsSnapshot
		L3Types map[string]int64 `json:"l3_types,omitempty"`
	}{
		StatsSnapshot: api.engine.StatsSnapshot(),
		L3Types:       api.engine.DurableCounts(r.Context()),
	}
	api.writeJSON(w, http.StatusOK, response)
}

// GetHotKeys handles GET /cache/hotkeys
func (api *CacheAPI) GetHotKeys(w http.ResponseWriter, r *http.Request) {
	n := 10
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 1000 {
			api.writeError(w, http.StatusBadRequest, "invalid_request", "n must be an integer between 1 and 1000")
			return
		}
		n = parsed
	}

	keys := api.engine.HotKeys(n)
	if keys == nil {
		keys = []store.KeyAccess{}
	}

	response := map[string]interface{}{
		"hot_keys": keys,
		"count":    len(keys),
	}

	api.writeJSON(w, http.StatusOK, response)
}

// ClearCache handles POST /cache/clear
func (api *CacheAPI) ClearCache(w http.ResponseWriter, r *http.Request) {
	removed := api.engine.Clear()

	response := map[string]interface{}{
		"message":   "Cache cleared successfully",
		"removed":   removed,
		"timestamp": time.Now(),
	}

	api.writeJSON(w, http.StatusOK, response)
}

// WarmCache handles POST /cache/warm
func (api *CacheAPI) WarmCache(w http.ResponseWriter, r *http.Request) {
	report, err := api.engine.WarmNow(r.Context())
	if err != nil {
		api.logger.Errorw("Failed to warm cache", "error", err)
		api.writeError(w, http.StatusServiceUnavailable, "warming_failed", err.Error())
		return
	}

	api.writeJSON(w, http.StatusOK, report)
}

type invalidateRequest struct {
	Key     string   `json:"key,omitempty"`
	Pattern string   `json:"pattern,omitempty"`
	Tiers   []string `json:"tiers,omitempty"`
}

// Invalidate handles POST /cache/invalidate
func (api *CacheAPI) Invalidate(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload")
		return
	}

	if (req.Key == "") == (req.Pattern == "") {
		api.writeError(w, http.StatusBadRequest, "invalid_request", "Exactly one of key or pattern is required")
		return
	}

	tiers, err := parseTiers(req.Tiers)
	if err != nil {
		api.writeError(w, http.StatusBadRequest, "invalid_tier", err.Error())
		return
	}

	if req.Key != "" {
		deleted := api.engine.Delete(r.Context(), req.Key, tiers...)
		response := map[string]interface{}{
			"key":       req.Key,
			"deleted":   deleted,
			"timestamp": time.Now(),
		}
		api.writeJSON(w, http.StatusOK, response)
		return
	}

	removed := api.engine.InvalidatePattern(r.Context(), req.Pattern, tiers...)
	response := map[string]interface{}{
		"pattern":   req.Pattern,
		"removed":   removed,
		"timestamp": time.Now(),
	}
	api.writeJSON(w, http.StatusOK, response)
}

// DeleteEntry handles DELETE /cache/entries/{key}
func (api *CacheAPI) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	deleted := api.engine.Delete(r.Context(), key)

	response := map[string]interface{}{
		"message":   "Cache entry deleted",
		"key":       key,
		"deleted":   deleted,
		"timestamp": time.Now(),
	}

	api.writeJSON(w, http.StatusOK, response)
}

func parseTiers(names []string) ([]store.Tier, error) {
	tiers := make([]store.Tier, 0, len(names))
	for _, name := range names {
		tier := store.Tier(name)
		switch tier {
		case store.TierL1, store.TierL2, store.TierL3:
			tiers = append(tiers, tier)
		default:
			return nil, fmt.Errorf("unknown tier: %s", name)
		}
	}
	return tiers, nil
}

func (api *CacheAPI) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		api.logger.Errorw("Failed to encode JSON response", "error", err)
	}
}

func (api *CacheAPI) writeError(w http.ResponseWriter, status int, errorType, message string) {
	errorResponse := map[string]interface{}{
		"error": map[string]interface{}{
			"type":    errorType,
			"message": message,
			"code":    status,
		},
	}

	api.writeJSON(w, status, errorResponse)
}
