package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/valkey-io/valkey-go"
	"go.uber.org/zap"

	"github.com/senai/tiercache/cache"
	"github.com/senai/tiercache/config"
	"github.com/senai/tiercache/monitoring"
	"github.com/senai/tiercache/store"
	"github.com/senai/tiercache/utils"
)

// openL2 dials Valkey. A dial failure is not fatal: the engine runs with the
// tier disabled and the remaining tiers keep serving.
func openL2(cfg *config.Config, logger *zap.SugaredLogger) (store.TierStore, valkey.Client) {
	if !cfg.L2.Enabled {
		return nil, nil
	}

	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{cfg.L2.Endpoint},
	})
	if err != nil {
		logger.Warnw("Failed to connect to Valkey, running without L2", "endpoint", cfg.L2.Endpoint, "error", err)
		return nil, nil
	}

	return store.NewValkey(client, cfg.L2.Timeout, logger), client
}

// openL3 connects to Postgres and ensures the cache schema exists. Like L2,
// failure degrades instead of aborting startup.
func openL3(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) *store.Postgres {
	if !cfg.L3.Enabled {
		return nil
	}

	pg, err := store.NewPostgres(cfg.L3.DSN, cfg.L3.Timeout, logger)
	if err != nil {
		logger.Warnw("Failed to connect to Postgres, running without L3", "error", err)
		return nil
	}

	if err := pg.EnsureSchema(ctx); err != nil {
		logger.Warnw("Failed to ensure cache schema, running without L3", "error", err)
		pg.Close()
		return nil
	}

	return pg
}

func main() {
	logger := utils.Must(zap.NewProduction())
	defer logger.Sync()
	sugar := logger.Sugar()

	configPath := flag.String("config", "", "path to config file")
	flag.Parse()
	cfg, err := config.LoadConfig(*configPath, sugar)
	if err != nil {
		sugar.Fatalw("Failed to load config", "error", err)
	}

	l2, valkeyClient, pg := buildTiers(cfg, sugar)
	if valkeyClient != nil {
		defer valkeyClient.Close()
	}
	if pg != nil {
		defer pg.Close()
	}

	metrics := monitoring.NewCacheMetrics()

	var l3 store.DurableStore
	if pg != nil {
		l3 = pg
	}
	engine := cache.New(cfg, l2, l3, metrics, sugar)

	router := mux.NewRouter()
	cache.NewAPI(engine, sugar).RegisterRoutes(router)
	router.Handle("/metrics", metrics.Handler()).Methods("GET")
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	}).Methods("GET")

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		Debug:          false,
	})

	address := fmt.Sprintf(":%d", cfg.Port)

	httpServer := &http.Server{
		Addr:    address,
		Handler: corsMiddleware.Handler(router),
	}

	shutdownSignal := make(chan os.Signal, 1)
	signal.Notify(shutdownSignal, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-shutdownSignal
		sugar.Infow("Shutting down server...")

		engine.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			sugar.Fatalw("Server forced to shutdown", "error", err)
		}
	}()

	sugar.Infow("Starting server", "address", address)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		sugar.Fatalw("Failed to start server", "error", err)
	}

	sugar.Infow("Server exited gracefully")
}

func buildTiers(cfg *config.Config, sugar *zap.SugaredLogger) (store.TierStore, valkey.Client, *store.Postgres) {
	l2, valkeyClient := openL2(cfg, sugar)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pg := openL3(ctx, cfg, sugar)

	return l2, valkeyClient, pg
}
