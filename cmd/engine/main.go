package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"orderbridge/internal/api"
	"orderbridge/internal/config"
	"orderbridge/internal/events"
	"orderbridge/internal/inventory"
	"orderbridge/internal/metrics"
	"orderbridge/internal/model"
	"orderbridge/internal/provider"
	"orderbridge/internal/router"
	"orderbridge/internal/source"
	"orderbridge/internal/store"
	"orderbridge/internal/tracking"
	"orderbridge/internal/transform"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	metrics.RegisterDefault()

	ctx := context.Background()

	// Store: postgres when configured, in-memory otherwise.
	var st store.Store
	var ready api.Ready
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		st = pg
		ready = pg.Ping
	} else {
		st = store.NewMemory()
		log.Printf("no DATABASE_URL set, using in-memory store")
	}

	// Broker: redis when configured, in-process otherwise.
	var broker events.Broker
	if cfg.RedisURL != "" {
		rb, err := events.NewRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		broker = rb
	} else {
		broker = events.NewMemory()
	}

	src := source.New(cfg.Source, cfg.Retry, cfg)
	prov := provider.New(cfg.Provider, cfg.Retry, cfg)

	oracle := inventory.New(prov, inventory.Options{
		TTL:               cfg.CacheTTL,
		SafetyStock:       cfg.SafetyStock,
		LowStockThreshold: cfg.LowStockThreshold,
		ChunkSize:         cfg.InventoryChunk,
	})

	tf := transform.New(transform.NewSKUMap(cfg.SKUMappings), transform.Options{
		DefaultSpeed:     model.ShippingSpeed(cfg.DefaultShippingSpeed),
		Policy:           cfg.FulfillmentPolicy,
		NotifyEmails:     cfg.NotifyEmails,
		StrictSKUMapping: cfg.StrictSKUMapping,
	})

	continueOnError := true
	if cfg.ContinueOnError != nil {
		continueOnError = *cfg.ContinueOnError
	}
	rt := router.New(src, prov, oracle, tf, st, broker, router.Options{
		FanOut:          cfg.FanOut,
		ContinueOnError: continueOnError,
		BatchSize:       cfg.BatchSize,
	})

	sync := tracking.New(prov, src, st, broker, tracking.Options{
		Interval:      cfg.SyncInterval,
		RatePerMinute: cfg.RatePerMinute,
	})
	sync.Start()
	defer sync.Stop()

	ops := &api.Server{
		Router: rt,
		Oracle: oracle,
		Sync:   sync,
		Store:  st,
		Broker: broker,
		Ready:  ready,
	}
	srv := &http.Server{
		Addr:              cfg.OpsAddr,
		Handler:           logMiddleware(ops.Routes()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("ops API listening on %s", cfg.OpsAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s %v", r.RemoteAddr, r.Method, r.URL.Path, time.Since(start))
	})
}
