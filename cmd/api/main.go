package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"mediagen/internal/adapter/repo"
	"mediagen/internal/http/handlers"
	"mediagen/internal/http/httpapi"
	"mediagen/internal/infra"
	"mediagen/internal/infra/geoip"
	"mediagen/internal/ledger"
	"mediagen/internal/metrics"
	"mediagen/internal/middleware"
	"mediagen/internal/providers/image"
	"mediagen/internal/providers/video"
	"mediagen/internal/storage"
	"mediagen/internal/stream"
	"mediagen/internal/webhook"
	"mediagen/internal/workflow"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	jobs := repo.NewJobRepository(dbpool)
	assets := repo.NewAssetRepository(dbpool)
	credits := repo.NewCreditRepository(dbpool)
	webhooks := repo.NewWebhookRepository(dbpool)
	users := repo.NewUserRepository(dbpool)

	store, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init media store")
	}

	hub := stream.NewHub(logger)
	ledgerSvc := ledger.NewService(credits, logger)

	orch := workflow.New(workflow.Options{
		Jobs:   jobs,
		Assets: assets,
		Ledger: ledgerSvc,
		ImageGen: image.NewClient(image.Options{
			BaseURL: cfg.ImageProviderURL,
			APIKey:  cfg.ImageProviderAPIKey,
		}),
		VideoGen: video.NewClient(video.Options{
			BaseURL: cfg.VideoProviderURL,
			APIKey:  cfg.VideoProviderAPIKey,
		}),
		Store:    store,
		Download: storage.NewHTTPDownloader(nil),
		Hub:      hub,
		Pricing: workflow.Pricing{
			Image:          cfg.CostImage,
			ImageThenVideo: cfg.CostImageThenVideo,
		},
		Metrics:      m,
		Logger:       logger,
		ImageTimeout: cfg.ImageTimeout,
		CallbackURL:  cfg.PublicBaseURL + "/v1/webhooks/video",
	})

	app := &handlers.App{
		Workflow: orch,
		Ledger:   ledgerSvc,
		Jobs:     jobs,
		Assets:   assets,
		Users:    users,
		Hub:      hub,
		Receiver: webhook.NewReceiver(webhooks, jobs, cfg.VideoWebhookSecret, logger),
		Metrics:  m,
		Logger:   logger,
	}

	var lookup middleware.CountryLookup
	if cfg.GeoIPDBPath != "" {
		resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
		if err != nil {
			logger.Warn().Err(err).Msg("geoip database unavailable, country enrichment disabled")
		} else {
			defer resolver.Close()
			lookup = resolver.CountryCode
		}
	}

	router := httpapi.NewRouter(app, httpapi.Options{
		JWTSecret:      cfg.JWTSecret,
		RateLimit:      cfg.RateLimitPerMin,
		RatePeriod:     time.Minute,
		AllowedOrigins: cfg.AllowedOrigins,
		CountryLookup:  lookup,
		Registry:       registry,
		Logger:         logger,
		StaticDir:      cfg.StoragePath,
	})

	server := infra.NewHTTPServer(cfg, router)

	reaperCtx, stopReaper := context.WithCancel(ctx)
	defer stopReaper()
	if cfg.StaleVideoAfter > 0 {
		go runStaleReaper(reaperCtx, orch, cfg.StaleVideoAfter, logger)
	}

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

// runStaleReaper periodically fails jobs whose completion webhook never
// arrived, returning their credits. The sweep interval is a quarter of the
// staleness threshold so a stuck job waits at most 1.25x the threshold.
func runStaleReaper(ctx context.Context, orch *workflow.Orchestrator, after time.Duration, logger zerolog.Logger) {
	interval := after / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := orch.ReapStale(ctx, time.Now().Add(-after)); err != nil {
				logger.Error().Err(err).Msg("stale job sweep failed")
			}
		}
	}
}
