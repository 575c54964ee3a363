package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tunesmith/internal/adapter/repo"
	"tunesmith/internal/generation"
	"tunesmith/internal/http/handlers"
	"tunesmith/internal/http/httpapi"
	"tunesmith/internal/infra"
	"tunesmith/internal/infra/geoip"
	"tunesmith/internal/middleware"
	"tunesmith/internal/provider/museapi"
	"tunesmith/internal/schedule"
	"tunesmith/internal/storage"
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

	storagePath := cfg.StoragePath
	if !filepath.IsAbs(storagePath) {
		if abs, err := filepath.Abs(storagePath); err == nil {
			storagePath = abs
		}
	}
	fileStore, err := storage.NewFileStore(storagePath, cfg.MediaSigningKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure storage")
	}

	var geo middleware.CountryLookup
	if cfg.GeoIPDBPath != "" {
		resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
		if err != nil {
			logger.Warn().Err(err).Msg("geoip database unavailable, country resolution disabled")
		} else if resolver != nil {
			defer resolver.Close()
			geo = resolver.CountryCode
		}
	}

	museClient, err := museapi.NewClient(museapi.Options{
		APIKey:     cfg.MuseAPIKey,
		BaseURL:    cfg.MuseBaseURL,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		Logger:     &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure muse client")
	}

	tracks := repo.NewTrackRepository(dbpool)
	assets := repo.NewAssetRepository(dbpool)
	audit := repo.NewAuditRepository(dbpool)

	materializer := generation.NewMaterializer(fileStore, nil, cfg.MediaURLTTL, logger)
	service := generation.NewService(tracks, assets, materializer, logger)
	reconciler := generation.NewReconciler(museClient, service, logger)

	scheduler := schedule.NewDeferredPoller(cfg.DeferredPollDelay, func(pollCtx context.Context, externalID string) {
		if _, err := reconciler.Poll(pollCtx, externalID, generation.PollFlags{PersistFailureOnTerminal: true}); err != nil {
			logger.Warn().Err(err).Str("external_id", externalID).Msg("deferred poll failed")
		}
	}, logger)
	defer scheduler.Stop()

	app := &handlers.App{
		Config:     cfg,
		Logger:     logger,
		Tracks:     tracks,
		Assets:     assets,
		Audit:      audit,
		Store:      fileStore,
		Provider:   museClient,
		Generation: service,
		Reconciler: reconciler,
		Scheduler:  scheduler,
		Geo:        geo,
	}

	router := httpapi.NewRouter(app)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
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
