package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"recur/internal/cache"
	"recur/internal/cli"
	apphttp "recur/internal/http"
	"recur/internal/log"
	"recur/internal/recurring"
	"recur/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	be := cli.InitBackend(context.Background(), logger, cfg)

	results := cache.NewLRUCache[services.CachedDetection](cfg.CacheSize, cfg.CacheTTL)
	cacheManager := cache.NewManager()
	cacheManager.Register(results)
	if cfg.CacheTTL > 0 {
		cacheManager.StartCleanup(cfg.CacheTTL)
	}

	detection := services.NewDetectionService(be.Store, recurring.NewEngine(cfg.Detection()),
		services.WithUpdateConcurrency(cfg.UpdateConcurrency),
		services.WithResultCache(results),
		services.WithDetectionLogger(logger))
	ingestion := services.NewIngestionService(be.Store, be.Publisher, detection)

	srv := apphttp.NewServer(apphttp.Options{
		Addr:               ":" + cfg.Port,
		RequestTimeout:     cfg.RequestTimeout,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		AllowedOrigins:     cfg.AllowedOrigins(),
		Logger:             logger,
	}, ingestion, detection, be.Store)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		cacheManager.Stop()
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	logger.Info("Starting recur server",
		"port", cfg.Port,
		log.FieldBackend, cfg.DataBackend,
		"amount_tolerance_percent", cfg.AmountTolerancePercent,
		"date_tolerance_days", cfg.DateToleranceDays)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
