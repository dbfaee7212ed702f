package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"file-drop/pkg/app"
	"file-drop/pkg/cachedstats"
	"file-drop/pkg/config"
	"file-drop/pkg/handlers"
	"file-drop/pkg/logger"
	"file-drop/pkg/server"
)

func main() {
	if err := config.LoadConfig(); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg := config.AppConfig

	if err := logger.Init(cfg); err != nil {
		log.Fatalf("Failed to initialise logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	a, err := app.New(ctx, cfg)
	if err != nil {
		stop()
		logger.Sugar.Fatalw("failed to start", "error", err)
	}

	err = serve(ctx, a, cfg)
	a.Close()
	stop()
	if err != nil {
		logger.Sugar.Errorw("server exited with error", "error", err)
		logger.Sync()
		os.Exit(1)
	}
	logger.Sugar.Infow("server stopped")
	logger.Sync()
}

// serve runs the cleanup scheduler and the HTTP server until ctx is done.
// The caller owns a and closes it once serve returns.
func serve(ctx context.Context, a *app.App, cfg config.Config) error {
	if err := a.Manager.Initialize(); err != nil {
		return fmt.Errorf("failed to start cleanup scheduler: %w", err)
	}

	cache := cachedstats.New(a.Engine, 30*time.Second)
	cache.RunUpdater(ctx)

	h := &handlers.Handler{
		Scheduler:     a.Manager,
		Cleanup:       a.Engine,
		Uploads:       a.Uploads,
		Catalog:       a.Catalog,
		Blobs:         a.Blobs,
		Stats:         cache,
		RetentionDays: cfg.CleanupRetentionDays,
	}
	router := server.SetupRouter(h, server.Options{
		AllowedOrigins:     cfg.CORSAllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		BlobRoot:           a.BlobRoot(),
	})

	runErr := server.Run(ctx, cfg.ServerAddr, router)
	if runErr != nil {
		logger.Sugar.Errorw("http server stopped with error", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*cfg.CleanupCallTimeout+time.Minute)
	defer cancel()
	if err := a.Manager.Shutdown(shutdownCtx); err != nil {
		logger.Sugar.Warnw("cleanup scheduler did not stop cleanly", "error", err)
	}
	return runErr
}
