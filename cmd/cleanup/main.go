// Command cleanup runs the expired-upload sweep without the HTTP server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"file-drop/pkg/app"
	"file-drop/pkg/config"
	"file-drop/pkg/logger"
)

func main() {
	once := flag.Bool("once", false, "run a single cleanup pass and exit")
	showStats := flag.Bool("stats", false, "print cleanup statistics as JSON and exit")
	purgeDays := flag.Int("purge", 0, "purge deletion records older than N days and exit")
	flag.Parse()

	if err := config.LoadConfig(); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg := config.AppConfig
	if err := logger.Init(cfg); err != nil {
		log.Fatalf("Failed to initialise logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Sugar.Fatalw("failed to start", "error", err)
	}

	code := run(ctx, a, *once, *showStats, *purgeDays)
	a.Close()
	logger.Sync()
	os.Exit(code)
}

func run(ctx context.Context, a *app.App, once, showStats bool, purgeDays int) int {
	switch {
	case showStats:
		stats := a.Engine.GetStats(ctx)
		if stats == nil {
			fmt.Fprintln(os.Stderr, "cleanup statistics unavailable")
			return 1
		}
		out, _ := json.MarshalIndent(gatherStats(a, stats), "", "  ")
		fmt.Println(string(out))
		return 0

	case purgeDays != 0:
		n, err := a.Engine.PurgeOldDeletionRecords(ctx, purgeDays)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Printf("purged %d deletion records older than %d days\n", n, purgeDays)
		return 0

	case once:
		// a signal must not cut a sweep short
		outcome, err := a.Manager.RunCleanup(context.WithoutCancel(ctx))
		if err != nil {
			logger.Sugar.Errorw("cleanup pass failed", "error", err)
			return 1
		}
		if outcome.Skipped {
			logger.Sugar.Infow("cleanup pass skipped, another run holds the lock")
		}
		return 0
	}

	if err := a.Manager.Initialize(); err != nil {
		logger.Sugar.Errorw("failed to start cleanup scheduler", "error", err)
		return 1
	}
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := a.Manager.Shutdown(shutdownCtx); err != nil {
		logger.Sugar.Warnw("cleanup scheduler did not stop cleanly", "error", err)
		return 1
	}
	return 0
}

func gatherStats(a *app.App, files any) map[string]any {
	return map[string]any{
		"manager": a.Manager.GetManagerStats(),
		"files":   files,
	}
}
