package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"file-drop/pkg/handlers"
	"file-drop/pkg/logger"
	"file-drop/pkg/middleware"
)

type Options struct {
	AllowedOrigins     []string
	RateLimitPerMinute int
	// BlobRoot is served under /blobs when the local storage driver is in use.
	BlobRoot string
}

func SetupRouter(h *handlers.Handler, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestLogger(), middleware.Recovery())

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Content-Type"},
		ExposeHeaders: []string{"Content-Length", "Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}
	if len(opts.AllowedOrigins) == 0 || (len(opts.AllowedOrigins) == 1 && opts.AllowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = opts.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", handlers.HandleHealth)
	if opts.BlobRoot != "" {
		r.Static("/blobs", opts.BlobRoot)
	}

	limit := middleware.RateLimit(opts.RateLimitPerMinute)

	api := r.Group("/api")
	{
		api.GET("/system-stats", h.HandleSystemStats)
		api.GET("/files", h.HandleListFiles)
		api.GET("/files/:id/download", h.HandleDownload)

		files := api.Group("/files")
		files.Use(limit)
		{
			files.POST("", h.HandleUpload)
			files.DELETE("/:id", h.HandleDelete)
		}

		admin := api.Group("/admin/cleanup")
		admin.Use(limit)
		{
			admin.POST("", h.HandleManualCleanup)
			admin.GET("/stats", h.HandleCleanupStats)
			admin.POST("/files", h.HandleCleanupFiles)
			admin.POST("/purge", h.HandlePurge)
		}
	}

	return r
}

// Run serves handler on addr until ctx is cancelled, then drains in-flight
// requests for up to 15 seconds.
func Run(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Sugar.Infow("http server starting", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	logger.Sugar.Infow("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}
