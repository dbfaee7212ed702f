package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"

	"file-drop/pkg/catalog"
	"file-drop/pkg/cleanup"
	"file-drop/pkg/config"
	"file-drop/pkg/database"
	"file-drop/pkg/hosted"
	"file-drop/pkg/ledger"
	"file-drop/pkg/lock"
	"file-drop/pkg/logger"
	"file-drop/pkg/scheduler"
	"file-drop/pkg/storage"
	"file-drop/pkg/upload"
)

const cleanupLockKey = "file-drop:cleanup:lock"

// App holds the long-lived components shared by the binaries.
type App struct {
	DB      *sql.DB
	Blobs   storage.BlobStore
	Hosted  *hosted.Client
	Ledger  *ledger.Ledger
	Catalog *catalog.Catalog
	Engine  *cleanup.Engine
	Manager *scheduler.Manager
	Uploads *upload.Router
	redis   *redis.Client
}

// New opens the database and storage backends described by cfg and builds
// the cleanup and upload pipelines on top of them.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := database.InitDB(cfg.DBPath())
	if err != nil {
		return nil, err
	}

	blobs, err := storage.New(ctx, cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set up %s storage: %w", cfg.StorageDriver, err)
	}

	a := &App{
		DB:      db,
		Blobs:   blobs,
		Hosted:  hosted.NewClient(cfg.HostedAPIURL, cfg.HostedUploadURL, cfg.HostedAPIToken, cfg.HostedTimeout),
		Ledger:  ledger.New(db),
		Catalog: catalog.New(db),
	}
	a.Engine = cleanup.NewEngine(a.Ledger, a.Blobs, a.Hosted, cleanup.WithCallTimeout(cfg.CleanupCallTimeout))

	opts := []scheduler.Option{}
	if cfg.RedisAddr != "" {
		a.redis = lock.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		opts = append(opts, scheduler.WithLocker(lock.NewRedisLocker(a.redis, cleanupLockKey, cfg.CleanupLockTTL)))
		logger.Sugar.Infow("cleanup runs coordinated through redis", "addr", cfg.RedisAddr)
	}
	a.Manager, err = scheduler.NewManager(a.Engine, scheduler.ConfigFrom(cfg), opts...)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Uploads = upload.New(upload.Options{
		Policy:       upload.NewPolicy(cfg.MaxObjectStoreSize, cfg.MaxHostedSize),
		Blobs:        a.Blobs,
		Bucket:       cfg.StorageBucket,
		Hosted:       a.Hosted,
		Ledger:       a.Ledger,
		Catalog:      a.Catalog,
		TemporaryTTL: cfg.TemporaryTTL,
	})
	return a, nil
}

// BlobRoot is the directory to serve publicly, or "" for remote drivers.
func (a *App) BlobRoot() string {
	if local, ok := a.Blobs.(*storage.LocalStore); ok {
		return local.Root()
	}
	return ""
}

func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logger.Sugar.Warnw("failed to close redis client", "error", err)
		}
	}
	if err := a.DB.Close(); err != nil {
		logger.Sugar.Warnw("failed to close database", "error", err)
	}
}
