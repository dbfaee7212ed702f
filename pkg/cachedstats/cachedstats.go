package cachedstats

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"file-drop/pkg/models"
	"file-drop/pkg/stats"
)

// CleanupSource reports the current ledger partition.
type CleanupSource interface {
	GetStats(ctx context.Context) *models.CleanupStats
}

// CachedStats holds host and ledger statistics refreshed in the background.
type CachedStats struct {
	sync.RWMutex
	Data          gin.H
	source        CleanupSource
	interval      time.Duration
	isInitialized bool
}

func New(source CleanupSource, interval time.Duration) *CachedStats {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &CachedStats{
		Data:     make(gin.H),
		source:   source,
		interval: interval,
	}
}

// RunUpdater refreshes the cache immediately and then on every tick until
// ctx is cancelled.
func (cs *CachedStats) RunUpdater(ctx context.Context) {
	ticker := time.NewTicker(cs.interval)
	go func() {
		defer ticker.Stop()
		for {
			cs.Update(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (cs *CachedStats) Update(ctx context.Context) {
	data := gin.H{
		"system_info": stats.GetSystemInfo(),
		"disk_usage":  stats.GetDiskUsage(),
		"updated_at":  time.Now().UTC(),
	}
	if cs.source != nil {
		// nil when the ledger could not be read
		data["cleanup"] = cs.source.GetStats(ctx)
	}

	cs.Lock()
	defer cs.Unlock()
	cs.Data = data
	cs.isInitialized = true
}

func (cs *CachedStats) GetData() gin.H {
	cs.RLock()
	defer cs.RUnlock()
	if !cs.isInitialized {
		return gin.H{
			"is_loading":  true,
			"system_info": "Loading...",
			"disk_usage":  "Loading...",
		}
	}
	return cs.Data
}
