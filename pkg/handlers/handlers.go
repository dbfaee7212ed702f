package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"file-drop/pkg/models"
	"file-drop/pkg/scheduler"
	"file-drop/pkg/upload"
)

type CleanupScheduler interface {
	TriggerManualCleanup(ctx context.Context) (scheduler.RunOutcome, error)
	GetManagerStats() models.ManagerStats
}

type CleanupEngine interface {
	CleanupByRecords(ctx context.Context, records []models.FileRecord) models.ManualReport
	GetStats(ctx context.Context) *models.CleanupStats
	PurgeOldDeletionRecords(ctx context.Context, retentionDays int) (int64, error)
}

type Uploader interface {
	Upload(ctx context.Context, backend models.Service, files []upload.File, progress upload.ProgressFunc) (*upload.Result, error)
}

type Catalog interface {
	Get(ctx context.Context, id string) (*models.StoredFile, error)
	List(ctx context.Context) ([]models.StoredFile, error)
	Delete(ctx context.Context, id string) (bool, error)
}

type BlobReader interface {
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

type StatsCache interface {
	GetData() gin.H
}

// Handler serves the file and cleanup API.
type Handler struct {
	Scheduler     CleanupScheduler
	Cleanup       CleanupEngine
	Uploads       Uploader
	Catalog       Catalog
	Blobs         BlobReader
	Stats         StatsCache
	RetentionDays int
}

// envelope is the JSON shape of every API response.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func ok(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, envelope{Success: true, Message: message, Data: data})
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, envelope{Success: false, Error: message})
}

func HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) HandleSystemStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.Stats.GetData())
}
