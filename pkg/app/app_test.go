package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"file-drop/pkg/config"
	"file-drop/pkg/models"
	"file-drop/pkg/upload"
)

func testConfig(t *testing.T) config.Config {
	return config.Config{
		DataDir:              t.TempDir(),
		DBFile:               "test.db",
		StorageDriver:        config.DriverLocal,
		StorageBucket:        "uploads",
		HostedAPIURL:         "http://127.0.0.1:1",
		HostedUploadURL:      "http://127.0.0.1:1/upload",
		HostedTimeout:        time.Second,
		MaxObjectStoreSize:   upload.DefaultMaxObjectStoreSize,
		MaxHostedSize:        upload.DefaultMaxHostedSize,
		TemporaryTTL:         time.Hour,
		CleanupSchedule:      "0 * * * *",
		CleanupTimezone:      "UTC",
		CleanupRetentionDays: 30,
		CleanupCallTimeout:   time.Second,
	}
}

func TestNewLocal(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, filepath.Join(cfg.DataDir, "blobs"), a.BlobRoot())

	stats := a.Engine.GetStats(context.Background())
	require.NotNil(t, stats)
	assert.Equal(t, int64(0), stats.Total)

	outcome, err := a.Manager.RunCleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.SweepReport{}, outcome.Report)
}

func TestNewRejectsBadSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.CleanupSchedule = "whenever"
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.StorageDriver = "ftp"
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}
