package stats

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"file-drop/pkg/config"
)

func TestDirSize(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "uploads"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "uploads", "a.bin"), make([]byte, 1024), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.bin"), make([]byte, 1024), 0644))

	assert.Equal(t, "2.0 KiB", DirSize(dir))
	assert.Equal(t, "0 B", DirSize(filepath.Join(dir, "missing")))
}

func TestGetSystemInfo(t *testing.T) {
	info := GetSystemInfo()
	assert.Contains(t, info, "os_type")
	assert.Contains(t, info, "cpu_usage")
	assert.Contains(t, info, "memory_usage")
	assert.NotEmpty(t, info["os_type"])
}

func TestGetDiskUsage(t *testing.T) {
	orig := config.AppConfig
	t.Cleanup(func() { config.AppConfig = orig })
	config.AppConfig.DataDir = t.TempDir()

	usage := GetDiskUsage()
	assert.Equal(t, "0 B", usage["blob_usage"])
	assert.NotEqual(t, "N/A", usage["disk_total"])
}
