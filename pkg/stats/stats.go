package stats

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"

	"file-drop/pkg/config"
	"file-drop/pkg/logger"
)

// The collectors are variables so tests can swap them out.

// GetSystemInfo reports host OS, CPU and memory usage.
var GetSystemInfo = func() gin.H {
	info := gin.H{
		"os_type":      runtime.GOOS,
		"cpu_usage":    "N/A",
		"memory_usage": "N/A",
		"uptime":       "N/A",
	}

	if h, err := host.Info(); err == nil {
		info["os_type"] = fmt.Sprintf("%s %s", h.Platform, h.PlatformVersion)
		info["uptime"] = (time.Duration(h.Uptime) * time.Second).String()
	} else {
		logger.Sugar.Debugw("host info unavailable", "error", err)
	}
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		info["cpu_usage"] = fmt.Sprintf("%.1f%%", pct[0])
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info["memory_usage"] = fmt.Sprintf("%.1f%%", vm.UsedPercent)
		info["memory_total"] = humanize.IBytes(vm.Total)
	}
	return info
}

// GetDiskUsage reports the size of the local blob directory and the
// filesystem holding the data directory.
var GetDiskUsage = func() gin.H {
	usage := gin.H{
		"blob_usage":        DirSize(config.AppConfig.BlobDir()),
		"disk_total":        "N/A",
		"disk_used":         "N/A",
		"disk_used_percent": "N/A",
	}

	d, err := disk.Usage(config.AppConfig.DataDir)
	if err != nil {
		logger.Sugar.Debugw("disk usage unavailable", "dir", config.AppConfig.DataDir, "error", err)
		return usage
	}
	usage["disk_total"] = humanize.IBytes(d.Total)
	usage["disk_used"] = humanize.IBytes(d.Used)
	usage["disk_used_percent"] = fmt.Sprintf("%.2f%%", d.UsedPercent)
	return usage
}

// DirSize sums the files below dir. A missing dir counts as empty.
func DirSize(dir string) string {
	var total uint64
	err := filepath.WalkDir(dir, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += uint64(info.Size())
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		logger.Sugar.Warnw("error calculating directory size", "dir", dir, "error", err)
		return "N/A"
	}
	return humanize.IBytes(total)
}
