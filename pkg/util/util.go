package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// Ext returns the lowercase extension of name without the dot, or "" when there is none.
func Ext(name string) string {
	ext := filepath.Ext(filepath.Base(name))
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// StorageKey builds the object-store key for the i-th file of a batch started at now.
// Keys look like 1710072000000_0_3f2a9c41d7e0.png and never contain the
// client-supplied name. The random suffix keeps batches that start in the
// same millisecond apart.
func StorageKey(now time.Time, i int, name string) string {
	key := fmt.Sprintf("%d_%d_%s", now.UnixMilli(), i, strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
	if ext := Ext(name); ext != "" {
		key += "." + ext
	}
	return key
}

// SuccessRate formats part/total as a percentage with two decimals, or "0%" when total is zero.
func SuccessRate(part, total int64) string {
	if total == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", float64(part)/float64(total)*100)
}
