package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"file-drop/pkg/logger"
)

// TimeLayout is the fixed-width UTC layout used for every DATETIME column so
// that string comparison in SQL matches chronological order.
const TimeLayout = "2006-01-02 15:04:05.000000000"

var schema = []struct {
	name string
	sql  string
}{
	{"scheduled_deletions", `CREATE TABLE IF NOT EXISTS scheduled_deletions (
		"id" INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
		"bucket_name" TEXT NOT NULL,
		"file_path" TEXT NOT NULL,
		"expires_at" DATETIME NOT NULL,
		"deleted_at" DATETIME,
		"created_at" DATETIME NOT NULL
	);`},
	{"idx_scheduled_deletions_expires_at", `CREATE INDEX IF NOT EXISTS idx_scheduled_deletions_expires_at
		ON scheduled_deletions (expires_at) WHERE deleted_at IS NULL;`},
	{"idx_scheduled_deletions_path", `CREATE INDEX IF NOT EXISTS idx_scheduled_deletions_path
		ON scheduled_deletions (bucket_name, file_path);`},
	{"files", `CREATE TABLE IF NOT EXISTS files (
		"id" TEXT NOT NULL PRIMARY KEY,
		"service" TEXT NOT NULL,
		"name" TEXT NOT NULL,
		"mime_type" TEXT NOT NULL,
		"size" INTEGER NOT NULL DEFAULT 0,
		"url" TEXT NOT NULL DEFAULT '',
		"bucket" TEXT NOT NULL DEFAULT '',
		"storage_key" TEXT NOT NULL DEFAULT '',
		"hosted_id" TEXT NOT NULL DEFAULT '',
		"admin_code" TEXT NOT NULL DEFAULT '',
		"temporary" INTEGER NOT NULL DEFAULT 0,
		"expires_at" DATETIME,
		"created_at" DATETIME NOT NULL
	);`},
	{"idx_files_created_at", `CREATE INDEX IF NOT EXISTS idx_files_created_at ON files (created_at);`},
}

// InitDB opens the sqlite database at path and creates the tables if they don't exist.
// SQLite allows a single writer, so the pool is capped at one connection.
func InitDB(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.Exec(stmt.sql); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create %s: %w", stmt.name, err)
		}
	}
	logger.Sugar.Infow("database initialized", "path", path)
	return db, nil
}

// FormatTime renders t for storage in a DATETIME column.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// NullTime converts a scanned nullable timestamp into a pointer.
func NullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
