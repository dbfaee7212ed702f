package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"file-drop/pkg/database"
	"file-drop/pkg/models"
)

// Catalog keeps one row per uploaded file so uploads can be listed,
// downloaded and deleted later.
type Catalog struct {
	db *sql.DB
}

func New(db *sql.DB) *Catalog {
	return &Catalog{db: db}
}

const selectColumns = `SELECT f.id, f.service, f.name, f.mime_type, f.size, f.url, f.bucket, f.storage_key,
	f.hosted_id, f.admin_code, f.temporary, f.expires_at, f.created_at FROM files f`

// Add inserts f, assigning an id and creation time when they are unset.
func (c *Catalog) Add(ctx context.Context, f *models.StoredFile) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}

	var expiresAt sql.NullString
	if f.ExpiresAt != nil {
		expiresAt = sql.NullString{String: database.FormatTime(*f.ExpiresAt), Valid: true}
	}

	_, err := c.db.ExecContext(ctx, `INSERT INTO files
		(id, service, name, mime_type, size, url, bucket, storage_key, hosted_id, admin_code, temporary, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, string(f.Service), f.Name, f.MimeType, f.Size, f.URL, f.Bucket, f.StorageKey,
		f.HostedID, f.AdminCode, f.Temporary, expiresAt, database.FormatTime(f.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert file %s: %w", f.ID, err)
	}
	return nil
}

// Get returns the file with the given id, or nil if there is none.
func (c *Catalog) Get(ctx context.Context, id string) (*models.StoredFile, error) {
	f, err := scan(c.db.QueryRowContext(ctx, selectColumns+" WHERE f.id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get file %s: %w", id, err)
	}
	return f, nil
}

// List returns the catalog newest first. Temporary uploads drop out once
// the ledger marks their blob deleted.
func (c *Catalog) List(ctx context.Context) ([]models.StoredFile, error) {
	rows, err := c.db.QueryContext(ctx, selectColumns+" ORDER BY f.created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	files := []models.StoredFile{}
	for rows.Next() {
		f, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, *f)
	}
	return files, rows.Err()
}

// Delete removes the catalog row. It reports whether a row existed.
func (c *Catalog) Delete(ctx context.Context, id string) (bool, error) {
	res, err := c.db.ExecContext(ctx, "DELETE FROM files WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete file %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*models.StoredFile, error) {
	var f models.StoredFile
	var service string
	var expiresAt sql.NullTime
	err := s.Scan(&f.ID, &service, &f.Name, &f.MimeType, &f.Size, &f.URL, &f.Bucket, &f.StorageKey,
		&f.HostedID, &f.AdminCode, &f.Temporary, &expiresAt, &f.CreatedAt)
	if err != nil {
		return nil, err
	}
	f.Service = models.Service(service)
	f.ExpiresAt = database.NullTime(expiresAt)
	f.CreatedAt = f.CreatedAt.UTC()
	return &f, nil
}
