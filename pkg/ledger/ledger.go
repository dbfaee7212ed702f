package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"file-drop/pkg/database"
	"file-drop/pkg/models"
)

// Ledger stores scheduled deletions of temporary uploads.
type Ledger struct {
	db *sql.DB
}

func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

const selectColumns = `SELECT id, bucket_name, file_path, expires_at, deleted_at, created_at FROM scheduled_deletions`

// Schedule records that bucket/path must be deleted once expiresAt has passed.
func (l *Ledger) Schedule(ctx context.Context, bucket, path string, expiresAt time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx,
		"INSERT INTO scheduled_deletions (bucket_name, file_path, expires_at, created_at) VALUES (?, ?, ?, ?)",
		bucket, path, database.FormatTime(expiresAt), database.FormatTime(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("failed to insert scheduled deletion: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	return id, nil
}

// Get returns the row with the given id, or nil if there is none.
func (l *Ledger) Get(ctx context.Context, id int64) (*models.ScheduledDeletion, error) {
	row := l.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id)
	d, err := scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get scheduled deletion %d: %w", id, err)
	}
	return d, nil
}

// Due returns the rows that have expired before now and are not deleted, oldest first.
func (l *Ledger) Due(ctx context.Context, now time.Time) ([]models.ScheduledDeletion, error) {
	rows, err := l.db.QueryContext(ctx,
		selectColumns+" WHERE deleted_at IS NULL AND expires_at < ? ORDER BY expires_at ASC, id ASC",
		database.FormatTime(now))
	if err != nil {
		return nil, fmt.Errorf("failed to query due deletions: %w", err)
	}
	defer rows.Close()

	var due []models.ScheduledDeletion
	for rows.Next() {
		d, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan due deletion: %w", err)
		}
		due = append(due, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate due deletions: %w", err)
	}
	return due, nil
}

// MarkDeleted stamps deleted_at on a single row and drops the catalog entry
// for its blob. Rows that are already deleted keep their first stamp.
func (l *Ledger) MarkDeleted(ctx context.Context, id int64, at time.Time) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE scheduled_deletions SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL",
		database.FormatTime(at), id)
	if err != nil {
		return fmt.Errorf("failed to mark deletion %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM scheduled_deletions WHERE id = ?", id).Scan(&exists); err != nil {
			return fmt.Errorf("failed to look up deletion %d: %w", id, err)
		}
		if exists == 0 {
			return fmt.Errorf("scheduled deletion %d not found", id)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE EXISTS (
		SELECT 1 FROM scheduled_deletions sd
		WHERE sd.id = ? AND sd.bucket_name = files.bucket AND sd.file_path = files.storage_key
	)`, id); err != nil {
		return fmt.Errorf("failed to drop catalog entry for deletion %d: %w", id, err)
	}
	return tx.Commit()
}

// MarkDeletedByPath stamps deleted_at on every live row for bucket/path,
// drops the catalog entry for the blob and returns how many rows changed.
func (l *Ledger) MarkDeletedByPath(ctx context.Context, bucket, path string, at time.Time) (int64, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE scheduled_deletions SET deleted_at = ? WHERE bucket_name = ? AND file_path = ? AND deleted_at IS NULL",
		database.FormatTime(at), bucket, path)
	if err != nil {
		return 0, fmt.Errorf("failed to mark deletion for %s/%s: %w", bucket, path, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM files WHERE bucket = ? AND storage_key = ?", bucket, path); err != nil {
		return 0, fmt.Errorf("failed to drop catalog entry for %s/%s: %w", bucket, path, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit deletion for %s/%s: %w", bucket, path, err)
	}
	return n, nil
}

// CountExpired counts live rows whose expiry is before now.
func (l *Ledger) CountExpired(ctx context.Context, now time.Time) (int64, error) {
	return l.count(ctx, "deleted_at IS NULL AND expires_at < ?", database.FormatTime(now))
}

// CountPending counts live rows that have not yet expired at now.
func (l *Ledger) CountPending(ctx context.Context, now time.Time) (int64, error) {
	return l.count(ctx, "deleted_at IS NULL AND expires_at >= ?", database.FormatTime(now))
}

// CountDeleted counts rows that have been marked deleted.
func (l *Ledger) CountDeleted(ctx context.Context) (int64, error) {
	return l.count(ctx, "deleted_at IS NOT NULL")
}

// PurgeDeletedBefore removes deleted rows whose deleted_at is older than cutoff.
func (l *Ledger) PurgeDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx,
		"DELETE FROM scheduled_deletions WHERE deleted_at IS NOT NULL AND deleted_at < ?",
		database.FormatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to purge deletion records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func (l *Ledger) count(ctx context.Context, where string, args ...any) (int64, error) {
	var n int64
	if err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM scheduled_deletions WHERE "+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count deletions: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*models.ScheduledDeletion, error) {
	var d models.ScheduledDeletion
	var deletedAt sql.NullTime
	if err := s.Scan(&d.ID, &d.BucketName, &d.FilePath, &d.ExpiresAt, &deletedAt, &d.CreatedAt); err != nil {
		return nil, err
	}
	d.ExpiresAt = d.ExpiresAt.UTC()
	d.CreatedAt = d.CreatedAt.UTC()
	d.DeletedAt = database.NullTime(deletedAt)
	return &d, nil
}
