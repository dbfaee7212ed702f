package cleanup

import (
	"context"
	"fmt"
	"time"

	"file-drop/pkg/errs"
	"file-drop/pkg/logger"
	"file-drop/pkg/models"
)

// Ledger is the subset of the scheduled-deletion store the engine needs.
type Ledger interface {
	Due(ctx context.Context, now time.Time) ([]models.ScheduledDeletion, error)
	MarkDeleted(ctx context.Context, id int64, at time.Time) error
	MarkDeletedByPath(ctx context.Context, bucket, path string, at time.Time) (int64, error)
	CountExpired(ctx context.Context, now time.Time) (int64, error)
	CountPending(ctx context.Context, now time.Time) (int64, error)
	CountDeleted(ctx context.Context) (int64, error)
	PurgeDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type BlobRemover interface {
	Remove(ctx context.Context, bucket, key string) error
}

type HostedDeleter interface {
	Delete(ctx context.Context, fileID, adminCode string) error
}

// Engine deletes expired and requested files from both backends and keeps the ledger in step.
type Engine struct {
	ledger      Ledger
	blobs       BlobRemover
	hosted      HostedDeleter
	callTimeout time.Duration
	now         func() time.Time
}

type Option func(*Engine)

// WithCallTimeout bounds every single backend call.
func WithCallTimeout(d time.Duration) Option {
	return func(e *Engine) { e.callTimeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(ledger Ledger, blobs BlobRemover, hosted HostedDeleter, opts ...Option) *Engine {
	e := &Engine{ledger: ledger, blobs: blobs, hosted: hosted, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.callTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.callTimeout)
}

// DeleteBlob removes bucket/path from the object store. The store's error is returned untouched.
func (e *Engine) DeleteBlob(ctx context.Context, bucket, path string) error {
	if e.blobs == nil {
		return fmt.Errorf("object store is not configured")
	}
	callCtx, cancel := e.callCtx(ctx)
	defer cancel()

	if err := e.blobs.Remove(callCtx, bucket, path); err != nil {
		logger.Sugar.Errorw("failed to delete blob", "bucket", bucket, "path", path, "error", err)
		return err
	}
	logger.Sugar.Infow("deleted blob", "bucket", bucket, "path", path)
	return nil
}

// DeleteHostedFile removes a file from the external host. Failures come back
// as a HostedDeleteFailed error wrapping the transport or host rejection.
func (e *Engine) DeleteHostedFile(ctx context.Context, fileID, adminCode string) error {
	const op = "delete hosted file"
	if e.hosted == nil {
		return errs.New(errs.HostedDeleteFailed, op, fileID, fmt.Errorf("hosted backend is not configured"))
	}
	if fileID == "" || adminCode == "" {
		return errs.New(errs.HostedDeleteFailed, op, fileID, fmt.Errorf("fileId and adminCode are required"))
	}

	callCtx, cancel := e.callCtx(ctx)
	defer cancel()

	if err := e.hosted.Delete(callCtx, fileID, adminCode); err != nil {
		logger.Sugar.Errorw("failed to delete hosted file", "fileId", fileID, "kind", errs.KindOf(err), "error", err)
		return errs.New(errs.HostedDeleteFailed, op, fileID, err)
	}
	logger.Sugar.Infow("deleted hosted file", "fileId", fileID)
	return nil
}

// RunExpiredSweep deletes every due ledger row's blob, one at a time, and
// marks the row deleted when the blob is gone. Rows that fail stay due for
// the next pass. Only a failure to read the ledger aborts the sweep.
func (e *Engine) RunExpiredSweep(ctx context.Context) (models.SweepReport, error) {
	due, err := e.ledger.Due(ctx, e.now())
	if err != nil {
		logger.Sugar.Errorw("failed to query expired files", "error", err)
		return models.SweepReport{}, &errs.Error{Kind: errs.LedgerQueryFailed, Op: "query due deletions", Err: err, Fatal: true}
	}

	report := models.SweepReport{Total: len(due)}
	if len(due) == 0 {
		logger.Sugar.Infow("no expired files to clean up")
		return report, nil
	}
	logger.Sugar.Infow("found expired files", "count", len(due))

	for i, d := range due {
		if err := ctx.Err(); err != nil {
			report.Failed += len(due) - i
			logger.Sugar.Warnw("sweep interrupted", "remaining", len(due)-i, "error", err)
			return report, fmt.Errorf("sweep interrupted: %w", err)
		}

		if err := e.DeleteBlob(ctx, d.BucketName, d.FilePath); err != nil {
			report.Failed++
			logger.Sugar.Warnw("expired file left for next sweep",
				"id", d.ID, "kind", errs.BlobDeleteFailed, "error", err)
			continue
		}

		// the blob is already gone, so the stamp must land even if ctx was cancelled meanwhile
		if err := e.ledger.MarkDeleted(context.WithoutCancel(ctx), d.ID, e.now()); err != nil {
			report.Failed++
			logger.Sugar.Errorw("blob deleted but ledger not updated",
				"id", d.ID, "kind", errs.LedgerWriteFailed, "error", err)
			continue
		}
		report.Succeeded++
	}

	logger.Sugar.Infow("sweep finished", "total", report.Total, "succeeded", report.Succeeded, "failed", report.Failed)
	return report, nil
}

// CleanupByRecords deletes caller-supplied files from their backends. Each
// record is attempted once and tallied per backend. Records with an unknown
// service or missing payload are skipped.
func (e *Engine) CleanupByRecords(ctx context.Context, records []models.FileRecord) models.ManualReport {
	report := models.ManualReport{Total: len(records)}

	for _, r := range records {
		switch {
		case r.Service == models.ServiceObjectStore && r.Object != nil:
			if err := e.DeleteBlob(ctx, r.Object.Bucket, r.Object.FilePath); err != nil {
				report.ObjectStore.Failed++
				continue
			}
			report.ObjectStore.Success++
			if r.Object.IsTemporary {
				if _, err := e.ledger.MarkDeletedByPath(context.WithoutCancel(ctx), r.Object.Bucket, r.Object.FilePath, e.now()); err != nil {
					logger.Sugar.Errorw("blob deleted but ledger not updated",
						"bucket", r.Object.Bucket, "path", r.Object.FilePath, "kind", errs.LedgerWriteFailed, "error", err)
				}
			}
		case r.Service == models.ServiceHostedFile && r.Hosted != nil:
			if err := e.DeleteHostedFile(ctx, r.Hosted.FileID, r.Hosted.AdminCode); err != nil {
				report.Hosted.Failed++
				continue
			}
			report.Hosted.Success++
		default:
			report.Skipped++
			logger.Sugar.Warnw("skipping file record", "service", r.Service)
		}
	}

	logger.Sugar.Infow("manual cleanup finished",
		"total", report.Total,
		"objectStoreSuccess", report.ObjectStore.Success, "objectStoreFailed", report.ObjectStore.Failed,
		"hostedSuccess", report.Hosted.Success, "hostedFailed", report.Hosted.Failed,
		"skipped", report.Skipped)
	return report
}

// GetStats partitions the ledger into expired, pending and deleted rows.
// It returns nil when any count cannot be read.
func (e *Engine) GetStats(ctx context.Context) *models.CleanupStats {
	now := e.now()

	expired, err := e.ledger.CountExpired(ctx, now)
	if err != nil {
		logger.Sugar.Errorw("failed to count expired files", "error", err)
		return nil
	}
	pending, err := e.ledger.CountPending(ctx, now)
	if err != nil {
		logger.Sugar.Errorw("failed to count pending files", "error", err)
		return nil
	}
	deleted, err := e.ledger.CountDeleted(ctx)
	if err != nil {
		logger.Sugar.Errorw("failed to count deleted files", "error", err)
		return nil
	}

	return &models.CleanupStats{
		Expired: expired,
		Pending: pending,
		Deleted: deleted,
		Total:   expired + pending + deleted,
	}
}

// PurgeOldDeletionRecords removes ledger rows deleted more than retentionDays ago.
func (e *Engine) PurgeOldDeletionRecords(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays < 1 {
		return 0, errs.New(errs.ValidationError, "purge deletion records", fmt.Sprintf("retention must be at least 1 day, got %d", retentionDays), nil)
	}

	cutoff := e.now().Add(-time.Duration(retentionDays) * 24 * time.Hour)
	n, err := e.ledger.PurgeDeletedBefore(ctx, cutoff)
	if err != nil {
		logger.Sugar.Errorw("failed to purge deletion records", "error", err)
		return 0, errs.New(errs.LedgerWriteFailed, "purge deletion records", "", err)
	}
	logger.Sugar.Infow("purged old deletion records", "count", n, "retentionDays", retentionDays)
	return n, nil
}
