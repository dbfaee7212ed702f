package upload

import (
	"context"
	"fmt"
	"html"
	"io"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"file-drop/pkg/errs"
	"file-drop/pkg/logger"
	"file-drop/pkg/models"
	"file-drop/pkg/storage"
	"file-drop/pkg/util"
)

// File is one file of an upload batch.
type File struct {
	Name      string
	MimeType  string
	Size      int64
	Content   io.Reader
	Temporary bool
}

type HostedUploader interface {
	Upload(ctx context.Context, name string, r io.Reader) (*models.HostedUpload, error)
}

type DeletionScheduler interface {
	Schedule(ctx context.Context, bucket, path string, expiresAt time.Time) (int64, error)
}

type Catalog interface {
	Add(ctx context.Context, f *models.StoredFile) error
}

// ProgressFunc receives the batch completion percentage after each file.
type ProgressFunc func(percent float64)

type Options struct {
	Policy       Policy
	Blobs        storage.BlobStore
	Bucket       string
	Hosted       HostedUploader
	Ledger       DeletionScheduler
	Catalog      Catalog
	TemporaryTTL time.Duration
	Now          func() time.Time
}

// Router sends files to the object store or the external host.
type Router struct {
	policy  Policy
	blobs   storage.BlobStore
	bucket  string
	hosted  HostedUploader
	ledger  DeletionScheduler
	catalog Catalog
	ttl     time.Duration
	now     func() time.Time
	names   *bluemonday.Policy
}

func New(opts Options) *Router {
	r := &Router{
		policy:  opts.Policy,
		blobs:   opts.Blobs,
		bucket:  opts.Bucket,
		hosted:  opts.Hosted,
		ledger:  opts.Ledger,
		catalog: opts.Catalog,
		ttl:     opts.TemporaryTTL,
		now:     opts.Now,
		names:   bluemonday.StrictPolicy(),
	}
	if r.policy.allowed == nil {
		r.policy = DefaultPolicy()
	}
	if r.ttl <= 0 {
		r.ttl = 24 * time.Hour
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

func (r *Router) Policy() Policy {
	return r.policy
}

// Failure is a file that did not make it to its backend.
type Failure struct {
	Name  string    `json:"name"`
	Kind  errs.Kind `json:"kind"`
	Error string    `json:"error"`
}

// Result collects the per-file outcome of a batch.
type Result struct {
	Files  []models.UploadedFile `json:"files"`
	Hosted []models.HostedUpload `json:"hosted"`
	Failed []Failure             `json:"failed"`
}

func (r *Result) Succeeded() int {
	return len(r.Files) + len(r.Hosted)
}

// Upload sends files one at a time to backend. A failing file is recorded in
// the result and the batch carries on. progress, when set, is called after
// every file with (completed/total)*100.
func (r *Router) Upload(ctx context.Context, backend models.Service, files []File, progress ProgressFunc) (*Result, error) {
	if len(files) == 0 {
		return nil, errs.New(errs.ValidationError, "upload", "", fmt.Errorf("no files selected"))
	}
	switch backend {
	case models.ServiceObjectStore:
		if r.blobs == nil {
			return nil, errs.New(errs.ValidationError, "upload", "", fmt.Errorf("object store is not configured"))
		}
	case models.ServiceHostedFile:
		if r.hosted == nil {
			return nil, errs.New(errs.ValidationError, "upload", "", fmt.Errorf("hosted backend is not configured"))
		}
	default:
		return nil, errs.New(errs.ValidationError, "upload", "", fmt.Errorf("unknown backend %q", backend))
	}

	result := &Result{
		Files:  []models.UploadedFile{},
		Hosted: []models.HostedUpload{},
		Failed: []Failure{},
	}
	total := len(files)

	for i, f := range files {
		err := ctx.Err()
		if err == nil {
			err = r.policy.Validate(f, backend)
		}
		if err == nil {
			if backend == models.ServiceObjectStore {
				var up *models.UploadedFile
				if up, err = r.uploadObject(ctx, i, f); err == nil {
					result.Files = append(result.Files, *up)
				}
			} else {
				var up *models.HostedUpload
				if up, err = r.uploadHosted(ctx, f); err == nil {
					result.Hosted = append(result.Hosted, *up)
				}
			}
		}
		if err != nil {
			logger.Sugar.Warnw("upload failed", "file", f.Name, "backend", backend, "error", err)
			result.Failed = append(result.Failed, Failure{Name: f.Name, Kind: errs.KindOf(err), Error: err.Error()})
		}

		if progress != nil {
			progress(float64(i+1) / float64(total) * 100)
		}
	}

	logger.Sugar.Infow("upload batch finished",
		"backend", backend, "total", total, "succeeded", result.Succeeded(), "failed", len(result.Failed))
	return result, nil
}

func (r *Router) uploadObject(ctx context.Context, i int, f File) (*models.UploadedFile, error) {
	if f.Temporary && r.ledger == nil {
		return nil, errs.New(errs.ValidationError, "upload", f.Name, fmt.Errorf("temporary uploads are not configured"))
	}
	now := r.now()
	key := util.StorageKey(now, i, f.Name)
	mediaType := NormalizeType(f.MimeType)

	if err := r.blobs.Put(ctx, r.bucket, key, f.Content, f.Size, mediaType); err != nil {
		return nil, errs.New(errs.TransportFailed, "upload", f.Name, err)
	}

	stored := &models.StoredFile{
		Service:    models.ServiceObjectStore,
		Name:       r.displayName(f.Name, key),
		MimeType:   mediaType,
		Size:       f.Size,
		URL:        r.blobs.PublicURL(r.bucket, key),
		Bucket:     r.bucket,
		StorageKey: key,
		Temporary:  f.Temporary,
		CreatedAt:  now.UTC(),
	}

	if f.Temporary {
		expiresAt := now.Add(r.ttl).UTC()
		if _, err := r.ledger.Schedule(ctx, r.bucket, key, expiresAt); err != nil {
			// An unscheduled temporary blob would never expire, so take it back out.
			if rmErr := r.blobs.Remove(ctx, r.bucket, key); rmErr != nil {
				logger.Sugar.Errorw("failed to remove unscheduled temporary blob", "key", key, "error", rmErr)
			}
			return nil, errs.New(errs.LedgerWriteFailed, "schedule deletion", f.Name, err)
		}
		stored.ExpiresAt = &expiresAt
	}

	r.addToCatalog(ctx, stored)
	return &models.UploadedFile{
		ID:   stored.ID,
		Name: stored.Name,
		URL:  stored.URL,
		Size: f.Size,
		Type: mediaType,
	}, nil
}

func (r *Router) uploadHosted(ctx context.Context, f File) (*models.HostedUpload, error) {
	up, err := r.hosted.Upload(ctx, f.Name, f.Content)
	if err != nil {
		return nil, err
	}

	stored := &models.StoredFile{
		Service:   models.ServiceHostedFile,
		Name:      r.displayName(up.FileName, up.FileID),
		MimeType:  NormalizeType(f.MimeType),
		Size:      f.Size,
		URL:       up.FileURL,
		HostedID:  up.FileID,
		AdminCode: up.AdminCode,
		CreatedAt: up.UploadedAt,
	}
	r.addToCatalog(ctx, stored)
	up.ID = stored.ID
	up.FileName = stored.Name
	return up, nil
}

func (r *Router) addToCatalog(ctx context.Context, f *models.StoredFile) {
	if r.catalog == nil {
		return
	}
	if err := r.catalog.Add(ctx, f); err != nil {
		logger.Sugar.Warnw("uploaded file not added to catalog", "name", f.Name, "error", err)
	}
}

// displayName strips markup from a client-supplied name for display.
func (r *Router) displayName(name, fallback string) string {
	clean := strings.TrimSpace(html.UnescapeString(r.names.Sanitize(name)))
	if clean == "" {
		return fallback
	}
	return clean
}
