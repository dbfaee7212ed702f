package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"file-drop/pkg/config"
)

// BlobStore is the object store holding uploaded blobs.
type BlobStore interface {
	Put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, bucket, key string) error
	PublicURL(bucket, key string) string
}

// New builds the BlobStore selected by cfg.StorageDriver.
func New(ctx context.Context, cfg config.Config) (BlobStore, error) {
	switch cfg.StorageDriver {
	case config.DriverLocal, "":
		return NewLocalStore(cfg.BlobDir(), cfg.StoragePublicURL)
	case config.DriverMinio:
		return NewMinioStore(ctx, cfg)
	case config.DriverS3:
		return NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

func joinURL(base, bucket, key string) string {
	base = strings.TrimRight(base, "/")
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	if bucket == "" {
		return base + "/" + strings.Join(parts, "/")
	}
	return base + "/" + url.PathEscape(bucket) + "/" + strings.Join(parts, "/")
}

func endpointURL(endpoint string, secure bool) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	if secure {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}
