package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"file-drop/pkg/config"
	"file-drop/pkg/logger"
)

// MinioStore talks to any S3-compatible endpoint through minio-go.
type MinioStore struct {
	client  *minio.Client
	baseURL string
}

func NewMinioStore(ctx context.Context, cfg config.Config) (*MinioStore, error) {
	if cfg.S3Endpoint == "" {
		return nil, fmt.Errorf("S3_ENDPOINT is required for the minio driver")
	}
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	baseURL := cfg.StoragePublicURL
	if baseURL == "" {
		baseURL = client.EndpointURL().String()
	}
	s := &MinioStore{client: client, baseURL: baseURL}

	if cfg.StorageBucket != "" {
		if err := s.ensureBucket(ctx, cfg.StorageBucket, cfg.S3Region); err != nil {
			logger.Sugar.Warnw("could not verify storage bucket", "bucket", cfg.StorageBucket, "error", err)
		}
	}
	return s, nil
}

func (s *MinioStore) ensureBucket(ctx context.Context, bucket, region string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	logger.Sugar.Infow("creating storage bucket", "bucket", bucket)
	return s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region})
}

func (s *MinioStore) Put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("failed to put %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *MinioStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", bucket, key, err)
	}
	return obj, nil
}

func (s *MinioStore) Remove(ctx context.Context, bucket, key string) error {
	return s.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{})
}

func (s *MinioStore) PublicURL(bucket, key string) string {
	return joinURL(s.baseURL, bucket, key)
}
