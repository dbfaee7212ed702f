package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"file-drop/pkg/util"
)

// LocalStore keeps blobs on disk under root/<bucket>/<key>.
type LocalStore struct {
	root    string
	baseURL string
}

// NewLocalStore creates root if needed. Public URLs default to the /blobs route served by the HTTP server.
func NewLocalStore(root, baseURL string) (*LocalStore, error) {
	if err := util.EnsureDir(root); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	if baseURL == "" {
		baseURL = "/blobs"
	}
	return &LocalStore{root: root, baseURL: baseURL}, nil
}

func (s *LocalStore) path(bucket, key string) (string, error) {
	if bucket == "" || key == "" {
		return "", fmt.Errorf("bucket and key are required")
	}
	if bucket == "." || bucket == ".." || strings.ContainsAny(bucket, `/\`) {
		return "", fmt.Errorf("invalid bucket %q", bucket)
	}
	base := filepath.Join(s.root, bucket)
	p := filepath.Join(base, filepath.FromSlash(key))
	if !strings.HasPrefix(p, base+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return p, nil
}

func (s *LocalStore) Put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error {
	p, err := s.path(bucket, key)
	if err != nil {
		return err
	}
	if err := util.EnsureDir(filepath.Dir(p)); err != nil {
		return fmt.Errorf("failed to create bucket directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write blob %s/%s: %w", bucket, key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close blob %s/%s: %w", bucket, key, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("failed to move blob %s/%s into place: %w", bucket, key, err)
	}
	return nil
}

func (s *LocalStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	p, err := s.path(bucket, key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("failed to open blob %s/%s: %w", bucket, key, err)
	}
	return f, nil
}

// Remove deletes the blob. A missing blob is not an error.
func (s *LocalStore) Remove(ctx context.Context, bucket, key string) error {
	p, err := s.path(bucket, key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove blob %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *LocalStore) PublicURL(bucket, key string) string {
	return joinURL(s.baseURL, bucket, key)
}

// Root is the directory served under the public /blobs route.
func (s *LocalStore) Root() string {
	return s.root
}
