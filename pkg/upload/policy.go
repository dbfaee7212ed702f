package upload

import (
	"fmt"
	"mime"
	"strings"

	"github.com/dustin/go-humanize"

	"file-drop/pkg/errs"
	"file-drop/pkg/models"
)

// AllowedTypes is the media-type allow-list shared by both backends.
var AllowedTypes = []string{
	"image/jpeg",
	"image/png",
	"image/webp",
	"image/gif",
	"image/svg+xml",
	"application/pdf",
	"application/zip",
	"application/x-7z-compressed",
	"application/vnd.rar",
	"text/plain",
	"text/markdown",
	"text/csv",
	"application/json",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"video/mp4",
	"video/webm",
	"audio/mpeg",
}

const (
	DefaultMaxObjectStoreSize int64 = 50 * 1024 * 1024
	DefaultMaxHostedSize      int64 = 5 * 1024 * 1024 * 1024
)

// Policy decides which files a backend accepts.
type Policy struct {
	allowed map[string]bool
	maxSize map[models.Service]int64
}

func NewPolicy(maxObjectStore, maxHosted int64) Policy {
	p := Policy{
		allowed: make(map[string]bool, len(AllowedTypes)),
		maxSize: map[models.Service]int64{
			models.ServiceObjectStore: maxObjectStore,
			models.ServiceHostedFile:  maxHosted,
		},
	}
	for _, t := range AllowedTypes {
		p.allowed[t] = true
	}
	return p
}

func DefaultPolicy() Policy {
	return NewPolicy(DefaultMaxObjectStoreSize, DefaultMaxHostedSize)
}

// MaxSize returns the ceiling for backend, or 0 for an unknown backend.
func (p Policy) MaxSize(backend models.Service) int64 {
	return p.maxSize[backend]
}

// NormalizeType strips parameters and case from a media type.
func NormalizeType(mediaType string) string {
	if t, _, err := mime.ParseMediaType(mediaType); err == nil {
		return t
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

// Validate checks f against the allow-list and the backend's size ceiling.
// A file exactly at the ceiling is accepted.
func (p Policy) Validate(f File, backend models.Service) error {
	max, ok := p.maxSize[backend]
	if !ok {
		return invalid(f.Name, fmt.Sprintf("unknown backend %q", backend))
	}
	if strings.TrimSpace(f.Name) == "" {
		return invalid(f.Name, "file name is required")
	}
	if t := NormalizeType(f.MimeType); !p.allowed[t] {
		return invalid(f.Name, fmt.Sprintf("file type %s is not allowed", f.MimeType))
	}
	if f.Size < 0 {
		return invalid(f.Name, "file size is unknown")
	}
	if f.Size > max {
		return invalid(f.Name, fmt.Sprintf("file size %s exceeds the %s limit",
			humanize.IBytes(uint64(f.Size)), humanize.IBytes(uint64(max))))
	}
	if f.Temporary && backend != models.ServiceObjectStore {
		return invalid(f.Name, "temporary uploads are only supported on the object store")
	}
	return nil
}

func invalid(name, reason string) error {
	return errs.New(errs.ValidationError, "validate", name, fmt.Errorf("%s", reason))
}
