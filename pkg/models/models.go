package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ScheduledDeletion is a ledger row for a temporary object-store upload.
type ScheduledDeletion struct {
	ID         int64      `json:"id"`
	BucketName string     `json:"bucketName"`
	FilePath   string     `json:"filePath"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	DeletedAt  *time.Time `json:"deletedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// IsDue reports whether the row should be picked up by a sweep at now.
func (d ScheduledDeletion) IsDue(now time.Time) bool {
	return d.DeletedAt == nil && d.ExpiresAt.Before(now)
}

// Service discriminates FileRecord variants.
type Service string

const (
	ServiceObjectStore Service = "objectStore"
	ServiceHostedFile  Service = "hostedFile"
)

// ObjectRecord addresses a blob in the object store.
type ObjectRecord struct {
	Bucket      string `json:"bucket"`
	FilePath    string `json:"filePath"`
	IsTemporary bool   `json:"isTemporary"`
}

// HostedRecord addresses a file on the external host.
type HostedRecord struct {
	FileID    string `json:"fileId"`
	AdminCode string `json:"adminCode"`
}

// FileRecord is a caller-supplied deletion target. Exactly one of Object or
// Hosted is set, matching Service.
type FileRecord struct {
	Service Service
	Object  *ObjectRecord
	Hosted  *HostedRecord
}

func NewObjectRecord(bucket, path string, temporary bool) FileRecord {
	return FileRecord{Service: ServiceObjectStore, Object: &ObjectRecord{Bucket: bucket, FilePath: path, IsTemporary: temporary}}
}

func NewHostedRecord(fileID, adminCode string) FileRecord {
	return FileRecord{Service: ServiceHostedFile, Hosted: &HostedRecord{FileID: fileID, AdminCode: adminCode}}
}

// MarshalJSON flattens the variant payload next to the service tag.
func (r FileRecord) MarshalJSON() ([]byte, error) {
	switch r.Service {
	case ServiceObjectStore:
		if r.Object == nil {
			return nil, fmt.Errorf("objectStore record without payload")
		}
		return json.Marshal(struct {
			Service Service `json:"service"`
			ObjectRecord
		}{r.Service, *r.Object})
	case ServiceHostedFile:
		if r.Hosted == nil {
			return nil, fmt.Errorf("hostedFile record without payload")
		}
		return json.Marshal(struct {
			Service Service `json:"service"`
			HostedRecord
		}{r.Service, *r.Hosted})
	default:
		return json.Marshal(struct {
			Service Service `json:"service"`
		}{r.Service})
	}
}

// UnmarshalJSON reads the service tag and decodes the matching payload.
// Unknown services decode without a payload so callers can skip them.
func (r *FileRecord) UnmarshalJSON(data []byte) error {
	var tag struct {
		Service Service `json:"service"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return err
	}
	*r = FileRecord{Service: tag.Service}
	switch tag.Service {
	case ServiceObjectStore:
		r.Object = &ObjectRecord{}
		return json.Unmarshal(data, r.Object)
	case ServiceHostedFile:
		r.Hosted = &HostedRecord{}
		return json.Unmarshal(data, r.Hosted)
	}
	return nil
}

// CleanupStats partitions the ledger at one instant.
type CleanupStats struct {
	Expired int64 `json:"expired"`
	Pending int64 `json:"pending"`
	Deleted int64 `json:"deleted"`
	Total   int64 `json:"total"`
}

// SweepReport is the outcome of one expired sweep.
type SweepReport struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// BackendCounts tallies per-backend outcomes of a manual cleanup.
type BackendCounts struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// ManualReport is the outcome of a cleanup by caller-supplied records.
type ManualReport struct {
	ObjectStore BackendCounts `json:"objectStore"`
	Hosted      BackendCounts `json:"hostedFile"`
	Skipped     int           `json:"skipped"`
	Total       int           `json:"total"`
}

// RunStatistics are the scheduler counters.
type RunStatistics struct {
	TotalRuns         int64      `json:"totalRuns"`
	SuccessfulRuns    int64      `json:"successfulRuns"`
	FailedRuns        int64      `json:"failedRuns"`
	TotalFilesDeleted int64      `json:"totalFilesDeleted"`
	LastRunAt         *time.Time `json:"lastRunAt"`
}

// ManagerStats is the scheduler snapshot served to operators.
type ManagerStats struct {
	RunStatistics
	IsCurrentlyRunning bool       `json:"isCurrentlyRunning"`
	SuccessRate        string     `json:"successRate"`
	NextRunAt          *time.Time `json:"nextRunAt,omitempty"`
}

// UploadedFile describes a blob stored in the object store.
type UploadedFile struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
	Type string `json:"type"`
}

// HostedUpload describes a file stored on the external host.
type HostedUpload struct {
	ID         string    `json:"id,omitempty"`
	FileURL    string    `json:"fileUrl"`
	FileName   string    `json:"fileName"`
	FileID     string    `json:"fileId"`
	AdminCode  string    `json:"-"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// StoredFile is a catalog entry for any uploaded file.
type StoredFile struct {
	ID         string     `json:"id"`
	Service    Service    `json:"service"`
	Name       string     `json:"name"`
	MimeType   string     `json:"type"`
	Size       int64      `json:"size"`
	URL        string     `json:"url"`
	Bucket     string     `json:"bucket,omitempty"`
	StorageKey string     `json:"storageKey,omitempty"`
	HostedID   string     `json:"fileId,omitempty"`
	AdminCode  string     `json:"-"`
	Temporary  bool       `json:"temporary"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Record converts the catalog entry into a deletion target.
func (f StoredFile) Record() FileRecord {
	if f.Service == ServiceHostedFile {
		return NewHostedRecord(f.HostedID, f.AdminCode)
	}
	return NewObjectRecord(f.Bucket, f.StorageKey, f.Temporary)
}
