package ingest

import (
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"gorm.io/datatypes"
)

// CandidateDocument is a crawler discovery. SourceURL is the natural key.
type CandidateDocument struct {
	SourceURL     string `json:"sourceUrl"`
	Title         string `json:"title"`
	ContentType   string `json:"contentType"`
	DiscoveredVia string `json:"discoveredVia"`
}

// Key is the stable record key for the candidate's source url.
func (c CandidateDocument) Key() string { return DocumentKey(c.SourceURL) }

func NormalizeSourceURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}

func DocumentKey(sourceURL string) string {
	return strconv.FormatUint(xxhash.Sum64String(NormalizeSourceURL(sourceURL)), 16)
}

type UploadStatus string

const (
	UploadPending   UploadStatus = "pending"
	UploadUploading UploadStatus = "uploading"
	UploadCompleted UploadStatus = "completed"
	UploadFailed    UploadStatus = "failed"
)

// CanTransition reports whether from→to is allowed. Completed is terminal.
func CanTransition(from, to UploadStatus) bool {
	switch from {
	case UploadPending, UploadFailed:
		return to == UploadUploading
	case UploadUploading:
		return to == UploadCompleted || to == UploadFailed
	default:
		return false
	}
}

// Statuses a record may enter UploadUploading from.
var UploadableStatuses = []UploadStatus{UploadPending, UploadFailed}

// DocumentRecord is the durable ingestion ledger entry for one candidate in one course.
type DocumentRecord struct {
	CourseID      string         `gorm:"column:course_id;primaryKey" json:"course_id"`
	Key           string         `gorm:"column:key;primaryKey" json:"key"`
	SourceURL     string         `gorm:"column:source_url;not null" json:"source_url"`
	Title         string         `gorm:"column:title" json:"title"`
	ContentType   string         `gorm:"column:content_type" json:"content_type"`
	DiscoveredVia string         `gorm:"column:discovered_via" json:"discovered_via"`
	UploadStatus  UploadStatus   `gorm:"column:upload_status;not null;index" json:"upload_status"`
	RemoteID      string         `gorm:"column:remote_id" json:"remote_id,omitempty"`
	RetryCount    int            `gorm:"column:retry_count;not null;default:0" json:"retry_count"`
	LastError     string         `gorm:"column:last_error" json:"last_error,omitempty"`
	ArchiveKey    string         `gorm:"column:archive_key" json:"archive_key,omitempty"`
	Metadata      datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	UploadedAt    *time.Time     `gorm:"column:uploaded_at" json:"uploaded_at,omitempty"`
	CreatedAt     time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (DocumentRecord) TableName() string { return "document_record" }

func NewDocumentRecord(courseID string, c CandidateDocument) *DocumentRecord {
	return &DocumentRecord{
		CourseID:      courseID,
		Key:           c.Key(),
		SourceURL:     NormalizeSourceURL(c.SourceURL),
		Title:         c.Title,
		ContentType:   c.ContentType,
		DiscoveredVia: c.DiscoveredVia,
		UploadStatus:  UploadPending,
	}
}

func (r *DocumentRecord) Candidate() CandidateDocument {
	return CandidateDocument{
		SourceURL:     r.SourceURL,
		Title:         r.Title,
		ContentType:   r.ContentType,
		DiscoveredVia: r.DiscoveredVia,
	}
}
