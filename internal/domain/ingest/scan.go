package ingest

import "time"

type ScanStatus string

const (
	ScanIdle      ScanStatus = "idle"
	ScanScanning  ScanStatus = "scanning"
	ScanUploading ScanStatus = "uploading"
	ScanComplete  ScanStatus = "complete"
	ScanFailed    ScanStatus = "failed"
)

func (s ScanStatus) Active() bool   { return s == ScanScanning || s == ScanUploading }
func (s ScanStatus) Terminal() bool { return s == ScanComplete || s == ScanFailed }

// ScanState is the in-memory, recoverable view of one course's scan session.
type ScanState struct {
	CourseID              string      `json:"course_id"`
	Status                ScanStatus  `json:"status"`
	StartedAt             time.Time   `json:"started_at"`
	LastUpdatedAt         time.Time   `json:"last_updated_at"`
	ProgressPercent       int         `json:"progress_percent"`
	EstimatedTotalSeconds int         `json:"estimated_total_seconds"`
	TimeLeftSeconds       int         `json:"time_left_seconds"`
	StatusText            string      `json:"status_text,omitempty"`
	Result                *ScanResult `json:"result,omitempty"`
	Error                 string      `json:"error,omitempty"`
}

func (s ScanState) IsScanning() bool { return s.Status.Active() }

// ScanResult summarizes a finished upload batch.
type ScanResult struct {
	UpToDate     bool     `json:"up_to_date"`
	Discovered   int      `json:"discovered"`
	Uploaded     int      `json:"uploaded"`
	Skipped      int      `json:"skipped"`
	Failed       int      `json:"failed"`
	Retried      int      `json:"retried"`
	Inconsistent []string `json:"inconsistent,omitempty"`
}

// DocumentCount is the number of documents confirmed in the store after the batch.
func (r ScanResult) DocumentCount() int { return r.Uploaded + r.Skipped }

type SnapshotStatus string

const (
	SnapshotScanning SnapshotStatus = "scanning"
	SnapshotComplete SnapshotStatus = "complete"
)

// ScanSnapshot is the persisted recovery record, stored under SnapshotKey(courseID).
// Timestamp is epoch milliseconds. RequestedBy is the user who started the scan.
type ScanSnapshot struct {
	CourseID    string         `json:"courseId"`
	Status      SnapshotStatus `json:"status"`
	Timestamp   int64          `json:"timestamp"`
	PDFCount    *int           `json:"pdfCount,omitempty"`
	RequestedBy string         `json:"requestedBy,omitempty"`
}

const snapshotKeyPrefix = "scan_status_"

func SnapshotKey(courseID string) string { return snapshotKeyPrefix + courseID }

// CourseIDFromSnapshotKey is the inverse of SnapshotKey.
func CourseIDFromSnapshotKey(key string) (string, bool) {
	if len(key) <= len(snapshotKeyPrefix) || key[:len(snapshotKeyPrefix)] != snapshotKeyPrefix {
		return "", false
	}
	return key[len(snapshotKeyPrefix):], true
}

func (s ScanSnapshot) Time() time.Time { return time.UnixMilli(s.Timestamp) }

func (s ScanSnapshot) Age(now time.Time) time.Duration { return now.Sub(s.Time()) }
