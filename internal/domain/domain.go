package domain

import (
	"github.com/Rasalp1/canvas-lm-sub000/internal/domain/courses"
	"github.com/Rasalp1/canvas-lm-sub000/internal/domain/ingest"
	"github.com/Rasalp1/canvas-lm-sub000/internal/domain/usage"
)

type (
	Course        = courses.Course
	Enrollment    = courses.Enrollment
	CourseSession = courses.CourseSession
	CourseStore   = courses.CourseStore
	ChatSession   = courses.ChatSession
	ChatTurn      = courses.ChatTurn

	ScanStatus        = ingest.ScanStatus
	ScanState         = ingest.ScanState
	ScanResult        = ingest.ScanResult
	ScanSnapshot      = ingest.ScanSnapshot
	SnapshotStatus    = ingest.SnapshotStatus
	CandidateDocument = ingest.CandidateDocument
	DocumentRecord    = ingest.DocumentRecord
	UploadStatus      = ingest.UploadStatus

	UsageWindow = usage.UsageWindow
)

const (
	ScanIdle      = ingest.ScanIdle
	ScanScanning  = ingest.ScanScanning
	ScanUploading = ingest.ScanUploading
	ScanComplete  = ingest.ScanComplete
	ScanFailed    = ingest.ScanFailed

	SnapshotScanning = ingest.SnapshotScanning
	SnapshotComplete = ingest.SnapshotComplete

	UploadPending   = ingest.UploadPending
	UploadUploading = ingest.UploadUploading
	UploadCompleted = ingest.UploadCompleted
	UploadFailed    = ingest.UploadFailed
)

var (
	SnapshotKey             = ingest.SnapshotKey
	CourseIDFromSnapshotKey = ingest.CourseIDFromSnapshotKey
	DocumentKey             = ingest.DocumentKey
	NewDocumentRecord       = ingest.NewDocumentRecord
	CanTransition           = ingest.CanTransition
	UploadableStatuses      = ingest.UploadableStatuses
)

// Models is every table owned by this service, in migration order.
func Models() []any {
	return []any{
		&Course{},
		&Enrollment{},
		&CourseStore{},
		&DocumentRecord{},
		&UsageWindow{},
		&ChatSession{},
	}
}
