package repos

import (
	"gorm.io/gorm"

	"github.com/Rasalp1/canvas-lm-sub000/internal/data/repos/courses"
	"github.com/Rasalp1/canvas-lm-sub000/internal/data/repos/ingest"
	"github.com/Rasalp1/canvas-lm-sub000/internal/data/repos/usage"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/logger"
)

type (
	CourseRepo         = courses.CourseRepo
	EnrollmentRepo     = courses.EnrollmentRepo
	CourseStoreRepo    = courses.CourseStoreRepo
	ChatSessionRepo    = courses.ChatSessionRepo
	DocumentRecordRepo = ingest.DocumentRecordRepo
	UsageWindowRepo    = usage.UsageWindowRepo
)

var (
	NewCourseRepo         = courses.NewCourseRepo
	NewEnrollmentRepo     = courses.NewEnrollmentRepo
	NewCourseStoreRepo    = courses.NewCourseStoreRepo
	NewChatSessionRepo    = courses.NewChatSessionRepo
	NewDocumentRecordRepo = ingest.NewDocumentRecordRepo
	NewUsageWindowRepo    = usage.NewUsageWindowRepo
)

type Set struct {
	Course         CourseRepo
	Enrollment     EnrollmentRepo
	CourseStore    CourseStoreRepo
	ChatSession    ChatSessionRepo
	DocumentRecord DocumentRecordRepo
	UsageWindow    UsageWindowRepo
}

func NewSet(db *gorm.DB, log *logger.Logger) Set {
	return Set{
		Course:         NewCourseRepo(db, log),
		Enrollment:     NewEnrollmentRepo(db, log),
		CourseStore:    NewCourseStoreRepo(db, log),
		ChatSession:    NewChatSessionRepo(db, log),
		DocumentRecord: NewDocumentRecordRepo(db, log),
		UsageWindow:    NewUsageWindowRepo(db, log),
	}
}
