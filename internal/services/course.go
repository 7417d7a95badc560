package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/Rasalp1/canvas-lm-sub000/internal/data/repos"
	types "github.com/Rasalp1/canvas-lm-sub000/internal/domain"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/dbctx"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/logger"
)

var (
	ErrCourseNotFound = errors.New("course not found")
	ErrInvalidCourse  = errors.New("course id and source url are required")
)

// DetectRequest is what the client knows about the course page the user is on.
type DetectRequest struct {
	CourseID    string `json:"course_id"`
	DisplayName string `json:"display_name"`
	SourceURL   string `json:"source_url"`
	Enrolled    bool   `json:"enrolled"`
}

type Detection struct {
	Course  types.CourseSession `json:"course"`
	Created bool                `json:"created"`
}

// DocumentListing is a course's ingestion ledger with a per-status tally.
type DocumentListing struct {
	Documents []*types.DocumentRecord      `json:"documents"`
	Counts    map[types.UploadStatus]int64 `json:"counts"`
}

type CourseService interface {
	Detect(ctx context.Context, userID string, req DetectRequest) (*Detection, error)
	Get(ctx context.Context, userID, courseID string) (*types.CourseSession, error)
	ListDocuments(ctx context.Context, courseID string) (*DocumentListing, error)
}

type courseService struct {
	log         *logger.Logger
	courses     repos.CourseRepo
	enrollments repos.EnrollmentRepo
	records     repos.DocumentRecordRepo
}

func NewCourseService(baseLog *logger.Logger, courses repos.CourseRepo, enrollments repos.EnrollmentRepo, records repos.DocumentRecordRepo) CourseService {
	return &courseService{
		log:         baseLog.With("service", "CourseService"),
		courses:     courses,
		enrollments: enrollments,
		records:     records,
	}
}

// Detect registers the course on first sighting and records the user's enrollment.
// An existing course keeps its stored display name.
func (s *courseService) Detect(ctx context.Context, userID string, req DetectRequest) (*Detection, error) {
	req.CourseID = strings.TrimSpace(req.CourseID)
	req.SourceURL = strings.TrimSpace(req.SourceURL)
	if req.CourseID == "" || req.SourceURL == "" {
		return nil, ErrInvalidCourse
	}
	if _, err := url.ParseRequestURI(req.SourceURL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCourse, err)
	}
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		name = req.CourseID
	}

	dbc := dbctx.New(ctx)
	course, created, err := s.courses.CreateIfMissing(dbc, &types.Course{
		ID:          req.CourseID,
		DisplayName: name,
		SourceURL:   req.SourceURL,
	})
	if err != nil {
		return nil, fmt.Errorf("register course: %w", err)
	}
	if course == nil {
		return nil, ErrCourseNotFound
	}
	if err := s.enrollments.Upsert(dbc, userID, course.ID, req.Enrolled); err != nil {
		return nil, fmt.Errorf("record enrollment: %w", err)
	}
	if created {
		s.log.Info("course registered", "course_id", course.ID, "user_id", userID)
	}
	return &Detection{Course: course.Session(req.Enrolled), Created: created}, nil
}

func (s *courseService) Get(ctx context.Context, userID, courseID string) (*types.CourseSession, error) {
	dbc := dbctx.New(ctx)
	course, err := s.courses.GetByID(dbc, courseID)
	if err != nil {
		return nil, fmt.Errorf("load course: %w", err)
	}
	if course == nil {
		return nil, ErrCourseNotFound
	}
	enrolled := false
	if userID != "" {
		e, err := s.enrollments.Get(dbc, userID, courseID)
		if err != nil {
			return nil, fmt.Errorf("load enrollment: %w", err)
		}
		enrolled = e != nil && e.Enrolled
	}
	cs := course.Session(enrolled)
	return &cs, nil
}

func (s *courseService) ListDocuments(ctx context.Context, courseID string) (*DocumentListing, error) {
	dbc := dbctx.New(ctx)
	docs, err := s.records.ListByCourse(dbc, courseID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	counts, err := s.records.CountByStatus(dbc, courseID)
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	if docs == nil {
		docs = []*types.DocumentRecord{}
	}
	return &DocumentListing{Documents: docs, Counts: counts}, nil
}
