// Package session owns the per-course scan lifecycle: scanning, uploading, complete,
// and the recovery paths that let a scan outlive the clients that started it.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/coder/quartz"

	types "github.com/Rasalp1/canvas-lm-sub000/internal/domain"
	"github.com/Rasalp1/canvas-lm-sub000/internal/ingest/snapshot"
	"github.com/Rasalp1/canvas-lm-sub000/internal/ingest/storebroker"
	"github.com/Rasalp1/canvas-lm-sub000/internal/ingest/upload"
	"github.com/Rasalp1/canvas-lm-sub000/internal/observability"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/crawler"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/dbctx"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/logger"
	"github.com/Rasalp1/canvas-lm-sub000/internal/realtime"
)

var (
	ErrNotAuthenticated = errors.New("sign in required")
	ErrNoCourse         = errors.New("no course detected")
	ErrScanInProgress   = errors.New("scan already in progress")
	ErrNotScanning      = errors.New("no scan in the scanning phase")
	ErrCrawlerFailed    = errors.New("crawler could not be started")
	ErrSessionReset     = errors.New("scan session was reset")
)

// Session is the caller's identity and detected course, passed explicitly to every
// operation that needs them.
type Session struct {
	UserID string
	Email  string
	Course types.CourseSession
}

// Progress is a crawler heartbeat.
type Progress struct {
	Discovered int    `json:"discovered"`
	StatusText string `json:"statusText"`
}

type Crawler interface {
	Start(ctx context.Context, req crawler.Request) error
}

type StoreResolver interface {
	GetOrCreateStore(ctx context.Context, courseKey, displayName, createdBy string) (storebroker.Result, error)
}

type Uploader interface {
	Process(ctx context.Context, courseID, storeID string, candidates []types.CandidateDocument, onProgress upload.ProgressFunc) (types.ScanResult, error)
}

// CourseLookup reloads a course when a scan is resumed without its session. GetByID
// returns nil, nil for an unknown course.
type CourseLookup interface {
	GetByID(dbc dbctx.Context, id string) (*types.Course, error)
}

type Relay interface {
	Publish(ctx context.Context, msg realtime.Message) error
	Arm(ctx context.Context, courseID string) error
	Disarm(courseID string)
}

type Deps struct {
	Log       *logger.Logger
	Clock     quartz.Clock
	Snapshots snapshot.Store
	Relay     Relay
	Crawler   Crawler
	Stores    StoreResolver
	Uploads   Uploader
	Courses   CourseLookup
	Metrics   *observability.Metrics
}

type Options struct {
	// CrawlEstimate is the expected crawl duration used for scanning-phase progress.
	CrawlEstimate time.Duration
	// PerDocument is the upload budget per discovered document.
	PerDocument    time.Duration
	SessionTimeout time.Duration
	Staleness      time.Duration
	HealthInterval time.Duration
	// CompleteGrace is how long a terminal snapshot stays visible to late clients.
	CompleteGrace   time.Duration
	CrawlerAttempts int
	CrawlerBackoff  time.Duration
}

func DefaultOptions() Options {
	return Options{
		CrawlEstimate:   3 * time.Minute,
		PerDocument:     5 * time.Second,
		SessionTimeout:  10 * time.Minute,
		Staleness:       5 * time.Minute,
		HealthInterval:  30 * time.Second,
		CompleteGrace:   time.Minute,
		CrawlerAttempts: 3,
		CrawlerBackoff:  500 * time.Millisecond,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.CrawlEstimate <= 0 {
		o.CrawlEstimate = d.CrawlEstimate
	}
	if o.PerDocument <= 0 {
		o.PerDocument = d.PerDocument
	}
	if o.SessionTimeout <= 0 {
		o.SessionTimeout = d.SessionTimeout
	}
	if o.Staleness <= 0 {
		o.Staleness = d.Staleness
	}
	if o.HealthInterval <= 0 {
		o.HealthInterval = d.HealthInterval
	}
	if o.CompleteGrace <= 0 {
		o.CompleteGrace = d.CompleteGrace
	}
	if o.CrawlerAttempts <= 0 {
		o.CrawlerAttempts = d.CrawlerAttempts
	}
	if o.CrawlerBackoff <= 0 {
		o.CrawlerBackoff = d.CrawlerBackoff
	}
	return o
}
