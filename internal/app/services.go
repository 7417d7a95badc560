package app

import (
	"github.com/coder/quartz"

	"github.com/Rasalp1/canvas-lm-sub000/internal/data/repos"
	"github.com/Rasalp1/canvas-lm-sub000/internal/ingest/session"
	"github.com/Rasalp1/canvas-lm-sub000/internal/ingest/storebroker"
	"github.com/Rasalp1/canvas-lm-sub000/internal/ingest/upload"
	"github.com/Rasalp1/canvas-lm-sub000/internal/observability"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/logger"
	"github.com/Rasalp1/canvas-lm-sub000/internal/quota"
	"github.com/Rasalp1/canvas-lm-sub000/internal/realtime"
	"github.com/Rasalp1/canvas-lm-sub000/internal/services"
)

type Services struct {
	Hub        *realtime.Hub
	Relay      *realtime.Relay
	Stores     *storebroker.Broker
	Uploads    *upload.Manager
	Sessions   *session.Manager
	Quota      *quota.Gate
	Course     services.CourseService
	Chat       services.ChatService
	Completion *services.CompletionRecorder
}

func wireServices(log *logger.Logger, cfg Config, clock quartz.Clock, metrics *observability.Metrics, reposet repos.Set, clients Clients, sub Substrate) Services {
	log.Info("Wiring services...")

	hub := realtime.NewHub(log)
	relay := realtime.NewRelay(log, sub.Bus, hub, sub.Dedupe)

	broker := storebroker.New(log, reposet.CourseStore, clients.Retrieval, metrics)
	uploads := upload.NewManager(log, reposet.DocumentRecord, clients.Fetcher, clients.Retrieval, clients.Archive, metrics, upload.Options{
		StaleUploading: cfg.Upload.StaleUploading,
	})

	sessions := session.NewManager(session.Deps{
		Log:       log,
		Clock:     clock,
		Snapshots: sub.Snapshots,
		Relay:     relay,
		Crawler:   clients.Crawler,
		Stores:    broker,
		Uploads:   uploads,
		Courses:   reposet.Course,
		Metrics:   metrics,
	}, session.Options{
		CrawlEstimate:   cfg.Session.CrawlEstimate,
		PerDocument:     cfg.Session.PerDocument,
		SessionTimeout:  cfg.Session.Timeout,
		Staleness:       cfg.Session.Staleness,
		HealthInterval:  cfg.Session.HealthInterval,
		CompleteGrace:   cfg.Session.CompleteGrace,
		CrawlerAttempts: cfg.Session.CrawlerAttempts,
		CrawlerBackoff:  cfg.Session.CrawlerBackoff,
	})

	gate := quota.NewGate(log, reposet.UsageWindow, metrics, quota.Options{
		Ceiling: cfg.Quota.Ceiling,
		Window:  cfg.Quota.Window,
		Clock:   clock,
	})

	completion := services.NewCompletionRecorder(log, reposet.Course)
	completion.Register(relay)

	return Services{
		Hub:        hub,
		Relay:      relay,
		Stores:     broker,
		Uploads:    uploads,
		Sessions:   sessions,
		Quota:      gate,
		Course:     services.NewCourseService(log, reposet.Course, reposet.Enrollment, reposet.DocumentRecord),
		Chat:       services.NewChatService(log, reposet.ChatSession, broker, clients.Retrieval, gate),
		Completion: completion,
	}
}
