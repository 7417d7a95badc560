package app

import (
	"context"

	"github.com/Rasalp1/canvas-lm-sub000/internal/data/db"
	apphttp "github.com/Rasalp1/canvas-lm-sub000/internal/http"
	httpH "github.com/Rasalp1/canvas-lm-sub000/internal/http/handlers"
	httpMW "github.com/Rasalp1/canvas-lm-sub000/internal/http/middleware"
	"github.com/Rasalp1/canvas-lm-sub000/internal/observability"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/logger"
)

type Handlers struct {
	Health   *httpH.HealthHandler
	Course   *httpH.CourseHandler
	Scan     *httpH.ScanHandler
	Chat     *httpH.ChatHandler
	Usage    *httpH.UsageHandler
	Realtime *httpH.RealtimeHandler
	Crawler  *httpH.CrawlerHandler
}

func wireHandlers(log *logger.Logger, pg *db.PostgresService, clients Clients, svc Services) Handlers {
	log.Info("Wiring handlers...")
	checks := []httpH.Check{{Name: "postgres", Run: pg.Ping}}
	if clients.Redis != nil {
		checks = append(checks, httpH.Check{
			Name: "redis",
			Run:  func(ctx context.Context) error { return clients.Redis.Ping(ctx).Err() },
		})
	}
	return Handlers{
		Health:   httpH.NewHealthHandler(checks...),
		Course:   httpH.NewCourseHandler(log, svc.Course),
		Scan:     httpH.NewScanHandler(log, svc.Sessions, svc.Course),
		Chat:     httpH.NewChatHandler(log, svc.Chat),
		Usage:    httpH.NewUsageHandler(svc.Quota),
		Realtime: httpH.NewRealtimeHandler(log, svc.Hub, svc.Relay),
		Crawler:  httpH.NewCrawlerHandler(log, svc.Sessions),
	}
}

func wireServer(log *logger.Logger, cfg Config, metrics *observability.Metrics, h Handlers) *apphttp.Server {
	return apphttp.NewServer(apphttp.RouterConfig{
		Log:             log,
		Metrics:         metrics,
		ServiceName:     cfg.Server.ServiceName,
		CORSOrigins:     cfg.Server.CORSOrigins,
		CrawlerSecret:   cfg.Crawler.Secret,
		AuthMiddleware:  httpMW.NewAuthMiddleware(log, []byte(cfg.Auth.JWTSecret), cfg.Auth.JWTIssuer),
		HealthHandler:   h.Health,
		CourseHandler:   h.Course,
		ScanHandler:     h.Scan,
		ChatHandler:     h.Chat,
		UsageHandler:    h.Usage,
		RealtimeHandler: h.Realtime,
		CrawlerHandler:  h.Crawler,
	})
}
