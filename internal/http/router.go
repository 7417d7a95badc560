package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/Rasalp1/canvas-lm-sub000/internal/http/handlers"
	httpMW "github.com/Rasalp1/canvas-lm-sub000/internal/http/middleware"
	"github.com/Rasalp1/canvas-lm-sub000/internal/observability"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/logger"
)

type RouterConfig struct {
	Log           *logger.Logger
	Metrics       *observability.Metrics
	ServiceName   string
	CORSOrigins   []string
	CrawlerSecret string

	AuthMiddleware *httpMW.AuthMiddleware

	HealthHandler   *httpH.HealthHandler
	CourseHandler   *httpH.CourseHandler
	ScanHandler     *httpH.ScanHandler
	ChatHandler     *httpH.ChatHandler
	UsageHandler    *httpH.UsageHandler
	RealtimeHandler *httpH.RealtimeHandler
	CrawlerHandler  *httpH.CrawlerHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.Correlate())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	// Crawler callbacks
	if cfg.CrawlerHandler != nil {
		internal := r.Group("/internal/crawls/:courseId")
		internal.Use(httpMW.RequireCrawlerSecret(cfg.CrawlerSecret))
		internal.POST("/progress", cfg.CrawlerHandler.Progress)
		internal.POST("/complete", cfg.CrawlerHandler.Complete)
		internal.POST("/error", cfg.CrawlerHandler.Error)
	}

	protected := r.Group("/api")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		// Realtime (SSE)
		if cfg.RealtimeHandler != nil {
			protected.GET("/sse/stream", cfg.RealtimeHandler.SSEStream)
		}

		// Course
		if cfg.CourseHandler != nil {
			protected.POST("/courses/detect", cfg.CourseHandler.Detect)
			protected.GET("/courses/:id", cfg.CourseHandler.Get)
			protected.GET("/courses/:id/documents", cfg.CourseHandler.ListDocuments)
		}

		// Scan
		if cfg.ScanHandler != nil {
			protected.POST("/courses/:id/scan", cfg.ScanHandler.Start)
			protected.GET("/courses/:id/scan", cfg.ScanHandler.Status)
		}

		// Chat
		if cfg.ChatHandler != nil {
			protected.POST("/courses/:id/chat", cfg.ChatHandler.Ask)
			protected.GET("/courses/:id/chat", cfg.ChatHandler.History)
		}

		// Usage
		if cfg.UsageHandler != nil {
			protected.GET("/usage", cfg.UsageHandler.Get)
		}
	}

	return r
}
