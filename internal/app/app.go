package app

import (
	"context"
	"fmt"

	"github.com/coder/quartz"
	"gorm.io/gorm"

	"github.com/Rasalp1/canvas-lm-sub000/internal/data/db"
	"github.com/Rasalp1/canvas-lm-sub000/internal/data/repos"
	apphttp "github.com/Rasalp1/canvas-lm-sub000/internal/http"
	"github.com/Rasalp1/canvas-lm-sub000/internal/ingest/snapshot"
	"github.com/Rasalp1/canvas-lm-sub000/internal/observability"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Repos    repos.Set
	Clients  Clients
	Services Services
	Handlers Handlers
	Server   *apphttp.Server

	sub          Substrate
	pg           *db.PostgresService
	otelShutdown func(context.Context) error
}

func New(ctx context.Context) (*App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.LoggerSettings())
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	otelShutdown := observability.InitOTel(ctx, log, cfg.OtelSettings())
	metrics := observability.Init(log, cfg.Telemetry.Metrics)

	pg, err := db.NewPostgresService(log, cfg.PostgresSettings())
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		_ = pg.Close()
		log.Sync()
		return nil, err
	}
	theDB := pg.DB()

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		clients.Close()
		_ = pg.Close()
		log.Sync()
		return nil, err
	}

	clock := quartz.NewReal()
	sub, err := wireSubstrate(log, cfg, clients, clock)
	if err != nil {
		clients.Close()
		_ = pg.Close()
		log.Sync()
		return nil, err
	}

	reposet := repos.NewSet(theDB, log)
	serviceset := wireServices(log, cfg, clock, metrics, reposet, clients, sub)
	handlerset := wireHandlers(log, pg, clients, serviceset)

	return &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Repos:        reposet,
		Clients:      clients,
		Services:     serviceset,
		Handlers:     handlerset,
		Server:       wireServer(log, cfg, metrics, handlerset),
		sub:          sub,
		pg:           pg,
		otelShutdown: otelShutdown,
	}, nil
}

func (a *App) Snapshots() snapshot.Store { return a.sub.Snapshots }

// Start restores scan sessions persisted by a previous process.
func (a *App) Start(ctx context.Context) {
	if a == nil {
		return
	}
	if _, err := a.Services.Sessions.RecoverAll(ctx); err != nil {
		a.Log.Warn("scan session recovery failed", "error", err)
	}
}

func (a *App) Run() error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("HTTP listening", "addr", a.Cfg.Server.Addr)
	return a.Server.Run(a.Cfg.Server.Addr)
}

// Close drains in-flight work and releases every connection, in reverse wiring order.
func (a *App) Close(ctx context.Context) {
	if a == nil {
		return
	}
	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			a.Log.Warn("http shutdown", "error", err)
		}
	}
	if a.Handlers.Crawler != nil {
		a.Handlers.Crawler.Wait()
	}
	if a.Services.Sessions != nil {
		a.Services.Sessions.Close()
	}
	if a.Services.Relay != nil {
		_ = a.Services.Relay.Close()
	}
	a.Clients.Close()
	if a.pg != nil {
		_ = a.pg.Close()
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(ctx)
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
