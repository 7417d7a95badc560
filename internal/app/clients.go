package app

import (
	"context"
	"fmt"

	"github.com/coder/quartz"
	goredis "github.com/redis/go-redis/v9"

	redisclient "github.com/Rasalp1/canvas-lm-sub000/internal/clients/redis"
	"github.com/Rasalp1/canvas-lm-sub000/internal/ingest/snapshot"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/crawler"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/fetch"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/gcp"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/logger"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/retrieval"
	"github.com/Rasalp1/canvas-lm-sub000/internal/realtime"
	"github.com/Rasalp1/canvas-lm-sub000/internal/realtime/bus"
)

type Clients struct {
	Redis     *goredis.Client
	Crawler   crawler.Client
	Retrieval retrieval.Client
	Fetcher   fetch.Fetcher
	Archive   gcp.Archive
}

// Substrate is the cross-process state: snapshots, the relay bus and its deduper.
type Substrate struct {
	Snapshots snapshot.Store
	Bus       bus.Bus
	Dedupe    realtime.Deduper
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	if cfg.Redis.Addr != "" {
		rdb, err := redisclient.NewClient(ctx, log, redisclient.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return out, fmt.Errorf("init redis: %w", err)
		}
		out.Redis = rdb
	} else {
		log.Warn("REDIS_ADDR not set; snapshots and relay are process-local")
	}

	cc, err := crawler.NewClient(log, crawler.Config{
		URL:         cfg.Crawler.URL,
		Secret:      cfg.Crawler.Secret,
		CallbackURL: cfg.Crawler.CallbackURL,
		Timeout:     cfg.Crawler.Timeout,
	})
	if err != nil {
		return out, fmt.Errorf("init crawler client: %w", err)
	}
	out.Crawler = cc

	rc, err := retrieval.NewClient(log, retrieval.Config{
		URL:     cfg.Retrieval.URL,
		APIKey:  cfg.Retrieval.APIKey,
		Timeout: cfg.Retrieval.Timeout,
	})
	if err != nil {
		return out, fmt.Errorf("init retrieval client: %w", err)
	}
	out.Retrieval = rc

	out.Fetcher = fetch.New(fetch.Config{MaxBytes: cfg.Fetch.MaxBytes, Timeout: cfg.Fetch.Timeout})

	archive, err := gcp.NewArchive(ctx, log, cfg.ArchiveSettings())
	if err != nil {
		return out, fmt.Errorf("init archive: %w", err)
	}
	out.Archive = archive
	return out, nil
}

func wireSubstrate(log *logger.Logger, cfg Config, clients Clients, clock quartz.Clock) (Substrate, error) {
	if clients.Redis == nil {
		return Substrate{
			Snapshots: snapshot.NewMemoryStore(),
			Bus:       bus.NewMemoryBus(),
			Dedupe:    realtime.NewMemoryDeduper(clock, cfg.Relay.DedupeTTL),
		}, nil
	}
	b, err := bus.NewRedisBus(log, clients.Redis, cfg.Redis.Prefix+":relay")
	if err != nil {
		return Substrate{}, fmt.Errorf("init relay bus: %w", err)
	}
	return Substrate{
		Snapshots: snapshot.NewRedisStore(log, clients.Redis, snapshot.RedisOptions{
			Prefix: cfg.Redis.Prefix,
			TTL:    cfg.Snapshot.TTL,
		}),
		Bus:    b,
		Dedupe: bus.NewRedisDeduper(clients.Redis, cfg.Redis.Prefix+":dedupe", cfg.Relay.DedupeTTL),
	}, nil
}

func (c Clients) Close() {
	if c.Archive != nil {
		_ = c.Archive.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
