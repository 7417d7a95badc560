package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	types "github.com/Rasalp1/canvas-lm-sub000/internal/domain"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/logger"
)

type redisStore struct {
	log    *logger.Logger
	rdb    goredis.UniversalClient
	prefix string
	opts   RedisOptions
}

type RedisOptions struct {
	// Prefix namespaces keys; the snapshot key itself is always scan_status_<courseId>.
	Prefix string
	TTL    time.Duration
}

func NewRedisStore(log *logger.Logger, rdb goredis.UniversalClient, opts RedisOptions) Store {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	return &redisStore{
		log:    log.With("service", "RedisSnapshotStore"),
		rdb:    rdb,
		prefix: opts.Prefix,
		opts:   opts,
	}
}

func (s *redisStore) key(courseID string) string {
	return s.prefix + types.SnapshotKey(courseID)
}

func (s *redisStore) Write(ctx context.Context, snap types.ScanSnapshot) error {
	if err := validate(snap); err != nil {
		return err
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.key(snap.CourseID), raw, s.opts.TTL).Err(); err != nil {
		return fmt.Errorf("write snapshot %s: %w", snap.CourseID, err)
	}
	return nil
}

func (s *redisStore) Read(ctx context.Context, courseID string) (*types.ScanSnapshot, error) {
	raw, err := s.rdb.Get(ctx, s.key(courseID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", courseID, err)
	}
	var snap types.ScanSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		// A corrupt record cannot be recovered from; treat it as absent.
		s.log.Warn("discarding unreadable snapshot", "course_id", courseID, "error", err)
		_ = s.rdb.Del(ctx, s.key(courseID)).Err()
		return nil, nil
	}
	return &snap, nil
}

func (s *redisStore) Remove(ctx context.Context, courseID string) error {
	if err := s.rdb.Del(ctx, s.key(courseID)).Err(); err != nil {
		return fmt.Errorf("remove snapshot %s: %w", courseID, err)
	}
	return nil
}

func (s *redisStore) List(ctx context.Context) ([]types.ScanSnapshot, error) {
	var out []types.ScanSnapshot
	iter := s.rdb.Scan(ctx, 0, s.key("*"), 100).Iterator()
	for iter.Next(ctx) {
		id, ok := types.CourseIDFromSnapshotKey(iter.Val()[len(s.prefix):])
		if !ok {
			continue
		}
		snap, err := s.Read(ctx, id)
		if err != nil {
			return nil, err
		}
		if snap != nil {
			out = append(out, *snap)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return out, nil
}
