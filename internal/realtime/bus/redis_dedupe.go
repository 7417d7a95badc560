package bus

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisDeduper claims idempotency keys with SETNX so every process sharing the Redis
// instance agrees on the first claimant.
type RedisDeduper struct {
	rdb    goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisDeduper(rdb goredis.UniversalClient, prefix string, ttl time.Duration) *RedisDeduper {
	if prefix == "" {
		prefix = "relay:seen"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisDeduper{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (d *RedisDeduper) Claim(ctx context.Context, key string) (bool, error) {
	return d.rdb.SetNX(ctx, d.prefix+":"+key, 1, d.ttl).Result()
}

func (d *RedisDeduper) Release(ctx context.Context, key string) error {
	return d.rdb.Del(ctx, d.prefix+":"+key).Err()
}
