package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/logger"
	"github.com/Rasalp1/canvas-lm-sub000/internal/realtime"
)

type redisBus struct {
	log    *logger.Logger
	rdb    goredis.UniversalClient
	prefix string

	mu     sync.Mutex
	nextID int
	subs   map[int]context.CancelFunc
}

// NewRedisBus publishes on "<prefix>:<channel>". The client is owned by the caller;
// Close only ends this bus's subscriptions.
func NewRedisBus(log *logger.Logger, rdb goredis.UniversalClient, prefix string) (Bus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "relay"
	}
	return &redisBus{
		log:    log.With("service", "RedisRelayBus"),
		rdb:    rdb,
		prefix: prefix,
		subs:   make(map[int]context.CancelFunc),
	}, nil
}

func (b *redisBus) key(channel string) string { return b.prefix + ":" + channel }

func (b *redisBus) Publish(ctx context.Context, channel string, msg realtime.Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode relay message: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.key(channel), raw).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", channel, err)
	}
	return nil
}

func (b *redisBus) Subscribe(ctx context.Context, channel string, onMsg func(realtime.Message)) (func(), error) {
	if onMsg == nil {
		return nil, fmt.Errorf("onMsg callback required")
	}
	ctx, cancel := context.WithCancel(ctx)
	pubsub := b.rdb.Subscribe(ctx, b.key(channel))
	// Wait for the subscribe confirmation so nothing published after Arm returns is lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = cancel
	b.mu.Unlock()

	go b.pump(ctx, channel, pubsub, onMsg)

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		cancel()
	}, nil
}

func (b *redisBus) pump(ctx context.Context, channel string, pubsub *goredis.PubSub, onMsg func(realtime.Message)) {
	defer func() { _ = pubsub.Close() }()
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			var msg realtime.Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				b.log.Warn("bad redis relay payload", "channel", channel, "error", err)
				continue
			}
			onMsg(msg)
		}
	}
}

func (b *redisBus) Close() error {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[int]context.CancelFunc)
	b.mu.Unlock()
	for _, cancel := range subs {
		cancel()
	}
	return nil
}
