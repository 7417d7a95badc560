package bus

import (
	"context"
	"sync"

	"github.com/Rasalp1/canvas-lm-sub000/internal/realtime"
)

// MemoryBus delivers synchronously to in-process subscribers. Used when Redis is not
// configured and in tests.
type MemoryBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]func(realtime.Message)
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string]map[int]func(realtime.Message))}
}

func (b *MemoryBus) Publish(_ context.Context, channel string, msg realtime.Message) error {
	b.mu.RLock()
	handlers := make([]func(realtime.Message), 0, len(b.subs[channel]))
	for _, h := range b.subs[channel] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(msg)
	}
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, channel string, onMsg func(realtime.Message)) (func(), error) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[int]func(realtime.Message))
	}
	b.subs[channel][id] = onMsg
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[channel], id)
			if len(b.subs[channel]) == 0 {
				delete(b.subs, channel)
			}
			b.mu.Unlock()
		})
	}, nil
}

func (b *MemoryBus) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}

func (b *MemoryBus) Close() error { return nil }
