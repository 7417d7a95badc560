package realtime

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/logger"
)

const (
	subscriberBuffer = 32
	// DefaultHeartbeat keeps idle streams open through proxies that reap silent
	// connections.
	DefaultHeartbeat = 15 * time.Second
)

// Subscriber is one open SSE stream bound to a single course channel.
type Subscriber struct {
	ID      uuid.UUID
	UserID  string
	Channel string

	out    chan Message
	closed bool
}

// Messages yields broadcasts in publish order. It is closed by Unsubscribe.
func (s *Subscriber) Messages() <-chan Message { return s.out }

// Hub fans relay messages out to the SSE streams connected to this process.
type Hub struct {
	log       *logger.Logger
	Heartbeat time.Duration

	mu       sync.RWMutex
	channels map[string]map[*Subscriber]struct{}
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log:       log.With("component", "SSEHub"),
		Heartbeat: DefaultHeartbeat,
		channels:  make(map[string]map[*Subscriber]struct{}),
	}
}

// Subscribe registers a stream on channel. A blank channel yields a subscriber that
// never receives anything.
func (h *Hub) Subscribe(userID, channel string) *Subscriber {
	s := &Subscriber{
		ID:      uuid.New(),
		UserID:  userID,
		Channel: strings.TrimSpace(channel),
		out:     make(chan Message, subscriberBuffer),
	}
	if s.Channel == "" {
		return s
	}
	h.mu.Lock()
	set, ok := h.channels[s.Channel]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.channels[s.Channel] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()
	h.log.Debug("SSE subscriber added", "subscriber_id", s.ID, "channel", s.Channel)
	return s
}

// Unsubscribe is idempotent.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if set, ok := h.channels[s.Channel]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.channels, s.Channel)
		}
	}
	close(s.out)
}

func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// Broadcast never blocks; a subscriber whose buffer is full misses the message.
func (h *Hub) Broadcast(msg Message) {
	if msg.Channel == "" {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.channels[msg.Channel] {
		select {
		case s.out <- msg:
		default:
			h.log.Warn("dropping SSE message; subscriber buffer full", "subscriber_id", s.ID, "event", msg.Event)
		}
	}
}
