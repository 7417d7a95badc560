package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/logger"
)

// Transport moves messages between processes. Subscribe delivers every message
// published on channel until the returned cancel func is called.
type Transport interface {
	Publish(ctx context.Context, channel string, msg Message) error
	Subscribe(ctx context.Context, channel string, onMsg func(Message)) (cancel func(), err error)
	Close() error
}

// Handler acts on a relayed message. Returning an error releases the idempotency claim
// so a redelivery is processed again.
type Handler func(ctx context.Context, msg Message) error

var ErrNoTransport = errors.New("realtime: transport not configured")

type consumer struct {
	name    string
	handler Handler
}

type subscription struct {
	refs   int
	cancel func()
}

// Relay publishes course notifications and, for armed courses, fans them into the
// local SSE hub and the registered consumers.
type Relay struct {
	log       *logger.Logger
	transport Transport
	hub       *Hub
	dedupe    Deduper
	timeout   time.Duration

	mu        sync.Mutex
	armed     map[string]*subscription
	consumers map[Event][]consumer
}

func NewRelay(log *logger.Logger, transport Transport, hub *Hub, dedupe Deduper) *Relay {
	return &Relay{
		log:       log.With("service", "Relay"),
		transport: transport,
		hub:       hub,
		dedupe:    dedupe,
		timeout:   30 * time.Second,
		armed:     make(map[string]*subscription),
		consumers: make(map[Event][]consumer),
	}
}

func (r *Relay) Publish(ctx context.Context, msg Message) error {
	if r == nil || r.transport == nil {
		return ErrNoTransport
	}
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.Channel == "" {
		msg.Channel = CourseChannel(msg.CourseID)
	}
	if msg.EmittedAt.IsZero() {
		msg.EmittedAt = time.Now().UTC()
	}
	if err := r.transport.Publish(ctx, msg.Channel, msg); err != nil {
		return fmt.Errorf("relay publish %s: %w", msg.Event, err)
	}
	return nil
}

// Arm subscribes this process to the course channel. Calls are reference counted;
// each Arm must be paired with a Disarm.
func (r *Relay) Arm(ctx context.Context, courseID string) error {
	courseID = strings.TrimSpace(courseID)
	if courseID == "" {
		return fmt.Errorf("relay arm: course id required")
	}
	if r.transport == nil {
		return ErrNoTransport
	}

	r.mu.Lock()
	if sub, ok := r.armed[courseID]; ok {
		sub.refs++
		r.mu.Unlock()
		return nil
	}
	sub := &subscription{refs: 1}
	r.armed[courseID] = sub
	r.mu.Unlock()

	cancel, err := r.transport.Subscribe(context.WithoutCancel(ctx), CourseChannel(courseID), r.dispatch)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		if r.armed[courseID] == sub {
			delete(r.armed, courseID)
		}
		return fmt.Errorf("relay arm %s: %w", courseID, err)
	}
	if r.armed[courseID] != sub || sub.refs <= 0 {
		// Fully disarmed while the subscription was being set up.
		cancel()
		return nil
	}
	sub.cancel = cancel
	return nil
}

func (r *Relay) Disarm(courseID string) {
	r.mu.Lock()
	sub, ok := r.armed[courseID]
	if !ok {
		r.mu.Unlock()
		return
	}
	sub.refs--
	if sub.refs > 0 {
		r.mu.Unlock()
		return
	}
	delete(r.armed, courseID)
	cancel := sub.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (r *Relay) Armed(courseID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.armed[courseID]
	return ok
}

// Consume registers handler for event. name scopes the idempotency claims so two
// consumers of the same event dedupe independently.
func (r *Relay) Consume(name string, event Event, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consumers[event] = append(r.consumers[event], consumer{name: name, handler: handler})
}

func (r *Relay) dispatch(msg Message) {
	if r.hub != nil {
		r.hub.Broadcast(msg)
	}

	r.mu.Lock()
	consumers := append([]consumer(nil), r.consumers[msg.Event]...)
	r.mu.Unlock()

	for _, c := range consumers {
		r.deliver(c, msg)
	}
}

func (r *Relay) deliver(c consumer, msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	key := ""
	if msg.IdempotencyKey != "" && r.dedupe != nil {
		key = c.name + ":" + string(msg.Event) + ":" + msg.IdempotencyKey
		first, err := r.dedupe.Claim(ctx, key)
		if err != nil {
			// At-least-once: without a claim the handler still runs.
			r.log.Warn("idempotency claim failed", "consumer", c.name, "key", msg.IdempotencyKey, "error", err)
			key = ""
		} else if !first {
			r.log.Debug("duplicate message skipped", "consumer", c.name, "event", msg.Event, "key", msg.IdempotencyKey)
			return
		}
	}

	if err := c.handler(ctx, msg); err != nil {
		r.log.Warn("consumer failed", "consumer", c.name, "event", msg.Event, "course_id", msg.CourseID, "error", err)
		if key != "" {
			if rerr := r.dedupe.Release(ctx, key); rerr != nil {
				r.log.Warn("idempotency release failed", "key", key, "error", rerr)
			}
		}
	}
}

func (r *Relay) Close() error {
	r.mu.Lock()
	subs := r.armed
	r.armed = make(map[string]*subscription)
	r.mu.Unlock()
	for _, sub := range subs {
		if sub.cancel != nil {
			sub.cancel()
		}
	}
	if r.transport == nil {
		return nil
	}
	return r.transport.Close()
}
