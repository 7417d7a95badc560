// Package health watches a course's persisted scan marker while its session believes
// it is active and triggers recovery when the marker disappears or goes stale.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/coder/quartz"

	types "github.com/Rasalp1/canvas-lm-sub000/internal/domain"
	"github.com/Rasalp1/canvas-lm-sub000/internal/ingest/snapshot"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/logger"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/schedule"
)

type Reason string

const (
	ReasonMissing Reason = "snapshot_missing"
	ReasonStale   Reason = "snapshot_stale"
)

// Target is the session being watched.
type Target interface {
	Active() bool
	Recover(ctx context.Context, reason Reason, userMessage string)
}

type Options struct {
	Interval  time.Duration
	Staleness time.Duration
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = 30 * time.Second
	}
	if o.Staleness <= 0 {
		o.Staleness = 5 * time.Minute
	}
	return o
}

type Monitor struct {
	log      *logger.Logger
	clock    quartz.Clock
	store    snapshot.Store
	courseID string
	target   Target
	opts     Options

	mu     sync.Mutex
	handle *schedule.Handle
}

func NewMonitor(log *logger.Logger, clock quartz.Clock, store snapshot.Store, courseID string, target Target, opts Options) *Monitor {
	return &Monitor{
		log:      log.With("service", "HealthMonitor", "course_id", courseID),
		clock:    clock,
		store:    store,
		courseID: courseID,
		target:   target,
		opts:     opts.withDefaults(),
	}
}

// Start begins periodic checks; calling it while running is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle != nil {
		return
	}
	m.handle = schedule.Every(context.WithoutCancel(ctx), m.clock, m.opts.Interval, func(ctx context.Context) {
		m.Check(ctx)
	}, "health", m.courseID)
}

func (m *Monitor) Stop() {
	m.mu.Lock()
	h := m.handle
	m.handle = nil
	m.mu.Unlock()
	h.Stop()
}

func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle != nil
}

// Check runs one liveness check and reports whether recovery was triggered.
func (m *Monitor) Check(ctx context.Context) bool {
	if !m.target.Active() {
		return false
	}
	snap, err := m.store.Read(ctx, m.courseID)
	if err != nil {
		// An unreachable store says nothing about the session; try again next tick.
		m.log.Warn("health check could not read snapshot", "error", err)
		return false
	}
	if snap == nil {
		m.log.Warn("active session has no snapshot; recovering")
		m.target.Recover(ctx, ReasonMissing, "")
		return true
	}
	if snap.Status == types.SnapshotScanning {
		if age := snap.Age(m.clock.Now()); age > m.opts.Staleness {
			m.log.Warn("scan heartbeat stale; forcing recovery", "age", age.String())
			m.target.Recover(ctx, ReasonStale, "The scan stopped responding and was reset. Please start it again.")
			return true
		}
	}
	return false
}
