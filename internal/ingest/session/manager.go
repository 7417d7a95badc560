package session

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/coder/quartz"
)

// Manager hands out one Controller per course. A controller restores its persisted
// snapshot the first time it is requested.
type Manager struct {
	deps Deps
	opts Options

	mu          sync.Mutex
	controllers map[string]*Controller
}

func NewManager(deps Deps, opts Options) *Manager {
	if deps.Clock == nil {
		deps.Clock = quartz.NewReal()
	}
	return &Manager{
		deps:        deps,
		opts:        opts.withDefaults(),
		controllers: map[string]*Controller{},
	}
}

func (m *Manager) Controller(ctx context.Context, courseID string) (*Controller, error) {
	if courseID == "" {
		return nil, ErrNoCourse
	}
	m.mu.Lock()
	c, ok := m.controllers[courseID]
	if !ok {
		c = newController(courseID, m.deps, m.opts)
		m.controllers[courseID] = c
	}
	m.mu.Unlock()

	var initErr error
	c.initOnce.Do(func() {
		initErr = c.RecoverOnInit(ctx)
	})
	if initErr != nil {
		// Recovery is best effort; the controller starts idle.
		c.log.Warn("snapshot recovery failed", "error", initErr)
	}
	return c, nil
}

// Lookup returns an existing controller without creating one.
func (m *Manager) Lookup(courseID string) (*Controller, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.controllers[courseID]
	return c, ok
}

// RecoverAll restores a controller for every persisted snapshot and returns how many
// courses it touched.
func (m *Manager) RecoverAll(ctx context.Context) (int, error) {
	snaps, err := m.deps.Snapshots.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list scan snapshots: %w", err)
	}
	n := 0
	for _, s := range snaps {
		if _, err := m.Controller(ctx, s.CourseID); err != nil {
			continue
		}
		n++
	}
	m.deps.Log.Info("scan sessions restored", "count", n)
	return n, nil
}

// Courses lists the course ids with a live controller, sorted.
func (m *Manager) Courses() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.controllers))
	for id := range m.controllers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (m *Manager) Close() {
	m.mu.Lock()
	cs := make([]*Controller, 0, len(m.controllers))
	for _, c := range m.controllers {
		cs = append(cs, c)
	}
	m.mu.Unlock()
	for _, c := range cs {
		c.Close()
	}
}
