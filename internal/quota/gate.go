// Package quota limits how many chat messages a user can send per rolling window.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coder/quartz"

	"github.com/Rasalp1/canvas-lm-sub000/internal/data/repos"
	types "github.com/Rasalp1/canvas-lm-sub000/internal/domain"
	"github.com/Rasalp1/canvas-lm-sub000/internal/observability"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/dbctx"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/logger"
)

const (
	DefaultCeiling = 40
	DefaultWindow  = 24 * time.Hour
)

var ErrUserRequired = errors.New("quota: user id required")

// Decision is the outcome of a quota check. A blocked decision is not an error.
// ResetAt is nil while no window is open.
type Decision struct {
	Allowed   bool          `json:"allowed"`
	Unlimited bool          `json:"unlimited"`
	Used      int           `json:"used"`
	Ceiling   int           `json:"ceiling"`
	Remaining int           `json:"remaining"`
	ResetAt   *time.Time    `json:"reset_at,omitempty"`
	ResetIn   time.Duration `json:"-"`
}

// RetryAfterSeconds rounds ResetIn up to whole seconds.
func (d Decision) RetryAfterSeconds() int {
	if d.ResetIn <= 0 {
		return 0
	}
	return int((d.ResetIn + time.Second - 1) / time.Second)
}

type Options struct {
	Ceiling int
	Window  time.Duration
	Clock   quartz.Clock
}

type Gate struct {
	log     *logger.Logger
	windows repos.UsageWindowRepo
	metrics *observability.Metrics
	ceiling int
	window  time.Duration
	clock   quartz.Clock
}

func NewGate(log *logger.Logger, windows repos.UsageWindowRepo, metrics *observability.Metrics, opts Options) *Gate {
	if opts.Ceiling <= 0 {
		opts.Ceiling = DefaultCeiling
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	return &Gate{
		log:     log.With("service", "QuotaGate"),
		windows: windows,
		metrics: metrics,
		ceiling: opts.Ceiling,
		window:  opts.Window,
		clock:   opts.Clock,
	}
}

// Check reports the user's standing without consuming anything. It never opens a
// window; the window's length runs from the first message counted in it.
func (g *Gate) Check(ctx context.Context, userID string) (Decision, error) {
	if userID == "" {
		return Decision{}, ErrUserRequired
	}
	w, err := g.windows.Get(dbctx.New(ctx), userID)
	if err != nil {
		return Decision{}, fmt.Errorf("load usage window: %w", err)
	}
	switch {
	case w == nil:
		w = &types.UsageWindow{UserID: userID, Ceiling: g.ceiling}
	case w.Expired(g.clock.Now(), g.window):
		closed := *w
		closed.Count = 0
		closed.WindowStart = nil
		w = &closed
	}
	d := g.decide(w)
	d.Allowed = d.Unlimited || w.Count < w.Ceiling
	return d, nil
}

// Consume counts one message against the user's window. The increment is a
// conditional update, so concurrent callers cannot push the count past the ceiling.
func (g *Gate) Consume(ctx context.Context, userID string) (Decision, error) {
	dbc := dbctx.New(ctx)
	for attempt := 0; attempt < 3; attempt++ {
		w, err := g.current(ctx, userID)
		if err != nil {
			return Decision{}, err
		}
		ok, err := g.windows.TryIncrement(dbc, userID, w.Generation, g.clock.Now())
		if err != nil {
			return Decision{}, fmt.Errorf("increment usage: %w", err)
		}
		if ok {
			counted, err := g.windows.Get(dbc, userID)
			if err != nil {
				return Decision{}, fmt.Errorf("load usage window: %w", err)
			}
			if counted == nil {
				return Decision{}, fmt.Errorf("usage window for %s vanished", userID)
			}
			d := g.decide(counted)
			d.Allowed = true
			g.metrics.QuotaDecision(true)
			return d, nil
		}
		latest, err := g.windows.Get(dbc, userID)
		if err != nil {
			return Decision{}, fmt.Errorf("load usage window: %w", err)
		}
		if latest != nil && latest.Generation != w.Generation {
			// A concurrent reset landed between read and increment.
			continue
		}
		d := g.decide(w)
		g.metrics.QuotaDecision(false)
		g.log.Info("chat quota exhausted", "user_id", userID, "reset_in", d.ResetIn.String())
		return d, nil
	}
	return Decision{}, errors.New("quota: usage window kept changing")
}

// current loads the user's row for counting, closing the window if it has expired.
func (g *Gate) current(ctx context.Context, userID string) (*types.UsageWindow, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}
	dbc := dbctx.New(ctx)
	w, err := g.windows.Ensure(dbc, userID, g.ceiling)
	if err != nil {
		return nil, fmt.Errorf("ensure usage window: %w", err)
	}
	if w == nil {
		return nil, fmt.Errorf("usage window for %s vanished", userID)
	}
	if !w.Expired(g.clock.Now(), g.window) {
		return w, nil
	}
	if _, err := g.windows.ResetWindow(dbc, userID, w.Generation); err != nil {
		return nil, fmt.Errorf("reset usage window: %w", err)
	}
	// Whether our reset or a concurrent one won, the row now holds the new window.
	w, err = g.windows.Get(dbc, userID)
	if err != nil {
		return nil, fmt.Errorf("load usage window: %w", err)
	}
	if w == nil {
		return nil, fmt.Errorf("usage window for %s vanished", userID)
	}
	return w, nil
}

func (g *Gate) decide(w *types.UsageWindow) Decision {
	remaining := w.Ceiling - w.Count
	if remaining < 0 {
		remaining = 0
	}
	d := Decision{
		Unlimited: w.Privileged,
		Used:      w.Count,
		Ceiling:   w.Ceiling,
		Remaining: remaining,
	}
	if resetAt, ok := w.ResetAt(g.window); ok {
		d.ResetAt = &resetAt
		if d.ResetIn = resetAt.Sub(g.clock.Now()); d.ResetIn < 0 {
			d.ResetIn = 0
		}
	}
	return d
}
