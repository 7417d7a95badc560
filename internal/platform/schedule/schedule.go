// Package schedule wraps quartz clocks in stoppable task handles so periodic checks and
// deadlines can be driven by a mock clock in tests.
package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/coder/quartz"
)

// Handle is a running periodic or one-shot task. Stop is idempotent and safe on nil.
type Handle struct {
	once   sync.Once
	cancel context.CancelFunc
	timer  *quartz.Timer
}

func (h *Handle) Stop() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		if h.cancel != nil {
			h.cancel()
		}
		if h.timer != nil {
			h.timer.Stop()
		}
	})
}

// Every runs fn every d until the handle is stopped or ctx ends. fn reports nothing
// back, so the ticker keeps running whatever a tick does.
func Every(ctx context.Context, clock quartz.Clock, d time.Duration, fn func(ctx context.Context), tags ...string) *Handle {
	tctx, cancel := context.WithCancel(ctx)
	clock.TickerFunc(tctx, d, func() error {
		fn(tctx)
		return nil
	}, tags...)
	return &Handle{cancel: cancel}
}

// After runs fn once after d unless the handle is stopped first.
func After(clock quartz.Clock, d time.Duration, fn func(), tags ...string) *Handle {
	return &Handle{timer: clock.AfterFunc(d, fn, tags...)}
}
