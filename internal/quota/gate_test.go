package quota

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"

	"github.com/Rasalp1/canvas-lm-sub000/internal/data/repos"
	"github.com/Rasalp1/canvas-lm-sub000/internal/data/repos/testutil"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/dbctx"
)

func newGate(t *testing.T) (*Gate, *quartz.Mock, repos.UsageWindowRepo) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	windows := repos.NewUsageWindowRepo(db, log)
	clock := quartz.NewMock(t)
	return NewGate(log, windows, nil, Options{Clock: clock}), clock, windows
}

func TestCeilingBlocksAndResets(t *testing.T) {
	g, clock, _ := newGate(t)
	ctx := context.Background()

	for i := 1; i <= DefaultCeiling; i++ {
		d, err := g.Consume(ctx, "u-1")
		if err != nil {
			t.Fatalf("consume %d: %v", i, err)
		}
		if !d.Allowed {
			t.Fatalf("message %d should be allowed", i)
		}
	}

	d, err := g.Consume(ctx, "u-1")
	if err != nil {
		t.Fatalf("consume 41: %v", err)
	}
	if d.Allowed || d.Remaining != 0 {
		t.Fatalf("41st message should be blocked: %+v", d)
	}
	if d.ResetIn <= 0 || d.ResetIn > DefaultWindow || d.RetryAfterSeconds() == 0 {
		t.Fatalf("blocked decision should carry a reset delay: %+v", d)
	}

	clock.Advance(DefaultWindow)
	d, err = g.Consume(ctx, "u-1")
	if err != nil || !d.Allowed {
		t.Fatalf("after reset: %+v err=%v", d, err)
	}
	if d.Used != 1 || d.Remaining != DefaultCeiling-1 {
		t.Fatalf("fresh window should count from one: %+v", d)
	}
}

func TestPrivilegedBypassesCeiling(t *testing.T) {
	g, _, windows := newGate(t)
	ctx := context.Background()
	if _, err := windows.Ensure(dbctx.New(ctx), "admin", DefaultCeiling); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := windows.SetPrivileged(dbctx.New(ctx), "admin", true); err != nil {
		t.Fatalf("set privileged: %v", err)
	}
	for i := 0; i < DefaultCeiling+5; i++ {
		d, err := g.Consume(ctx, "admin")
		if err != nil || !d.Allowed || !d.Unlimited {
			t.Fatalf("privileged message %d: %+v err=%v", i, d, err)
		}
	}
}

func TestConcurrentConsumeNeverOvershoots(t *testing.T) {
	g, _, windows := newGate(t)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < DefaultCeiling+10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := g.Consume(ctx, "u-2")
			if err != nil {
				t.Errorf("consume: %v", err)
				return
			}
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != DefaultCeiling {
		t.Fatalf("allowed=%d want %d", allowed, DefaultCeiling)
	}
	w, _ := windows.Get(dbctx.New(ctx), "u-2")
	if w == nil || w.Count != DefaultCeiling {
		t.Fatalf("stored count=%+v", w)
	}
}

func TestCheckDoesNotConsume(t *testing.T) {
	g, _, _ := newGate(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		d, err := g.Check(ctx, "u-3")
		if err != nil || !d.Allowed || d.Used != 0 {
			t.Fatalf("check: %+v err=%v", d, err)
		}
	}
	if _, err := g.Check(ctx, ""); err != ErrUserRequired {
		t.Fatalf("empty user: %v", err)
	}
}

func TestWindowStartsAtFirstMessage(t *testing.T) {
	g, clock, _ := newGate(t)
	ctx := context.Background()

	d, err := g.Check(ctx, "u-4")
	if err != nil || d.ResetAt != nil || d.ResetIn != 0 {
		t.Fatalf("check before any message should not open a window: %+v err=%v", d, err)
	}

	clock.Advance(20 * time.Hour)
	for i := 0; i < DefaultCeiling; i++ {
		d, err = g.Consume(ctx, "u-4")
		if err != nil || !d.Allowed {
			t.Fatalf("consume %d: %+v err=%v", i, d, err)
		}
	}
	if d.ResetIn != DefaultWindow {
		t.Fatalf("window should run from the first message, reset in %s", d.ResetIn)
	}

	// Five hours after the first message the window is still full.
	clock.Advance(5 * time.Hour)
	d, err = g.Consume(ctx, "u-4")
	if err != nil || d.Allowed || d.Used != DefaultCeiling {
		t.Fatalf("message inside a full window: %+v err=%v", d, err)
	}
	if d.ResetIn != 19*time.Hour {
		t.Fatalf("reset in %s want 19h", d.ResetIn)
	}

	clock.Advance(19 * time.Hour)
	d, err = g.Check(ctx, "u-4")
	if err != nil || !d.Allowed || d.Used != 0 || d.ResetAt != nil {
		t.Fatalf("expired window should read as closed: %+v err=%v", d, err)
	}
	clock.Advance(time.Hour)
	d, err = g.Consume(ctx, "u-4")
	if err != nil || !d.Allowed || d.Used != 1 || d.ResetIn != DefaultWindow {
		t.Fatalf("next window should start at this message: %+v err=%v", d, err)
	}
}

