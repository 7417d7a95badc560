package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/quartz"
)

func TestEveryRunsEachInterval(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	clock := quartz.NewMock(t)

	var ticks atomic.Int32
	h := Every(ctx, clock, time.Minute, func(context.Context) { ticks.Add(1) }, "test")
	defer h.Stop()

	clock.Advance(time.Minute).MustWait(ctx)
	clock.Advance(time.Minute).MustWait(ctx)
	if n := ticks.Load(); n != 2 {
		t.Fatalf("ticks=%d want 2", n)
	}
}

func TestAfter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	clock := quartz.NewMock(t)

	var fired atomic.Int32
	After(clock, time.Minute, func() { fired.Add(1) }, "deadline")
	stopped := After(clock, time.Minute, func() { fired.Add(10) }, "deadline")
	stopped.Stop()
	stopped.Stop()

	clock.Advance(time.Minute).MustWait(ctx)
	if n := fired.Load(); n != 1 {
		t.Fatalf("fired=%d want only the running timer", n)
	}
}

func TestNilHandleStop(t *testing.T) {
	var h *Handle
	h.Stop()
}
