package health

import (
	"context"
	"testing"
	"time"

	"github.com/coder/quartz"

	types "github.com/Rasalp1/canvas-lm-sub000/internal/domain"
	"github.com/Rasalp1/canvas-lm-sub000/internal/ingest/snapshot"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/logger"
)

type fakeTarget struct {
	active   bool
	reasons  []Reason
	messages []string
}

func (f *fakeTarget) Active() bool { return f.active }

func (f *fakeTarget) Recover(_ context.Context, reason Reason, msg string) {
	f.reasons = append(f.reasons, reason)
	f.messages = append(f.messages, msg)
	f.active = false
}

func TestCheck(t *testing.T) {
	ctx := context.Background()
	clock := quartz.NewMock(t)
	store := snapshot.NewMemoryStore()

	cases := []struct {
		name   string
		active bool
		snap   *types.ScanSnapshot
		want   Reason
	}{
		{"inactive session ignored", false, nil, ""},
		{"missing snapshot", true, nil, ReasonMissing},
		{"fresh scanning", true, &types.ScanSnapshot{Status: types.SnapshotScanning, Timestamp: clock.Now().Add(-time.Minute).UnixMilli()}, ""},
		{"stale scanning", true, &types.ScanSnapshot{Status: types.SnapshotScanning, Timestamp: clock.Now().Add(-6 * time.Minute).UnixMilli()}, ReasonStale},
		{"old complete snapshot is not stale", true, &types.ScanSnapshot{Status: types.SnapshotComplete, Timestamp: clock.Now().Add(-time.Hour).UnixMilli()}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_ = store.Remove(ctx, "c-1")
			if tc.snap != nil {
				s := *tc.snap
				s.CourseID = "c-1"
				_ = store.Write(ctx, s)
			}
			target := &fakeTarget{active: tc.active}
			m := NewMonitor(logger.NewNop(), clock, store, "c-1", target, Options{})

			triggered := m.Check(ctx)
			if triggered != (tc.want != "") {
				t.Fatalf("triggered=%v want reason %q", triggered, tc.want)
			}
			if tc.want != "" && (len(target.reasons) != 1 || target.reasons[0] != tc.want) {
				t.Fatalf("reasons = %v", target.reasons)
			}
			if tc.want == ReasonStale && target.messages[0] == "" {
				t.Fatalf("stale recovery should carry a user-visible message")
			}
		})
	}
}

func TestMonitorTicks(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	clock := quartz.NewMock(t)
	store := snapshot.NewMemoryStore()
	target := &fakeTarget{active: true}
	m := NewMonitor(logger.NewNop(), clock, store, "c-1", target, Options{Interval: 30 * time.Second})

	trap := clock.Trap().TickerFunc("health", "c-1")
	defer trap.Close()
	// A trapped TickerFunc blocks its caller until released.
	started := make(chan struct{})
	go func() {
		defer close(started)
		m.Start(ctx)
	}()
	trap.MustWait(ctx).MustRelease(ctx)
	select {
	case <-started:
	case <-ctx.Done():
		t.Fatalf("monitor start did not return")
	}
	if !m.Running() {
		t.Fatalf("monitor should be running")
	}

	clock.Advance(30 * time.Second).MustWait(ctx)
	if len(target.reasons) != 1 || target.reasons[0] != ReasonMissing {
		t.Fatalf("expected recovery on first tick, got %v", target.reasons)
	}

	m.Stop()
	if m.Running() {
		t.Fatalf("monitor should be stopped")
	}
}
