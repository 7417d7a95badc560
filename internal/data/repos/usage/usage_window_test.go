package usage

import (
	"context"
	"testing"
	"time"

	"github.com/Rasalp1/canvas-lm-sub000/internal/data/repos/testutil"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/dbctx"
)

func TestUsageWindowRepo(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.New(context.Background())
	repo := NewUsageWindowRepo(db, testutil.Logger(t))
	now := time.Now().UTC()

	w, err := repo.Ensure(dbc, "u-1", 2)
	if err != nil || w == nil {
		t.Fatalf("Ensure: %+v err=%v", w, err)
	}
	if w.Count != 0 || w.Ceiling != 2 || w.WindowStart != nil {
		t.Fatalf("Ensure: unexpected row %+v", w)
	}

	for i := 0; i < 2; i++ {
		if ok, err := repo.TryIncrement(dbc, "u-1", w.Generation, now.Add(time.Duration(i)*time.Hour)); err != nil || !ok {
			t.Fatalf("TryIncrement %d: ok=%v err=%v", i, ok, err)
		}
	}
	if ok, _ := repo.TryIncrement(dbc, "u-1", w.Generation, now); ok {
		t.Fatalf("TryIncrement past ceiling should fail")
	}
	counted, _ := repo.Get(dbc, "u-1")
	if counted.WindowStart == nil || !counted.WindowStart.Equal(now) {
		t.Fatalf("window should start at the first increment: %+v", counted.WindowStart)
	}

	if ok, err := repo.ResetWindow(dbc, "u-1", w.Generation); err != nil || !ok {
		t.Fatalf("ResetWindow: ok=%v err=%v", ok, err)
	}
	// A second reset with the old generation loses.
	if ok, _ := repo.ResetWindow(dbc, "u-1", w.Generation); ok {
		t.Fatalf("ResetWindow with stale generation should not apply")
	}
	if ok, _ := repo.TryIncrement(dbc, "u-1", w.Generation, now); ok {
		t.Fatalf("TryIncrement with stale generation should not apply")
	}

	fresh, _ := repo.Get(dbc, "u-1")
	if fresh.Count != 0 || fresh.Generation != w.Generation+1 || fresh.WindowStart != nil {
		t.Fatalf("after reset: %+v", fresh)
	}

	if err := repo.SetPrivileged(dbc, "u-1", true); err != nil {
		t.Fatalf("SetPrivileged: %v", err)
	}
	for i := 0; i < 5; i++ {
		if ok, _ := repo.TryIncrement(dbc, "u-1", fresh.Generation, now); !ok {
			t.Fatalf("privileged increment %d blocked", i)
		}
	}
}
