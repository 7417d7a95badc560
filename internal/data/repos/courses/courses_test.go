package courses

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Rasalp1/canvas-lm-sub000/internal/data/repos/testutil"
	types "github.com/Rasalp1/canvas-lm-sub000/internal/domain"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/dbctx"
)

func TestCourseRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewCourseRepo(db, testutil.Logger(t))

	got, created, err := repo.CreateIfMissing(dbc, &types.Course{ID: "c-1", DisplayName: "Algebra", SourceURL: "https://lms/courses/1"})
	if err != nil || !created {
		t.Fatalf("CreateIfMissing: created=%v err=%v", created, err)
	}
	if got.DisplayName != "Algebra" {
		t.Fatalf("CreateIfMissing: display name %q", got.DisplayName)
	}

	again, created, err := repo.CreateIfMissing(dbc, &types.Course{ID: "c-1", DisplayName: "Renamed", SourceURL: "x"})
	if err != nil || created {
		t.Fatalf("CreateIfMissing (second): created=%v err=%v", created, err)
	}
	if again.DisplayName != "Algebra" {
		t.Fatalf("CreateIfMissing (second): expected stored row, got %q", again.DisplayName)
	}

	at := time.Now().UTC()
	if err := repo.RecordScanCompletion(dbc, "c-1", 7, "complete", at); err != nil {
		t.Fatalf("RecordScanCompletion: %v", err)
	}
	if err := repo.RecordScanCompletion(dbc, "c-1", 9, "up_to_date", at); err != nil {
		t.Fatalf("RecordScanCompletion: %v", err)
	}
	row, err := repo.GetByID(dbc, "c-1")
	if err != nil || row == nil {
		t.Fatalf("GetByID: row=%v err=%v", row, err)
	}
	if row.ScanCount != 2 || row.DocumentCount != 9 || row.LastScanResult != "up_to_date" || row.LastScanAt == nil {
		t.Fatalf("GetByID: unexpected scan bookkeeping %+v", row)
	}

	if missing, err := repo.GetByID(dbc, "nope"); err != nil || missing != nil {
		t.Fatalf("GetByID(missing): row=%v err=%v", missing, err)
	}
}

func TestEnrollmentRepoUpsert(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.New(context.Background())
	repo := NewEnrollmentRepo(db, testutil.Logger(t))

	if err := repo.Upsert(dbc, "u-1", "c-1", false); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := repo.Upsert(dbc, "u-1", "c-1", true); err != nil {
		t.Fatalf("Upsert (update): %v", err)
	}
	e, err := repo.Get(dbc, "u-1", "c-1")
	if err != nil || e == nil || !e.Enrolled {
		t.Fatalf("Get: row=%+v err=%v", e, err)
	}
}

func TestCourseStoreRepoInsertIfAbsent(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.New(context.Background())
	repo := NewCourseStoreRepo(db, testutil.Logger(t))

	const callers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := repo.InsertIfAbsent(dbc, &types.CourseStore{
				CourseKey:   "c-1",
				StoreID:     "store-" + string(rune('a'+i)),
				DisplayName: "Algebra",
			})
			if err != nil {
				t.Errorf("InsertIfAbsent: %v", err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winning insert, got %d", wins)
	}

	row, err := repo.Get(dbc, "c-1")
	if err != nil || row == nil || row.StoreID == "" {
		t.Fatalf("Get: row=%+v err=%v", row, err)
	}
}

func TestChatSessionRepo(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.New(context.Background())
	repo := NewChatSessionRepo(db, testutil.Logger(t))

	s1, err := repo.GetOrCreate(dbc, "u-1", "c-1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if len(DecodeHistory(s1)) != 0 {
		t.Fatalf("expected empty history")
	}
	turns := []types.ChatTurn{{Role: "user", Content: "hi"}, {Role: "assistant", Content: "hello"}}
	if err := repo.SaveHistory(dbc, s1.ID, turns); err != nil {
		t.Fatalf("SaveHistory: %v", err)
	}
	s2, err := repo.GetOrCreate(dbc, "u-1", "c-1")
	if err != nil {
		t.Fatalf("GetOrCreate (second): %v", err)
	}
	if s2.ID != s1.ID {
		t.Fatalf("expected same session, got %s vs %s", s2.ID, s1.ID)
	}
	if h := DecodeHistory(s2); len(h) != 2 || h[1].Content != "hello" {
		t.Fatalf("unexpected history %+v", h)
	}
}
