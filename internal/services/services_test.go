package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coder/quartz"

	"github.com/Rasalp1/canvas-lm-sub000/internal/data/repos"
	"github.com/Rasalp1/canvas-lm-sub000/internal/data/repos/testutil"
	"github.com/Rasalp1/canvas-lm-sub000/internal/ingest/storebroker"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/dbctx"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/retrieval"
	"github.com/Rasalp1/canvas-lm-sub000/internal/quota"
	"github.com/Rasalp1/canvas-lm-sub000/internal/realtime"
	"github.com/Rasalp1/canvas-lm-sub000/internal/realtime/bus"
)

func TestDetectCreatesCourseOnce(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	set := repos.NewSet(db, log)
	svc := NewCourseService(log, set.Course, set.Enrollment, set.DocumentRecord)
	ctx := context.Background()

	first, err := svc.Detect(ctx, "u-1", DetectRequest{CourseID: "4711", DisplayName: "Signals", SourceURL: "https://lms.example.edu/courses/4711", Enrolled: true})
	if err != nil || !first.Created {
		t.Fatalf("first detect: %+v err=%v", first, err)
	}
	second, err := svc.Detect(ctx, "u-2", DetectRequest{CourseID: "4711", DisplayName: "Renamed", SourceURL: "https://lms.example.edu/courses/4711"})
	if err != nil || second.Created {
		t.Fatalf("second detect: %+v err=%v", second, err)
	}
	if second.Course.DisplayName != "Signals" {
		t.Fatalf("existing course should keep its name, got %q", second.Course.DisplayName)
	}

	got, err := svc.Get(ctx, "u-1", "4711")
	if err != nil || !got.Enrolled {
		t.Fatalf("get: %+v err=%v", got, err)
	}
	if _, err := svc.Get(ctx, "u-1", "missing"); !errors.Is(err, ErrCourseNotFound) {
		t.Fatalf("missing course: %v", err)
	}
	if _, err := svc.Detect(ctx, "u-1", DetectRequest{CourseID: "x", SourceURL: "not a url"}); !errors.Is(err, ErrInvalidCourse) {
		t.Fatalf("invalid url: %v", err)
	}

	listing, err := svc.ListDocuments(ctx, "4711")
	if err != nil || len(listing.Documents) != 0 {
		t.Fatalf("listing: %+v err=%v", listing, err)
	}
}

type fakeLookup struct{ store *storebroker.Result }

func (f fakeLookup) Lookup(context.Context, string) (*storebroker.Result, error) { return f.store, nil }

type fakeQuerier struct {
	calls   int
	lastReq retrieval.QueryRequest
}

func (q *fakeQuerier) Query(_ context.Context, storeID string, req retrieval.QueryRequest) (*retrieval.Answer, error) {
	q.calls++
	q.lastReq = req
	return &retrieval.Answer{Text: "answer to " + req.Question, Citations: []retrieval.Citation{{DocumentID: "d-1"}}}, nil
}

func TestAskRecordsHistoryAndEnforcesQuota(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	set := repos.NewSet(db, log)
	gate := quota.NewGate(log, set.UsageWindow, nil, quota.Options{Ceiling: 2, Clock: quartz.NewMock(t)})
	querier := &fakeQuerier{}
	svc := NewChatService(log, set.ChatSession, fakeLookup{store: &storebroker.Result{StoreID: "s-1"}}, querier, gate)
	ctx := context.Background()

	for _, q := range []string{"what is a pole?", "and a zero?"} {
		reply, err := svc.Ask(ctx, "u-1", "4711", AskRequest{Question: q})
		if err != nil {
			t.Fatalf("ask %q: %v", q, err)
		}
		if reply.Answer != "answer to "+q || len(reply.Citations) != 1 {
			t.Fatalf("reply=%+v", reply)
		}
	}
	if len(querier.lastReq.History) != 2 || querier.lastReq.TopK != defaultTopK {
		t.Fatalf("second query should carry the first exchange: %+v", querier.lastReq)
	}

	_, err := svc.Ask(ctx, "u-1", "4711", AskRequest{Question: "one more"})
	var qe *QuotaExceededError
	if !errors.As(err, &qe) || qe.Decision.ResetIn <= 0 {
		t.Fatalf("third question should hit the quota: %v", err)
	}
	if querier.calls != 2 {
		t.Fatalf("blocked request reached the store: calls=%d", querier.calls)
	}

	history, err := svc.History(ctx, "u-1", "4711")
	if err != nil || len(history) != 4 {
		t.Fatalf("history=%+v err=%v", history, err)
	}
}

func TestAskRequiresScannedCourse(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	set := repos.NewSet(db, log)
	gate := quota.NewGate(log, set.UsageWindow, nil, quota.Options{})
	svc := NewChatService(log, set.ChatSession, fakeLookup{}, &fakeQuerier{}, gate)

	if _, err := svc.Ask(context.Background(), "u-1", "4711", AskRequest{Question: "hi"}); !errors.Is(err, ErrCourseNotReady) {
		t.Fatalf("got %v", err)
	}
	if _, err := svc.Ask(context.Background(), "u-1", "4711", AskRequest{Question: "  "}); !errors.Is(err, ErrEmptyQuestion) {
		t.Fatalf("got %v", err)
	}
}

func TestCompletionRecordedOnce(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	set := repos.NewSet(db, log)
	ctx := context.Background()
	dbc := dbctx.New(ctx)

	courses := NewCourseService(log, set.Course, set.Enrollment, set.DocumentRecord)
	if _, err := courses.Detect(ctx, "u-1", DetectRequest{CourseID: "4711", SourceURL: "https://lms.example.edu/courses/4711"}); err != nil {
		t.Fatalf("detect: %v", err)
	}

	relay := realtime.NewRelay(log, bus.NewMemoryBus(), nil, realtime.NewMemoryDeduper(quartz.NewMock(t), time.Hour))
	NewCompletionRecorder(log, set.Course).Register(relay)
	if err := relay.Arm(ctx, "4711"); err != nil {
		t.Fatalf("arm: %v", err)
	}

	msg, err := realtime.NewMessage("4711", realtime.EventScanComplete, "done", realtime.ScanCompleteData{DocumentCount: 6, Result: "complete"})
	if err != nil {
		t.Fatalf("message: %v", err)
	}
	msg.IdempotencyKey = realtime.CompletionKey("4711", 6)
	for i := 0; i < 2; i++ {
		if err := relay.Publish(ctx, msg); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	course, err := set.Course.GetByID(dbc, "4711")
	if err != nil || course == nil {
		t.Fatalf("course: %+v err=%v", course, err)
	}
	if course.ScanCount != 1 || course.DocumentCount != 6 || course.LastScanResult != "complete" {
		t.Fatalf("completion should be saved exactly once: %+v", course)
	}
}
