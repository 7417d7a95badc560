package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"

	types "github.com/Rasalp1/canvas-lm-sub000/internal/domain"
	"github.com/Rasalp1/canvas-lm-sub000/internal/ingest/snapshot"
	"github.com/Rasalp1/canvas-lm-sub000/internal/ingest/storebroker"
	"github.com/Rasalp1/canvas-lm-sub000/internal/ingest/upload"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/crawler"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/dbctx"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/logger"
	"github.com/Rasalp1/canvas-lm-sub000/internal/realtime"
)

type fakeCrawler struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *fakeCrawler) Start(context.Context, crawler.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

type fakeStores struct {
	mu          sync.Mutex
	displayName string
	createdBy   string
}

func (f *fakeStores) GetOrCreateStore(_ context.Context, courseKey, displayName, createdBy string) (storebroker.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if displayName == "" {
		return storebroker.Result{}, errors.New("display name required")
	}
	f.displayName, f.createdBy = displayName, createdBy
	return storebroker.Result{StoreID: "store-" + courseKey, DisplayName: displayName}, nil
}

type fakeCourses map[string]*types.Course

func (f fakeCourses) GetByID(_ dbctx.Context, id string) (*types.Course, error) {
	return f[id], nil
}

// failingWrites rejects every snapshot write.
type failingWrites struct {
	*snapshot.MemoryStore
}

func (failingWrites) Write(context.Context, types.ScanSnapshot) error {
	return errors.New("snapshot store unavailable")
}

type fakeUploads struct {
	result types.ScanResult
	calls  int
}

func (f *fakeUploads) Process(_ context.Context, _, _ string, candidates []types.CandidateDocument, onProgress upload.ProgressFunc) (types.ScanResult, error) {
	f.calls++
	for i := range candidates {
		onProgress(i+1, len(candidates))
	}
	return f.result, nil
}

type recordingRelay struct {
	mu       sync.Mutex
	messages []realtime.Message
	armed    int
}

func (r *recordingRelay) Publish(_ context.Context, msg realtime.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return nil
}

func (r *recordingRelay) Arm(context.Context, string) error {
	r.mu.Lock()
	r.armed++
	r.mu.Unlock()
	return nil
}

func (r *recordingRelay) Disarm(string) {
	r.mu.Lock()
	r.armed--
	r.mu.Unlock()
}

func (r *recordingRelay) count(event realtime.Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.messages {
		if m.Event == event {
			n++
		}
	}
	return n
}

type harness struct {
	clock   *quartz.Mock
	store   *snapshot.MemoryStore
	relay   *recordingRelay
	crawler *fakeCrawler
	stores  *fakeStores
	uploads *fakeUploads
	mgr     *Manager
}

func newHarness(t *testing.T, overrides ...func(*Deps)) *harness {
	t.Helper()
	h := &harness{
		clock:   quartz.NewMock(t),
		store:   snapshot.NewMemoryStore(),
		relay:   &recordingRelay{},
		crawler: &fakeCrawler{},
		stores:  &fakeStores{},
		uploads: &fakeUploads{result: types.ScanResult{Discovered: 2, Uploaded: 2}},
	}
	deps := Deps{
		Log:       logger.NewNop(),
		Clock:     h.clock,
		Snapshots: h.store,
		Relay:     h.relay,
		Crawler:   h.crawler,
		Stores:    h.stores,
		Uploads:   h.uploads,
	}
	for _, o := range overrides {
		o(&deps)
	}
	h.mgr = NewManager(deps, Options{
		HealthInterval: time.Hour,
		CrawlerBackoff: time.Millisecond,
	})
	t.Cleanup(h.mgr.Close)
	return h
}

func (h *harness) controller(t *testing.T, courseID string) *Controller {
	t.Helper()
	c, err := h.mgr.Controller(context.Background(), courseID)
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	return c
}

func testSession(courseID string) Session {
	return Session{
		UserID: "u-1",
		Course: types.CourseSession{CourseID: courseID, DisplayName: "Linear Algebra", SourceURL: "https://lms.example.edu/courses/" + courseID},
	}
}

func docs(urls ...string) []types.CandidateDocument {
	out := make([]types.CandidateDocument, 0, len(urls))
	for _, u := range urls {
		out = append(out, types.CandidateDocument{SourceURL: u, ContentType: "application/pdf"})
	}
	return out
}

func TestRecoverOnInitClearsAbandonedScan(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.store.Write(ctx, types.ScanSnapshot{
		CourseID:  "c-1",
		Status:    types.SnapshotScanning,
		Timestamp: h.clock.Now().Add(-6 * time.Minute).UnixMilli(),
	})

	c := h.controller(t, "c-1")
	if st := c.Status(); st.Status != types.ScanIdle {
		t.Fatalf("status=%s want idle", st.Status)
	}
	if snap, _ := h.store.Read(ctx, "c-1"); snap != nil {
		t.Fatalf("abandoned snapshot should be removed, got %+v", snap)
	}
}

func TestRecoverOnInitResumesRecentScan(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.store.Write(ctx, types.ScanSnapshot{
		CourseID:  "c-1",
		Status:    types.SnapshotScanning,
		Timestamp: h.clock.Now().Add(-time.Minute).UnixMilli(),
	})

	c := h.controller(t, "c-1")
	st := c.Status()
	if st.Status != types.ScanScanning {
		t.Fatalf("status=%s want scanning", st.Status)
	}
	if st.ProgressPercent <= 0 || st.ProgressPercent >= 95 {
		t.Fatalf("progress=%d want between 0 and 95", st.ProgressPercent)
	}
	if h.relay.armed != 1 {
		t.Fatalf("resumed scan should arm the relay, armed=%d", h.relay.armed)
	}
	if _, err := c.StartScan(ctx, testSession("c-1"), false); !errors.Is(err, ErrScanInProgress) {
		t.Fatalf("start during resumed scan: %v", err)
	}
}

func TestRecoverOnInitShowsCompletionOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	n := 7
	_ = h.store.Write(ctx, types.ScanSnapshot{
		CourseID:  "c-1",
		Status:    types.SnapshotComplete,
		Timestamp: h.clock.Now().Add(-10 * time.Second).UnixMilli(),
		PDFCount:  &n,
	})

	c := h.controller(t, "c-1")
	first := c.Status()
	if first.Status != types.ScanComplete || first.ProgressPercent != 100 {
		t.Fatalf("first status=%+v", first)
	}
	if second := c.Status(); second.Status != types.ScanIdle {
		t.Fatalf("terminal state should collapse to idle, got %s", second.Status)
	}
}

func TestScanLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.controller(t, "c-1")

	st, err := c.StartScan(ctx, testSession("c-1"), false)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if st.Status != types.ScanScanning || h.crawler.calls != 1 {
		t.Fatalf("status=%s crawler calls=%d", st.Status, h.crawler.calls)
	}
	if snap, _ := h.store.Read(ctx, "c-1"); snap == nil || snap.Status != types.SnapshotScanning {
		t.Fatalf("scanning snapshot not persisted: %+v", snap)
	}

	h.clock.Advance(30 * time.Second)
	if !c.OnScanProgress(ctx, Progress{Discovered: 1, StatusText: "Reading modules"}) {
		t.Fatalf("progress during scanning should apply")
	}
	mid := c.Status()
	if mid.StatusText != "Reading modules" || mid.ProgressPercent == 0 {
		t.Fatalf("mid status=%+v", mid)
	}

	res, err := c.OnScanComplete(ctx, docs("https://lms.example.edu/a.pdf", "https://lms.example.edu/b.pdf"))
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res.Uploaded != 2 {
		t.Fatalf("result=%+v", res)
	}
	if _, err := c.OnScanComplete(ctx, docs("https://lms.example.edu/a.pdf")); !errors.Is(err, ErrNotScanning) {
		t.Fatalf("second completion: %v", err)
	}
	if h.uploads.calls != 1 || h.relay.count(realtime.EventScanComplete) != 1 {
		t.Fatalf("uploads=%d completions=%d", h.uploads.calls, h.relay.count(realtime.EventScanComplete))
	}
	if c.OnScanProgress(ctx, Progress{StatusText: "late"}) {
		t.Fatalf("progress after completion should be ignored")
	}

	snap, _ := h.store.Read(ctx, "c-1")
	if snap == nil || snap.Status != types.SnapshotComplete || snap.PDFCount == nil || *snap.PDFCount != 2 {
		t.Fatalf("complete snapshot=%+v", snap)
	}

	done := c.Status()
	if done.Status != types.ScanComplete || done.ProgressPercent != 100 || done.Result == nil {
		t.Fatalf("done=%+v", done)
	}
	if c.Status().Status != types.ScanIdle {
		t.Fatalf("terminal state should be reported once")
	}
}

func TestProgressIgnoredWhenIdle(t *testing.T) {
	h := newHarness(t)
	c := h.controller(t, "c-1")
	if c.OnScanProgress(context.Background(), Progress{StatusText: "x"}) {
		t.Fatalf("idle controller accepted progress")
	}
	if h.relay.count(realtime.EventScanProgress) != 0 {
		t.Fatalf("no progress should be published")
	}
}

func TestStartScanRefusedByLiveSnapshot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// A second process sharing the snapshot store.
	other := NewManager(Deps{
		Log:       logger.NewNop(),
		Clock:     h.clock,
		Snapshots: h.store,
		Relay:     &recordingRelay{},
		Crawler:   &fakeCrawler{},
		Stores:    &fakeStores{},
		Uploads:   &fakeUploads{},
	}, Options{HealthInterval: time.Hour})
	defer other.Close()
	c2, _ := other.Controller(ctx, "c-1")

	if _, err := h.controller(t, "c-1").StartScan(ctx, testSession("c-1"), false); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := c2.StartScan(ctx, testSession("c-1"), false); !errors.Is(err, ErrScanInProgress) {
		t.Fatalf("expected ErrScanInProgress, got %v", err)
	}

	// Once the heartbeat goes stale the course can be scanned again.
	h.clock.Advance(6 * time.Minute).MustWait(ctx)
	if _, err := c2.StartScan(ctx, testSession("c-1"), false); err != nil {
		t.Fatalf("start over stale snapshot: %v", err)
	}
}

func TestStartScanValidatesSession(t *testing.T) {
	h := newHarness(t)
	c := h.controller(t, "c-1")
	if _, err := c.StartScan(context.Background(), Session{Course: types.CourseSession{CourseID: "c-1"}}, false); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("got %v", err)
	}
	if _, err := c.StartScan(context.Background(), Session{UserID: "u-1"}, false); !errors.Is(err, ErrNoCourse) {
		t.Fatalf("got %v", err)
	}
}

func TestCrawlerFailure(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		wantCalls int
	}{
		{"rejected is not retried", crawler.ErrRejected, 1},
		{"unreachable is retried", crawler.ErrUnreachable, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.crawler.err = tc.err
			ctx := context.Background()
			c := h.controller(t, "c-1")

			st, err := c.StartScan(ctx, testSession("c-1"), false)
			if !errors.Is(err, ErrCrawlerFailed) {
				t.Fatalf("err=%v", err)
			}
			if st.Status != types.ScanFailed || st.Error == "" {
				t.Fatalf("state=%+v", st)
			}
			if h.crawler.calls != tc.wantCalls {
				t.Fatalf("calls=%d want %d", h.crawler.calls, tc.wantCalls)
			}
			if snap, _ := h.store.Read(ctx, "c-1"); snap != nil {
				t.Fatalf("failed scan should not leave a snapshot")
			}
			if h.relay.count(realtime.EventScanFailed) != 1 {
				t.Fatalf("scan_failed not published")
			}
		})
	}
}

func TestHealthCheckRecoversLostSnapshot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.controller(t, "c-1")
	if _, err := c.StartScan(ctx, testSession("c-1"), false); err != nil {
		t.Fatalf("start: %v", err)
	}
	_ = h.store.Remove(ctx, "c-1")

	if !c.monitor.Check(ctx) {
		t.Fatalf("missing snapshot should trigger recovery")
	}
	if c.Active() {
		t.Fatalf("controller should be idle after recovery")
	}
	if h.relay.count(realtime.EventSessionRecovered) != 1 || h.relay.armed != 0 {
		t.Fatalf("recovered=%d armed=%d", h.relay.count(realtime.EventSessionRecovered), h.relay.armed)
	}
	if _, err := c.OnScanComplete(ctx, docs("https://lms.example.edu/a.pdf")); !errors.Is(err, ErrNotScanning) {
		t.Fatalf("late completion after recovery: %v", err)
	}
}

func TestSessionTimeoutFailsScan(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.controller(t, "c-1")
	if _, err := c.StartScan(ctx, testSession("c-1"), false); err != nil {
		t.Fatalf("start: %v", err)
	}

	h.clock.Advance(10 * time.Minute).MustWait(ctx)

	st := c.Status()
	if st.Status != types.ScanFailed {
		t.Fatalf("status=%s want failed", st.Status)
	}
	if h.relay.count(realtime.EventScanFailed) != 1 {
		t.Fatalf("scan_failed not published")
	}
}

func TestRecoverAll(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, id := range []string{"c-1", "c-2"} {
		_ = h.store.Write(ctx, types.ScanSnapshot{CourseID: id, Status: types.SnapshotScanning, Timestamp: h.clock.Now().UnixMilli()})
	}
	n, err := h.mgr.RecoverAll(ctx)
	if err != nil || n != 2 {
		t.Fatalf("n=%d err=%v", n, err)
	}
	for _, id := range []string{"c-1", "c-2"} {
		c, ok := h.mgr.Lookup(id)
		if !ok || !c.Active() {
			t.Fatalf("%s should be resumed", id)
		}
	}
}

func TestScanErrorFailsWithDetail(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.controller(t, "c-1")
	if _, err := c.StartScan(ctx, testSession("c-1"), false); err != nil {
		t.Fatalf("start: %v", err)
	}

	if !c.OnScanError(ctx, "Could not read the course page", "selector .modules not found") {
		t.Fatalf("error during scanning should apply")
	}
	if c.OnScanError(ctx, "again", "") {
		t.Fatalf("second error should be ignored")
	}
	if snap, _ := h.store.Read(ctx, "c-1"); snap != nil {
		t.Fatalf("failed scan left snapshot %+v", snap)
	}

	h.relay.mu.Lock()
	last := h.relay.messages[len(h.relay.messages)-1]
	h.relay.mu.Unlock()
	if last.Event != realtime.EventScanFailed || last.Summary != "Could not read the course page" || last.Detail != "selector .modules not found" {
		t.Fatalf("failure message=%+v", last)
	}
	if st := c.Status(); st.Status != types.ScanFailed || st.Error != "Could not read the course page" {
		t.Fatalf("state=%+v", st)
	}
}

func TestResumedScanCompletesIntoCourseStore(t *testing.T) {
	cases := []struct {
		name     string
		courses  fakeCourses
		wantName string
	}{
		{
			name:     "course reloaded",
			courses:  fakeCourses{"c-1": {ID: "c-1", DisplayName: "Linear Algebra", SourceURL: "https://lms.example.edu/courses/c-1"}},
			wantName: "Linear Algebra",
		},
		{
			name:     "unknown course falls back to id",
			courses:  fakeCourses{},
			wantName: "c-1",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, func(d *Deps) { d.Courses = tc.courses })
			ctx := context.Background()
			_ = h.store.Write(ctx, types.ScanSnapshot{
				CourseID:    "c-1",
				Status:      types.SnapshotScanning,
				Timestamp:   h.clock.Now().Add(-time.Minute).UnixMilli(),
				RequestedBy: "u-1",
			})

			c := h.controller(t, "c-1")
			if !c.Active() {
				t.Fatalf("scan should be resumed")
			}
			res, err := c.OnScanComplete(ctx, docs("https://lms.example.edu/a.pdf", "https://lms.example.edu/b.pdf"))
			if err != nil {
				t.Fatalf("complete after resume: %v", err)
			}
			if res.Uploaded != 2 {
				t.Fatalf("result=%+v", res)
			}
			if h.stores.displayName != tc.wantName || h.stores.createdBy != "u-1" {
				t.Fatalf("store created with name=%q by=%q", h.stores.displayName, h.stores.createdBy)
			}
			if st := c.Status(); st.Status != types.ScanComplete {
				t.Fatalf("status=%s want complete", st.Status)
			}
		})
	}
}

func TestLateHeartbeatKeepsCompletionSnapshot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.controller(t, "c-1")
	if _, err := c.StartScan(ctx, testSession("c-1"), false); err != nil {
		t.Fatalf("start: %v", err)
	}
	ep := c.currentEpoch()
	if _, err := c.OnScanComplete(ctx, docs("https://lms.example.edu/a.pdf", "https://lms.example.edu/b.pdf")); err != nil {
		t.Fatalf("complete: %v", err)
	}

	// A heartbeat from the scanning phase lands after completion.
	c.heartbeat(ctx, ep, h.clock.Now())

	snap, _ := h.store.Read(ctx, "c-1")
	if snap == nil || snap.Status != types.SnapshotComplete || snap.PDFCount == nil || *snap.PDFCount != 2 {
		t.Fatalf("completion snapshot lost: %+v", snap)
	}
}

func TestLateHeartbeatAfterFailureLeavesNoSnapshot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.controller(t, "c-1")
	if _, err := c.StartScan(ctx, testSession("c-1"), false); err != nil {
		t.Fatalf("start: %v", err)
	}
	ep := c.currentEpoch()
	c.OnScanError(ctx, "failed", "")

	c.heartbeat(ctx, ep, h.clock.Now())

	if snap, _ := h.store.Read(ctx, "c-1"); snap != nil {
		t.Fatalf("failed scan left snapshot %+v", snap)
	}
}

func TestStartScanSnapshotFailureDisarms(t *testing.T) {
	h := newHarness(t, func(d *Deps) {
		d.Snapshots = failingWrites{MemoryStore: snapshot.NewMemoryStore()}
	})
	ctx := context.Background()
	c := h.controller(t, "c-1")

	if _, err := c.StartScan(ctx, testSession("c-1"), false); err == nil {
		t.Fatalf("start should fail when the snapshot cannot be persisted")
	}
	if c.Active() {
		t.Fatalf("controller should be idle after a failed start")
	}
	if h.relay.armed != 0 {
		t.Fatalf("relay left armed: %d", h.relay.armed)
	}
	if h.crawler.calls != 0 {
		t.Fatalf("crawler should not be started, calls=%d", h.crawler.calls)
	}
}
