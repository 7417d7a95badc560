package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	types "github.com/Rasalp1/canvas-lm-sub000/internal/domain"
	"github.com/Rasalp1/canvas-lm-sub000/internal/ingest/health"
	"github.com/Rasalp1/canvas-lm-sub000/internal/ingest/progress"
	"github.com/Rasalp1/canvas-lm-sub000/internal/observability"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/crawler"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/dbctx"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/logger"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/schedule"
	"github.com/Rasalp1/canvas-lm-sub000/internal/realtime"
)

const (
	msgCrawlerUnavailable = "Couldn't reach the course scanner. Check your connection and start the scan again."
	msgStoreUnavailable   = "Couldn't prepare the course library. Please try the scan again later."
	msgUploadFailed       = "Uploading course documents failed. Please try the scan again."
	msgTimedOut           = "The scan took too long and was stopped. Please start it again."
)

// Controller runs one course's scan state machine. Handlers are serialized by mu and
// never hold it across I/O; results of I/O are applied only if epoch is unchanged.
type Controller struct {
	courseID string
	deps     Deps
	opts     Options
	log      *logger.Logger
	monitor  *health.Monitor
	initOnce sync.Once

	mu           sync.Mutex
	epoch        uint64
	state        types.ScanState
	session      Session
	tracker      progress.Tracker
	phaseStart   time.Time
	estimate     time.Duration
	uploadBase   int
	uploadDone   int
	uploadTotal  int
	timeout      *schedule.Handle
	grace        *schedule.Handle
	cancelUpload context.CancelFunc
	armed        bool
	// completion is the snapshot written by complete, kept until the grace period ends.
	completion *types.ScanSnapshot
}

func newController(courseID string, deps Deps, opts Options) *Controller {
	c := &Controller{
		courseID: courseID,
		deps:     deps,
		opts:     opts,
		log:      deps.Log.With("service", "SessionController", "course_id", courseID),
		state:    types.ScanState{CourseID: courseID, Status: types.ScanIdle},
	}
	c.monitor = health.NewMonitor(deps.Log, deps.Clock, deps.Snapshots, courseID, c, health.Options{
		Interval:  opts.HealthInterval,
		Staleness: opts.Staleness,
	})
	return c
}

func (c *Controller) CourseID() string { return c.courseID }

// Active reports whether the controller is scanning or uploading.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Status.Active()
}

// Phase is the current status without the read-once collapse of Status.
func (c *Controller) Phase() types.ScanStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Status
}

// Status returns the current state. A terminal state is returned once and then
// collapses to idle.
func (c *Controller) Status() types.ScanState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Status.Active() {
		c.refreshProgressLocked()
	}
	out := c.state
	if out.Result != nil {
		r := *out.Result
		out.Result = &r
	}
	if c.state.Status.Terminal() {
		c.state = c.idleState()
	}
	return out
}

func (c *Controller) StartScan(ctx context.Context, sess Session, isRescan bool) (types.ScanState, error) {
	if strings.TrimSpace(sess.UserID) == "" {
		return types.ScanState{}, ErrNotAuthenticated
	}
	if sess.Course.CourseID == "" || sess.Course.CourseID != c.courseID {
		return types.ScanState{}, ErrNoCourse
	}
	if c.Active() {
		return types.ScanState{}, ErrScanInProgress
	}

	snap, err := c.deps.Snapshots.Read(ctx, c.courseID)
	if err != nil {
		return types.ScanState{}, fmt.Errorf("read scan snapshot: %w", err)
	}
	now := c.deps.Clock.Now()
	if snap != nil && snap.Status == types.SnapshotScanning {
		// Another process (or user) holds a live scan; a stale one is cleared instead.
		if snap.Age(now) <= c.opts.Staleness {
			return types.ScanState{}, ErrScanInProgress
		}
		c.log.Info("clearing abandoned scan snapshot before start", "age", snap.Age(now).String())
	}

	c.mu.Lock()
	if c.state.Status.Active() {
		c.mu.Unlock()
		return types.ScanState{}, ErrScanInProgress
	}
	c.epoch++
	ep := c.epoch
	c.stopTimersLocked()
	c.session = sess
	c.completion = nil
	c.tracker.Reset()
	c.phaseStart = now
	c.estimate = c.opts.CrawlEstimate
	c.uploadBase, c.uploadDone, c.uploadTotal = 0, 0, 0
	c.state = types.ScanState{
		CourseID:              c.courseID,
		Status:                types.ScanScanning,
		StartedAt:             now,
		LastUpdatedAt:         now,
		EstimatedTotalSeconds: int(c.estimate / time.Second),
		StatusText:            "Scanning course for documents",
	}
	c.refreshProgressLocked()
	needArm := !c.armed
	c.armed = true
	c.mu.Unlock()

	if needArm {
		if err := c.deps.Relay.Arm(ctx, c.courseID); err != nil {
			c.log.Warn("relay arm failed; clients will poll", "error", err)
		}
	}
	if err := c.deps.Snapshots.Write(ctx, types.ScanSnapshot{
		CourseID:    c.courseID,
		Status:      types.SnapshotScanning,
		Timestamp:   now.UnixMilli(),
		RequestedBy: sess.UserID,
	}); err != nil {
		c.resetIfEpoch(ep)
		return types.ScanState{}, fmt.Errorf("persist scan snapshot: %w", err)
	}
	c.monitor.Start(ctx)
	c.mu.Lock()
	if c.epoch == ep {
		c.timeout = schedule.After(c.deps.Clock, c.opts.SessionTimeout, func() { c.onTimeout(ep) }, "timeout", c.courseID)
	}
	c.mu.Unlock()

	c.deps.Metrics.ScanStarted()
	c.publish(ctx, realtime.EventScanStarted, "Scan started", "", c.progressData())
	c.log.Info("scan started", "user_id", sess.UserID, "rescan", isRescan)

	if err := c.startCrawler(ctx, sess, isRescan); err != nil {
		c.fail(ctx, ep, msgCrawlerUnavailable, err.Error())
		return c.snapshotState(), fmt.Errorf("%w: %v", ErrCrawlerFailed, err)
	}
	return c.snapshotState(), nil
}

// startCrawler makes a bounded number of attempts with exponential backoff. A request
// the crawler rejects outright is not retried.
func (c *Controller) startCrawler(ctx context.Context, sess Session, isRescan bool) error {
	ctx = context.WithoutCancel(ctx)
	req := crawler.Request{
		CourseID:    c.courseID,
		SourceURL:   sess.Course.SourceURL,
		Rescan:      isRescan,
		RequestedBy: sess.UserID,
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.opts.CrawlerBackoff
	eb.MaxElapsedTime = 0
	bkoff := backoff.WithMaxRetries(backoff.WithContext(eb, ctx), uint64(c.opts.CrawlerAttempts-1))

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := c.deps.Crawler.Start(ctx, req)
		if err == nil {
			return nil
		}
		if errors.Is(err, crawler.ErrRejected) {
			return backoff.Permanent(err)
		}
		c.log.Warn("crawler start attempt failed", "attempt", attempt, "error", err)
		return err
	}, bkoff)
}

// OnScanProgress applies a crawler heartbeat. It is ignored outside the scanning phase.
func (c *Controller) OnScanProgress(ctx context.Context, p Progress) bool {
	c.mu.Lock()
	if c.state.Status != types.ScanScanning {
		c.mu.Unlock()
		return false
	}
	now := c.deps.Clock.Now()
	c.state.LastUpdatedAt = now
	if p.StatusText != "" {
		c.state.StatusText = p.StatusText
	}
	c.refreshProgressLocked()
	ep := c.epoch
	c.mu.Unlock()

	c.heartbeat(ctx, ep, now)
	data := c.progressData()
	data.Discovered = p.Discovered
	if c.currentEpoch() == ep {
		c.publish(ctx, realtime.EventScanProgress, "", "", data)
	}
	return true
}

// OnScanComplete uploads the crawl's candidates and finishes the scan. Only the first
// completion of a scan is acted on.
func (c *Controller) OnScanComplete(ctx context.Context, candidates []types.CandidateDocument) (types.ScanResult, error) {
	ctx, span := observability.Tracer().Start(ctx, "scan.complete")
	defer span.End()
	span.SetAttributes(attribute.String("course_id", c.courseID), attribute.Int("candidates", len(candidates)))

	c.mu.Lock()
	if c.state.Status != types.ScanScanning {
		c.mu.Unlock()
		return types.ScanResult{}, ErrNotScanning
	}
	ep := c.epoch
	now := c.deps.Clock.Now()
	c.uploadBase = c.tracker.Observe(c.rawProgressLocked(now))
	c.uploadTotal = distinct(candidates)
	c.uploadDone = 0
	c.phaseStart = now
	c.estimate = progress.UploadEstimate(c.uploadTotal, c.opts.PerDocument)
	c.state.Status = types.ScanUploading
	c.state.LastUpdatedAt = now
	c.state.EstimatedTotalSeconds = int(now.Sub(c.state.StartedAt)/time.Second) + int(c.estimate/time.Second)
	c.state.StatusText = fmt.Sprintf("Uploading %d documents", c.uploadTotal)
	c.refreshProgressLocked()
	uploadCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancelUpload = cancel
	sess := c.session
	c.mu.Unlock()
	defer cancel()

	c.heartbeat(ctx, ep, now)
	c.publish(ctx, realtime.EventUploadProgress, "", "", c.progressData())

	displayName := strings.TrimSpace(sess.Course.DisplayName)
	if displayName == "" {
		displayName = c.courseID
	}
	store, err := c.deps.Stores.GetOrCreateStore(uploadCtx, c.courseID, displayName, sess.UserID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store")
		if uploadCtx.Err() != nil {
			return types.ScanResult{}, ErrSessionReset
		}
		c.fail(ctx, ep, msgStoreUnavailable, err.Error())
		return types.ScanResult{}, fmt.Errorf("resolve course store: %w", err)
	}

	result, err := c.deps.Uploads.Process(uploadCtx, c.courseID, store.StoreID, candidates, func(done, total int) {
		c.onUploadProgress(ctx, ep, done, total)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload")
		if errors.Is(err, context.Canceled) {
			return result, ErrSessionReset
		}
		c.fail(ctx, ep, msgUploadFailed, err.Error())
		return result, err
	}

	if !c.complete(ctx, ep, result) {
		return result, ErrSessionReset
	}
	span.SetAttributes(attribute.Int("uploaded", result.Uploaded), attribute.Bool("up_to_date", result.UpToDate))
	return result, nil
}

func (c *Controller) onUploadProgress(ctx context.Context, ep uint64, done, total int) {
	c.mu.Lock()
	if c.epoch != ep || c.state.Status != types.ScanUploading {
		c.mu.Unlock()
		return
	}
	c.uploadDone = done
	c.uploadTotal = total
	c.state.LastUpdatedAt = c.deps.Clock.Now()
	c.state.StatusText = fmt.Sprintf("Uploaded %d of %d documents", done, total)
	c.refreshProgressLocked()
	now := c.state.LastUpdatedAt
	c.mu.Unlock()

	c.heartbeat(ctx, ep, now)
	c.publish(ctx, realtime.EventUploadProgress, "", "", c.progressData())
}

// heartbeat refreshes the scanning snapshot so the health monitor sees a live session.
// A write that raced a state change is replaced by whatever the current state persists.
func (c *Controller) heartbeat(ctx context.Context, ep uint64, now time.Time) {
	c.mu.Lock()
	requestedBy := c.session.UserID
	c.mu.Unlock()
	if err := c.deps.Snapshots.Write(ctx, types.ScanSnapshot{
		CourseID:    c.courseID,
		Status:      types.SnapshotScanning,
		Timestamp:   now.UnixMilli(),
		RequestedBy: requestedBy,
	}); err != nil {
		c.log.Warn("heartbeat snapshot write failed", "error", err)
		return
	}
	c.mu.Lock()
	if c.epoch == ep && c.state.Status.Active() {
		c.mu.Unlock()
		return
	}
	current := c.persistedLocked()
	c.mu.Unlock()

	if current == nil {
		if err := c.deps.Snapshots.Remove(ctx, c.courseID); err != nil {
			c.log.Warn("snapshot remove failed", "error", err)
		}
		return
	}
	if err := c.deps.Snapshots.Write(ctx, *current); err != nil {
		c.log.Warn("snapshot restore failed", "status", current.Status, "error", err)
	}
}

// persistedLocked is the snapshot the current state should have on record, or nil when
// none should exist.
func (c *Controller) persistedLocked() *types.ScanSnapshot {
	if c.state.Status.Active() {
		return &types.ScanSnapshot{
			CourseID:    c.courseID,
			Status:      types.SnapshotScanning,
			Timestamp:   c.state.LastUpdatedAt.UnixMilli(),
			RequestedBy: c.session.UserID,
		}
	}
	if c.completion != nil {
		snap := *c.completion
		return &snap
	}
	return nil
}

func (c *Controller) complete(ctx context.Context, ep uint64, result types.ScanResult) bool {
	c.mu.Lock()
	if c.epoch != ep {
		c.mu.Unlock()
		return false
	}
	now := c.deps.Clock.Now()
	started := c.state.StartedAt
	c.stopTimersLocked()
	c.state.Status = types.ScanComplete
	c.state.Result = &result
	c.state.ProgressPercent = c.tracker.Complete()
	c.state.TimeLeftSeconds = 0
	c.state.LastUpdatedAt = now
	if result.UpToDate {
		c.state.StatusText = "Already up to date"
	} else {
		c.state.StatusText = fmt.Sprintf("Scan complete: %d documents ready", result.DocumentCount())
	}
	c.grace = schedule.After(c.deps.Clock, c.opts.CompleteGrace, func() { c.expire(ep) }, "grace", c.courseID)
	count := result.DocumentCount()
	c.completion = &types.ScanSnapshot{
		CourseID:    c.courseID,
		Status:      types.SnapshotComplete,
		Timestamp:   now.UnixMilli(),
		PDFCount:    &count,
		RequestedBy: c.session.UserID,
	}
	snap := *c.completion
	c.mu.Unlock()
	c.monitor.Stop()

	if err := c.deps.Snapshots.Write(ctx, snap); err != nil {
		c.log.Warn("complete snapshot write failed", "error", err)
	}

	outcome := "complete"
	if result.UpToDate {
		outcome = "up_to_date"
	}
	c.deps.Metrics.ScanFinished(outcome, now.Sub(started))

	msg, err := realtime.NewMessage(c.courseID, realtime.EventScanComplete, c.statusText(), realtime.ScanCompleteData{
		DocumentCount: count,
		Result:        outcome,
		Uploaded:      result.Uploaded,
		Skipped:       result.Skipped,
		Failed:        result.Failed,
		UpToDate:      result.UpToDate,
	})
	if err == nil {
		msg.IdempotencyKey = realtime.CompletionKey(c.courseID, count)
		if len(result.Inconsistent) > 0 {
			msg.Detail = fmt.Sprintf("%d documents uploaded without saved metadata: %s",
				len(result.Inconsistent), strings.Join(result.Inconsistent, ", "))
		}
		c.send(ctx, msg)
	}
	c.log.Info("scan complete", "documents", count, "uploaded", result.Uploaded, "failed", result.Failed, "up_to_date", result.UpToDate)
	return true
}

// OnScanError records a crawler-reported failure.
func (c *Controller) OnScanError(ctx context.Context, summary, detail string) bool {
	c.mu.Lock()
	ep := c.epoch
	active := c.state.Status.Active()
	c.mu.Unlock()
	if !active {
		return false
	}
	if strings.TrimSpace(summary) == "" {
		summary = "The course scan failed. Please try again."
	}
	return c.fail(ctx, ep, summary, detail)
}

func (c *Controller) fail(ctx context.Context, ep uint64, summary, detail string) bool {
	c.mu.Lock()
	if c.epoch != ep || !c.state.Status.Active() {
		c.mu.Unlock()
		return false
	}
	now := c.deps.Clock.Now()
	started := c.state.StartedAt
	c.stopTimersLocked()
	c.state.Status = types.ScanFailed
	c.state.Error = summary
	c.state.StatusText = summary
	c.state.TimeLeftSeconds = 0
	c.state.LastUpdatedAt = now
	c.grace = schedule.After(c.deps.Clock, c.opts.CompleteGrace, func() { c.expire(ep) }, "grace", c.courseID)
	c.mu.Unlock()
	c.monitor.Stop()

	if err := c.deps.Snapshots.Remove(ctx, c.courseID); err != nil {
		c.log.Warn("snapshot remove failed", "error", err)
	}
	c.deps.Metrics.ScanFinished("failed", now.Sub(started))
	c.publish(ctx, realtime.EventScanFailed, summary, detail, nil)
	c.log.Warn("scan failed", "summary", summary, "detail", detail)
	return true
}

func (c *Controller) onTimeout(ep uint64) {
	c.log.Warn("scan exceeded session timeout")
	c.fail(context.Background(), ep, msgTimedOut, fmt.Sprintf("no completion within %s", c.opts.SessionTimeout))
}

// Recover resets an active session to idle. It is the health monitor's hook and is
// also used when a session is found without a live scan behind it.
func (c *Controller) Recover(ctx context.Context, reason health.Reason, userMessage string) {
	c.mu.Lock()
	if !c.state.Status.Active() {
		c.mu.Unlock()
		return
	}
	c.epoch++
	started := c.state.StartedAt
	c.stopTimersLocked()
	c.state = c.idleState()
	disarm := c.armed
	c.armed = false
	c.mu.Unlock()
	c.monitor.Stop()

	if err := c.deps.Snapshots.Remove(ctx, c.courseID); err != nil {
		c.log.Warn("snapshot remove failed", "error", err)
	}
	c.deps.Metrics.SessionRecovered(string(reason))
	c.deps.Metrics.ScanFinished("recovered", c.deps.Clock.Since(started))

	summary := userMessage
	if summary == "" {
		summary = "Scan session reset"
	}
	c.publish(ctx, realtime.EventSessionRecovered, summary, string(reason), nil)
	if disarm {
		c.deps.Relay.Disarm(c.courseID)
	}
	c.log.Info("session recovered", "reason", reason)
}

// RecoverOnInit restores whatever the persisted snapshot says about this course.
func (c *Controller) RecoverOnInit(ctx context.Context) error {
	snap, err := c.deps.Snapshots.Read(ctx, c.courseID)
	if err != nil {
		return fmt.Errorf("read scan snapshot: %w", err)
	}
	if snap == nil {
		return nil
	}
	now := c.deps.Clock.Now()

	switch snap.Status {
	case types.SnapshotScanning:
		age := snap.Age(now)
		if age > c.opts.Staleness {
			c.log.Info("clearing abandoned scan", "age", age.String())
			c.deps.Metrics.SessionRecovered("abandoned")
			return c.deps.Snapshots.Remove(ctx, c.courseID)
		}
		c.resume(ctx, c.reloadSession(ctx, snap.RequestedBy), snap.Time(), age)
	case types.SnapshotComplete:
		c.mu.Lock()
		c.epoch++
		ep := c.epoch
		c.stopTimersLocked()
		count := 0
		if snap.PDFCount != nil {
			count = *snap.PDFCount
		}
		c.state = types.ScanState{
			CourseID:        c.courseID,
			Status:          types.ScanComplete,
			LastUpdatedAt:   snap.Time(),
			ProgressPercent: 100,
			StatusText:      fmt.Sprintf("Scan complete: %d documents ready", count),
		}
		remaining := c.opts.CompleteGrace - snap.Age(now)
		if remaining < 0 {
			remaining = 0
		}
		c.grace = schedule.After(c.deps.Clock, remaining, func() { c.expire(ep) }, "grace", c.courseID)
		restored := *snap
		c.completion = &restored
		c.mu.Unlock()
		c.log.Info("restored completed scan", "documents", count)
	default:
		c.log.Warn("unknown snapshot status; clearing", "status", snap.Status)
		return c.deps.Snapshots.Remove(ctx, c.courseID)
	}
	return nil
}

// reloadSession rebuilds the session of a scan started by a previous process. The
// course falls back to its id when it cannot be loaded.
func (c *Controller) reloadSession(ctx context.Context, userID string) Session {
	sess := Session{UserID: userID, Course: types.CourseSession{CourseID: c.courseID}}
	if c.deps.Courses == nil {
		return sess
	}
	course, err := c.deps.Courses.GetByID(dbctx.New(ctx), c.courseID)
	if err != nil {
		c.log.Warn("course lookup for resumed scan failed", "error", err)
		return sess
	}
	if course != nil {
		sess.Course = course.Session(userID != "")
	}
	return sess
}

func (c *Controller) resume(ctx context.Context, sess Session, startedAt time.Time, age time.Duration) {
	c.mu.Lock()
	c.epoch++
	ep := c.epoch
	c.stopTimersLocked()
	c.session = sess
	c.completion = nil
	c.tracker.Reset()
	c.phaseStart = startedAt
	c.estimate = c.opts.CrawlEstimate
	c.state = types.ScanState{
		CourseID:              c.courseID,
		Status:                types.ScanScanning,
		StartedAt:             startedAt,
		LastUpdatedAt:         startedAt,
		EstimatedTotalSeconds: int(c.estimate / time.Second),
		StatusText:            "Scanning course for documents",
	}
	c.refreshProgressLocked()
	needArm := !c.armed
	c.armed = true
	remaining := c.opts.SessionTimeout - age
	if remaining <= 0 {
		remaining = time.Second
	}
	c.timeout = schedule.After(c.deps.Clock, remaining, func() { c.onTimeout(ep) }, "timeout", c.courseID)
	c.mu.Unlock()

	if needArm {
		if err := c.deps.Relay.Arm(ctx, c.courseID); err != nil {
			c.log.Warn("relay arm failed; clients will poll", "error", err)
		}
	}
	c.monitor.Start(ctx)
	c.deps.Metrics.ScanResumed()
	c.log.Info("resumed scan from snapshot", "age", age.String())
}

// expire ends the grace period after a terminal state.
func (c *Controller) expire(ep uint64) {
	c.mu.Lock()
	if c.epoch != ep {
		c.mu.Unlock()
		return
	}
	if c.state.Status.Terminal() {
		c.state = c.idleState()
	}
	c.grace = nil
	c.completion = nil
	disarm := c.armed
	c.armed = false
	c.mu.Unlock()

	if err := c.deps.Snapshots.Remove(context.Background(), c.courseID); err != nil {
		c.log.Warn("snapshot remove failed", "error", err)
	}
	if disarm {
		c.deps.Relay.Disarm(c.courseID)
	}
}

// Close stops every timer; used on shutdown.
func (c *Controller) Close() {
	c.mu.Lock()
	c.stopTimersLocked()
	if c.grace != nil {
		c.grace.Stop()
		c.grace = nil
	}
	c.mu.Unlock()
	c.monitor.Stop()
}

func (c *Controller) resetIfEpoch(ep uint64) {
	c.mu.Lock()
	if c.epoch != ep {
		c.mu.Unlock()
		return
	}
	c.epoch++
	c.stopTimersLocked()
	c.state = c.idleState()
	disarm := c.armed
	c.armed = false
	c.mu.Unlock()

	if disarm {
		c.deps.Relay.Disarm(c.courseID)
	}
}

// stopTimersLocked cancels the session timeout, the grace timer and any in-flight
// upload. The health monitor is stopped by callers after releasing mu.
func (c *Controller) stopTimersLocked() {
	c.timeout.Stop()
	c.timeout = nil
	c.grace.Stop()
	c.grace = nil
	if c.cancelUpload != nil {
		c.cancelUpload()
		c.cancelUpload = nil
	}
}

func (c *Controller) idleState() types.ScanState {
	return types.ScanState{CourseID: c.courseID, Status: types.ScanIdle}
}

func (c *Controller) currentEpoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

func (c *Controller) snapshotState() types.ScanState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) statusText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.StatusText
}

// rawProgressLocked is the unclamped-by-history estimate for the current phase.
func (c *Controller) rawProgressLocked(now time.Time) int {
	switch c.state.Status {
	case types.ScanScanning:
		p, _ := progress.Estimate(now.Sub(c.phaseStart), c.estimate)
		return p
	case types.ScanUploading:
		span := progress.Cap - c.uploadBase
		byTime, _ := progress.Estimate(now.Sub(c.phaseStart), c.estimate)
		raw := c.uploadBase + byTime*span/progress.Cap
		if c.uploadTotal > 0 {
			if byCount := c.uploadBase + c.uploadDone*span/c.uploadTotal; byCount > raw {
				raw = byCount
			}
		}
		return raw
	}
	return c.state.ProgressPercent
}

func (c *Controller) refreshProgressLocked() {
	now := c.deps.Clock.Now()
	c.state.ProgressPercent = c.tracker.Observe(c.rawProgressLocked(now))
	_, left := progress.Estimate(now.Sub(c.phaseStart), c.estimate)
	c.state.TimeLeftSeconds = left
}

func (c *Controller) progressData() realtime.ProgressData {
	c.mu.Lock()
	defer c.mu.Unlock()
	return realtime.ProgressData{
		Status:          string(c.state.Status),
		ProgressPercent: c.state.ProgressPercent,
		TimeLeftSeconds: c.state.TimeLeftSeconds,
		StatusText:      c.state.StatusText,
	}
}

func (c *Controller) publish(ctx context.Context, event realtime.Event, summary, detail string, data any) {
	msg, err := realtime.NewMessage(c.courseID, event, summary, data)
	if err != nil {
		c.log.Warn("encode relay message failed", "event", event, "error", err)
		return
	}
	msg.Detail = detail
	c.send(ctx, msg)
}

func (c *Controller) send(ctx context.Context, msg realtime.Message) {
	if err := c.deps.Relay.Publish(context.WithoutCancel(ctx), msg); err != nil {
		c.log.Warn("relay publish failed", "event", msg.Event, "error", err)
		return
	}
	c.deps.Metrics.RelayPublished(string(msg.Event))
}

func distinct(candidates []types.CandidateDocument) int {
	seen := make(map[string]bool, len(candidates))
	for _, cd := range candidates {
		if strings.TrimSpace(cd.SourceURL) == "" {
			continue
		}
		seen[cd.Key()] = true
	}
	return len(seen)
}
