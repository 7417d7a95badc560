// Package upload drives the per-document upload lifecycle for one crawl's candidates.
package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/coder/quartz"
	"gorm.io/datatypes"

	"github.com/Rasalp1/canvas-lm-sub000/internal/data/repos"
	types "github.com/Rasalp1/canvas-lm-sub000/internal/domain"
	"github.com/Rasalp1/canvas-lm-sub000/internal/observability"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/dbctx"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/fetch"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/logger"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/retrieval"
)

type Uploader interface {
	UploadDocument(ctx context.Context, storeID string, doc retrieval.Document) (retrieval.Uploaded, error)
}

// Archiver stores raw bytes; nil disables archiving.
type Archiver interface {
	Put(ctx context.Context, courseID, docKey, contentType string, data []byte) (string, error)
}

// ProgressFunc is told after each document how many of total have been processed.
type ProgressFunc func(done, total int)

type Options struct {
	// An uploading record untouched for this long is treated as abandoned and retried.
	StaleUploading time.Duration
	Clock          quartz.Clock
}

type Manager struct {
	log      *logger.Logger
	records  repos.DocumentRecordRepo
	fetcher  fetch.Fetcher
	uploader Uploader
	archive  Archiver
	metrics  *observability.Metrics
	opts     Options
}

func NewManager(log *logger.Logger, records repos.DocumentRecordRepo, fetcher fetch.Fetcher, uploader Uploader, archive Archiver, metrics *observability.Metrics, opts Options) *Manager {
	if opts.StaleUploading <= 0 {
		opts.StaleUploading = 10 * time.Minute
	}
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	return &Manager{
		log:      log.With("service", "UploadManager"),
		records:  records,
		fetcher:  fetcher,
		uploader: uploader,
		archive:  archive,
		metrics:  metrics,
		opts:     opts,
	}
}

// Plan is the partition of a crawl's candidates against the ledger.
type Plan struct {
	Discovered int
	Skip       []*types.DocumentRecord
	Retry      []*types.DocumentRecord
	New        []*types.DocumentRecord
}

func (p Plan) Work() []*types.DocumentRecord {
	out := make([]*types.DocumentRecord, 0, len(p.Retry)+len(p.New))
	out = append(out, p.Retry...)
	return append(out, p.New...)
}

// Partition dedupes candidates by source url and splits them into completed (skip),
// previously attempted (retry) and never seen (new).
func (m *Manager) Partition(ctx context.Context, courseID string, candidates []types.CandidateDocument) (Plan, error) {
	existing, err := m.records.ListByCourse(dbctx.New(ctx), courseID)
	if err != nil {
		return Plan{}, fmt.Errorf("list document records: %w", err)
	}
	byKey := make(map[string]*types.DocumentRecord, len(existing))
	for _, rec := range existing {
		byKey[rec.Key] = rec
	}
	staleBefore := m.opts.Clock.Now().Add(-m.opts.StaleUploading)

	var plan Plan
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		if strings.TrimSpace(c.SourceURL) == "" {
			continue
		}
		key := c.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		plan.Discovered++

		rec, ok := byKey[key]
		switch {
		case !ok:
			plan.New = append(plan.New, types.NewDocumentRecord(courseID, c))
		case rec.UploadStatus == types.UploadCompleted:
			plan.Skip = append(plan.Skip, rec)
		case rec.UploadStatus == types.UploadUploading && rec.UpdatedAt.After(staleBefore):
			// Another live batch owns it; count it as settled for this batch.
			plan.Skip = append(plan.Skip, rec)
		default:
			plan.Retry = append(plan.Retry, rec)
		}
	}
	return plan, nil
}

// Process uploads everything that is not already completed, strictly one document at
// a time. Per-document failures are recorded and never abort the batch; ctx
// cancellation stops between documents.
func (m *Manager) Process(ctx context.Context, courseID, storeID string, candidates []types.CandidateDocument, onProgress ProgressFunc) (types.ScanResult, error) {
	plan, err := m.Partition(ctx, courseID, candidates)
	if err != nil {
		return types.ScanResult{}, err
	}
	result := types.ScanResult{
		Discovered: plan.Discovered,
		Skipped:    len(plan.Skip),
		Retried:    len(plan.Retry),
	}
	work := plan.Work()
	if len(work) == 0 {
		result.UpToDate = true
		for range plan.Skip {
			m.metrics.ObserveUpload("skipped", 0)
		}
		m.log.Info("course already up to date", "course_id", courseID, "documents", result.Skipped)
		return result, nil
	}

	if err := m.records.CreateIfAbsent(dbctx.New(ctx), plan.New); err != nil {
		return result, fmt.Errorf("create document records: %w", err)
	}

	for i, rec := range work {
		if err := ctx.Err(); err != nil {
			m.log.Info("upload batch cancelled", "course_id", courseID, "processed", i, "total", len(work))
			return result, err
		}
		switch m.processOne(ctx, storeID, rec) {
		case outcomeUploaded:
			result.Uploaded++
		case outcomeInconsistent:
			result.Uploaded++
			result.Inconsistent = append(result.Inconsistent, rec.SourceURL)
		case outcomeFailed:
			result.Failed++
		case outcomeBusy:
			result.Skipped++
		}
		if onProgress != nil {
			onProgress(i+1, len(work))
		}
	}

	m.log.Info("upload batch finished",
		"course_id", courseID,
		"discovered", result.Discovered,
		"uploaded", result.Uploaded,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"inconsistent", len(result.Inconsistent),
	)
	return result, nil
}

type outcome int

const (
	outcomeUploaded outcome = iota
	outcomeInconsistent
	outcomeFailed
	outcomeBusy
)

func (m *Manager) processOne(ctx context.Context, storeID string, rec *types.DocumentRecord) outcome {
	dbc := dbctx.New(ctx)
	clock := m.opts.Clock
	started := clock.Now()
	log := m.log.With("course_id", rec.CourseID, "source_url", rec.SourceURL)

	claimed, err := m.records.MarkUploading(dbc, rec.CourseID, rec.Key, started.Add(-m.opts.StaleUploading))
	if err != nil {
		log.Warn("mark uploading failed", "error", err)
		return outcomeFailed
	}
	if !claimed {
		// Completed or owned by a live batch since partitioning.
		return outcomeBusy
	}

	fail := func(stage string, cause error) outcome {
		reason := fmt.Sprintf("%s: %v", stage, cause)
		if _, err := m.records.MarkFailed(dbctx.New(context.WithoutCancel(ctx)), rec.CourseID, rec.Key, reason); err != nil {
			log.Warn("mark failed failed", "error", err)
		}
		log.Warn("document upload failed", "stage", stage, "error", cause)
		m.metrics.ObserveUpload("failed", clock.Since(started))
		return outcomeFailed
	}

	doc, err := m.fetcher.Fetch(ctx, rec.SourceURL)
	if err != nil {
		return fail("fetch", err)
	}
	contentType := doc.ContentType
	if contentType == "" {
		contentType = rec.ContentType
	}

	archiveKey := ""
	if m.archive != nil {
		if key, err := m.archive.Put(ctx, rec.CourseID, rec.Key, contentType, doc.Content); err != nil {
			log.Warn("archive failed (continuing)", "error", err)
		} else {
			archiveKey = key
		}
	}

	uploaded, err := m.uploader.UploadDocument(ctx, storeID, retrieval.Document{
		Name:        documentName(rec),
		ContentType: contentType,
		SourceURL:   rec.SourceURL,
		Content:     doc.Content,
		Metadata: map[string]string{
			"course_id":      rec.CourseID,
			"title":          rec.Title,
			"discovered_via": rec.DiscoveredVia,
		},
	})
	if err != nil {
		return fail("upload", err)
	}

	// The remote copy exists from here on; a ledger failure must not be reported as an
	// upload failure or the document would be uploaded twice.
	meta, _ := json.Marshal(map[string]any{
		"size_bytes":   len(doc.Content),
		"content_type": contentType,
	})
	saveCtx := dbctx.New(context.WithoutCancel(ctx))
	ok, err := m.records.MarkCompleted(saveCtx, rec.CourseID, rec.Key, uploaded.DocumentID, datatypes.JSON(meta), clock.Now())
	if err == nil && archiveKey != "" {
		if aerr := m.records.SetArchiveKey(saveCtx, rec.CourseID, rec.Key, archiveKey); aerr != nil {
			log.Warn("archive key not recorded", "error", aerr)
		}
	}
	if err != nil || !ok {
		log.Warn("consistency warning: document uploaded but metadata not saved",
			"remote_id", uploaded.DocumentID, "error", err, "updated", ok)
		m.metrics.ObserveUpload("inconsistent", clock.Since(started))
		return outcomeInconsistent
	}
	m.metrics.ObserveUpload("completed", clock.Since(started))
	return outcomeUploaded
}

func documentName(rec *types.DocumentRecord) string {
	if t := strings.TrimSpace(rec.Title); t != "" {
		return t
	}
	if base := path.Base(rec.SourceURL); base != "." && base != "/" {
		return base
	}
	return rec.Key
}
