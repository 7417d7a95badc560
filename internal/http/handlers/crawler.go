package handlers

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	types "github.com/Rasalp1/canvas-lm-sub000/internal/domain"
	"github.com/Rasalp1/canvas-lm-sub000/internal/http/response"
	"github.com/Rasalp1/canvas-lm-sub000/internal/ingest/session"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/apierr"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/logger"
)

// CrawlerHandler receives the crawler's callbacks. Completion starts the upload batch
// in the background so the crawler is not held for its duration.
type CrawlerHandler struct {
	log      *logger.Logger
	sessions *session.Manager
	wg       sync.WaitGroup
}

func NewCrawlerHandler(log *logger.Logger, sessions *session.Manager) *CrawlerHandler {
	return &CrawlerHandler{log: log.With("handler", "CrawlerHandler"), sessions: sessions}
}

type completeRequest struct {
	Documents []types.CandidateDocument `json:"documents"`
}

type errorRequest struct {
	Summary string `json:"summary"`
	Detail  string `json:"detail"`
}

// POST /internal/crawls/:courseId/progress
func (h *CrawlerHandler) Progress(c *gin.Context) {
	var req session.Progress
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, apierr.New(http.StatusBadRequest, "invalid_request", err))
		return
	}
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	applied := ctrl.OnScanProgress(c.Request.Context(), req)
	response.RespondOK(c, gin.H{"applied": applied})
}

// POST /internal/crawls/:courseId/complete
func (h *CrawlerHandler) Complete(c *gin.Context) {
	var req completeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, apierr.New(http.StatusBadRequest, "invalid_request", err))
		return
	}
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	if ctrl.Phase() != types.ScanScanning {
		// Redelivered or late completion; the controller would ignore it anyway.
		response.RespondOK(c, gin.H{"accepted": false})
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	courseID := ctrl.CourseID()
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		res, err := ctrl.OnScanComplete(ctx, req.Documents)
		if err != nil {
			h.log.Warn("upload batch did not complete", "course_id", courseID, "error", err)
			return
		}
		h.log.Info("upload batch finished", "course_id", courseID, "uploaded", res.Uploaded, "up_to_date", res.UpToDate)
	}()
	response.RespondAccepted(c, gin.H{"accepted": true, "documents": len(req.Documents)})
}

// POST /internal/crawls/:courseId/error
func (h *CrawlerHandler) Error(c *gin.Context) {
	var req errorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, apierr.New(http.StatusBadRequest, "invalid_request", err))
		return
	}
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	applied := ctrl.OnScanError(c.Request.Context(), req.Summary, req.Detail)
	response.RespondOK(c, gin.H{"applied": applied})
}

// Wait blocks until background upload batches started by Complete return.
func (h *CrawlerHandler) Wait() { h.wg.Wait() }

func (h *CrawlerHandler) controller(c *gin.Context) (*session.Controller, bool) {
	ctrl, err := h.sessions.Controller(c.Request.Context(), c.Param("courseId"))
	if err != nil {
		respondErr(c, err)
		return nil, false
	}
	return ctrl, true
}
