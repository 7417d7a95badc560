package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/Rasalp1/canvas-lm-sub000/internal/http/response"
	"github.com/Rasalp1/canvas-lm-sub000/internal/ingest/session"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/logger"
	"github.com/Rasalp1/canvas-lm-sub000/internal/services"
)

type ScanHandler struct {
	log      *logger.Logger
	sessions *session.Manager
	courses  services.CourseService
}

func NewScanHandler(log *logger.Logger, sessions *session.Manager, courses services.CourseService) *ScanHandler {
	return &ScanHandler{log: log.With("handler", "ScanHandler"), sessions: sessions, courses: courses}
}

// POST /api/courses/:id/scan
func (h *ScanHandler) Start(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var req struct {
		Rescan bool `json:"rescan"`
	}
	// An empty body is a plain first scan.
	_ = c.ShouldBindJSON(&req)

	ctx := c.Request.Context()
	course, err := h.courses.Get(ctx, id.UserID, c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	ctrl, err := h.sessions.Controller(ctx, course.CourseID)
	if err != nil {
		respondErr(c, err)
		return
	}
	state, err := ctrl.StartScan(ctx, session.Session{UserID: id.UserID, Email: id.Email, Course: *course}, req.Rescan)
	if err != nil {
		respondErr(c, err)
		return
	}
	response.RespondAccepted(c, gin.H{"scan": state})
}

// GET /api/courses/:id/scan
func (h *ScanHandler) Status(c *gin.Context) {
	if _, ok := identity(c); !ok {
		return
	}
	ctrl, err := h.sessions.Controller(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"scan": ctrl.Status()})
}
