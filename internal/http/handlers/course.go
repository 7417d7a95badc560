package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Rasalp1/canvas-lm-sub000/internal/http/response"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/apierr"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/logger"
	"github.com/Rasalp1/canvas-lm-sub000/internal/services"
)

type CourseHandler struct {
	log     *logger.Logger
	courses services.CourseService
}

func NewCourseHandler(log *logger.Logger, courses services.CourseService) *CourseHandler {
	return &CourseHandler{log: log.With("handler", "CourseHandler"), courses: courses}
}

// POST /api/courses/detect
func (h *CourseHandler) Detect(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var req services.DetectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, apierr.New(http.StatusBadRequest, "invalid_request", err))
		return
	}
	out, err := h.courses.Detect(c.Request.Context(), id.UserID, req)
	if err != nil {
		respondErr(c, err)
		return
	}
	status := http.StatusOK
	if out.Created {
		status = http.StatusCreated
	}
	c.JSON(status, out)
}

// GET /api/courses/:id
func (h *CourseHandler) Get(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	course, err := h.courses.Get(c.Request.Context(), id.UserID, c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"course": course})
}

// GET /api/courses/:id/documents
func (h *CourseHandler) ListDocuments(c *gin.Context) {
	if _, ok := identity(c); !ok {
		return
	}
	listing, err := h.courses.ListDocuments(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	response.RespondOK(c, listing)
}
