package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Rasalp1/canvas-lm-sub000/internal/http/response"
	"github.com/Rasalp1/canvas-lm-sub000/internal/ingest/session"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/apierr"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/ctxutil"
	"github.com/Rasalp1/canvas-lm-sub000/internal/services"
)

var errNotAuthenticated = apierr.WithSummary(http.StatusUnauthorized, "unauthorized", "Please sign in to continue.", session.ErrNotAuthenticated)

// toAPIError maps domain errors onto HTTP statuses with user-facing summaries.
func toAPIError(err error) error {
	var ae *apierr.Error
	switch {
	case errors.As(err, &ae):
		return err
	case errors.Is(err, session.ErrNotAuthenticated):
		return errNotAuthenticated
	case errors.Is(err, session.ErrNoCourse), errors.Is(err, services.ErrCourseNotFound):
		return apierr.WithSummary(http.StatusNotFound, "course_not_found", "Open a course page before scanning.", err)
	case errors.Is(err, services.ErrInvalidCourse), errors.Is(err, services.ErrEmptyQuestion):
		return apierr.New(http.StatusBadRequest, "invalid_request", err)
	case errors.Is(err, session.ErrScanInProgress):
		return apierr.WithSummary(http.StatusConflict, "scan_in_progress", "A scan for this course is already running.", err)
	case errors.Is(err, session.ErrNotScanning), errors.Is(err, session.ErrSessionReset):
		return apierr.New(http.StatusConflict, "not_scanning", err)
	case errors.Is(err, session.ErrCrawlerFailed):
		return apierr.WithSummary(http.StatusBadGateway, "crawler_unavailable", "Couldn't reach the course scanner. Please try again.", err)
	case errors.Is(err, services.ErrCourseNotReady):
		return apierr.WithSummary(http.StatusConflict, "course_not_scanned", "Scan this course before asking questions.", err)
	}
	return apierr.New(http.StatusInternalServerError, "internal_error", err)
}

func respondErr(c *gin.Context, err error) {
	response.RespondError(c, toAPIError(err))
}

// identity returns the authenticated caller or writes a 401.
func identity(c *gin.Context) (*ctxutil.Identity, bool) {
	id := ctxutil.GetIdentity(c.Request.Context())
	if id == nil || id.UserID == "" {
		response.RespondError(c, errNotAuthenticated)
		return nil, false
	}
	return id, true
}
