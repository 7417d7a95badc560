package handlers

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"github.com/Rasalp1/canvas-lm-sub000/internal/http/response"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/apierr"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/logger"
	"github.com/Rasalp1/canvas-lm-sub000/internal/realtime"
)

// Armer keeps this process subscribed to a course channel while a stream is open.
type Armer interface {
	Arm(ctx context.Context, courseID string) error
	Disarm(courseID string)
}

type RealtimeHandler struct {
	log   *logger.Logger
	hub   *realtime.Hub
	relay Armer
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.Hub, relay Armer) *RealtimeHandler {
	return &RealtimeHandler{log: log.With("handler", "RealtimeHandler"), hub: hub, relay: relay}
}

// GET /api/sse/stream?course=<id>
func (h *RealtimeHandler) SSEStream(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	courseID := strings.TrimSpace(c.Query("course"))
	if courseID == "" {
		response.RespondError(c, apierr.WithSummary(http.StatusBadRequest, "invalid_request", "course is required", nil))
		return
	}

	ctx := c.Request.Context()
	armed := false
	if h.relay != nil {
		if err := h.relay.Arm(ctx, courseID); err != nil {
			h.log.Warn("relay arm failed; stream will only see local events", "course_id", courseID, "error", err)
		} else {
			armed = true
		}
	}

	sub := h.hub.Subscribe(id.UserID, realtime.CourseChannel(courseID))
	defer h.hub.Unsubscribe(sub)
	h.log.Info("SSE stream open", "user_id", id.UserID, "course_id", courseID, "subscriber_id", sub.ID)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	heartbeat := time.NewTicker(h.hub.Heartbeat)
	defer heartbeat.Stop()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-heartbeat.C:
			_, _ = io.WriteString(w, ": ping\n\n")
			return true
		case msg, ok := <-sub.Messages():
			if !ok {
				return false
			}
			c.Render(-1, sse.Event{Id: msg.ID.String(), Event: string(msg.Event), Data: msg})
			return true
		}
	})

	if armed {
		h.relay.Disarm(courseID)
	}
}
