package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/Rasalp1/canvas-lm-sub000/internal/http/response"
	"github.com/Rasalp1/canvas-lm-sub000/internal/quota"
)

type QuotaChecker interface {
	Check(ctx context.Context, userID string) (quota.Decision, error)
}

type UsageHandler struct {
	gate QuotaChecker
}

func NewUsageHandler(gate QuotaChecker) *UsageHandler { return &UsageHandler{gate: gate} }

// GET /api/usage
func (h *UsageHandler) Get(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	d, err := h.gate.Check(c.Request.Context(), id.UserID)
	if err != nil {
		respondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"usage": d, "reset_in_seconds": d.RetryAfterSeconds()})
}
