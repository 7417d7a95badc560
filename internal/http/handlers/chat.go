package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Rasalp1/canvas-lm-sub000/internal/http/response"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/apierr"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/logger"
	"github.com/Rasalp1/canvas-lm-sub000/internal/services"
)

type ChatHandler struct {
	log  *logger.Logger
	chat services.ChatService
}

func NewChatHandler(log *logger.Logger, chat services.ChatService) *ChatHandler {
	return &ChatHandler{log: log.With("handler", "ChatHandler"), chat: chat}
}

// POST /api/courses/:id/chat
func (h *ChatHandler) Ask(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var req services.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, apierr.New(http.StatusBadRequest, "invalid_request", err))
		return
	}
	reply, err := h.chat.Ask(c.Request.Context(), id.UserID, c.Param("id"), req)
	var qe *services.QuotaExceededError
	if errors.As(err, &qe) {
		retry := qe.Decision.RetryAfterSeconds()
		c.Header("Retry-After", strconv.Itoa(retry))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": gin.H{
				"message": "You've reached your chat limit. It resets soon.",
				"code":    "quota_exceeded",
			},
			"retry_after_seconds": retry,
			"quota":               qe.Decision,
		})
		return
	}
	if err != nil {
		respondErr(c, err)
		return
	}
	response.RespondOK(c, reply)
}

// GET /api/courses/:id/chat
func (h *ChatHandler) History(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	turns, err := h.chat.History(c.Request.Context(), id.UserID, c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"history": turns})
}
