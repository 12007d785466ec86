package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mbti-story/internal/service"
)

// ChatHandler mantiene dependencias para endpoints de sesiones y mensajes.
type ChatHandler struct {
	logger   *zap.Logger
	sessions *service.SessionService
	chat     *service.ChatService
}

// NewChatHandler crea una instancia de ChatHandler con dependencias necesarias.
func NewChatHandler(logger *zap.Logger, sessions *service.SessionService, chat *service.ChatService) *ChatHandler {
	return &ChatHandler{
		logger:   logger,
		sessions: sessions,
		chat:     chat,
	}
}

// CreateSession maneja POST /session.
func (h *ChatHandler) CreateSession(c *gin.Context) {
	session, err := h.sessions.Create(c.Request.Context())
	if err != nil {
		h.logger.Error("create session failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create session"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": session.ID, "startedAt": session.StartedAt})
}

// PostMessage maneja POST /chat?sessionId=.
func (h *ChatHandler) PostMessage(c *gin.Context) {
	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid chat request", zap.Error(err))
	}

	reply, err := h.chat.Post(c.Request.Context(), c.Query("sessionId"), req.Content)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, reply)
}
