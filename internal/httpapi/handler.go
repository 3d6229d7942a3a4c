// Package httpapi exposes the persona pipeline over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"persona-rag/internal/domain"
	"persona-rag/internal/service"
	"persona-rag/internal/session"
)

// Answerer is the pipeline surface the handlers need.
type Answerer interface {
	Answer(ctx context.Context, message string, history []domain.Turn) service.Reply
	Chat(ctx context.Context, sessionID, message string) service.Reply
	Sessions() *session.Store
}

type ChatHandler struct {
	svc    Answerer
	logger *zap.Logger
}

func NewChatHandler(svc Answerer, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{svc: svc, logger: logger.Named("http")}
}

type chatRequest struct {
	Message string        `json:"message"`
	History []domain.Turn `json:"history"`
}

type sessionChatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Text    string         `json:"text"`
	Emotion string         `json:"emotion"`
	Trace   *service.Trace `json:"trace,omitempty"`
}

func toResponse(c *gin.Context, r service.Reply) chatResponse {
	resp := chatResponse{Text: r.Text, Emotion: string(r.Emotion)}
	if c.Query("trace") == "1" {
		tr := r.Trace
		resp.Trace = &tr
	}
	return resp
}

// Chat answers a message with caller-supplied history.
func (h *ChatHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		badRequest(c, "message is required")
		return
	}
	for _, t := range req.History {
		if t.Role != domain.RoleUser && t.Role != domain.RoleAssistant {
			badRequest(c, "history role must be user or assistant")
			return
		}
	}
	reply := h.svc.Answer(c.Request.Context(), req.Message, req.History)
	c.JSON(http.StatusOK, toResponse(c, reply))
}

// CreateSession returns a fresh session id. The session itself is created
// lazily on its first message.
func (h *ChatHandler) CreateSession(c *gin.Context) {
	c.JSON(http.StatusCreated, gin.H{"id": session.NewID()})
}

// SessionChat answers within a server-side session.
func (h *ChatHandler) SessionChat(c *gin.Context) {
	var req sessionChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		badRequest(c, "message is required")
		return
	}
	reply := h.svc.Chat(c.Request.Context(), c.Param("id"), req.Message)
	c.JSON(http.StatusOK, toResponse(c, reply))
}

func (h *ChatHandler) History(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"turns": h.svc.Sessions().History(c.Param("id"))})
}

func (h *ChatHandler) ClearSession(c *gin.Context) {
	h.svc.Sessions().Clear(c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (h *ChatHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}
