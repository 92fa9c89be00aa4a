package stream

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	chatService "github.com/zhouzirui/intake-sim/backend/internal/service/chat"
	"github.com/zhouzirui/intake-sim/backend/internal/service/conversation"
	"github.com/zhouzirui/intake-sim/backend/pkg/utils"
)

// Exchanger runs one chat exchange and streams its events.
type Exchanger interface {
	Exchange(ctx context.Context, sessionID, message string, emit conversation.Sink) error
}

// Handler manages streaming patient replies via Server-Sent Events
type Handler struct {
	exchanger Exchanger
	sessions  chatService.Store
	cookie    utils.SessionCookie
	logger    *slog.Logger
}

// New creates a new stream handler
func New(exchanger Exchanger, sessions chatService.Store, cookie utils.SessionCookie, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		exchanger: exchanger,
		sessions:  sessions,
		cookie:    cookie,
		logger:    logger,
	}
}

// RegisterRoutes 注册聊天流式路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
}

// handleChat accepts a form-encoded message and answers with an SSE stream
// of {"delta"} objects closed by {"done"} or {"error"}.
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	message := r.FormValue("message")
	if strings.TrimSpace(message) == "" {
		utils.RespondError(w, http.StatusBadRequest, "message is required")
		return
	}

	ctx := r.Context()
	sessionID, err := h.sessions.GetOrCreate(ctx, h.cookie.Read(r))
	if err != nil {
		h.logger.Error("failed to resolve session", "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to resolve session")
		return
	}

	h.cookie.Write(w, sessionID)
	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	emit := func(ev conversation.Event) error {
		return utils.SendSSEChunk(w, flusher, ev)
	}

	if err := h.exchanger.Exchange(ctx, sessionID, message, emit); err != nil {
		h.logger.Warn("chat exchange ended without commit", "session", sessionID, "error", err)
		return
	}
	h.logger.Debug("chat exchange streamed", "session", sessionID)
}
