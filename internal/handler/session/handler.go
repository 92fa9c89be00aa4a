package session

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/intake-sim/backend/internal/model/chat"
	"github.com/zhouzirui/intake-sim/backend/internal/model/persona"
	chatService "github.com/zhouzirui/intake-sim/backend/internal/service/chat"
	"github.com/zhouzirui/intake-sim/backend/pkg/utils"
)

// Greeting is returned whenever a fresh intake session is started.
const Greeting = "New chat session started. Please begin the intake interview."

// Handler exposes session lifecycle endpoints.
type Handler struct {
	sessions chatService.Store
	cookie   utils.SessionCookie
	logger   *slog.Logger
}

// New creates a session handler.
func New(sessions chatService.Store, cookie utils.SessionCookie, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{sessions: sessions, cookie: cookie, logger: logger}
}

// RegisterRoutes 注册会话相关路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/new-context", h.handleNewContext)
	r.Get("/session", h.handleGetSession)
}

// Patient is the interviewer-visible part of a persona. The condition and
// symptoms stay hidden.
type Patient struct {
	Name   string         `json:"name"`
	Age    int            `json:"age"`
	Gender persona.Gender `json:"gender"`
}

type newContextResponse struct {
	Message   string  `json:"message"`
	SessionID string  `json:"sessionId"`
	Patient   Patient `json:"patient"`
	Summary   string  `json:"summary"`
}

type sessionResponse struct {
	SessionID string    `json:"sessionId"`
	Patient   Patient   `json:"patient"`
	Turns     int       `json:"turns"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func patientOf(s chat.Session) Patient {
	return Patient{Name: s.Persona.Name, Age: s.Persona.Age, Gender: s.Persona.Gender}
}

// handleNewContext replaces the caller's session with a freshly generated
// patient. Any exchange already running on the old session finishes first.
func (h *Handler) handleNewContext(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Reset(r.Context(), h.cookie.Read(r))
	if err != nil {
		h.logger.Error("failed to reset session", "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to start new session")
		return
	}

	h.cookie.Write(w, session.ID)
	h.logger.Info("session reset", "session", session.ID, "condition", session.Persona.Condition.Name)

	utils.RespondJSON(w, http.StatusOK, newContextResponse{
		Message:   Greeting,
		SessionID: session.ID,
		Patient:   patientOf(session),
		Summary:   session.Persona.Summary(),
	})
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := h.cookie.Read(r)
	session, err := h.sessions.Get(r.Context(), id)
	if errors.Is(err, chatService.ErrSessionNotFound) {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to load session", "session", id, "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	utils.RespondJSON(w, http.StatusOK, sessionResponse{
		SessionID: session.ID,
		Patient:   patientOf(session),
		Turns:     len(session.Turns),
		CreatedAt: session.CreatedAt,
		UpdatedAt: session.UpdatedAt,
	})
}
