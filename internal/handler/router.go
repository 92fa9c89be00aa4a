package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/intake-sim/backend/internal/config"
	"github.com/zhouzirui/intake-sim/backend/internal/handler/page"
	"github.com/zhouzirui/intake-sim/backend/internal/handler/session"
	"github.com/zhouzirui/intake-sim/backend/internal/handler/stream"
	"github.com/zhouzirui/intake-sim/backend/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/intake-sim/backend/internal/middleware"
	chatService "github.com/zhouzirui/intake-sim/backend/internal/service/chat"
	"github.com/zhouzirui/intake-sim/backend/internal/service/conversation"
	"github.com/zhouzirui/intake-sim/backend/pkg/utils"
)

// Exchanger is satisfied by the completion orchestrator.
type Exchanger interface {
	stream.Exchanger
	ws.Exchanger
}

var _ Exchanger = (*conversation.Orchestrator)(nil)

// NewRouter wires HTTP routes to core services.
func NewRouter(serverCfg config.ServerConfig, sessionCfg config.SessionConfig, sessions chatService.Store, exchanger Exchanger, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	cookie := utils.SessionCookie{Name: sessionCfg.CookieName, Secure: sessionCfg.CookieSecure}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(serverCfg.AllowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	page.New().RegisterRoutes(r)
	session.New(sessions, cookie, logger).RegisterRoutes(r)
	stream.New(exchanger, sessions, cookie, logger).RegisterRoutes(r)
	ws.New(exchanger, sessions, cookie, logger).RegisterRoutes(r)

	return r
}
