package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	chatService "github.com/zhouzirui/intake-sim/backend/internal/service/chat"
	"github.com/zhouzirui/intake-sim/backend/internal/service/conversation"
	"github.com/zhouzirui/intake-sim/backend/pkg/utils"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// Exchanger runs one chat exchange and streams its events.
type Exchanger interface {
	Exchange(ctx context.Context, sessionID, message string, emit conversation.Sink) error
}

// Handler WebSocket 聊天处理器，与 /chat 共享会话与事件格式
type Handler struct {
	exchanger Exchanger
	sessions  chatService.Store
	cookie    utils.SessionCookie
	logger    *slog.Logger
	upgrader  websocket.Upgrader
}

// New 创建 WebSocket 处理器
func New(exchanger Exchanger, sessions chatService.Store, cookie utils.SessionCookie, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		exchanger: exchanger,
		sessions:  sessions,
		cookie:    cookie,
		logger:    logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册 WebSocket 路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

type inboundMessage struct {
	Message string `json:"message"`
}

// handleWebSocket 处理 WebSocket 连接。每个入站消息对应一次完整的对话交换。
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID, err := h.sessions.GetOrCreate(r.Context(), h.cookie.Read(r))
	if err != nil {
		h.logger.Error("failed to resolve session", "error", err)
		http.Error(w, "failed to resolve session", http.StatusInternalServerError)
		return
	}

	// Set-Cookie has to ride on the upgrade response.
	header := http.Header{}
	h.cookie.Write(headerWriter{header: header}, sessionID)

	conn, err := h.upgrader.Upgrade(w, r, header)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	logger := h.logger.With("session", sessionID)
	logger.Info("websocket connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go pingLoop(ctx, conn)

	emit := func(ev conversation.Event) error {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(ev)
	}

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		if strings.TrimSpace(msg.Message) == "" {
			if err := emit(conversation.Event{Error: "message is required"}); err != nil {
				return
			}
			continue
		}

		// The read deadline must not fire while a long reply streams.
		conn.SetReadDeadline(time.Time{})
		err := h.exchanger.Exchange(ctx, sessionID, msg.Message, emit)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		if err != nil {
			logger.Warn("chat exchange ended without commit", "error", err)
			if errors.Is(err, context.Canceled) {
				return
			}
		}
	}
}

// pingLoop 定期发送 ping 消息。WriteControl 可与 WriteJSON 并发调用。
func pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// headerWriter adapts a bare header map to http.ResponseWriter so the
// session cookie can be rendered into the upgrade response headers.
type headerWriter struct {
	header http.Header
}

func (h headerWriter) Header() http.Header { return h.header }

func (h headerWriter) Write(b []byte) (int, error) { return len(b), nil }

func (h headerWriter) WriteHeader(int) {}
