package http

import (
	"log/slog"
	"net/http"
	"strings"

	gorillaws "github.com/gorilla/websocket"

	"petakeu/internal/middleware"
	"petakeu/internal/websocket"
)

// WebSocketHandler upgrades dashboard connections and attaches them to the
// event hub
type WebSocketHandler struct {
	hub      *websocket.Hub
	upgrader gorillaws.Upgrader
	origins  []string
	logger   *slog.Logger
}

// NewWebSocketHandler creates a websocket handler. An empty origin list
// accepts every origin.
func NewWebSocketHandler(hub *websocket.Hub, allowedOrigins []string, readBuffer, writeBuffer int, logger *slog.Logger) *WebSocketHandler {
	h := &WebSocketHandler{
		hub:     hub,
		origins: allowedOrigins,
		logger:  logger.With(slog.String("component", "websocket_handler")),
	}
	h.upgrader = gorillaws.Upgrader{
		ReadBufferSize:  readBuffer,
		WriteBufferSize: writeBuffer,
		CheckOrigin:     h.checkOrigin,
		Error: func(w http.ResponseWriter, r *http.Request, status int, reason error) {
			h.logger.WarnContext(r.Context(), "websocket upgrade rejected",
				slog.Int("status", status),
				slog.String("reason", reason.Error()),
				slog.String("origin", r.Header.Get("Origin")))
			http.Error(w, http.StatusText(status), status)
		},
	}
	return h
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.origins) == 0 {
		return true
	}
	for _, allowed := range h.origins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// ServeHTTP handles GET /ws
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.ErrorContext(ctx, "websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	websocket.Serve(h.hub, websocket.NewConnectionWrapper(conn), middleware.GetRequestID(ctx), h.logger)
	h.logger.InfoContext(ctx, "websocket client connected",
		slog.String("remote_addr", middleware.GetRealIP(r)))
}
