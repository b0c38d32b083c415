package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/websocket"

	"github.com/wolfman30/medassist/internal/appointments"
	"github.com/wolfman30/medassist/internal/conversation"
	httpmiddleware "github.com/wolfman30/medassist/internal/http/middleware"
	"github.com/wolfman30/medassist/pkg/logging"
)

// ChatService is the conversation surface the chat endpoints need.
type ChatService interface {
	Chat(ctx context.Context, req conversation.ChatRequest) (*conversation.ChatResponse, error)
	History(ctx context.Context, sessionID string) ([]conversation.HistoryTurn, error)
	EndSession(ctx context.Context, sessionID string) error
}

// ChatHandler serves /chat, its history and the websocket variant.
type ChatHandler struct {
	chat    ChatService
	limiter *httpmiddleware.RateLimiter
	logger  *logging.Logger
}

func NewChatHandler(chat ChatService, logger *logging.Logger) *ChatHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ChatHandler{chat: chat, logger: logger}
}

// WithLimiter throttles websocket message frames with the limiter that
// guards the HTTP chat endpoints, keyed the same way.
func (h *ChatHandler) WithLimiter(limiter *httpmiddleware.RateLimiter) *ChatHandler {
	h.limiter = limiter
	return h
}

// Chat handles POST /chat.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req conversation.ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	resp, err := h.chat.Chat(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// History handles GET /chat/history?session_id=.
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	history, err := h.chat.History(r.Context(), strings.TrimSpace(r.URL.Query().Get("session_id")))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

// EndSession handles DELETE /sessions/{sessionID}.
func (h *ChatHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "sessionID"))
	if id == "" {
		writeError(w, h.logger, r, &appointments.ValidationError{Field: "session_id", Reason: "is required"})
		return
	}
	if err := h.chat.EndSession(r.Context(), id); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// WSInbound is a client frame on /chat/ws.
type WSInbound struct {
	Type string `json:"type"` // "message" or "ping"
	conversation.ChatRequest
}

// WSOutbound is a server frame on /chat/ws.
type WSOutbound struct {
	Type  string                     `json:"type"` // "typing", "reply", "error", "pong"
	Reply *conversation.ChatResponse `json:"reply,omitempty"`
	Error *ErrorResponse             `json:"error,omitempty"`
}

// WebSocket handles GET /chat/ws. Each message frame runs one chat turn; the
// session id from a reply is reused for later frames that omit it.
func (h *ChatHandler) WebSocket(w http.ResponseWriter, r *http.Request) {
	key := httpmiddleware.LimitKey(r)
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(r.Context(), conn, key)
	}).ServeHTTP(w, r)
}

func (h *ChatHandler) serveWS(ctx context.Context, conn *websocket.Conn, key string) {
	var sessionID string
	// The server's read/write timeouts survive the hijack.
	_ = conn.SetDeadline(time.Time{})
	h.logger.Info("chat websocket opened")
	for {
		var msg WSInbound
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("chat websocket closed", "session_id", sessionID, "error", err)
			return
		}
		switch msg.Type {
		case "ping":
			_ = websocket.JSON.Send(conn, WSOutbound{Type: "pong"})
			continue
		case "", "message":
		default:
			continue
		}

		if !h.limiter.Allow(key) {
			h.logger.Warn("chat websocket frame rate limited", "session_id", sessionID, "key", key)
			_ = websocket.JSON.Send(conn, WSOutbound{Type: "error", Error: &ErrorResponse{Kind: "rate_limited", Error: "rate limit exceeded"}})
			continue
		}

		req := msg.ChatRequest
		if req.SessionID == "" {
			req.SessionID = sessionID
		}
		_ = websocket.JSON.Send(conn, WSOutbound{Type: "typing"})
		resp, err := h.chat.Chat(ctx, req)
		if err != nil {
			status, body := errorBody(err)
			if status >= http.StatusInternalServerError {
				h.logger.Error("chat websocket turn failed", "session_id", sessionID, "error", err)
			}
			_ = websocket.JSON.Send(conn, WSOutbound{Type: "error", Error: &body})
			continue
		}
		sessionID = resp.SessionID
		if err := websocket.JSON.Send(conn, WSOutbound{Type: "reply", Reply: resp}); err != nil {
			h.logger.Debug("chat websocket send failed", "session_id", sessionID, "error", err)
			return
		}
	}
}
