package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/websocket"

	"github.com/wolfman30/medassist/internal/appointments"
	"github.com/wolfman30/medassist/internal/conversation"
	httpmiddleware "github.com/wolfman30/medassist/internal/http/middleware"
	"github.com/wolfman30/medassist/internal/session"
	"github.com/wolfman30/medassist/pkg/logging"
)

type stubChat struct {
	mu       sync.Mutex
	requests []conversation.ChatRequest
	chatErr  error
	history  []conversation.HistoryTurn
	endErr   error
	ended    []string
}

func (s *stubChat) Chat(_ context.Context, req conversation.ChatRequest) (*conversation.ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.chatErr != nil {
		return nil, s.chatErr
	}
	id := req.SessionID
	if id == "" {
		id = "sess-1"
	}
	return &conversation.ChatResponse{Response: "echo: " + req.Message, SessionID: id, Role: "patient"}, nil
}

func (s *stubChat) History(_ context.Context, id string) ([]conversation.HistoryTurn, error) {
	if id == "" {
		return nil, &appointments.ValidationError{Field: "session_id", Reason: "is required"}
	}
	if s.history == nil {
		return nil, fmt.Errorf("%w: %s", session.ErrNotFound, id)
	}
	return s.history, nil
}

func (s *stubChat) EndSession(_ context.Context, id string) error {
	s.ended = append(s.ended, id)
	return s.endErr
}

func newChatRouter(chat ChatService) http.Handler {
	return chatRoutes(NewChatHandler(chat, logging.New("error")))
}

func chatRoutes(h *ChatHandler) http.Handler {
	r := chi.NewRouter()
	r.Post("/chat", h.Chat)
	r.Get("/chat/history", h.History)
	r.Get("/chat/ws", h.WebSocket)
	r.Delete("/sessions/{sessionID}", h.EndSession)
	return r
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, rec.Body.String())
	}
	return body
}

func TestChatReturnsReply(t *testing.T) {
	chat := &stubChat{}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"hello","role":"patient"}`))
	newChatRouter(chat).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	var resp conversation.ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Response != "echo: hello" || resp.SessionID != "sess-1" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestChatRejectsMalformedBody(t *testing.T) {
	cases := map[string]string{
		"empty":   "",
		"invalid": "{not json",
		"large":   `{"message":"` + strings.Repeat("a", maxBodyBytes) + `"}`,
	}
	for name, body := range cases {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
		newChatRouter(&stubChat{}).ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, rec.Code)
		}
		if kind := decodeError(t, rec).Kind; kind != "validation" {
			t.Fatalf("%s: expected validation kind, got %q", name, kind)
		}
	}
}

func TestChatHidesInternalErrors(t *testing.T) {
	chat := &stubChat{chatErr: errors.New("pq: connection reset by peer")}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"hi"}`))
	newChatRouter(chat).ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if body := decodeError(t, rec); strings.Contains(body.Error, "pq:") {
		t.Fatalf("internal error leaked: %q", body.Error)
	}
}

func TestHistoryStatusCodes(t *testing.T) {
	chat := &stubChat{}
	router := newChatRouter(chat)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chat/history", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without session_id, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chat/history?session_id=missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", rec.Code)
	}

	chat.history = []conversation.HistoryTurn{{Role: "user", Parts: []string{"hi"}}, {Role: "model", Parts: []string{"hello"}}}
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chat/history?session_id=sess-1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		History []conversation.HistoryTurn `json:"history"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.History) != 2 || body.History[1].Role != "model" {
		t.Fatalf("unexpected history %+v", body.History)
	}
}

func TestEndSession(t *testing.T) {
	chat := &stubChat{}
	rec := httptest.NewRecorder()
	newChatRouter(chat).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/sessions/sess-9", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if len(chat.ended) != 1 || chat.ended[0] != "sess-9" {
		t.Fatalf("unexpected ended sessions %v", chat.ended)
	}

	chat.endErr = fmt.Errorf("%w: sess-9", session.ErrNotFound)
	rec = httptest.NewRecorder()
	newChatRouter(chat).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/sessions/sess-9", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestWebSocketReusesSessionID(t *testing.T) {
	chat := &stubChat{}
	srv := httptest.NewServer(newChatRouter(chat))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/ws"
	conn, err := websocket.Dial(wsURL, "", srv.URL)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := websocket.JSON.Send(conn, WSInbound{Type: "ping"}); err != nil {
		t.Fatalf("send ping: %v", err)
	}
	var out WSOutbound
	if err := websocket.JSON.Receive(conn, &out); err != nil || out.Type != "pong" {
		t.Fatalf("expected pong, got %+v (%v)", out, err)
	}

	for i, text := range []string{"first", "second"} {
		msg := WSInbound{Type: "message"}
		msg.Message = text
		if err := websocket.JSON.Send(conn, msg); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
		var typing WSOutbound
		if err := websocket.JSON.Receive(conn, &typing); err != nil || typing.Type != "typing" {
			t.Fatalf("expected typing frame, got %+v (%v)", typing, err)
		}
		var reply WSOutbound
		if err := websocket.JSON.Receive(conn, &reply); err != nil {
			t.Fatalf("receive reply %d: %v", i, err)
		}
		if reply.Type != "reply" || reply.Reply == nil || reply.Reply.Response != "echo: "+text {
			t.Fatalf("unexpected reply %+v", reply)
		}
	}

	chat.mu.Lock()
	defer chat.mu.Unlock()
	if len(chat.requests) != 2 {
		t.Fatalf("expected 2 chat turns, got %d", len(chat.requests))
	}
	if chat.requests[1].SessionID != "sess-1" {
		t.Fatalf("expected second frame to reuse session, got %q", chat.requests[1].SessionID)
	}
}

func TestWebSocketSendsErrorFrames(t *testing.T) {
	chat := &stubChat{chatErr: &appointments.ValidationError{Field: "message", Reason: "is required"}}
	srv := httptest.NewServer(newChatRouter(chat))
	defer srv.Close()

	conn, err := websocket.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/chat/ws", "", srv.URL)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := websocket.JSON.Send(conn, WSInbound{Type: "message"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	var frame WSOutbound
	for frame.Type != "error" {
		if err := websocket.JSON.Receive(conn, &frame); err != nil {
			t.Fatalf("receive: %v", err)
		}
	}
	if frame.Error == nil || frame.Error.Kind != "validation" {
		t.Fatalf("unexpected error frame %+v", frame)
	}
}

func TestWebSocketFramesAreRateLimited(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	chat := &stubChat{}
	h := NewChatHandler(chat, logging.New("error")).WithLimiter(httpmiddleware.NewRateLimiter(ctx, 0.001, 2))
	srv := httptest.NewServer(chatRoutes(h))
	defer srv.Close()

	conn, err := websocket.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/chat/ws", "", srv.URL)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Burst of two: the third message frame is refused.
	for i, want := range []string{"typing", "reply", "typing", "reply", "error"} {
		if i%2 == 0 {
			msg := WSInbound{Type: "message"}
			msg.Message = fmt.Sprintf("frame %d", i)
			if err := websocket.JSON.Send(conn, msg); err != nil {
				t.Fatalf("send %d: %v", i, err)
			}
		}
		var frame WSOutbound
		if err := websocket.JSON.Receive(conn, &frame); err != nil {
			t.Fatalf("receive %d: %v", i, err)
		}
		if frame.Type != want {
			t.Fatalf("frame %d: expected %q, got %+v", i, want, frame)
		}
		if want == "error" && (frame.Error == nil || frame.Error.Kind != "rate_limited") {
			t.Fatalf("expected rate_limited error frame, got %+v", frame)
		}
	}

	chat.mu.Lock()
	defer chat.mu.Unlock()
	if len(chat.requests) != 2 {
		t.Fatalf("expected 2 chat turns, got %d", len(chat.requests))
	}
}

func TestQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?doctor_id=7&bad=x&neg=-1", nil)
	if n, err := queryInt(req, "doctor_id"); err != nil || n != 7 {
		t.Fatalf("expected 7, got %d (%v)", n, err)
	}
	if n, err := queryInt(req, "missing"); err != nil || n != 0 {
		t.Fatalf("expected 0 for missing key, got %d (%v)", n, err)
	}
	if _, err := queryInt(req, "bad"); err == nil {
		t.Fatalf("expected error for non-numeric value")
	}
	if _, err := queryInt(req, "neg"); err == nil {
		t.Fatalf("expected error for negative value")
	}
}
