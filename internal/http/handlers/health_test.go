package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wolfman30/medassist/internal/notify"
	"github.com/wolfman30/medassist/pkg/logging"
)

func TestHealthDegradesWhenPingFails(t *testing.T) {
	h := NewHealthHandler(Integrations{}, nil, func(context.Context) error { return errors.New("refused") })
	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "degraded" || body["database"] != "unreachable" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestStatusReportsIntegrationsAndChannels(t *testing.T) {
	logger := logging.New("error")
	notifier := notify.NewService(notify.Channels{
		Email:         notify.NewStubEmailSender(logger),
		EmailProvider: "stub",
		Slack:         notify.NewSlackNotifier("http://127.0.0.1:1/hook", logger),
	}, notify.Options{}, logger)
	h := NewHealthHandler(Integrations{AuthMode: "open", LLMPrimary: "gemini", Sessions: "redis"}, notifier, nil)

	rec := httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodGet, "/integrations/status", nil))

	var body IntegrationsStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.AuthMode != "open" || body.LLMPrimary != "gemini" || body.Sessions != "redis" {
		t.Fatalf("unexpected integrations %+v", body.Integrations)
	}
	if !body.Notifications.Email || !body.Notifications.Slack || body.Notifications.WhatsApp {
		t.Fatalf("unexpected notification status %+v", body.Notifications)
	}
}
