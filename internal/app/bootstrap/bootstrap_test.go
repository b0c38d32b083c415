package bootstrap

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	appconfig "github.com/wolfman30/medassist/internal/config"
	"github.com/wolfman30/medassist/internal/llm"
	"github.com/wolfman30/medassist/internal/session"
	"github.com/wolfman30/medassist/pkg/logging"
)

func testConfig() *appconfig.Config {
	return &appconfig.Config{
		Env:                "test",
		GeminiModel:        "gemini-2.5-flash",
		SessionTTL:         time.Hour,
		ClinicTimezone:     "UTC",
		SlotDuration:       30 * time.Minute,
		LLMTimeout:         time.Second,
		LLMMaxRounds:       5,
		NotifyTimeout:      time.Second,
		CORSAllowedOrigins: []string{"http://localhost:3000"},
	}
}

func TestBuildRedisClientDisabledWithoutAddr(t *testing.T) {
	if client := BuildRedisClient(context.Background(), testConfig(), nil, true); client != nil {
		t.Fatalf("expected nil client without REDIS_ADDR")
	}
}

func TestBuildRedisClientUnreachableReturnsNil(t *testing.T) {
	cfg := testConfig()
	cfg.RedisAddr = "127.0.0.1:1"
	if client := BuildRedisClient(context.Background(), cfg, logging.New("error"), true); client != nil {
		t.Fatalf("expected nil client when ping fails")
	}
}

func TestBuildSessionStoreUsesRedisWhenAvailable(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.RedisAddr = mr.Addr()

	client := BuildRedisClient(context.Background(), cfg, logging.New("error"), true)
	if client == nil {
		t.Fatalf("expected redis client")
	}
	defer client.Close()

	store, name := BuildSessionStore(context.Background(), client, cfg)
	if name != "redis" {
		t.Fatalf("expected redis backend, got %s", name)
	}
	if _, ok := store.(*session.RedisStore); !ok {
		t.Fatalf("expected RedisStore, got %T", store)
	}
}

func TestBuildSessionStoreFallsBackToMemory(t *testing.T) {
	store, name := BuildSessionStore(context.Background(), nil, testConfig())
	if name != "memory" {
		t.Fatalf("expected memory backend, got %s", name)
	}
	if _, ok := store.(*session.MemoryStore); !ok {
		t.Fatalf("expected MemoryStore, got %T", store)
	}
}

func TestBuildStorageMemorySeedsRoster(t *testing.T) {
	st, err := BuildStorage(context.Background(), testConfig(), logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer st.Close()

	if st.Backend != "memory" || st.AuditBackend != "log" {
		t.Fatalf("unexpected backends: %s/%s", st.Backend, st.AuditBackend)
	}
	doctors, err := st.Appointments.ListDoctors(context.Background())
	if err != nil {
		t.Fatalf("list doctors: %v", err)
	}
	if len(doctors) != 5 {
		t.Fatalf("expected 5 seeded doctors, got %d", len(doctors))
	}
	if err := st.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestBuildStorageSQLiteSeedsOnce(t *testing.T) {
	cfg := testConfig()
	cfg.SQLitePath = filepath.Join(t.TempDir(), "clinic.db")

	first, err := BuildStorage(context.Background(), cfg, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Backend != "sqlite" {
		t.Fatalf("expected sqlite backend, got %s", first.Backend)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, err := BuildStorage(context.Background(), cfg, logging.New("error"))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	doctors, err := second.Appointments.ListDoctors(context.Background())
	if err != nil {
		t.Fatalf("list doctors: %v", err)
	}
	if len(doctors) != 5 {
		t.Fatalf("expected roster seeded once, got %d doctors", len(doctors))
	}
}

func TestBuildLLMWithoutProvidersIsUnavailable(t *testing.T) {
	setup, err := BuildLLM(context.Background(), testConfig(), nil, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := setup.Client.(llm.UnavailableClient); !ok {
		t.Fatalf("expected UnavailableClient, got %T", setup.Client)
	}
	if setup.Primary != "none" || setup.Fallback != "none" {
		t.Fatalf("unexpected providers: %s/%s", setup.Primary, setup.Fallback)
	}
	if err := setup.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestBuildLLMRequiresConfig(t *testing.T) {
	if _, err := BuildLLM(context.Background(), nil, nil, nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func TestBuildNotifierUsesStubEmailOutsideProduction(t *testing.T) {
	svc := BuildNotifier(context.Background(), testConfig(), nil, nil, logging.New("error"))
	st := svc.Status()
	if !st.Email || st.EmailProvider != "stub" {
		t.Fatalf("expected stub email, got %+v", st)
	}
	if st.Calendar || st.Slack || st.WhatsApp {
		t.Fatalf("expected optional channels disabled, got %+v", st)
	}
}

func TestBuildNotifierProductionWithoutEmail(t *testing.T) {
	cfg := testConfig()
	cfg.Env = "production"
	cfg.SlackWebhookURL = "http://127.0.0.1:1/hook"
	st := BuildNotifier(context.Background(), cfg, nil, nil, logging.New("error")).Status()
	if st.Email {
		t.Fatalf("expected email disabled in production without a provider")
	}
	if !st.Slack {
		t.Fatalf("expected slack enabled")
	}
}

func TestBuildRequiresConfig(t *testing.T) {
	if _, err := Build(context.Background(), nil, nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func TestBuildServesChatFallbackWithoutLLM(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := Build(ctx, testConfig(), logging.New("error"))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer app.Close()

	if app.Status.AuthMode != "open" || app.Status.LLMPrimary != "none" || app.Status.Sessions != "memory" {
		t.Fatalf("unexpected status: %+v", app.Status)
	}

	srv := httptest.NewServer(app.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from /health, got %d", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/chat", "application/json", strings.NewReader(`{"message":"I need an appointment","role":"patient"}`))
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from /chat, got %d", resp.StatusCode)
	}
	var body struct {
		Response string `json:"response"`
		Fallback bool   `json:"fallback"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Fallback || !strings.Contains(body.Response, "no AI provider is configured") {
		t.Fatalf("expected unconfigured fallback, got %+v", body)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", resp.StatusCode)
	}
}
