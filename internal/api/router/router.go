package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/wolfman30/medassist/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/medassist/internal/http/middleware"
	"github.com/wolfman30/medassist/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Chat               *handlers.ChatHandler
	Clinic             *handlers.ClinicHandler
	Health             *handlers.HealthHandler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// AuthSecret enables provider auth mode when set.
	AuthSecret string
	// ChatLimiter throttles the chat endpoints; nil disables limiting.
	ChatLimiter *httpmiddleware.RateLimiter
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()
	authMode := httpmiddleware.ResolveAuthMode(cfg.AuthSecret)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.Authenticate(cfg.AuthSecret, cfg.Logger))

	// Public endpoints
	r.Group(func(public chi.Router) {
		if cfg.Health != nil {
			public.Get("/health", cfg.Health.Health)
			public.Get("/integrations/status", cfg.Health.Status)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	if cfg.Chat != nil {
		r.Group(func(chat chi.Router) {
			chat.Use(httpmiddleware.RateLimit(cfg.ChatLimiter))
			chat.Post("/chat", cfg.Chat.Chat)
			chat.Get("/chat/history", cfg.Chat.History)
			chat.Get("/chat/ws", cfg.Chat.WebSocket)
			chat.Delete("/sessions/{sessionID}", cfg.Chat.EndSession)
		})
	}

	if cfg.Clinic != nil {
		r.Get("/doctors", cfg.Clinic.ListDoctors)
		r.With(httpmiddleware.RequireCaller(authMode)).Get("/appointments", cfg.Clinic.ListAppointments)
		r.Group(func(doctor chi.Router) {
			doctor.Use(httpmiddleware.RequireDoctor(authMode))
			doctor.Post("/doctors", cfg.Clinic.CreateDoctor)
			doctor.Get("/stats", cfg.Clinic.Stats)
			doctor.Post("/doctor/report", cfg.Clinic.Report)
			doctor.Post("/notifications/test-slack", cfg.Clinic.TestSlack)
		})
	}

	return r
}
