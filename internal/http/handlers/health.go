package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/wolfman30/medassist/internal/notify"
)

// Integrations describes which optional backends the server started with.
type Integrations struct {
	AuthMode       string `json:"auth_mode"`
	PublicAuthKey  bool   `json:"public_auth_key"`
	LLMPrimary     string `json:"llm_primary"`
	LLMFallback    string `json:"llm_fallback"`
	Database       string `json:"database"`
	Sessions       string `json:"sessions"`
	AuditLog       string `json:"audit_log"`
	ReportsArchive bool   `json:"reports_archive"`
}

// IntegrationsStatus is the body of GET /integrations/status.
type IntegrationsStatus struct {
	Integrations
	Notifications notify.Status `json:"notifications"`
}

// HealthHandler serves liveness and integration status.
type HealthHandler struct {
	integrations Integrations
	notifier     *notify.Service
	ping         func(ctx context.Context) error
	now          func() time.Time
}

// NewHealthHandler builds the handler. ping may be nil.
func NewHealthHandler(integrations Integrations, notifier *notify.Service, ping func(ctx context.Context) error) *HealthHandler {
	return &HealthHandler{integrations: integrations, notifier: notifier, ping: ping, now: time.Now}
}

// Health handles GET /health. It reports degraded, not down, when the
// database ping fails.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status": "ok",
		"time":   h.now().UTC().Format(time.RFC3339),
	}
	if h.ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.ping(ctx); err != nil {
			body["status"] = "degraded"
			body["database"] = "unreachable"
		}
	}
	writeJSON(w, http.StatusOK, body)
}

// Status handles GET /integrations/status.
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	out := IntegrationsStatus{Integrations: h.integrations}
	if h.notifier != nil {
		out.Notifications = h.notifier.Status()
	}
	writeJSON(w, http.StatusOK, out)
}
