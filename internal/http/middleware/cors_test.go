package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCORS(t *testing.T) {
	cases := []struct {
		name        string
		allowed     []string
		method      string
		origin      string
		preflight   bool
		wantStatus  int
		wantOrigin  string
		wantHandler bool
	}{
		{name: "listed origin", allowed: []string{"http://localhost:3000"}, method: http.MethodPost, origin: "http://localhost:3000", wantStatus: http.StatusOK, wantOrigin: "http://localhost:3000", wantHandler: true},
		{name: "unlisted origin passes without headers", allowed: []string{"http://localhost:3000"}, method: http.MethodGet, origin: "https://other.example", wantStatus: http.StatusOK, wantHandler: true},
		{name: "no origin header", allowed: []string{"http://localhost:3000"}, method: http.MethodGet, wantStatus: http.StatusOK, wantHandler: true},
		{name: "wildcard echoes origin", allowed: []string{"*"}, method: http.MethodGet, origin: "https://clinic.example", wantStatus: http.StatusOK, wantOrigin: "https://clinic.example", wantHandler: true},
		{name: "trailing slash in allowlist", allowed: []string{" https://clinic.example/ "}, method: http.MethodGet, origin: "https://clinic.example", wantStatus: http.StatusOK, wantOrigin: "https://clinic.example", wantHandler: true},
		{name: "allowed preflight", allowed: []string{"http://localhost:3000"}, method: http.MethodOptions, origin: "http://localhost:3000", preflight: true, wantStatus: http.StatusNoContent, wantOrigin: "http://localhost:3000"},
		{name: "rejected preflight", allowed: []string{"http://localhost:3000"}, method: http.MethodOptions, origin: "https://evil.example", preflight: true, wantStatus: http.StatusForbidden},
		{name: "options without request method is not a preflight", allowed: []string{"http://localhost:3000"}, method: http.MethodOptions, origin: "http://localhost:3000", wantStatus: http.StatusOK, wantOrigin: "http://localhost:3000", wantHandler: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			called := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(tc.method, "/chat", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			if tc.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rec := httptest.NewRecorder()
			CORS(tc.allowed)(next).ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rec.Code)
			}
			if called != tc.wantHandler {
				t.Fatalf("handler called=%v, want %v", called, tc.wantHandler)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tc.wantOrigin {
				t.Fatalf("expected allow origin %q, got %q", tc.wantOrigin, got)
			}
		})
	}
}

func TestCORSAdvertisesChatHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()

	CORS([]string{"http://localhost:3000"})(http.NotFoundHandler()).ServeHTTP(rec, req)

	h := rec.Header()
	if !strings.Contains(h.Get("Access-Control-Allow-Headers"), "Authorization") {
		t.Fatalf("expected Authorization in allowed headers, got %q", h.Get("Access-Control-Allow-Headers"))
	}
	if !strings.Contains(h.Get("Access-Control-Allow-Methods"), http.MethodDelete) {
		t.Fatalf("expected DELETE in allowed methods, got %q", h.Get("Access-Control-Allow-Methods"))
	}
	if h.Get("Access-Control-Expose-Headers") != "X-Request-ID" {
		t.Fatalf("expected X-Request-ID to be exposed, got %q", h.Get("Access-Control-Expose-Headers"))
	}
	if h.Get("Vary") != "Origin" {
		t.Fatalf("expected Vary: Origin, got %q", h.Get("Vary"))
	}
}
