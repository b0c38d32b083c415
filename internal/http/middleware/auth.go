package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/wolfman30/medassist/internal/identity"
	"github.com/wolfman30/medassist/pkg/logging"
)

// AuthMode says whether callers are verified.
type AuthMode string

const (
	// AuthProvider validates HS256 bearer tokens.
	AuthProvider AuthMode = "provider"
	// AuthOpen trusts the role sent in the request. Development only.
	AuthOpen AuthMode = "open"
)

// ResolveAuthMode picks provider mode whenever a signing secret is configured.
func ResolveAuthMode(secret string) AuthMode {
	if strings.TrimSpace(secret) != "" {
		return AuthProvider
	}
	return AuthOpen
}

// CallerClaims are the token claims mapped onto identity.Caller.
type CallerClaims struct {
	jwt.RegisteredClaims
	Email    string          `json:"email"`
	Role     string          `json:"role"`
	DoctorID json.RawMessage `json:"doctor_id,omitempty"`
}

func (c CallerClaims) doctorID() (int64, error) {
	raw := strings.Trim(strings.TrimSpace(string(c.DoctorID)), `"`)
	if raw == "" || raw == "null" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

// Authenticate verifies bearer tokens in provider mode and stores the caller
// in the request context. Requests without a token pass through unverified so
// public endpoints keep working; a present but invalid token is rejected.
func Authenticate(secret string, logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	mode := ResolveAuthMode(secret)
	return func(next http.Handler) http.Handler {
		if mode == AuthOpen {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r = r.WithContext(identity.WithAuthEnforced(r.Context()))
			auth := strings.TrimSpace(r.Header.Get("Authorization"))
			if auth == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !strings.HasPrefix(auth, "Bearer ") {
				writeJSONError(w, http.StatusUnauthorized, "authorization", "malformed authorization header")
				return
			}
			caller, err := parseCaller(strings.TrimPrefix(auth, "Bearer "), secret)
			if err != nil {
				logger.Warn("rejected bearer token", "error", err, "path", r.URL.Path)
				writeJSONError(w, http.StatusUnauthorized, "authorization", "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(identity.WithCaller(r.Context(), caller)))
		})
	}
}

func parseCaller(tokenString, secret string) (identity.Caller, error) {
	claims := CallerClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err == nil && !token.Valid {
		err = jwt.ErrTokenUnverifiable
	}
	if err != nil {
		return identity.Caller{}, fmt.Errorf("middleware: parse token: %w", err)
	}
	role, ok := identity.ParseRole(claims.Role)
	if !ok {
		role = identity.RolePatient
	}
	doctorID, err := claims.doctorID()
	if err != nil {
		return identity.Caller{}, fmt.Errorf("middleware: doctor_id claim: %w", err)
	}
	if role != identity.RoleDoctor {
		doctorID = 0
	}
	return identity.Caller{
		Role:     role,
		UserID:   claims.Subject,
		Email:    strings.ToLower(strings.TrimSpace(claims.Email)),
		DoctorID: doctorID,
		Verified: true,
	}, nil
}

// RequireDoctor rejects verified non-doctor callers and, in provider mode,
// anonymous ones. Open mode lets the request through.
func RequireDoctor(mode AuthMode) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := identity.CallerFromContext(r.Context())
			switch {
			case ok && caller.Verified && !caller.IsDoctor():
				writeJSONError(w, http.StatusForbidden, "authorization", "doctor role required")
				return
			case mode == AuthProvider && !(ok && caller.Verified):
				writeJSONError(w, http.StatusUnauthorized, "authorization", "authentication required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireCaller rejects anonymous requests in provider mode. Open mode lets
// the request through.
func RequireCaller(mode AuthMode) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if mode == AuthProvider {
				if caller, ok := identity.CallerFromContext(r.Context()); !ok || !caller.Verified {
					writeJSONError(w, http.StatusUnauthorized, "authorization", "authentication required")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSONError(w http.ResponseWriter, status int, kind, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "kind": kind})
}
