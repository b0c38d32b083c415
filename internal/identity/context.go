package identity

import (
	"context"
	"strings"
)

// Role selects the tool set and prompt of a chat session.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
)

// ParseRole accepts patient or doctor, case-insensitively.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RolePatient:
		return RolePatient, true
	case RoleDoctor:
		return RoleDoctor, true
	}
	return "", false
}

// Caller is who a request acts for. Verified is set when the identity came
// from a validated token rather than the request body.
type Caller struct {
	Role     Role
	UserID   string
	Email    string
	DoctorID int64
	Verified bool
}

func (c Caller) IsDoctor() bool { return c.Role == RoleDoctor }

type ctxKey string

const callerKey ctxKey = "medassist.caller"

// WithCaller stores the caller in context.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey, c)
}

// CallerFromContext extracts the caller if present.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey).(Caller)
	return c, ok && c.Role != ""
}

const enforcedKey ctxKey = "medassist.auth_enforced"

// WithAuthEnforced marks ctx as served in provider auth mode, where only a
// verified caller may act as a doctor.
func WithAuthEnforced(ctx context.Context) context.Context {
	return context.WithValue(ctx, enforcedKey, true)
}

// AuthEnforced reports whether ctx was marked by WithAuthEnforced.
func AuthEnforced(ctx context.Context) bool {
	v, _ := ctx.Value(enforcedKey).(bool)
	return v
}

// ActsAsDoctor reports whether c may use doctor-only operations in ctx.
func (c Caller) ActsAsDoctor(ctx context.Context) bool {
	return c.IsDoctor() && (c.Verified || !AuthEnforced(ctx))
}
