package identity

import (
	"context"
	"testing"
)

func TestWithCallerAndCallerFromContext(t *testing.T) {
	ctx := WithCaller(context.Background(), Caller{Role: RoleDoctor, Email: "sarah@clinic.com", DoctorID: 1})

	got, ok := CallerFromContext(ctx)
	if !ok {
		t.Fatalf("expected caller to be present")
	}
	if !got.IsDoctor() || got.DoctorID != 1 {
		t.Fatalf("unexpected caller %+v", got)
	}
}

func TestCallerFromContext_EmptyOrMissing(t *testing.T) {
	if _, ok := CallerFromContext(context.Background()); ok {
		t.Fatalf("expected missing caller to return false")
	}

	ctx := context.WithValue(context.Background(), callerKey, "doctor")
	if _, ok := CallerFromContext(ctx); ok {
		t.Fatalf("expected non-caller value to return false")
	}

	ctx = WithCaller(context.Background(), Caller{})
	if _, ok := CallerFromContext(ctx); ok {
		t.Fatalf("expected caller without role to return false")
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
		ok   bool
	}{
		{"patient", RolePatient, true},
		{" Doctor ", RoleDoctor, true},
		{"admin", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseRole(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("ParseRole(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestActsAsDoctor(t *testing.T) {
	enforced := WithAuthEnforced(context.Background())
	tests := []struct {
		name   string
		ctx    context.Context
		caller Caller
		want   bool
	}{
		{"open unverified doctor", context.Background(), Caller{Role: RoleDoctor, DoctorID: 1}, true},
		{"enforced unverified doctor", enforced, Caller{Role: RoleDoctor, DoctorID: 1}, false},
		{"enforced verified doctor", enforced, Caller{Role: RoleDoctor, DoctorID: 1, Verified: true}, true},
		{"enforced verified patient", enforced, Caller{Role: RolePatient, Verified: true}, false},
	}
	for _, tt := range tests {
		if got := tt.caller.ActsAsDoctor(tt.ctx); got != tt.want {
			t.Fatalf("%s: ActsAsDoctor = %v, want %v", tt.name, got, tt.want)
		}
	}
	if AuthEnforced(context.Background()) {
		t.Fatalf("expected plain context to be unenforced")
	}
}
