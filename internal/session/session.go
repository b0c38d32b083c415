package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is the sliding expiry applied when none is configured.
const DefaultTTL = 24 * time.Hour

// DefaultSweepInterval is how often the in-process store drops expired sessions.
const DefaultSweepInterval = 5 * time.Minute

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrNotFound is returned for unknown or expired session ids.
var ErrNotFound = errors.New("session: not found")

// Turn is one message in a conversation.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Draft is the partially collected booking. Zero fields are not yet known.
type Draft struct {
	DoctorID int64  `json:"doctor_id,omitempty"`
	Date     string `json:"date,omitempty"`
	Time     string `json:"time,omitempty"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// IsZero reports whether nothing has been collected.
func (d Draft) IsZero() bool {
	return d == Draft{}
}

// Merge returns d with every non-empty field of other applied on top.
func (d Draft) Merge(other Draft) Draft {
	if other.DoctorID != 0 {
		d.DoctorID = other.DoctorID
	}
	if s := strings.TrimSpace(other.Date); s != "" {
		d.Date = s
	}
	if s := strings.TrimSpace(other.Time); s != "" {
		d.Time = s
	}
	if s := strings.TrimSpace(other.Name); s != "" {
		d.Name = s
	}
	if s := strings.TrimSpace(other.Email); s != "" {
		d.Email = s
	}
	if s := strings.TrimSpace(other.Reason); s != "" {
		d.Reason = s
	}
	return d
}

// Missing lists the booking fields still to collect, in asking order.
func (d Draft) Missing() []string {
	var out []string
	if d.DoctorID == 0 {
		out = append(out, "doctor")
	}
	if d.Date == "" {
		out = append(out, "date")
	}
	if d.Time == "" {
		out = append(out, "time")
	}
	if d.Name == "" {
		out = append(out, "name")
	}
	if d.Email == "" {
		out = append(out, "email")
	}
	return out
}

// Meta describes who owns a session.
type Meta struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	UserID    string    `json:"user_id,omitempty"`
	UserEmail string    `json:"user_email,omitempty"`
	DoctorID  int64     `json:"doctor_id,omitempty"`
	Draft     Draft     `json:"draft"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists conversation sessions. Every read or write refreshes expiry.
type Store interface {
	Create(ctx context.Context, meta Meta) (string, error)
	Get(ctx context.Context, id string) (*Meta, error)
	Append(ctx context.Context, id string, turns ...Turn) error
	History(ctx context.Context, id string) ([]Turn, error)
	SaveDraft(ctx context.Context, id string, draft Draft) error
	Delete(ctx context.Context, id string) error
}

// NewID returns a 128-bit random hex session id.
func NewID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	return hex.EncodeToString(b)
}

func stamp(turns []Turn, now time.Time) []Turn {
	out := make([]Turn, len(turns))
	for i, t := range turns {
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		out[i] = t
	}
	return out
}
