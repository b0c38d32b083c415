// Package audit records every tool execution for later review.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/wolfman30/medassist/pkg/logging"
)

// Status values recorded for a tool execution.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusDenied  = "denied"
)

// ToolEvent is an immutable record of one tool execution.
type ToolEvent struct {
	ID         string          `json:"id"`
	Tool       string          `json:"tool"`
	Role       string          `json:"role"`
	SessionID  string          `json:"session_id,omitempty"`
	UserEmail  string          `json:"user_email,omitempty"`
	Args       json.RawMessage `json:"args,omitempty"`
	Status     string          `json:"status"`
	ErrorKind  string          `json:"error_kind,omitempty"`
	Error      string          `json:"error,omitempty"`
	Mutates    bool            `json:"mutates"`
	Warnings   []string        `json:"warnings,omitempty"`
	DurationMS int64           `json:"duration_ms"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Recorder persists tool events.
type Recorder interface {
	Record(ctx context.Context, event ToolEvent) error
}

func prepare(event *ToolEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if len(event.Args) == 0 {
		event.Args = json.RawMessage(`{}`)
	}
}

// SQLRecorder writes events to the tool_audit_events table.
type SQLRecorder struct {
	db *sql.DB
}

func NewSQLRecorder(db *sql.DB) *SQLRecorder {
	return &SQLRecorder{db: db}
}

func (r *SQLRecorder) Record(ctx context.Context, event ToolEvent) error {
	prepare(&event)

	query := `
		INSERT INTO tool_audit_events (
			id, tool, role, session_id, user_email, args, status,
			error_kind, error, mutates, warnings, duration_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.Tool,
		event.Role,
		nullString(event.SessionID),
		nullString(event.UserEmail),
		[]byte(event.Args),
		event.Status,
		nullString(event.ErrorKind),
		nullString(event.Error),
		event.Mutates,
		pq.Array(event.Warnings),
		event.DurationMS,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: failed to record tool event: %w", err)
	}
	return nil
}

// Recent returns the latest events for one session, newest first.
func (r *SQLRecorder) Recent(ctx context.Context, sessionID string, limit int) ([]ToolEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tool, role, COALESCE(session_id, ''), COALESCE(user_email, ''), args, status,
			COALESCE(error_kind, ''), COALESCE(error, ''), mutates, warnings, duration_ms, created_at
		FROM tool_audit_events
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: query events: %w", err)
	}
	defer rows.Close()

	var out []ToolEvent
	for rows.Next() {
		var (
			e    ToolEvent
			args []byte
		)
		if err := rows.Scan(&e.ID, &e.Tool, &e.Role, &e.SessionID, &e.UserEmail, &args, &e.Status,
			&e.ErrorKind, &e.Error, &e.Mutates, pq.Array(&e.Warnings), &e.DurationMS, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan event: %w", err)
		}
		e.Args = json.RawMessage(args)
		out = append(out, e)
	}
	return out, rows.Err()
}

// LogRecorder writes events to the structured log only.
type LogRecorder struct {
	logger *logging.Logger
}

func NewLogRecorder(logger *logging.Logger) *LogRecorder {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogRecorder{logger: logger}
}

func (r *LogRecorder) Record(ctx context.Context, event ToolEvent) error {
	prepare(&event)
	r.logger.Info("tool audit",
		"audit_id", event.ID,
		"tool", event.Tool,
		"role", event.Role,
		"session_id", event.SessionID,
		"status", event.Status,
		"error_kind", event.ErrorKind,
		"mutates", event.Mutates,
		"duration_ms", event.DurationMS,
	)
	return nil
}

// MemoryRecorder keeps events in process.
type MemoryRecorder struct {
	mu     sync.Mutex
	events []ToolEvent
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

func (r *MemoryRecorder) Record(ctx context.Context, event ToolEvent) error {
	prepare(&event)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *MemoryRecorder) Events() []ToolEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ToolEvent, len(r.events))
	copy(out, r.events)
	return out
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
