// Package conversation runs one chat turn: session lookup, model calls with
// tool dispatch, persistence and suggested replies.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/medassist/internal/appointments"
	"github.com/wolfman30/medassist/internal/identity"
	"github.com/wolfman30/medassist/internal/llm"
	"github.com/wolfman30/medassist/internal/observability/metrics"
	"github.com/wolfman30/medassist/internal/session"
	"github.com/wolfman30/medassist/internal/tools"
	"github.com/wolfman30/medassist/pkg/logging"
)

const (
	DefaultMaxRounds  = 5
	DefaultLLMTimeout = 30 * time.Second

	// StillProcessingMessage replaces an empty model reply.
	StillProcessingMessage = "I'm still processing your request. Please send your message again in a moment."
)

// ChatRequest is one user message.
type ChatRequest struct {
	Message   string `json:"message" validate:"required,max=4000"`
	SessionID string `json:"session_id,omitempty" validate:"omitempty,max=128"`
	Role      string `json:"role" validate:"omitempty,oneof=patient doctor"`
	UserID    string `json:"user_id,omitempty" validate:"max=128"`
	UserEmail string `json:"user_email,omitempty" validate:"omitempty,email"`
	DoctorID  int64  `json:"doctor_id,omitempty" validate:"gte=0"`
}

// ChatResponse is the reply to a ChatRequest.
type ChatResponse struct {
	Response         string   `json:"response"`
	SessionID        string   `json:"session_id"`
	Role             string   `json:"role"`
	SuggestedActions []string `json:"suggested_actions,omitempty"`
	Warnings         []string `json:"warnings,omitempty"`
	ToolsUsed        []string `json:"tools_used,omitempty"`
	// Fallback marks a reply produced without the model. It is persisted only
	// when a booking change already went through during the turn.
	Fallback bool `json:"fallback,omitempty"`
}

// Options tune the chat loop.
type Options struct {
	Model      string
	MaxRounds  int
	LLMTimeout time.Duration
	MaxTokens  int32
	Metrics    *metrics.ChatMetrics
}

// Service orchestrates chat turns.
type Service struct {
	client   llm.Client
	sessions session.Store
	tools    *tools.Dispatcher
	appts    *appointments.Service
	validate *validator.Validate
	opts     Options
	logger   *logging.Logger
	tracer   trace.Tracer
}

func NewService(client llm.Client, sessions session.Store, dispatcher *tools.Dispatcher, appts *appointments.Service, opts Options, logger *logging.Logger) *Service {
	if client == nil {
		client = llm.UnavailableClient{}
	}
	if sessions == nil || dispatcher == nil || appts == nil {
		panic("conversation: sessions, dispatcher and appointments are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = DefaultMaxRounds
	}
	if opts.LLMTimeout <= 0 {
		opts.LLMTimeout = DefaultLLMTimeout
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1024
	}
	return &Service{
		client:   client,
		sessions: sessions,
		tools:    dispatcher,
		appts:    appts,
		validate: validator.New(),
		opts:     opts,
		logger:   logger,
		tracer:   otel.Tracer("medassist.internal.conversation"),
	}
}

// Chat handles one message. A verified caller in ctx overrides the identity
// fields of req.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.chat")
	defer span.End()

	req.Message = strings.TrimSpace(req.Message)
	if err := s.validate.Struct(req); err != nil {
		return nil, requestError(err)
	}
	caller, err := resolveCaller(ctx, req)
	if err != nil {
		return nil, err
	}
	ctx = identity.WithCaller(ctx, caller)
	span.SetAttributes(attribute.String("chat.role", string(caller.Role)))

	meta, err := s.openSession(ctx, req.SessionID, caller)
	if err != nil {
		return nil, err
	}
	history, err := s.sessions.History(ctx, meta.ID)
	if err != nil {
		return nil, fmt.Errorf("conversation: load history: %w", err)
	}

	doctors, err := s.appts.Doctors(ctx)
	if err != nil {
		return nil, fmt.Errorf("conversation: load roster: %w", err)
	}
	now := s.appts.Now()
	system := SystemPrompt(PromptInput{
		Role:    caller.Role,
		Now:     now,
		Doctors: doctors,
		Slot:    s.appts.SlotDuration(),
		Caller:  caller,
		Draft:   meta.Draft,
	})

	messages := make([]llm.Message, 0, len(history)+1)
	for _, t := range history {
		messages = append(messages, llm.Message{Role: t.Role, Content: t.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: req.Message})

	resp := &ChatResponse{SessionID: meta.ID, Role: string(caller.Role)}
	tracker := newDraftTracker(meta.Draft)

	text, committed, err := s.runLoop(ctx, meta.ID, caller.Role, system, messages, resp, tracker)
	if err != nil {
		span.RecordError(err)
		s.opts.Metrics.ObserveChatTurn(string(caller.Role), "fallback")
		s.logger.Warn("chat turn fell back", "session_id", meta.ID, "role", caller.Role, "committed", len(committed), "error", err)
		resp.Response = FallbackMessage(err)
		resp.Fallback = true
		if len(committed) == 0 {
			return resp, nil
		}
		// The booking change stands, so the turn must reach history.
		resp.Response = committedReply(resp.Response, committed)
		if err := s.persistTurn(ctx, meta.ID, req.Message, resp.Response, tracker); err != nil {
			return nil, err
		}
		return resp, nil
	}
	if strings.TrimSpace(text) == "" {
		text = StillProcessingMessage
	}
	resp.Response = text

	if err := s.persistTurn(ctx, meta.ID, req.Message, text, tracker); err != nil {
		return nil, err
	}

	resp.SuggestedActions = Infer(text, caller.Role, now, appointments.DoctorNames(doctors))
	s.opts.Metrics.ObserveChatTurn(string(caller.Role), "ok")
	return resp, nil
}

func (s *Service) persistTurn(ctx context.Context, sessionID, message, reply string, tracker *draftTracker) error {
	turnAt := time.Now().UTC()
	if err := s.sessions.Append(ctx, sessionID,
		session.Turn{Role: session.RoleUser, Content: message, CreatedAt: turnAt},
		session.Turn{Role: session.RoleAssistant, Content: reply, CreatedAt: turnAt},
	); err != nil {
		return fmt.Errorf("conversation: persist turn: %w", err)
	}
	if draft, changed := tracker.result(); changed {
		if err := s.sessions.SaveDraft(ctx, sessionID, draft); err != nil {
			s.logger.Warn("booking draft not saved", "session_id", sessionID, "error", err)
		}
	}
	return nil
}

// runLoop calls the model until it answers without tool calls or the round
// budget is spent. On error it still returns the summaries of state-changing
// tools that succeeded before the failure.
func (s *Service) runLoop(ctx context.Context, sessionID string, role identity.Role, system string, messages []llm.Message, resp *ChatResponse, tracker *draftTracker) (string, []string, error) {
	var committed []string
	specs := s.tools.Specs(role)
	var lastText string
	for round := 0; round < s.opts.MaxRounds; round++ {
		out, err := s.complete(ctx, llm.Request{
			Model:       s.opts.Model,
			System:      system,
			Messages:    messages,
			Tools:       specs,
			MaxTokens:   s.opts.MaxTokens,
			Temperature: 0.2,
		})
		if err != nil {
			return "", committed, err
		}
		lastText = out.Text
		if len(out.ToolCalls) == 0 {
			return out.Text, committed, nil
		}

		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: out.Text, ToolCalls: out.ToolCalls})
		results := make([]llm.ToolResult, 0, len(out.ToolCalls))
		for _, call := range out.ToolCalls {
			outcome := s.tools.Dispatch(ctx, sessionID, call)
			tracker.observe(outcome)
			if outcome.Committed {
				committed = append(committed, outcome.Result.Summary)
			}
			resp.ToolsUsed = append(resp.ToolsUsed, call.Name)
			resp.Warnings = append(resp.Warnings, outcome.Result.Warnings...)
			results = append(results, outcome.ToolResult())
		}
		messages = append(messages, llm.Message{Role: llm.RoleTool, ToolResults: results})
	}
	s.logger.Warn("tool round budget exhausted", "session_id", sessionID, "max_rounds", s.opts.MaxRounds)
	return lastText, committed, nil
}

func (s *Service) complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.opts.LLMTimeout)
	defer cancel()

	start := time.Now()
	out, err := s.client.Complete(callCtx, req)
	latency := time.Since(start)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			outcome = "timeout"
			err = fmt.Errorf("%w: %w", errLLMTimeout, err)
		}
	}
	s.opts.Metrics.ObserveLLM(outcome, latency.Seconds())
	if err != nil {
		return llm.Response{}, err
	}
	s.logger.Info("llm completion finished",
		"provider", out.Provider,
		"latency_ms", latency.Milliseconds(),
		"tool_calls", len(out.ToolCalls),
		"input_tokens", out.Usage.InputTokens,
		"output_tokens", out.Usage.OutputTokens,
		"stop_reason", out.StopReason,
	)
	return out, nil
}

// openSession returns the session to continue, creating a fresh one when the
// id is unknown, expired, or belongs to another role.
func (s *Service) openSession(ctx context.Context, id string, caller identity.Caller) (*session.Meta, error) {
	if id != "" {
		meta, err := s.sessions.Get(ctx, id)
		switch {
		case err == nil && meta.Role == string(caller.Role):
			return meta, nil
		case err == nil:
			s.logger.Info("role changed, starting new session", "previous_session_id", id, "role", caller.Role)
		case errors.Is(err, session.ErrNotFound):
			s.logger.Info("session expired or unknown, starting new session", "previous_session_id", id)
		default:
			return nil, fmt.Errorf("conversation: load session: %w", err)
		}
	}
	meta := session.Meta{
		Role:      string(caller.Role),
		UserID:    caller.UserID,
		UserEmail: caller.Email,
		DoctorID:  caller.DoctorID,
	}
	newID, err := s.sessions.Create(ctx, meta)
	if err != nil {
		return nil, fmt.Errorf("conversation: create session: %w", err)
	}
	meta.ID = newID
	return &meta, nil
}

// HistoryTurn is a transcript entry in the client's wire shape.
type HistoryTurn struct {
	Role  string   `json:"role"`
	Parts []string `json:"parts"`
}

// History returns the transcript of a session. Assistant turns use role "model".
func (s *Service) History(ctx context.Context, sessionID string) ([]HistoryTurn, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, &appointments.ValidationError{Field: "session_id", Reason: "is required"}
	}
	turns, err := s.sessions.History(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]HistoryTurn, 0, len(turns))
	for _, t := range turns {
		role := t.Role
		if role == session.RoleAssistant {
			role = "model"
		}
		out = append(out, HistoryTurn{Role: role, Parts: []string{t.Content}})
	}
	return out, nil
}

// EndSession discards a session.
func (s *Service) EndSession(ctx context.Context, sessionID string) error {
	return s.sessions.Delete(ctx, sessionID)
}

func resolveCaller(ctx context.Context, req ChatRequest) (identity.Caller, error) {
	role := identity.RolePatient
	if req.Role != "" {
		parsed, ok := identity.ParseRole(req.Role)
		if !ok {
			return identity.Caller{}, &appointments.ValidationError{Field: "role", Reason: "must be patient or doctor"}
		}
		role = parsed
	}
	caller := identity.Caller{
		Role:     role,
		UserID:   strings.TrimSpace(req.UserID),
		Email:    strings.ToLower(strings.TrimSpace(req.UserEmail)),
		DoctorID: req.DoctorID,
	}
	if verified, ok := identity.CallerFromContext(ctx); ok && verified.Verified {
		caller.Role = verified.Role
		caller.Verified = true
		if verified.UserID != "" {
			caller.UserID = verified.UserID
		}
		if verified.Email != "" {
			caller.Email = verified.Email
		}
		if verified.DoctorID != 0 {
			caller.DoctorID = verified.DoctorID
		}
	}
	if !caller.ActsAsDoctor(ctx) {
		caller.Role = identity.RolePatient
		caller.DoctorID = 0
	}
	return caller, nil
}

func requestError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := strings.ToLower(fe.Field())
		switch fe.Field() {
		case "SessionID":
			field = "session_id"
		case "UserID":
			field = "user_id"
		case "UserEmail":
			field = "user_email"
		case "DoctorID":
			field = "doctor_id"
		}
		reason := "is invalid"
		switch fe.Tag() {
		case "required":
			reason = "is required"
		case "max":
			reason = "is too long"
		case "email":
			reason = "must be a valid email"
		case "oneof":
			reason = "must be patient or doctor"
		}
		return &appointments.ValidationError{Field: field, Reason: reason}
	}
	return &appointments.ValidationError{Field: "request", Reason: err.Error()}
}
