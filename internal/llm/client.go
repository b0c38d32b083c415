package llm

import (
	"context"
	"errors"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	// RoleTool carries tool results back to the model.
	RoleTool = "tool"
)

// ErrUnavailable is returned when no provider is configured.
var ErrUnavailable = errors.New("llm: no provider configured")

// Param is one argument of a tool declaration.
type Param struct {
	Name        string
	Type        string // string, integer, number, boolean
	Description string
	Required    bool
	Enum        []string
}

// ToolSpec declares a callable function to the model.
type ToolSpec struct {
	Name        string
	Description string
	Params      []Param
}

// JSONSchema renders the parameters as a JSON-schema object.
func (s ToolSpec) JSONSchema() map[string]any {
	props := make(map[string]any, len(s.Params))
	required := make([]any, 0, len(s.Params))
	for _, p := range s.Params {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			enum := make([]any, len(p.Enum))
			for i, e := range p.Enum {
				enum[i] = e
			}
			prop["enum"] = enum
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// ToolCall is a structured function invocation requested by the model.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ToolResult answers one ToolCall.
type ToolResult struct {
	CallID  string         `json:"call_id"`
	Name    string         `json:"name"`
	Content map[string]any `json:"content"`
	IsError bool           `json:"is_error,omitempty"`
}

// Message is a provider-neutral conversation entry.
type Message struct {
	Role        string
	Content     string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

type Request struct {
	Model       string
	System      string
	Messages    []Message
	Tools       []ToolSpec
	MaxTokens   int32
	Temperature float32 // negative leaves the provider default
}

type Response struct {
	Text       string
	ToolCalls  []ToolCall
	StopReason string
	Usage      TokenUsage
	Provider   string
}

// Client completes one model turn.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// UnavailableClient always fails with ErrUnavailable.
type UnavailableClient struct{}

func (UnavailableClient) Complete(context.Context, Request) (Response, error) {
	return Response{}, ErrUnavailable
}
