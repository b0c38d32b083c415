package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/option"
)

const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiClient implements Client with Gemini function calling.
type GeminiClient struct {
	client  *genai.Client
	modelID string
	tracer  trace.Tracer
}

func NewGeminiClient(ctx context.Context, apiKey, modelID string) (*GeminiClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("llm: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("llm: failed to create gemini client: %w", err)
	}
	return &GeminiClient{
		client:  client,
		modelID: modelID,
		tracer:  otel.Tracer("medassist.internal.llm.gemini"),
	}, nil
}

func (c *GeminiClient) Complete(ctx context.Context, req Request) (Response, error) {
	ctx, span := c.tracer.Start(ctx, "llm.gemini.complete")
	defer span.End()

	modelID := c.modelID
	if strings.TrimSpace(req.Model) != "" {
		modelID = req.Model
	}
	model := c.client.GenerativeModel(modelID)
	if req.Temperature >= 0 {
		model.SetTemperature(req.Temperature)
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(req.MaxTokens)
	}
	if strings.TrimSpace(req.System) != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(req.System))
	}
	if len(req.Tools) > 0 {
		model.Tools = []*genai.Tool{{FunctionDeclarations: geminiDeclarations(req.Tools)}}
	}

	contents := geminiContents(req.Messages)
	if len(contents) == 0 {
		return Response{}, errors.New("llm: gemini requires at least one message")
	}
	cs := model.StartChat()
	cs.History = contents[:len(contents)-1]
	last := contents[len(contents)-1]

	resp, err := cs.SendMessage(ctx, last.Parts...)
	if err != nil {
		span.RecordError(err)
		return Response{}, fmt.Errorf("llm: gemini completion failed: %w", err)
	}
	out, err := geminiResponse(resp)
	if err != nil {
		span.RecordError(err)
		return Response{}, err
	}
	span.SetAttributes(
		attribute.String("llm.model", modelID),
		attribute.Int("llm.tool_calls", len(out.ToolCalls)),
	)
	return out, nil
}

// Close releases resources held by the Gemini client.
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func geminiDeclarations(specs []ToolSpec) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, spec := range specs {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  geminiSchema(spec),
		})
	}
	return decls
}

func geminiSchema(spec ToolSpec) *genai.Schema {
	schema := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema, len(spec.Params)),
	}
	for _, p := range spec.Params {
		schema.Properties[p.Name] = &genai.Schema{
			Type:        geminiType(p.Type),
			Description: p.Description,
			Enum:        p.Enum,
		}
		if p.Required {
			schema.Required = append(schema.Required, p.Name)
		}
	}
	return schema
}

func geminiType(t string) genai.Type {
	switch t {
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	default:
		return genai.TypeString
	}
}

// geminiContents maps messages onto user/model contents. Tool results travel
// as function responses in a user turn.
func geminiContents(messages []Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		var content *genai.Content
		switch msg.Role {
		case RoleSystem:
			continue
		case RoleAssistant:
			content = &genai.Content{Role: "model"}
			if text := strings.TrimSpace(msg.Content); text != "" {
				content.Parts = append(content.Parts, genai.Text(text))
			}
			for _, call := range msg.ToolCalls {
				content.Parts = append(content.Parts, genai.FunctionCall{Name: call.Name, Args: call.Args})
			}
		case RoleTool:
			content = &genai.Content{Role: "user"}
			for _, res := range msg.ToolResults {
				content.Parts = append(content.Parts, genai.FunctionResponse{Name: res.Name, Response: res.Content})
			}
		default:
			text := strings.TrimSpace(msg.Content)
			if text == "" {
				continue
			}
			content = &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(text)}}
		}
		if len(content.Parts) > 0 {
			out = append(out, content)
		}
	}
	return out
}

func geminiResponse(resp *genai.GenerateContentResponse) (Response, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return Response{}, errors.New("llm: gemini returned no candidates")
	}
	candidate := resp.Candidates[0]
	out := Response{Provider: "gemini", StopReason: candidate.FinishReason.String()}
	if candidate.Content != nil {
		var text strings.Builder
		for _, part := range candidate.Content.Parts {
			switch p := part.(type) {
			case genai.Text:
				text.WriteString(string(p))
			case genai.FunctionCall:
				out.ToolCalls = append(out.ToolCalls, ToolCall{
					ID:   uuid.NewString(),
					Name: p.Name,
					Args: p.Args,
				})
			}
		}
		out.Text = strings.TrimSpace(text.String())
	}
	if resp.UsageMetadata != nil {
		out.Usage = TokenUsage{
			InputTokens:  resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  resp.UsageMetadata.TotalTokenCount,
		}
	}
	return out, nil
}
