package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/medassist/internal/config"
	"github.com/wolfman30/medassist/internal/llm"
	"github.com/wolfman30/medassist/pkg/logging"
)

// LLMSetup is the completion client plus what backs it.
type LLMSetup struct {
	Client   llm.Client
	Primary  string
	Fallback string
	close    func() error
}

// Close releases the primary provider's connection, if any.
func (s *LLMSetup) Close() error {
	if s == nil || s.close == nil {
		return nil
	}
	return s.close()
}

// BuildLLM wires Gemini as the primary provider and Bedrock as the fallback.
// With only one provider configured it is used alone. With none, every chat
// turn answers with the "not configured" fallback message.
func BuildLLM(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (*LLMSetup, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var gemini *llm.GeminiClient
	if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		client, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		gemini = client
	}

	var bedrock *llm.BedrockClient
	if model := strings.TrimSpace(cfg.BedrockModelID); model != "" {
		if awsCfg == nil {
			logger.Warn("bedrock model configured without AWS config; disabling fallback")
		} else {
			bedrock = llm.NewBedrockClient(bedrockruntime.NewFromConfig(*awsCfg), model)
		}
	}

	setup := &LLMSetup{Primary: "none", Fallback: "none"}
	switch {
	case gemini != nil && bedrock != nil:
		setup.Client = llm.NewFallbackClient(gemini, bedrock, logger)
		setup.Primary, setup.Fallback = "gemini", "bedrock"
	case gemini != nil:
		setup.Client = gemini
		setup.Primary = "gemini"
	case bedrock != nil:
		setup.Client = bedrock
		setup.Primary = "bedrock"
	default:
		setup.Client = llm.UnavailableClient{}
		logger.Warn("no LLM provider configured; chat will answer with a fallback message")
	}
	if gemini != nil {
		setup.close = gemini.Close
	}
	logger.Info("llm configured", "primary", setup.Primary, "fallback", setup.Fallback)
	return setup, nil
}
