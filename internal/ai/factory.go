package ai

import (
	"context"
	"fmt"

	"github.com/local/videoprompt/internal/config"
)

// New builds the client for the configured engine. The API key is resolved
// here once; a missing key is a startup error.
func New(ctx context.Context, cfg config.AIConfig) (Client, error) {
	switch cfg.Engine {
	case "", "gemini":
		return NewGeminiClient(ctx, GeminiOptions{APIKey: cfg.Gemini.APIKey, BaseURL: cfg.Gemini.BaseURL})
	case "openai":
		return NewOpenAIClient(OpenAIOptions{APIKey: cfg.OpenAI.APIKey, BaseURL: cfg.OpenAI.BaseURL, MaxTokens: cfg.MaxTokens})
	case "anthropic":
		return NewAnthropicClient(AnthropicOptions{APIKey: cfg.Anthropic.APIKey, BaseURL: cfg.Anthropic.BaseURL, MaxTokens: cfg.MaxTokens})
	default:
		return nil, fmt.Errorf("unknown AI engine: %s", cfg.Engine)
	}
}
