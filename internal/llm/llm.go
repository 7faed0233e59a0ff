// Package llm sends a single prompt to a hosted language model and returns
// the text of its answer.
package llm

import (
	"context"
	"errors"
	"fmt"

	"spi-dashboard/internal/config"
)

// ErrNotConfigured is returned when no API key has been provided.
var ErrNotConfigured = errors.New("language model is not configured: set LLM_API_KEY")

type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// New builds the client selected by LLM_PROVIDER. A missing API key yields a
// client whose every call fails with ErrNotConfigured, so the dashboard still
// starts and reports the problem in the chat.
func New(ctx context.Context, cfg config.Config) (Client, error) {
	if cfg.LLMAPIKey == "" {
		return unconfigured{}, nil
	}
	switch cfg.LLMProvider {
	case "openai":
		return NewOpenAIClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMTimeout), nil
	case "gemini":
		return NewGeminiClient(ctx, cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMTimeout)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}
}

type unconfigured struct{}

func (unconfigured) Complete(context.Context, string) (string, error) {
	return "", ErrNotConfigured
}
