// Package llm wraps the hosted language models used for extraction behind a
// single Completer interface and classifies their errors.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmylchreest/sitesift/internal/config"
)

// Config holds the sampling parameters for one completion call.
type Config struct {
	Temperature     float32
	TopP            float32
	TopK            int32
	MaxOutputTokens int32
}

// DefaultConfig is tuned for extraction: low randomness, bounded output.
func DefaultConfig() Config {
	return Config{
		Temperature:     0.1,
		TopP:            0.8,
		TopK:            20,
		MaxOutputTokens: 2048,
	}
}

// ConfigFrom reads sampling parameters from application config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Temperature:     float32(cfg.Temperature),
		TopP:            float32(cfg.TopP),
		TopK:            int32(cfg.TopK),
		MaxOutputTokens: int32(cfg.MaxOutputTokens),
	}
}

// Completion is a model reply.
type Completion struct {
	Text         string
	FinishReason string
	InputTokens  int
	OutputTokens int
	Duration     time.Duration
}

// Truncated reports whether the model stopped at the output token limit.
func (c *Completion) Truncated() bool {
	switch c.FinishReason {
	case "length", "MAX_TOKENS", "FinishReasonMaxTokens":
		return true
	}
	return false
}

// Completer sends a prompt to a model and returns its reply.
type Completer interface {
	Complete(ctx context.Context, prompt string, cfg Config) (*Completion, error)
	Provider() string
	Model() string
	Close() error
}

// New builds the Completer selected by cfg.LLMProvider.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Completer, error) {
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		c, err := NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.Model, cfg.LLMTimeout, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.ProviderOpenAI, config.ProviderOpenRouter, config.ProviderOllama:
		c, err := NewOpenAIClient(OpenAIOptions{
			Provider: cfg.LLMProvider,
			BaseURL:  cfg.OpenAIBaseURL,
			APIKey:   cfg.OpenAIAPIKey,
			Model:    cfg.Model,
			Timeout:  cfg.LLMTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}

// ConnectionPrompt is the fixed prompt used to check credentials.
const ConnectionPrompt = "Say 'Hello from Gemini!'"

// Check sends ConnectionPrompt and returns the trimmed reply.
func Check(ctx context.Context, c Completer) (string, error) {
	resp, err := c.Complete(ctx, ConnectionPrompt, Config{Temperature: 0, TopP: 1, TopK: 1, MaxOutputTokens: 32})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}
