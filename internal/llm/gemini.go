package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-1.5-flash"

// GeminiClient calls Google's Gemini API.
type GeminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewGeminiClient creates a client authenticated with apiKey.
func NewGeminiClient(ctx context.Context, apiKey, model string, timeout time.Duration, logger *slog.Logger) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{
		client:  client,
		model:   model,
		timeout: timeout,
		logger:  logger.With("component", "llm", "provider", "gemini"),
	}, nil
}

// Provider returns "gemini".
func (c *GeminiClient) Provider() string { return "gemini" }

// Model returns the model name.
func (c *GeminiClient) Model() string { return c.model }

// Close releases the underlying connections.
func (c *GeminiClient) Close() error {
	return c.client.Close()
}

// Complete sends prompt as a single user turn. A blocked response is
// reported as an empty completion rather than an error, since retrying the
// same prompt would be blocked again.
func (c *GeminiClient) Complete(ctx context.Context, prompt string, cfg Config) (*Completion, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	// GenerativeModel carries mutable sampling config, so build one per call.
	m := c.client.GenerativeModel(c.model)
	m.SetTemperature(cfg.Temperature)
	m.SetTopP(cfg.TopP)
	m.SetTopK(cfg.TopK)
	m.SetMaxOutputTokens(cfg.MaxOutputTokens)

	c.logger.Debug("making LLM API request",
		"model", c.model,
		"prompt_length", len(prompt),
		"temperature", cfg.Temperature,
		"max_tokens", cfg.MaxOutputTokens,
	)

	start := time.Now()
	resp, err := m.GenerateContent(ctx, genai.Text(prompt))
	elapsed := time.Since(start)
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			c.logger.Warn("gemini response blocked", "model", c.model, "reason", blocked.Error())
			return &Completion{FinishReason: "blocked", Duration: elapsed}, nil
		}
		c.logger.Debug("LLM API request failed", "model", c.model, "error", err)
		return nil, Classify(err, c.Provider(), c.model)
	}

	out := &Completion{Duration: elapsed}
	if resp.UsageMetadata != nil {
		out.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if out.FinishReason == "" {
			out.FinishReason = cand.FinishReason.String()
		}
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
		// Only the first candidate is requested.
		break
	}
	out.Text = sb.String()

	c.logger.Debug("LLM API response received",
		"model", c.model,
		"response_length", len(out.Text),
		"finish_reason", out.FinishReason,
		"duration", elapsed,
	)
	if out.Truncated() {
		c.logger.Warn("LLM output truncated", "model", c.model, "max_tokens", cfg.MaxOutputTokens)
	}

	return out, nil
}
