package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Default endpoints for OpenAI-compatible providers.
var defaultBaseURLs = map[string]string{
	"openai":     "https://api.openai.com/v1",
	"openrouter": "https://openrouter.ai/api/v1",
	"ollama":     "http://localhost:11434/v1",
}

// OpenAIOptions configures an OpenAIClient.
type OpenAIOptions struct {
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
	Timeout  time.Duration

	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
}

// OpenAIClient talks to any chat-completions compatible API.
type OpenAIClient struct {
	opts   OpenAIOptions
	http   *http.Client
	logger *slog.Logger
}

// NewOpenAIClient validates opts and returns a client.
func NewOpenAIClient(opts OpenAIOptions, logger *slog.Logger) (*OpenAIClient, error) {
	if opts.Provider == "" {
		opts.Provider = "openai"
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURLs[opts.Provider]
	}
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("no base URL for provider %s", opts.Provider)
	}
	if opts.APIKey == "" && opts.Provider != "ollama" {
		return nil, fmt.Errorf("no API key available for provider %s", opts.Provider)
	}
	if opts.Model == "" {
		return nil, errors.New("model is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIClient{
		opts:   opts,
		http:   hc,
		logger: logger.With("component", "llm", "provider", opts.Provider),
	}, nil
}

// Provider returns the configured provider name.
func (c *OpenAIClient) Provider() string { return c.opts.Provider }

// Model returns the model name.
func (c *OpenAIClient) Model() string { return c.opts.Model }

// Close is a no-op.
func (c *OpenAIClient) Close() error { return nil }

// Complete posts a single-message chat completion.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string, cfg Config) (*Completion, error) {
	reqBody := map[string]any{
		"model": c.opts.Model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": cfg.Temperature,
		"top_p":       cfg.TopP,
		"max_tokens":  cfg.MaxOutputTokens,
	}
	// top_k is not part of the OpenAI schema but OpenRouter and Ollama accept it.
	if c.opts.Provider != "openai" && cfg.TopK > 0 {
		reqBody["top_k"] = cfg.TopK
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	apiURL := strings.TrimRight(c.opts.BaseURL, "/") + "/chat/completions"
	c.logger.Debug("making LLM API request",
		"model", c.opts.Model,
		"api_url", apiURL,
		"prompt_length", len(prompt),
		"temperature", cfg.Temperature,
		"max_tokens", cfg.MaxOutputTokens,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	}
	if c.opts.Provider == "openrouter" {
		req.Header.Set("X-Title", "sitesift")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, Classify(fmt.Errorf("request failed: %w", err), c.Provider(), c.opts.Model)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Classify(fmt.Errorf("failed to read response: %w", err), c.Provider(), c.opts.Model)
	}

	c.logger.Debug("LLM API response received",
		"status_code", resp.StatusCode,
		"response_length", len(body),
	)

	if resp.StatusCode != http.StatusOK {
		return nil, Classify(&StatusError{StatusCode: resp.StatusCode, Body: string(body)}, c.Provider(), c.opts.Model)
	}

	out, err := parseOpenAIFormat(body)
	if err != nil {
		return nil, Classify(err, c.Provider(), c.opts.Model)
	}
	out.Duration = time.Since(start)

	if out.Truncated() {
		c.logger.Warn("LLM output truncated",
			"model", c.opts.Model,
			"output_tokens", out.OutputTokens,
			"max_tokens", cfg.MaxOutputTokens,
		)
	}
	return out, nil
}

func parseOpenAIFormat(body []byte) (*Completion, error) {
	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"` // "stop", "length", "content_filter"
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse OpenAI response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("empty response from LLM")
	}
	return &Completion{
		Text:         resp.Choices[0].Message.Content,
		FinishReason: resp.Choices[0].FinishReason,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}
