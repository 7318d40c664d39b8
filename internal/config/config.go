// Package config handles application configuration.
//
// Values are layered: built-in defaults, then an optional YAML file (with
// ${VAR} expansion), then environment variables.
package config

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"
	"gopkg.in/yaml.v3"
)

// LLM providers.
const (
	ProviderGemini     = "gemini"
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
)

// Render engines.
const (
	EngineRod      = "rod"
	EngineChromedp = "chromedp"
	EngineStatic   = "static"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port              int           `yaml:"port"`
	CORSOrigins       []string      `yaml:"cors_origins"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval"`
	RunRetention      time.Duration `yaml:"run_retention"`

	// Authentication. When APISecret is empty the HTTP API is open.
	APISecret     string        `yaml:"api_secret"`
	TokenTTL      time.Duration `yaml:"token_ttl"`
	JWTSigningKey []byte        `yaml:"-"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// LLM
	LLMProvider     string        `yaml:"llm_provider"`
	GeminiAPIKey    string        `yaml:"gemini_api_key"`
	OpenAIBaseURL   string        `yaml:"openai_base_url"`
	OpenAIAPIKey    string        `yaml:"openai_api_key"`
	Model           string        `yaml:"model"`
	Temperature     float64       `yaml:"temperature"`
	TopP            float64       `yaml:"top_p"`
	TopK            int           `yaml:"top_k"`
	MaxOutputTokens int           `yaml:"max_output_tokens"`
	LLMTimeout      time.Duration `yaml:"llm_timeout"`

	// Extraction pipeline
	ChunkSize      int           `yaml:"chunk_size"`
	RateLimitDelay time.Duration `yaml:"rate_limit_delay"`
	MaxRetries     int           `yaml:"max_retries"`

	// Cache
	CacheDir        string        `yaml:"cache_dir"`
	CacheFreshness  time.Duration `yaml:"cache_freshness"`
	CacheSweepAfter time.Duration `yaml:"cache_sweep_after"`

	// Browser
	RenderEngine       string        `yaml:"render_engine"`
	ChromePath         string        `yaml:"chrome_path"`
	UserAgent          string        `yaml:"user_agent"`
	DisableStealth     bool          `yaml:"disable_stealth"`
	BrowserPoolSize    int           `yaml:"browser_pool_size"`
	BrowserMaxRequests int           `yaml:"browser_max_requests"`
	BrowserMaxAge      time.Duration `yaml:"browser_max_age"`
	BrowserIdleTimeout time.Duration `yaml:"browser_idle_timeout"`
	PageLoadTimeout    time.Duration `yaml:"page_load_timeout"`
	ImplicitWait       time.Duration `yaml:"implicit_wait"`
	ReadyWait          time.Duration `yaml:"ready_wait"`

	// Run history
	DatabaseURL    string `yaml:"database_url"`
	TursoURL       string `yaml:"turso_url"`
	TursoAuthToken string `yaml:"turso_auth_token"`

	// Export (local dir and/or S3-compatible bucket)
	ExportDir        string `yaml:"export_dir"`
	StorageEnabled   bool   `yaml:"storage_enabled"`
	StorageEndpoint  string `yaml:"storage_endpoint"`
	StorageAccessKey string `yaml:"storage_access_key"`
	StorageSecretKey string `yaml:"storage_secret_key"`
	StorageBucket    string `yaml:"storage_bucket"`
	StorageRegion    string `yaml:"storage_region"`

	// Run completion webhook
	WebhookURL    string `yaml:"webhook_url"`
	WebhookSecret string `yaml:"webhook_secret"`
}

// Default returns a Config with the built-in defaults.
func Default() *Config {
	return &Config{
		Port:              8080,
		CORSOrigins:       []string{"*"},
		RequestsPerMinute: 60,
		RequestTimeout:    15 * time.Minute,
		ShutdownTimeout:   30 * time.Second,
		CleanupInterval:   time.Hour,
		RunRetention:      30 * 24 * time.Hour,

		TokenTTL: 24 * time.Hour,

		LogLevel: "info",

		LLMProvider:     ProviderGemini,
		Model:           "gemini-1.5-flash",
		Temperature:     0.1,
		TopP:            0.8,
		TopK:            20,
		MaxOutputTokens: 2048,
		LLMTimeout:      2 * time.Minute,

		ChunkSize:      8000,
		RateLimitDelay: 4 * time.Second,
		MaxRetries:     3,

		CacheDir:        "cache",
		CacheFreshness:  24 * time.Hour,
		CacheSweepAfter: 48 * time.Hour,

		RenderEngine:       EngineRod,
		BrowserPoolSize:    2,
		BrowserMaxRequests: 50,
		BrowserMaxAge:      30 * time.Minute,
		BrowserIdleTimeout: 5 * time.Minute,
		PageLoadTimeout:    30 * time.Second,
		ImplicitWait:       10 * time.Second,
		ReadyWait:          15 * time.Second,

		DatabaseURL: "sitesift.db",

		StorageRegion: "auto",
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and environment variables, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if cfg.APISecret != "" {
		cfg.JWTSigningKey = deriveSigningKey(cfg.APISecret)
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Port = getEnvInt("PORT", c.Port)
	c.CORSOrigins = getEnvSlice("CORS_ORIGINS", c.CORSOrigins)
	c.RequestsPerMinute = getEnvInt("REQUESTS_PER_MINUTE", c.RequestsPerMinute)
	c.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", c.RequestTimeout)
	c.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
	c.IdleTimeout = getEnvDuration("IDLE_TIMEOUT", c.IdleTimeout)
	c.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", c.CleanupInterval)
	c.RunRetention = getEnvDuration("RUN_RETENTION", c.RunRetention)

	c.APISecret = getEnv("API_SECRET", c.APISecret)
	c.TokenTTL = getEnvDuration("TOKEN_TTL", c.TokenTTL)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)

	c.LLMProvider = strings.ToLower(getEnv("LLM_PROVIDER", c.LLMProvider))
	c.GeminiAPIKey = getEnv("GEMINI_API_KEY", getEnv("GOOGLE_API_KEY", c.GeminiAPIKey))
	c.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", c.OpenAIBaseURL)
	c.OpenAIAPIKey = getEnv("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.Model = getEnv("LLM_MODEL", c.Model)
	c.Temperature = getEnvFloat("LLM_TEMPERATURE", c.Temperature)
	c.TopP = getEnvFloat("LLM_TOP_P", c.TopP)
	c.TopK = getEnvInt("LLM_TOP_K", c.TopK)
	c.MaxOutputTokens = getEnvInt("LLM_MAX_OUTPUT_TOKENS", c.MaxOutputTokens)
	c.LLMTimeout = getEnvDuration("LLM_TIMEOUT", c.LLMTimeout)

	c.ChunkSize = getEnvInt("CHUNK_SIZE", c.ChunkSize)
	c.RateLimitDelay = getEnvDuration("RATE_LIMIT_DELAY", c.RateLimitDelay)
	c.MaxRetries = getEnvInt("MAX_RETRIES", c.MaxRetries)

	c.CacheDir = getEnv("CACHE_DIR", c.CacheDir)
	c.CacheFreshness = getEnvDuration("CACHE_FRESHNESS", c.CacheFreshness)
	c.CacheSweepAfter = getEnvDuration("CACHE_SWEEP_AFTER", c.CacheSweepAfter)

	c.RenderEngine = strings.ToLower(getEnv("RENDER_ENGINE", c.RenderEngine))
	c.ChromePath = getEnv("CHROME_PATH", c.ChromePath)
	c.UserAgent = getEnv("USER_AGENT", c.UserAgent)
	c.DisableStealth = getEnvBool("DISABLE_STEALTH", c.DisableStealth)
	c.BrowserPoolSize = getEnvInt("BROWSER_POOL_SIZE", c.BrowserPoolSize)
	c.BrowserMaxRequests = getEnvInt("BROWSER_MAX_REQUESTS", c.BrowserMaxRequests)
	c.BrowserMaxAge = getEnvDuration("BROWSER_MAX_AGE", c.BrowserMaxAge)
	c.BrowserIdleTimeout = getEnvDuration("BROWSER_IDLE_TIMEOUT", c.BrowserIdleTimeout)
	c.PageLoadTimeout = getEnvDuration("PAGE_LOAD_TIMEOUT", c.PageLoadTimeout)
	c.ImplicitWait = getEnvDuration("IMPLICIT_WAIT", c.ImplicitWait)
	c.ReadyWait = getEnvDuration("READY_WAIT", c.ReadyWait)

	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.TursoURL = getEnv("TURSO_URL", c.TursoURL)
	c.TursoAuthToken = getEnv("TURSO_AUTH_TOKEN", c.TursoAuthToken)

	c.ExportDir = getEnv("EXPORT_DIR", c.ExportDir)
	c.StorageEnabled = getEnvBool("STORAGE_ENABLED", c.StorageEnabled)
	c.StorageEndpoint = getEnv("AWS_ENDPOINT_URL_S3", c.StorageEndpoint)
	c.StorageAccessKey = getEnv("AWS_ACCESS_KEY_ID", c.StorageAccessKey)
	c.StorageSecretKey = getEnv("AWS_SECRET_ACCESS_KEY", c.StorageSecretKey)
	c.StorageBucket = getEnv("STORAGE_BUCKET", c.StorageBucket)
	c.StorageRegion = getEnv("AWS_REGION", c.StorageRegion)

	c.WebhookURL = getEnv("WEBHOOK_URL", c.WebhookURL)
	c.WebhookSecret = getEnv("WEBHOOK_SECRET", c.WebhookSecret)
}

// Validate checks that the configuration can drive an extraction run.
func (c *Config) Validate() error {
	var errs []error

	switch c.LLMProvider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required for the gemini provider"))
		}
	case ProviderOpenAI, ProviderOpenRouter:
		if c.OpenAIAPIKey == "" {
			errs = append(errs, fmt.Errorf("OPENAI_API_KEY is required for the %s provider", c.LLMProvider))
		}
	case ProviderOllama:
	default:
		errs = append(errs, fmt.Errorf("unknown llm provider %q", c.LLMProvider))
	}

	switch c.RenderEngine {
	case EngineRod, EngineChromedp, EngineStatic:
	default:
		errs = append(errs, fmt.Errorf("unknown render engine %q", c.RenderEngine))
	}

	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max retries must not be negative, got %d", c.MaxRetries))
	}
	if c.RateLimitDelay < 0 {
		errs = append(errs, fmt.Errorf("rate limit delay must not be negative, got %s", c.RateLimitDelay))
	}
	if c.CacheSweepAfter < c.CacheFreshness {
		errs = append(errs, fmt.Errorf("cache sweep threshold %s is shorter than freshness %s", c.CacheSweepAfter, c.CacheFreshness))
	}
	if c.StorageEnabled && c.StorageBucket == "" {
		errs = append(errs, errors.New("STORAGE_BUCKET is required when storage is enabled"))
	}

	return errors.Join(errs...)
}

// deriveSigningKey derives the HS256 signing key for API tokens from the
// configured secret, so the raw secret never doubles as key material.
func deriveSigningKey(secret string) []byte {
	salt := []byte("sitesift-api-token-key-v1")
	info := []byte("hs256-bearer-token")

	r := hkdf.New(sha256.New, []byte(secret), salt, info)

	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		panic("hkdf: failed to derive key: " + err.Error())
	}
	return key
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvSlice(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
