// Package logging provides a configured slog logger with:
// - TTY detection for human-readable vs JSON output
// - LOG_FORMAT env var override (text/json)
// - LOG_LEVEL env var (debug/info/warn/error)
// - Context-based request and run ID extraction for filtering
// - Dynamic filter-based logging via slog-logfilter library
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	logfilter "github.com/jmylchreest/slog-logfilter"
)

// ContextKey is a type for context keys used in logging.
type ContextKey string

const (
	// RequestIDKey is the context key for the HTTP request ID.
	RequestIDKey ContextKey = "log_request_id"
	// RunIDKey is the context key for the extraction run ID.
	RunIDKey ContextKey = "log_run_id"
)

// WithRequestID adds a request ID to the context for logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithRunID adds an extraction run ID to the context for logging.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// GetRequestID extracts the request ID from context.
func GetRequestID(ctx context.Context) string {
	return stringValue(ctx, RequestIDKey)
}

// GetRunID extracts the run ID from context.
func GetRunID(ctx context.Context) string {
	return stringValue(ctx, RunIDKey)
}

func stringValue(ctx context.Context, key ContextKey) string {
	if ctx == nil {
		return ""
	}
	if s, ok := ctx.Value(key).(string); ok {
		return s
	}
	return ""
}

// FromContext returns a logger with request and run IDs from context added as attributes.
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if ctx == nil {
		return logger
	}

	if requestID := GetRequestID(ctx); requestID != "" {
		logger = logger.With("request_id", requestID)
	}
	if runID := GetRunID(ctx); runID != "" {
		logger = logger.With("run_id", runID)
	}

	return logger
}

var registerOnce sync.Once

// registerContextExtractors registers the context extractors for filtering.
func registerContextExtractors() {
	registerOnce.Do(func() {
		for name, key := range map[string]ContextKey{
			"request_id": RequestIDKey,
			"run_id":     RunIDKey,
		} {
			key := key
			logfilter.RegisterContextExtractor(name, func(ctx context.Context) (string, bool) {
				s := stringValue(ctx, key)
				return s, s != ""
			})
		}
	})
}

// Options controls where and how the logger writes.
type Options struct {
	// Output defaults to os.Stdout. The CLI passes os.Stderr so results on
	// stdout stay pipeable.
	Output io.Writer
	// Format overrides LOG_FORMAT when set.
	Format string
	// Level overrides LOG_LEVEL when set.
	Level string
}

// New creates a new configured logger using slog-logfilter.
// Format is determined by:
// 1. opts.Format or LOG_FORMAT env var (text/json)
// 2. TTY detection (text for TTY, JSON otherwise)
// Level is determined by opts.Level or LOG_LEVEL (debug/info/warn/error, default: info)
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	logFormat := opts.Format
	if logFormat == "" {
		logFormat = os.Getenv("LOG_FORMAT")
	}
	format := "json"
	if logFormat == "text" || (logFormat == "" && isTerminal(out)) {
		format = "text"
	}

	levelName := opts.Level
	if levelName == "" {
		levelName = os.Getenv("LOG_LEVEL")
	}

	registerContextExtractors()

	return logfilter.New(
		logfilter.WithLevel(parseLogLevel(levelName)),
		logfilter.WithFormat(format),
		logfilter.WithOutput(out),
		logfilter.WithSource(true),
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetDefault creates a new logger and sets it as the default slog logger.
func SetDefault(opts Options) *slog.Logger {
	logger := New(opts)
	slog.SetDefault(logger)
	return logger
}

// SetLevel changes the global log level at runtime.
func SetLevel(level slog.Level) {
	logfilter.SetLevel(level)
}

// GetLevel returns the current global log level.
func GetLevel() slog.Level {
	return logfilter.GetLevel()
}

// Discard returns a logger that drops everything. Used by tests and by
// library callers that don't want output.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}
