package extract

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jmylchreest/sitesift/internal/cache"
	"github.com/jmylchreest/sitesift/internal/clock"
	"github.com/jmylchreest/sitesift/internal/llm"
	"github.com/jmylchreest/sitesift/internal/logging"
	"github.com/jmylchreest/sitesift/internal/retry"
)

// Cache is the subset of *cache.Store the processor uses.
type Cache interface {
	Lookup(key cache.Key) (string, bool)
	Contains(key cache.Key) bool
	Store(key cache.Key, result string) error
}

// Limiter gates outbound model calls.
type Limiter interface {
	Wait(ctx context.Context) error
}

// ProcessorDeps wires a Processor.
type ProcessorDeps struct {
	Cache     Cache
	Limiter   Limiter
	Completer llm.Completer
	Policy    retry.Policy
	Config    llm.Config
	// Clock drives retry sleeps; nil uses the wall clock.
	Clock  clock.Clock
	Logger *slog.Logger
}

// Processor extracts from a single chunk.
type Processor struct {
	cache     Cache
	limiter   Limiter
	completer llm.Completer
	retry     *retry.Controller
	config    llm.Config
	logger    *slog.Logger
}

// NewProcessor builds a Processor. Quota detection is delegated to
// llm.IsQuotaError.
func NewProcessor(d ProcessorDeps) *Processor {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		cache:     d.Cache,
		limiter:   d.Limiter,
		completer: d.Completer,
		retry:     retry.New(d.Policy, llm.IsQuotaError, d.Clock, logger),
		config:    d.Config,
		logger:    logger.With("component", "processor"),
	}
}

// Cached reports whether a fresh result exists for (chunk, instruction).
func (p *Processor) Cached(chunk, instruction string) bool {
	return p.cache.Contains(cache.KeyFor(chunk, instruction))
}

// Process returns the extraction for one chunk. A fresh cache hit skips
// the limiter and the model. Failures are returned as Result kinds, never
// as errors. Empty replies are not cached.
func (p *Processor) Process(ctx context.Context, chunk, instruction string) Result {
	start := time.Now()
	logger := logging.FromContext(ctx, p.logger)
	key := cache.KeyFor(chunk, instruction)

	if text, ok := p.cache.Lookup(key); ok {
		logger.Debug("cache hit", "key", key)
		r := Success(text)
		r.FromCache = true
		r.Duration = time.Since(start)
		return r
	}
	logger.Debug("cache miss, calling model", "key", key, "chunk_length", len(chunk))

	prompt := BuildPrompt(chunk, instruction)
	out := p.retry.Do(ctx, func(ctx context.Context) (string, error) {
		if err := p.limiter.Wait(ctx); err != nil {
			return "", err
		}
		resp, err := p.completer.Complete(ctx, prompt, p.config)
		if err != nil {
			return "", err
		}
		return resp.Text, nil
	})

	var r Result
	switch {
	case out.State == retry.Success:
		reply := strings.TrimSpace(out.Value)
		if isNoMatch(reply) {
			r = Empty()
			break
		}
		if err := p.cache.Store(key, reply); err != nil {
			logger.Warn("failed to cache result", "key", key, "error", err)
		}
		r = Success(reply)
	case out.Quota:
		r = QuotaExhausted(out.Err)
	default:
		r = TransientFailure(out.Err)
	}

	r.Attempts = out.Attempts
	r.Duration = time.Since(start)
	logger.Debug("chunk processed",
		"kind", r.Kind.String(),
		"attempts", r.Attempts,
		"duration", r.Duration,
	)
	return r
}
