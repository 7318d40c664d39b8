package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmylchreest/sitesift/internal/logging"
)

// NoResultsMessage is returned by Run when no chunk produced output.
const NoResultsMessage = "Sorry, I couldn't find any relevant information for your query."

// ProgressFunc is called with the 1-based index of the chunk about to be
// processed and the total number of chunks.
type ProgressFunc func(index, total int)

// ChunkProcessor processes one chunk. *Processor implements it.
type ChunkProcessor interface {
	Process(ctx context.Context, chunk, instruction string) Result
	Cached(chunk, instruction string) bool
}

// Orchestrator runs an instruction across an ordered list of chunks.
type Orchestrator struct {
	proc      ChunkProcessor
	rateDelay time.Duration
	logger    *slog.Logger
}

// NewOrchestrator creates an Orchestrator. rateDelay is only used for
// estimates.
func NewOrchestrator(proc ChunkProcessor, rateDelay time.Duration, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		proc:      proc,
		rateDelay: rateDelay,
		logger:    logger.With("component", "orchestrator"),
	}
}

// Report is the combined output of a run plus its counters.
type Report struct {
	Text string

	Total     int
	Processed int
	CacheHits int
	APICalls  int
	Sections  int
	Empty     int
	Failures  int
	// StoppedAt is the 1-based section at which quota exhaustion halted the
	// run, or 0.
	StoppedAt int
	Elapsed   time.Duration
}

// CacheEfficiency is the percentage of processed chunks served from cache.
func (r *Report) CacheEfficiency() float64 {
	if r.Processed == 0 {
		return 0
	}
	return float64(r.CacheHits) / float64(r.Processed) * 100
}

// Run processes chunks in order and returns the combined text.
func (o *Orchestrator) Run(ctx context.Context, chunks []string, instruction string, onProgress ProgressFunc) string {
	return o.Execute(ctx, chunks, instruction, onProgress).Text
}

// Execute is Run with counters. Each successful chunk contributes a
// "--- From Section N ---" block. Quota exhaustion appends a stop notice and
// ends the run; other failures are logged and skipped. A cancelled context
// stops the loop before the next chunk.
func (o *Orchestrator) Execute(ctx context.Context, chunks []string, instruction string, onProgress ProgressFunc) *Report {
	start := time.Now()
	logger := logging.FromContext(ctx, o.logger)
	total := len(chunks)
	rep := &Report{Total: total}

	logger.Info("processing chunks", "total", total)

	var sections []string
	for i, chunk := range chunks {
		index := i + 1
		if err := ctx.Err(); err != nil {
			logger.Warn("run cancelled", "at_section", index, "error", err)
			break
		}
		if onProgress != nil {
			onProgress(index, total)
		}

		res := o.proc.Process(ctx, chunk, instruction)
		rep.Processed++
		if res.FromCache {
			rep.CacheHits++
		} else {
			rep.APICalls += res.Attempts
		}

		switch res.Kind {
		case KindSuccess:
			sections = append(sections, fmt.Sprintf("--- From Section %d ---\n%s", index, res.Text))
			rep.Sections++
		case KindEmpty:
			rep.Empty++
		case KindQuotaExhausted:
			rep.Failures++
			rep.StoppedAt = index
			logger.Warn("stopping run: quota exhausted", "section", index, "error", res.Err)
			sections = append(sections, fmt.Sprintf("--- Processing stopped at section %d due to quota limits ---", index))
		case KindTransientFailure:
			rep.Failures++
			logger.Warn("skipping section after repeated failures", "section", index, "error", res.Err)
		}
		if rep.StoppedAt != 0 {
			break
		}
	}

	rep.Elapsed = time.Since(start)
	if len(sections) == 0 {
		rep.Text = NoResultsMessage
	} else {
		rep.Text = strings.Join(sections, "\n\n")
	}

	logger.Info("processing summary",
		"total", rep.Total,
		"processed", rep.Processed,
		"cache_hits", rep.CacheHits,
		"api_calls", rep.APICalls,
		"sections", rep.Sections,
		"failures", rep.Failures,
		"cache_efficiency", fmt.Sprintf("%.1f%%", rep.CacheEfficiency()),
		"elapsed", rep.Elapsed,
	)
	return rep
}

// Estimate is the expected cost of running an instruction over chunks.
type Estimate struct {
	Total             int           `json:"total"`
	Cached            int           `json:"cached"`
	APICalls          int           `json:"api_calls"`
	EstimatedDuration time.Duration `json:"estimated_duration"`
}

// CachePercent is the share of chunks already cached.
func (e Estimate) CachePercent() float64 {
	if e.Total == 0 {
		return 0
	}
	return float64(e.Cached) / float64(e.Total) * 100
}

// Estimate counts cached chunks and projects the time the remaining calls
// will take at the configured rate.
func (o *Orchestrator) Estimate(chunks []string, instruction string) Estimate {
	est := Estimate{Total: len(chunks)}
	for _, c := range chunks {
		if o.proc.Cached(c, instruction) {
			est.Cached++
		}
	}
	est.APICalls = est.Total - est.Cached
	est.EstimatedDuration = time.Duration(est.APICalls) * o.rateDelay
	return est
}
