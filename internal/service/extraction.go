package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/sitesift/internal/extract"
	"github.com/jmylchreest/sitesift/internal/llm"
	"github.com/jmylchreest/sitesift/internal/logging"
	"github.com/jmylchreest/sitesift/internal/models"
	"github.com/jmylchreest/sitesift/internal/notify"
	"github.com/jmylchreest/sitesift/internal/repository"
	"github.com/jmylchreest/sitesift/internal/segment"
	"github.com/jmylchreest/sitesift/internal/storage"
)

// ExtractionDeps wires an ExtractionService. Runs, Exporter and Notifier
// are optional.
type ExtractionDeps struct {
	Scraper   *ScrapeService
	Processor extract.ChunkProcessor
	Completer llm.Completer
	Runs      repository.RunRepository
	Exporter  storage.Exporter
	Notifier  *notify.Notifier
	ChunkSize int
	RateDelay time.Duration
	Logger    *slog.Logger
}

// ExtractionService runs instructions over pages and records the runs.
type ExtractionService struct {
	scraper      *ScrapeService
	orchestrator *extract.Orchestrator
	completer    llm.Completer
	runs         repository.RunRepository
	exporter     storage.Exporter
	notifier     *notify.Notifier
	chunkSize    int
	logger       *slog.Logger
}

// NewExtractionService creates an ExtractionService.
func NewExtractionService(d ExtractionDeps) *ExtractionService {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if d.ChunkSize <= 0 {
		d.ChunkSize = segment.DefaultSize
	}
	return &ExtractionService{
		scraper:      d.Scraper,
		orchestrator: extract.NewOrchestrator(d.Processor, d.RateDelay, logger),
		completer:    d.Completer,
		runs:         d.Runs,
		exporter:     d.Exporter,
		notifier:     d.Notifier,
		chunkSize:    d.ChunkSize,
		logger:       logger.With("component", "extraction"),
	}
}

// ExtractInput describes one run. When Content is set the page is not
// fetched and URL is only recorded.
type ExtractInput struct {
	URL         string
	Content     string
	Instruction string
	ChunkSize   int
	Export      bool
	OnProgress  extract.ProgressFunc
}

// ExtractOutput is the result of a run.
type ExtractOutput struct {
	RunID          string          `json:"run_id"`
	URL            string          `json:"url"`
	Text           string          `json:"text"`
	ChunkCount     int             `json:"chunk_count"`
	Report         *extract.Report `json:"-"`
	ExportLocation string          `json:"export_location,omitempty"`
}

func (in *ExtractInput) validate() error {
	if strings.TrimSpace(in.Instruction) == "" {
		return fmt.Errorf("%w: instruction is required", ErrInvalidInput)
	}
	if in.Content == "" {
		if in.URL == "" {
			return fmt.Errorf("%w: url or content is required", ErrInvalidInput)
		}
		return ValidateURL(in.URL)
	}
	return nil
}

// content returns the text to segment, scraping the page when needed.
func (s *ExtractionService) content(ctx context.Context, pageURL, content string) (string, string, error) {
	if content != "" {
		return content, "", nil
	}
	if s.scraper == nil {
		return "", "", fmt.Errorf("%w: no renderer configured", ErrRenderFailed)
	}
	page, err := s.scraper.Scrape(ctx, pageURL)
	if err != nil {
		return "", "", err
	}
	return page.Content, page.Engine, nil
}

func (s *ExtractionService) chunks(text string, size int) []string {
	if size <= 0 {
		size = s.chunkSize
	}
	return segment.Split(text, size)
}

// Extract runs in.Instruction over the page. Extraction failures inside
// the run are reported in the text; the returned error covers validation,
// rendering and cancellation.
func (s *ExtractionService) Extract(ctx context.Context, in ExtractInput) (*ExtractOutput, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	run := &models.Run{
		ID:          ulid.Make().String(),
		URL:         in.URL,
		Instruction: in.Instruction,
		Status:      models.RunStatusRunning,
		CreatedAt:   time.Now(),
	}
	ctx = logging.WithRunID(ctx, run.ID)
	logger := logging.FromContext(ctx, s.logger)

	if s.runs != nil {
		if err := s.runs.Create(ctx, run); err != nil {
			logger.Warn("failed to record run", "error", err)
		}
	}

	text, engine, err := s.content(ctx, in.URL, in.Content)
	run.Engine = engine
	if err != nil {
		s.finish(ctx, run, err)
		return nil, err
	}

	chunks := s.chunks(text, in.ChunkSize)
	rep := s.orchestrator.Execute(ctx, chunks, in.Instruction, in.OnProgress)

	run.ChunkCount = len(chunks)
	run.CacheHits = rep.CacheHits
	run.APICalls = rep.APICalls
	run.Sections = rep.Sections
	run.Failures = rep.Failures
	run.StoppedAt = rep.StoppedAt
	run.ResultText = rep.Text
	run.Elapsed = rep.Elapsed

	out := &ExtractOutput{
		RunID:      run.ID,
		URL:        in.URL,
		Text:       rep.Text,
		ChunkCount: len(chunks),
		Report:     rep,
	}

	if in.Export && s.exporter != nil {
		name := storage.ExportName(exportSource(in.URL, run.ID))
		loc, err := s.exporter.Export(ctx, name, rep.Text)
		if err != nil {
			logger.Warn("export failed", "error", err)
			run.Error = "export failed: " + err.Error()
		} else {
			out.ExportLocation = loc
			run.ExportLocation = loc
		}
	}

	if err := ctx.Err(); err != nil {
		s.finish(ctx, run, err)
		return out, err
	}
	s.finish(ctx, run, nil)
	return out, nil
}

func exportSource(pageURL, runID string) string {
	if pageURL != "" {
		return pageURL
	}
	return "content-" + runID
}

// finish marks run terminal, persists it and sends the webhook.
func (s *ExtractionService) finish(ctx context.Context, run *models.Run, runErr error) {
	logger := logging.FromContext(ctx, s.logger)
	now := time.Now()
	run.CompletedAt = &now
	if runErr != nil {
		run.Status = models.RunStatusFailed
		run.Error = runErr.Error()
	} else {
		run.Status = models.RunStatusCompleted
	}

	// The run's own context may be cancelled; bookkeeping still happens.
	bg := context.WithoutCancel(ctx)
	if s.runs != nil {
		if err := s.runs.Update(bg, run); err != nil && !errors.Is(err, repository.ErrNotFound) {
			logger.Warn("failed to update run", "error", err)
		}
	}
	if err := s.notifier.Notify(bg, run); err != nil {
		logger.Warn("run webhook failed", "error", err)
	}
}

// EstimateInput describes a prospective run.
type EstimateInput struct {
	URL         string
	Content     string
	Instruction string
	ChunkSize   int
}

// EstimateOutput is the projected cost of a run.
type EstimateOutput struct {
	extract.Estimate
	ContentLength int `json:"content_length"`
}

// Estimate counts cached chunks and projects the time the rest will take.
func (s *ExtractionService) Estimate(ctx context.Context, in EstimateInput) (*EstimateOutput, error) {
	probe := ExtractInput{URL: in.URL, Content: in.Content, Instruction: in.Instruction}
	if err := probe.validate(); err != nil {
		return nil, err
	}
	text, _, err := s.content(ctx, in.URL, in.Content)
	if err != nil {
		return nil, err
	}
	est := s.orchestrator.Estimate(s.chunks(text, in.ChunkSize), in.Instruction)
	return &EstimateOutput{Estimate: est, ContentLength: len(text)}, nil
}

// CheckResult reports whether the model answered.
type CheckResult struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	OK       bool   `json:"ok"`
	Reply    string `json:"reply,omitempty"`
	Error    string `json:"error,omitempty"`
	Category string `json:"category,omitempty"`
}

// Check sends the connection prompt to the configured model.
func (s *ExtractionService) Check(ctx context.Context) *CheckResult {
	res := &CheckResult{Provider: s.completer.Provider(), Model: s.completer.Model()}
	reply, err := llm.Check(ctx, s.completer)
	if err != nil {
		classified := llm.Classify(err, res.Provider, res.Model)
		res.Error = classified.UserMessage
		res.Category = string(classified.Category)
		return res
	}
	res.OK = true
	res.Reply = reply
	return res
}

// GetRun returns one recorded run.
func (s *ExtractionService) GetRun(ctx context.Context, id string) (*models.Run, error) {
	if s.runs == nil {
		return nil, ErrHistoryDisabled
	}
	return s.runs.GetByID(ctx, id)
}

// ListRuns returns the most recent runs.
func (s *ExtractionService) ListRuns(ctx context.Context, limit int) ([]*models.Run, error) {
	if s.runs == nil {
		return nil, ErrHistoryDisabled
	}
	return s.runs.List(ctx, limit)
}
