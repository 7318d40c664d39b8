package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/jmylchreest/sitesift/internal/browser"
	"github.com/jmylchreest/sitesift/internal/logging"
	"github.com/jmylchreest/sitesift/internal/normalize"
	"github.com/jmylchreest/sitesift/internal/segment"
)

// ScrapeResult is a rendered and normalized page with its statistics.
type ScrapeResult struct {
	URL           string        `json:"url"`
	FinalURL      string        `json:"final_url"`
	Title         string        `json:"title"`
	Content       string        `json:"content"`
	RawLength     int           `json:"raw_length"`
	CleanedLength int           `json:"cleaned_length"`
	Links         int           `json:"links"`
	Images        int           `json:"images"`
	ChunkCount    int           `json:"chunk_count"`
	Engine        string        `json:"engine"`
	Duration      time.Duration `json:"duration"`
}

// ScrapeService renders pages and normalizes them to text.
type ScrapeService struct {
	renderer  browser.Renderer
	chunkSize int
	logger    *slog.Logger
}

// NewScrapeService creates a ScrapeService. chunkSize is only used to report
// how many chunks the content would produce.
func NewScrapeService(renderer browser.Renderer, chunkSize int, logger *slog.Logger) *ScrapeService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScrapeService{
		renderer:  renderer,
		chunkSize: chunkSize,
		logger:    logger.With("component", "scrape"),
	}
}

// ValidateURL accepts absolute http and https URLs.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: %q is not an absolute http(s) url", ErrInvalidInput, raw)
	}
	return nil
}

// Scrape renders pageURL and normalizes the result.
func (s *ScrapeService) Scrape(ctx context.Context, pageURL string) (*ScrapeResult, error) {
	if err := ValidateURL(pageURL); err != nil {
		return nil, err
	}
	logger := logging.FromContext(ctx, s.logger)

	rendered, err := s.renderer.Render(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRenderFailed, err)
	}

	base := rendered.FinalURL
	if base == "" {
		base = pageURL
	}
	page, err := normalize.Normalize(rendered.HTML, base)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRenderFailed, err)
	}

	res := &ScrapeResult{
		URL:           pageURL,
		FinalURL:      rendered.FinalURL,
		Title:         page.Title,
		Content:       page.Text,
		RawLength:     len(rendered.HTML),
		CleanedLength: len(page.Text),
		Links:         page.Links,
		Images:        page.Images,
		ChunkCount:    segment.Count(page.Text, s.chunkSize),
		Engine:        rendered.Engine,
		Duration:      rendered.Duration,
	}
	logger.Info("page scraped",
		"url", pageURL,
		"raw_length", res.RawLength,
		"cleaned_length", res.CleanedLength,
		"links", res.Links,
		"images", res.Images,
		"chunks", res.ChunkCount,
	)
	return res, nil
}

// Engine names the renderer in use.
func (s *ScrapeService) Engine() string {
	return s.renderer.Name()
}
