package handlers

import (
	"context"

	"github.com/jmylchreest/sitesift/internal/service"
)

// Scraper renders and normalizes one page.
type Scraper interface {
	Scrape(ctx context.Context, pageURL string) (*service.ScrapeResult, error)
}

// ScrapeHandler serves the scrape endpoint.
type ScrapeHandler struct {
	svc Scraper
}

// NewScrapeHandler creates a ScrapeHandler.
func NewScrapeHandler(svc Scraper) *ScrapeHandler {
	return &ScrapeHandler{svc: svc}
}

// ScrapeInput is the scrape request.
type ScrapeInput struct {
	Body struct {
		URL string `json:"url" minLength:"1" doc:"Page to render" example:"https://example.com"`
	}
}

// ScrapeOutput is the normalized page and its statistics.
type ScrapeOutput struct {
	Body *service.ScrapeResult
}

// Scrape renders a page and returns its normalized text.
func (h *ScrapeHandler) Scrape(ctx context.Context, input *ScrapeInput) (*ScrapeOutput, error) {
	res, err := h.svc.Scrape(ctx, input.Body.URL)
	if err != nil {
		return nil, toHumaError(err)
	}
	return &ScrapeOutput{Body: res}, nil
}
