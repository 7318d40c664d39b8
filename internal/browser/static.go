package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/jmylchreest/sitesift/internal/config"
	"github.com/jmylchreest/sitesift/internal/logging"
)

// DefaultUserAgent is sent when no user agent is configured.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// StaticRenderer fetches raw HTML with colly. Scripts are not executed.
type StaticRenderer struct {
	userAgent string
	timeout   time.Duration
	logger    *slog.Logger
}

// NewStaticRenderer creates a StaticRenderer.
func NewStaticRenderer(userAgent string, timeout time.Duration, logger *slog.Logger) *StaticRenderer {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StaticRenderer{
		userAgent: userAgent,
		timeout:   timeout,
		logger:    logger.With("component", "renderer", "engine", config.EngineStatic),
	}
}

// Name implements Renderer.
func (r *StaticRenderer) Name() string { return config.EngineStatic }

// Render implements Renderer.
func (r *StaticRenderer) Render(ctx context.Context, url string) (*Rendered, error) {
	start := time.Now()
	logger := logging.FromContext(ctx, r.logger)

	c := colly.NewCollector(
		colly.UserAgent(r.userAgent),
		colly.AllowURLRevisit(),
		colly.StdlibContext(ctx),
	)
	c.SetRequestTimeout(r.timeout)

	var out *Rendered
	c.OnResponse(func(resp *colly.Response) {
		out = &Rendered{
			URL:        url,
			FinalURL:   resp.Request.URL.String(),
			HTML:       string(resp.Body),
			StatusCode: resp.StatusCode,
			Engine:     r.Name(),
		}
	})
	c.OnHTML("title", func(e *colly.HTMLElement) {
		if out != nil && out.Title == "" {
			out.Title = e.Text
		}
	})

	if err := c.Visit(url); err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	if out == nil {
		return nil, fmt.Errorf("fetching %s: no response", url)
	}
	out.Duration = time.Since(start)

	logger.Info("page fetched", "url", url, "status", out.StatusCode, "html_length", len(out.HTML), "duration", out.Duration)
	return out, nil
}

// Close implements Renderer.
func (r *StaticRenderer) Close() error { return nil }
