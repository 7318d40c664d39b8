package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/jmylchreest/sitesift/internal/config"
	"github.com/jmylchreest/sitesift/internal/logging"
)

// ChromedpOptions configures a ChromedpRenderer.
type ChromedpOptions struct {
	ChromePath string
	UserAgent  string
	Timeouts   Timeouts
}

// ChromedpRenderer launches a fresh headless Chrome through chromedp for
// every render.
type ChromedpRenderer struct {
	opts   ChromedpOptions
	logger *slog.Logger
}

// NewChromedpRenderer creates a ChromedpRenderer.
func NewChromedpRenderer(opts ChromedpOptions, logger *slog.Logger) *ChromedpRenderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChromedpRenderer{
		opts:   opts,
		logger: logger.With("component", "renderer", "engine", config.EngineChromedp),
	}
}

// Name implements Renderer.
func (r *ChromedpRenderer) Name() string { return config.EngineChromedp }

func (r *ChromedpRenderer) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1920, 1080),
	)
	if r.opts.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(r.opts.ChromePath))
	}
	if r.opts.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(r.opts.UserAgent))
	}
	return opts
}

// Render implements Renderer.
func (r *ChromedpRenderer) Render(ctx context.Context, url string) (*Rendered, error) {
	start := time.Now()
	logger := logging.FromContext(ctx, r.logger)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, r.allocatorOptions()...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	budget := r.opts.Timeouts.PageLoad + r.opts.Timeouts.Implicit + r.opts.Timeouts.Ready
	if budget > 0 {
		var cancel context.CancelFunc
		browserCtx, cancel = context.WithTimeout(browserCtx, budget)
		defer cancel()
	}

	var (
		html     string
		title    string
		location string
		ready    bool
	)
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Poll(`document.readyState === 'complete'`, &ready,
			chromedp.WithPollingTimeout(r.opts.Timeouts.Ready)),
		chromedp.Title(&title),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("rendering %s: %w", url, err)
	}

	out := &Rendered{
		URL:        url,
		FinalURL:   location,
		Title:      title,
		HTML:       html,
		StatusCode: 200,
		Engine:     r.Name(),
		Duration:   time.Since(start),
	}
	logger.Info("page rendered", "url", url, "html_length", len(html), "duration", out.Duration)
	return out, nil
}

// Close implements Renderer. Browsers do not outlive a render.
func (r *ChromedpRenderer) Close() error { return nil }
