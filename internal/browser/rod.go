package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/jmylchreest/sitesift/internal/config"
	"github.com/jmylchreest/sitesift/internal/logging"
)

// readyStateJS resolves truthy once the document has finished loading.
const readyStateJS = `() => document.readyState === 'complete'`

// RodRenderer renders pages with pooled go-rod browsers.
type RodRenderer struct {
	pool      *Pool
	timeouts  Timeouts
	userAgent string
	stealth   bool
	logger    *slog.Logger
}

// NewRodRenderer creates a renderer backed by pool. The renderer owns the
// pool and closes it on Close.
func NewRodRenderer(pool *Pool, timeouts Timeouts, userAgent string, stealth bool, logger *slog.Logger) *RodRenderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &RodRenderer{
		pool:      pool,
		timeouts:  timeouts,
		userAgent: userAgent,
		stealth:   stealth,
		logger:    logger.With("component", "renderer", "engine", config.EngineRod),
	}
}

// Name implements Renderer.
func (r *RodRenderer) Name() string { return config.EngineRod }

// Pool exposes the underlying browser pool.
func (r *RodRenderer) Pool() *Pool { return r.pool }

// Render implements Renderer.
func (r *RodRenderer) Render(ctx context.Context, url string) (*Rendered, error) {
	start := time.Now()
	logger := logging.FromContext(ctx, r.logger)

	mb, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring browser: %w", err)
	}
	defer r.pool.Release(mb)

	blank, err := CreatePage(mb.Browser, !r.stealth)
	if err != nil {
		return nil, fmt.Errorf("creating page: %w", err)
	}
	defer func() { _ = blank.Close() }()
	page := blank.Context(ctx)

	if r.userAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: r.userAgent}); err != nil {
			logger.Warn("failed to set user agent", "error", err)
		}
	}

	logger.Debug("navigating", "url", url, "browser_id", mb.ID)
	loading := page.Timeout(r.timeouts.PageLoad)
	if err := loading.Navigate(url); err != nil {
		return nil, fmt.Errorf("navigating to %s: %w", url, err)
	}
	if err := loading.WaitLoad(); err != nil {
		return nil, fmt.Errorf("waiting for load: %w", err)
	}
	if _, err := page.Timeout(r.timeouts.Implicit).Element("body"); err != nil {
		return nil, fmt.Errorf("waiting for body: %w", err)
	}
	if err := page.Timeout(r.timeouts.Ready).Wait(rod.Eval(readyStateJS)); err != nil {
		return nil, fmt.Errorf("waiting for document ready: %w", err)
	}

	html, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("reading html: %w", err)
	}

	out := &Rendered{
		URL:        url,
		FinalURL:   url,
		HTML:       html,
		StatusCode: 200,
		Engine:     r.Name(),
	}
	if info, err := page.Info(); err == nil {
		out.FinalURL = info.URL
		out.Title = info.Title
	}
	out.Duration = time.Since(start)

	logger.Info("page rendered", "url", url, "html_length", len(html), "duration", out.Duration)
	return out, nil
}

// Close shuts down the pool.
func (r *RodRenderer) Close() error {
	r.pool.Close()
	return nil
}
