package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jmylchreest/sitesift/internal/browser"
	"github.com/jmylchreest/sitesift/internal/cache"
	"github.com/jmylchreest/sitesift/internal/config"
	"github.com/jmylchreest/sitesift/internal/database"
	"github.com/jmylchreest/sitesift/internal/extract"
	"github.com/jmylchreest/sitesift/internal/llm"
	"github.com/jmylchreest/sitesift/internal/logging"
	"github.com/jmylchreest/sitesift/internal/notify"
	"github.com/jmylchreest/sitesift/internal/ratelimit"
	"github.com/jmylchreest/sitesift/internal/repository"
	"github.com/jmylchreest/sitesift/internal/retry"
	"github.com/jmylchreest/sitesift/internal/service"
	"github.com/jmylchreest/sitesift/internal/storage"
)

// app holds configuration and lazily built components for one command.
// Close releases everything that was opened.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	store    *cache.Store
	renderer browser.Renderer
	runs     repository.RunRepository
	opened   bool

	closers []func() error
}

// newApp loads configuration and sets up logging to logOut.
func newApp(opts *rootOptions, logOut io.Writer) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	logger := logging.SetDefault(logging.Options{
		Output: logOut,
		Format: cfg.LogFormat,
		Level:  cfg.LogLevel,
	})
	return &app{cfg: cfg, logger: logger}, nil
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close releases opened components in reverse order.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *app) cache() (*cache.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	store, err := cache.New(a.cfg.CacheDir, cache.Options{
		Freshness: a.cfg.CacheFreshness,
		Logger:    a.logger,
	})
	if err != nil {
		return nil, err
	}
	a.store = store
	return store, nil
}

func (a *app) browser() (browser.Renderer, error) {
	if a.renderer != nil {
		return a.renderer, nil
	}
	r, err := browser.New(a.cfg, a.logger)
	if err != nil {
		return nil, err
	}
	a.renderer = r
	a.onClose(r.Close)
	return r, nil
}

func (a *app) scrapeService() (*service.ScrapeService, error) {
	r, err := a.browser()
	if err != nil {
		return nil, err
	}
	return service.NewScrapeService(r, a.cfg.ChunkSize, a.logger), nil
}

// runRepository opens the run history database. It returns nil when
// DATABASE_URL is empty, which disables history.
func (a *app) runRepository(ctx context.Context) (repository.RunRepository, error) {
	if a.opened {
		return a.runs, nil
	}
	a.opened = true
	if a.cfg.DatabaseURL == "" {
		return nil, nil
	}
	db, err := database.Open(ctx, database.Options{
		URL:            a.cfg.DatabaseURL,
		TursoURL:       a.cfg.TursoURL,
		TursoAuthToken: a.cfg.TursoAuthToken,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("open run history: %w", err)
	}
	a.onClose(db.Close)
	a.runs = repository.NewSQLiteRunRepository(db)
	return a.runs, nil
}

func (a *app) completer(ctx context.Context) (llm.Completer, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	c, err := llm.New(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, err
	}
	a.onClose(c.Close)
	return c, nil
}

// extractionService wires the full pipeline. The renderer is only started
// when withRenderer is set, so extracting from a file never launches a
// browser.
func (a *app) extractionService(ctx context.Context, withRenderer bool) (*service.ExtractionService, error) {
	completer, err := a.completer(ctx)
	if err != nil {
		return nil, err
	}
	store, err := a.cache()
	if err != nil {
		return nil, err
	}
	runs, err := a.runRepository(ctx)
	if err != nil {
		return nil, err
	}
	exporter, err := storage.New(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, err
	}
	notifier, err := notify.New(a.cfg.WebhookURL, a.cfg.WebhookSecret, nil, a.logger)
	if err != nil {
		return nil, err
	}

	var scraper *service.ScrapeService
	if withRenderer {
		if scraper, err = a.scrapeService(); err != nil {
			return nil, err
		}
	}

	policy := retry.DefaultPolicy()
	policy.MaxRetries = a.cfg.MaxRetries

	proc := extract.NewProcessor(extract.ProcessorDeps{
		Cache:     store,
		Limiter:   ratelimit.New(a.cfg.RateLimitDelay, nil),
		Completer: completer,
		Policy:    policy,
		Config:    llm.ConfigFrom(a.cfg),
		Logger:    a.logger,
	})

	return service.NewExtractionService(service.ExtractionDeps{
		Scraper:   scraper,
		Processor: proc,
		Completer: completer,
		Runs:      runs,
		Exporter:  exporter,
		Notifier:  notifier,
		ChunkSize: a.cfg.ChunkSize,
		RateDelay: a.cfg.RateLimitDelay,
		Logger:    a.logger,
	}), nil
}
