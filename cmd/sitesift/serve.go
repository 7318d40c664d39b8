package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/sitesift/internal/browser"
	"github.com/jmylchreest/sitesift/internal/http/handlers"
	"github.com/jmylchreest/sitesift/internal/http/routes"
	"github.com/jmylchreest/sitesift/internal/service"
	"github.com/jmylchreest/sitesift/internal/shutdown"
	"github.com/jmylchreest/sitesift/internal/version"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		port   int
		warmup bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API. Extraction requests share one rate limiter, the result
cache and the browser pool. When API_SECRET is set, every /v1 operation
requires a bearer token from 'sitesift token'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts, os.Stdout)
			if err != nil {
				return err
			}
			defer a.Close()

			if port > 0 {
				a.cfg.Port = port
			}
			return serve(cmd.Context(), a, warmup)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (default from config, 8080)")
	cmd.Flags().BoolVar(&warmup, "warmup", false, "launch the browser pool before accepting requests")
	return cmd
}

func serve(ctx context.Context, a *app, warmup bool) error {
	cfg, logger := a.cfg, a.logger

	v := version.Get()
	logger.Info("starting sitesift",
		"version", v.Version,
		"commit", v.Commit,
		"built", v.Date,
		"go_version", v.GoVersion,
	)

	extraction, err := a.extractionService(ctx, true)
	if err != nil {
		return err
	}
	scraper, err := a.scrapeService()
	if err != nil {
		return err
	}
	store, err := a.cache()
	if err != nil {
		return err
	}
	runs, err := a.runRepository(ctx)
	if err != nil {
		return err
	}
	if runs == nil {
		logger.Warn("run history disabled, DATABASE_URL is empty")
	}

	bgCtx, stopBackground := context.WithCancel(context.WithoutCancel(ctx))
	defer stopBackground()

	if r, err := a.browser(); err == nil {
		if rod, ok := r.(*browser.RodRenderer); ok {
			pool := rod.Pool()
			if warmup {
				if err := pool.Warmup(ctx); err != nil {
					logger.Warn("browser pool warmup failed", "error", err)
				}
			}
			go pool.StartCleanup(bgCtx)
		}
	}

	cleanup := service.NewCleanupService(store, runs, cfg.CacheSweepAfter, cfg.RunRetention, logger)
	go cleanup.Run(bgCtx, cfg.CleanupInterval)

	if len(cfg.JWTSigningKey) == 0 {
		logger.Warn("API_SECRET is not set, the API is open to anyone who can reach it")
	}

	router := routes.NewRouter(routes.Options{
		CORSOrigins:       cfg.CORSOrigins,
		RequestsPerMinute: cfg.RequestsPerMinute,
		RequestTimeout:    cfg.RequestTimeout,
		SigningKey:        cfg.JWTSigningKey,
		Logger:            logger,
	}, &routes.Handlers{
		Scrape:     handlers.NewScrapeHandler(scraper),
		Extraction: handlers.NewExtractionHandler(extraction),
		Cache:      handlers.NewCacheHandler(store, cfg.CacheSweepAfter),
	})

	idle := shutdown.NewIdleMonitor(shutdown.IdleConfig{
		Timeout:        cfg.IdleTimeout,
		ExemptPrefixes: []string{"/health"},
		Logger:         logger,
	})
	idle.Start()
	defer idle.Stop()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           idle.Middleware(router),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      cfg.RequestTimeout + 30*time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "port", cfg.Port, "render_engine", cfg.RenderEngine, "llm_provider", cfg.LLMProvider)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	case <-idle.Done():
	}

	logger.Info("shutting down server", "timeout", cfg.ShutdownTimeout)
	stopBackground()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
