// Package browser renders web pages to HTML with a headless browser or a
// plain HTTP fetch.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmylchreest/sitesift/internal/config"
)

// Rendered is the markup of a page after rendering.
type Rendered struct {
	URL        string
	FinalURL   string
	Title      string
	HTML       string
	StatusCode int
	Engine     string
	Duration   time.Duration
}

// Renderer fetches a URL and returns its rendered markup.
type Renderer interface {
	Render(ctx context.Context, url string) (*Rendered, error)
	Name() string
	Close() error
}

// Timeouts bound the phases of a render.
type Timeouts struct {
	// PageLoad bounds navigation and the load event.
	PageLoad time.Duration
	// Implicit bounds waiting for the body element to exist.
	Implicit time.Duration
	// Ready bounds waiting for document.readyState to become "complete".
	Ready time.Duration
}

// TimeoutsFrom reads render timeouts from cfg.
func TimeoutsFrom(cfg *config.Config) Timeouts {
	return Timeouts{
		PageLoad: cfg.PageLoadTimeout,
		Implicit: cfg.ImplicitWait,
		Ready:    cfg.ReadyWait,
	}
}

// New builds the renderer selected by cfg.RenderEngine.
func New(cfg *config.Config, logger *slog.Logger) (Renderer, error) {
	switch cfg.RenderEngine {
	case config.EngineRod, "":
		return NewRodRenderer(NewPool(PoolOptionsFrom(cfg), logger), TimeoutsFrom(cfg), cfg.UserAgent, !cfg.DisableStealth, logger), nil
	case config.EngineChromedp:
		return NewChromedpRenderer(ChromedpOptions{
			ChromePath: cfg.ChromePath,
			UserAgent:  cfg.UserAgent,
			Timeouts:   TimeoutsFrom(cfg),
		}, logger), nil
	case config.EngineStatic:
		return NewStaticRenderer(cfg.UserAgent, cfg.PageLoadTimeout, logger), nil
	default:
		return nil, fmt.Errorf("unknown render engine %q", cfg.RenderEngine)
	}
}
