// Package routes builds the HTTP router and registers every API operation.
package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/jmylchreest/sitesift/internal/http/handlers"
	"github.com/jmylchreest/sitesift/internal/http/mw"
	"github.com/jmylchreest/sitesift/internal/version"
)

// maxBodyBytes bounds request bodies; extract accepts raw page text.
const maxBodyBytes = 8 << 20

// Handlers groups the operation handlers.
type Handlers struct {
	Scrape     *handlers.ScrapeHandler
	Extraction *handlers.ExtractionHandler
	Cache      *handlers.CacheHandler
}

// Options configures the router.
type Options struct {
	CORSOrigins       []string
	RequestsPerMinute int
	RequestTimeout    time.Duration
	// SigningKey enables bearer auth on protected operations when set.
	SigningKey []byte
	Logger     *slog.Logger
}

// NewHumaConfig creates the Huma configuration for the API.
func NewHumaConfig() huma.Config {
	cfg := huma.DefaultConfig("sitesift API", version.Get().String())
	cfg.Info.Description = "Render web pages and extract information from them with a language model."
	cfg.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		mw.SecurityScheme: {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
			Description:  "Token issued by `sitesift token`. Only enforced when API_SECRET is set.",
		},
	}
	cfg.Tags = []*huma.Tag{
		{Name: "Extraction", Description: "Scraping, extraction and cost estimates"},
		{Name: "Runs", Description: "Extraction run history"},
		{Name: "Cache", Description: "Result cache maintenance"},
		{Name: "LLM", Description: "Model connectivity"},
		{Name: "Health", Description: "Service health"},
	}
	return cfg
}

// NewRouter builds the chi router with middleware and every operation
// registered.
func NewRouter(opts Options, h *Handlers) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(mw.RequestLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(mw.APIVersion())
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "X-API-Version", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		MaxAge:         300,
	}))
	router.Use(middleware.RequestSize(maxBodyBytes))
	if opts.RequestsPerMinute > 0 {
		router.Use(httprate.LimitByIP(opts.RequestsPerMinute, time.Minute))
	}
	if opts.RequestTimeout > 0 {
		router.Use(middleware.Timeout(opts.RequestTimeout))
	}

	api := humachi.New(router, NewHumaConfig())
	api.UseMiddleware(mw.HumaAuth(api, opts.SigningKey, logger))
	Register(api, h)

	return router
}

// Register registers all API operations with the given Huma API instance.
func Register(api huma.API, h *Handlers) {
	mw.PublicGet(api, "/health", handlers.HealthCheck,
		mw.WithTags("Health"),
		mw.WithSummary("Health check"),
		mw.WithOperationID("healthCheck"))

	mw.ProtectedPost(api, "/v1/scrape", h.Scrape.Scrape,
		mw.WithTags("Extraction"),
		mw.WithSummary("Render a page"),
		mw.WithDescription("Renders the page in the configured browser engine and returns its normalized text with statistics."),
		mw.WithOperationID("scrape"))
	mw.ProtectedPost(api, "/v1/extract", h.Extraction.Extract,
		mw.WithTags("Extraction"),
		mw.WithSummary("Extract from a page"),
		mw.WithDescription("Splits the page into chunks, runs the instruction over each one and returns the numbered sections. Blocks until the run finishes."),
		mw.WithOperationID("extract"))
	mw.ProtectedPost(api, "/v1/estimate", h.Extraction.Estimate,
		mw.WithTags("Extraction"),
		mw.WithSummary("Estimate an extraction"),
		mw.WithOperationID("estimate"))

	mw.ProtectedGet(api, "/v1/runs", h.Extraction.ListRuns,
		mw.WithTags("Runs"),
		mw.WithSummary("List runs"),
		mw.WithOperationID("listRuns"))
	mw.ProtectedGet(api, "/v1/runs/{id}", h.Extraction.GetRun,
		mw.WithTags("Runs"),
		mw.WithSummary("Get run details"),
		mw.WithOperationID("getRun"))

	mw.ProtectedGet(api, "/v1/cache/stats", h.Cache.Stats,
		mw.WithTags("Cache"),
		mw.WithSummary("Cache statistics"),
		mw.WithOperationID("cacheStats"))
	mw.ProtectedPost(api, "/v1/cache/purge", h.Cache.Purge,
		mw.WithTags("Cache"),
		mw.WithSummary("Purge cache entries"),
		mw.WithOperationID("purgeCache"))

	mw.ProtectedGet(api, "/v1/llm/check", h.Extraction.Check,
		mw.WithTags("LLM"),
		mw.WithSummary("Check model connectivity"),
		mw.WithOperationID("checkLLM"))
}
