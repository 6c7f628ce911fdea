package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/echospot/echospot/internal/idempotency"
	"github.com/echospot/echospot/internal/middleware"
)

// RouterConfig wires handlers and middleware into a router.
type RouterConfig struct {
	Spots     *SpotHandlers
	Discovery *DiscoveryHandlers
	Health    *HealthHandlers

	Logger *slog.Logger

	// Metrics enables HTTP metrics; Gatherer serves /metrics when set.
	Metrics  *middleware.Metrics
	Gatherer prometheus.Gatherer

	// Tracing wraps the router in otelhttp spans named after ServiceName.
	Tracing     bool
	ServiceName string

	// CORSOrigins lists allowed browser origins. Empty disables CORS handling.
	CORSOrigins []string

	// RateLimitStore enables rate limiting of the submission and read routes.
	RateLimitStore middleware.RateLimitStore
	SubmitLimit    middleware.RateLimitConfig
	ReadLimit      middleware.RateLimitConfig

	// Idempotency enables Idempotency-Key replay on POST /spots.
	Idempotency idempotency.Repository
}

// NewRouter builds the HTTP handler. Order, outermost first: request id,
// tracing, logging, metrics, CORS, panic recovery, then per-route rate limits.
// Speech synthesis is limited like submissions.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if cfg.Tracing {
		r.Use(middleware.Tracing(cfg.ServiceName))
	}
	r.Use(middleware.Logging(logger))
	if cfg.Metrics != nil {
		r.Use(middleware.HTTPMetrics(cfg.Metrics))
	}
	if len(cfg.CORSOrigins) > 0 {
		r.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins)))
	}
	r.Use(chimw.Recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r.Context(), http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "Method not allowed")
	})

	if cfg.Health != nil {
		r.Get("/health", cfg.Health.Health)
		r.Get("/ready", cfg.Health.Ready)
	}
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	if cfg.Spots != nil {
		r.Group(func(r chi.Router) {
			r.Use(cfg.limiter("submit", cfg.SubmitLimit, middleware.DefaultSubmitLimit()))
			if cfg.Idempotency != nil {
				r.With(middleware.Idempotency(cfg.Idempotency)).Post("/spots", cfg.Spots.SubmitSpot)
			} else {
				r.Post("/spots", cfg.Spots.SubmitSpot)
			}
			r.Post("/audiotitle", cfg.Spots.AudioTitle)
		})
	}

	if cfg.Discovery != nil {
		r.Group(func(r chi.Router) {
			r.Use(cfg.limiter("read", cfg.ReadLimit, middleware.DefaultReadLimit()))
			r.Get("/nearby", cfg.Discovery.Nearby)
			r.Get("/intro", cfg.Discovery.Intro)
			r.Get("/fullspot", cfg.Discovery.FullSpot)
			r.Get("/translation", cfg.Discovery.Translation)
			r.Get("/returnsummary", cfg.Discovery.ReturnSummary)
			r.Get("/return-profile", cfg.Discovery.ReturnProfile)
		})
		// Speech calls a provider per request, so it shares the submission quota.
		r.Group(func(r chi.Router) {
			r.Use(cfg.limiter("speech", cfg.SubmitLimit, middleware.DefaultSubmitLimit()))
			r.Get("/translation/audio", cfg.Discovery.TranslationAudio)
		})
	}

	return r
}

func (cfg RouterConfig) limiter(scope string, limit, fallback middleware.RateLimitConfig) func(http.Handler) http.Handler {
	if cfg.RateLimitStore == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if limit.RequestsPerWindow <= 0 || limit.WindowDuration <= 0 {
		limit = fallback
	}
	return middleware.RateLimiter(cfg.RateLimitStore, limit, middleware.ScopedKeyFunc(scope, middleware.IPKeyFunc()), cfg.Metrics)
}
