package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/upb/api-gateway/app"
	"github.com/upb/api-gateway/handlers"
	"github.com/upb/api-gateway/metrics"
	"github.com/upb/api-gateway/middleware"
	"github.com/upb/api-gateway/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()
	cfg := deps.Config

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.Recoverer(deps.Logger))
	if cfg.Observability.MetricsEnabled {
		r.Use(metrics.Middleware(metricsPath(deps)))
	}

	// CORS middleware; preflights are answered here, before the access filter
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           cfg.CORS.MaxAge,
	}))

	// Operational endpoints, outside the access filter
	r.Get("/healthz", handlers.HealthCheck())
	r.Get("/readyz", handlers.ReadinessCheck(deps, deps.Logger))
	r.Get("/status", handlers.StatusHandler(cfg.Environment, deps.UpstreamCount))
	if cfg.Observability.MetricsEnabled {
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}

	// Everything else goes through the access filter to an upstream
	r.Group(func(r chi.Router) {
		r.Use(deps.AccessFilter.Handler)
		r.Handle("/*", deps.Upstreams)
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})

	return r
}

// metricsPath labels a request with the chi route pattern it matched. The
// catch-all gateway route is labelled with the owning upstream prefix.
func metricsPath(deps *app.Dependencies) func(*http.Request) string {
	return func(r *http.Request) string {
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" && pattern != "/*" {
				return pattern
			}
		}
		if deps.Upstreams == nil {
			return metrics.UnmatchedPath
		}
		return deps.Upstreams.Label(r.URL.Path)
	}
}
