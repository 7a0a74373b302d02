package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	Generate http.HandlerFunc
	GetQuota http.HandlerFunc

	// Nil unless both identity tokens and the ledger are enabled.
	ListGenerations http.HandlerFunc

	// Nil when identity tokens are disabled. RequiredAuth also guards /quota.
	OptionalAuth func(http.Handler) http.Handler
	RequiredAuth func(http.Handler) http.Handler

	// Nil when rate limiting is disabled.
	GenerateRateLimiter func(http.Handler) http.Handler
}

// Middleware is the global chain, outermost first.
type Middleware struct {
	RequestID       func(http.Handler) http.Handler
	SecurityHeaders func(http.Handler) http.Handler
	Logging         func(http.Handler) http.Handler
	Recovery        func(http.Handler) http.Handler
	Metrics         func(http.Handler) http.Handler
}

// HealthCheck reports a dependency's readiness; nil means healthy.
type HealthCheck func(ctx context.Context) error

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORS         cors.Options
	Middleware   Middleware
	HealthChecks map[string]HealthCheck
}

func NewRouter(cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	for _, mw := range []func(http.Handler) http.Handler{
		cfg.Middleware.RequestID,
		cfg.Middleware.SecurityHeaders,
		cfg.Middleware.Logging,
		cfg.Middleware.Recovery,
		cfg.Middleware.Metrics,
	} {
		if mw != nil {
			r.Use(mw)
		}
	}
	r.Use(cors.Handler(cfg.CORS))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		HandleError(w, ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		HandleError(w, &AppError{Code: http.StatusMethodNotAllowed, Message: "method not allowed", Kind: KindInvalidRequest})
	})

	// Liveness probe: always 200, no dependency checks
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	readinessHandler := readiness(cfg.HealthChecks)
	r.Get("/health/ready", readinessHandler)
	r.Get("/health", readinessHandler)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	var generateMW []func(http.Handler) http.Handler
	if h.GenerateRateLimiter != nil {
		generateMW = append(generateMW, h.GenerateRateLimiter)
	}
	if h.OptionalAuth != nil {
		generateMW = append(generateMW, h.OptionalAuth)
	}

	// The browser client posts here.
	r.With(generateMW...).Post("/api/generate", h.Generate)

	r.Route("/api/v1", func(r chi.Router) {
		r.With(generateMW...).Post("/generate", h.Generate)

		// With identity tokens enabled only the token holder may read a quota;
		// otherwise ?email= serves the anonymous browser flow.
		r.Group(func(r chi.Router) {
			if h.RequiredAuth != nil {
				r.Use(h.RequiredAuth)
			}
			r.Get("/quota", h.GetQuota)
		})

		if h.ListGenerations != nil && h.RequiredAuth != nil {
			r.Group(func(r chi.Router) {
				r.Use(h.RequiredAuth)
				r.Get("/generations", h.ListGenerations)
			})
		}
	})

	return r
}

func readiness(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		health := map[string]string{"status": "healthy"}
		status := http.StatusOK

		for name, check := range checks {
			if err := check(ctx); err != nil {
				health[name] = "unhealthy"
				health["status"] = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			health[name] = "healthy"
		}

		JSON(w, status, health)
	}
}
