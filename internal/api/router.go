package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	mw "github.com/sdrc-devforce/devforce/internal/middleware"
)

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	Submit http.HandlerFunc

	// Session handlers are mounted only when set.
	SessionMessage http.HandlerFunc
	ClearSession   http.HandlerFunc
}

// HealthCheck reports the status of one optional dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins []string
	ChatRateLimiter    func(http.Handler) http.Handler
	// Checks run on /health/ready. Dependencies absent from the list are
	// reported as "not configured".
	Checks       []HealthCheck
	Dependencies []string
}

func NewRouter(cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	// Liveness: always 200, no dependency checks.
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		Write(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	readiness := readinessHandler(cfg)
	r.Get("/health/ready", readiness)
	r.Get("/health", readiness)

	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if cfg.ChatRateLimiter != nil {
			r.Use(cfg.ChatRateLimiter)
		}

		r.Post("/submit", h.Submit)

		r.Route("/api/v1", func(r chi.Router) {
			r.Post("/chat", h.Submit)

			if h.SessionMessage != nil && h.ClearSession != nil {
				r.Route("/sessions/{sessionID}", func(r chi.Router) {
					r.Post("/messages", h.SessionMessage)
					r.Delete("/", h.ClearSession)
				})
			}
		})
	})

	return r
}

func readinessHandler(cfg RouterConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		health := map[string]string{"status": "healthy"}
		for _, dep := range cfg.Dependencies {
			health[dep] = "not configured"
		}

		status := http.StatusOK
		for _, c := range cfg.Checks {
			if err := c.Check(ctx); err != nil {
				health[c.Name] = "unhealthy"
				health["status"] = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			health[c.Name] = "healthy"
		}

		Write(w, status, health)
	}
}
