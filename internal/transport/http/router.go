// Package httptransport exposes the HTTP surface: health, metrics, the
// realtime upgrade and the application API.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lms/internal/platform/metrics"
	"lms/internal/platform/middleware"
	"lms/pkg/platform/httputil"
)

// RouterConfig carries the parts the router mounts.
type RouterConfig struct {
	Gate         middleware.Authenticator
	Applications *Handler
	// Realtime serves GET /ws. It authenticates the upgrade itself.
	Realtime http.Handler
	Gatherer prometheus.Gatherer
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	// HealthChecks are probed by GET /health, keyed by dependency name.
	HealthChecks map[string]HealthCheck
}

// HealthCheck reports whether a backing dependency answers.
type HealthCheck func(ctx context.Context) error

type healthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

const healthCheckTimeout = 2 * time.Second

func handleHealth(checks map[string]HealthCheck, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "OK", Timestamp: time.Now().UTC()}
		status := http.StatusOK
		if len(checks) > 0 {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()
			resp.Checks = make(map[string]string, len(checks))
			for name, check := range checks {
				if err := check(ctx); err != nil {
					logger.WarnContext(ctx, "health check failed", "dependency", name, "error", err)
					resp.Checks[name] = "unavailable"
					resp.Status = "DEGRADED"
					status = http.StatusServiceUnavailable
					continue
				}
				resp.Checks[name] = "ok"
			}
		}
		httputil.WriteJSON(w, status, resp)
	}
}

// NewRouter wires every public endpoint.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)

	if cfg.Realtime != nil {
		r.Method(http.MethodGet, "/ws", cfg.Realtime)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequestTime)
		r.Use(middleware.Logger(logger, cfg.Metrics))

		r.Get("/health", handleHealth(cfg.HealthChecks, logger))
		if cfg.Gatherer != nil {
			r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
		}
		if cfg.Applications != nil {
			r.Route("/api", func(r chi.Router) {
				r.Use(middleware.RequireAuth(cfg.Gate, logger))
				cfg.Applications.Register(r)
			})
		}
	})

	return r
}
