package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultMaxBodyBytes bounds save request bodies.
const DefaultMaxBodyBytes = 1 << 20

// RouterConfig assembles the HTTP surface.
type RouterConfig struct {
	Handler        *Handler
	Logger         *slog.Logger
	Gatherer       prometheus.Gatherer // serves /metrics when set
	HTTPMetrics    *HTTPMetrics
	AllowedOrigins []string
	MaxBodyBytes   int64
	TrustProxy     bool // honour X-Forwarded-For and X-Real-IP
}

// NewRouter mounts the handler under /api/v1 next to /healthz and /metrics.
func NewRouter(cfg RouterConfig) chi.Router {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	if cfg.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(RecoveryMiddleware(cfg.Logger))
	if cfg.HTTPMetrics != nil {
		r.Use(cfg.HTTPMetrics.Middleware)
	}
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(CORSMiddleware(cfg.AllowedOrigins))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Mount("/api/v1", RequestSizeLimitMiddleware(cfg.MaxBodyBytes)(cfg.Handler.Routes()))
	return r
}
