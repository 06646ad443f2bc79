package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fieldserve/fieldserve/internal/billing/invoices"
	"github.com/fieldserve/fieldserve/internal/billing/payments"
	"github.com/fieldserve/fieldserve/internal/observability"
	"github.com/fieldserve/fieldserve/internal/settings"
	"github.com/fieldserve/fieldserve/jobs"
)

// RouterConfig aggregates the handlers mounted on the API router.
type RouterConfig struct {
	Logger   *slog.Logger
	Config   *Config
	Metrics  *observability.Metrics
	Invoices *invoices.Handler
	Payments *payments.Handler
	Settings *settings.Handler
	Jobs     *jobs.Handler
}

// NewRouter assembles the HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  cfg.Logger,
		Config:  cfg.Config,
		Metrics: cfg.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		var paymentRoutes chi.Router
		if cfg.Payments != nil {
			paymentRoutes = cfg.Payments.Routes()
		}
		if cfg.Invoices != nil {
			r.Mount("/invoices", cfg.Invoices.Routes(paymentRoutes))
		}
		if cfg.Settings != nil {
			r.Mount("/settings", cfg.Settings.Routes())
		}
		if cfg.Jobs != nil {
			r.Route("/jobs", cfg.Jobs.MountRoutes)
		}
	})

	return r
}
