package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	analytichttp "github.com/pharmalytics/pharmalytics/internal/analytics/http"
	"github.com/pharmalytics/pharmalytics/internal/auth"
	cataloghttp "github.com/pharmalytics/pharmalytics/internal/catalog/http"
	"github.com/pharmalytics/pharmalytics/internal/observability"
	"github.com/pharmalytics/pharmalytics/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	Authenticator    *auth.Authenticator
	AnalyticsHandler *analytichttp.Handler
	CatalogHandler   *cataloghttp.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router. Everything under /api requires a principal.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/api", func(api chi.Router) {
		if params.Authenticator != nil {
			api.Use(params.Authenticator.Middleware)
		}
		if params.AnalyticsHandler != nil {
			params.AnalyticsHandler.MountRoutes(api)
		}
		if params.CatalogHandler != nil {
			params.CatalogHandler.MountRoutes(api)
		}
	})

	return r
}
