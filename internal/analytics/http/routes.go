package analytichttp

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/pharmalytics/pharmalytics/internal/platform/httpx"
	"github.com/pharmalytics/pharmalytics/internal/shared"
)

// MountRoutes registers the dashboard endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(10, time.Minute,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests))
		}),
	)

	r.Get("/kpis", h.handleKPIs)
	r.Get("/evolution", h.handleEvolution)
	r.Get("/top-products", h.handleTop)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Get("/evolution/export.csv", h.handleEvolutionCSV)
		gr.Get("/top-products/export.xlsx", h.handleTopXLSX)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if p := shared.PrincipalFromContext(r.Context()); p != nil {
		if user := strings.TrimSpace(p.UserID); user != "" {
			return "user:" + user, nil
		}
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
