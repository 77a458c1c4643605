package cataloghttp

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pharmalytics/pharmalytics/internal/catalog"
	"github.com/pharmalytics/pharmalytics/internal/platform/httpx"
	"github.com/pharmalytics/pharmalytics/internal/query"
	"github.com/pharmalytics/pharmalytics/internal/shared"
)

// CatalogService is the lookup contract used by the handler.
type CatalogService interface {
	SearchProducts(ctx context.Context, req catalog.ProductSearch) ([]catalog.Product, error)
	SearchLaboratories(ctx context.Context, q string, limit int) ([]catalog.Laboratory, error)
	Pharmacies(ctx context.Context, p *shared.Principal) ([]catalog.Pharmacy, error)
}

// Handler serves the catalog endpoints.
type Handler struct {
	logger   *slog.Logger
	service  CatalogService
	validate *validator.Validate
	now      func() time.Time
}

// NewHandler constructs the catalog HTTP handler.
func NewHandler(logger *slog.Logger, service CatalogService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validate: httpx.NewValidator(), now: time.Now}
}

// MountRoutes registers the lookup endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/products", h.handleProducts)
	r.Get("/laboratories", h.handleLaboratories)
	r.Get("/pharmacies", h.handlePharmacies)
}

type productParams struct {
	Query string `query:"q" validate:"required,min=3,max=100"`
	Type  string `query:"type" validate:"oneof=name code"`
	Limit int    `query:"limit" validate:"min=1,max=100"`
}

type laboratoryParams struct {
	Query string `query:"q" validate:"required,min=2,max=100"`
	Limit int    `query:"limit" validate:"min=1,max=100"`
}

type listResponse[T any] struct {
	Success       bool  `json:"success"`
	Data          []T   `json:"data"`
	Count         int   `json:"count"`
	ExecutionTime int64 `json:"executionTime"`
}

func (h *Handler) handleProducts(w http.ResponseWriter, r *http.Request) {
	start := h.now()
	if shared.PrincipalFromContext(r.Context()) == nil {
		httpx.Fail(w, r, h.logger, "search products", shared.ErrUnauthenticated)
		return
	}
	verr := &shared.ValidationError{}
	params := productParams{
		Query: strings.TrimSpace(r.URL.Query().Get("q")),
		Type:  strings.TrimSpace(r.URL.Query().Get("type")),
		Limit: httpx.Int(r, verr, "limit", catalog.DefaultLimit),
	}
	if params.Type == "" {
		params.Type = string(query.SearchByName)
	}
	verr.Merge(httpx.Validate(h.validate, params))
	if err := verr.Err(); err != nil {
		httpx.Fail(w, r, h.logger, "search products", err)
		return
	}
	rows, err := h.service.SearchProducts(r.Context(), catalog.ProductSearch{
		Query: params.Query,
		Field: query.SearchField(params.Type),
		Limit: params.Limit,
	})
	if err != nil {
		httpx.Fail(w, r, h.logger, "search products", err)
		return
	}
	respondList(w, rows, h.now().Sub(start))
}

func (h *Handler) handleLaboratories(w http.ResponseWriter, r *http.Request) {
	start := h.now()
	if shared.PrincipalFromContext(r.Context()) == nil {
		httpx.Fail(w, r, h.logger, "search laboratories", shared.ErrUnauthenticated)
		return
	}
	verr := &shared.ValidationError{}
	params := laboratoryParams{
		Query: strings.TrimSpace(r.URL.Query().Get("q")),
		Limit: httpx.Int(r, verr, "limit", catalog.DefaultLimit),
	}
	verr.Merge(httpx.Validate(h.validate, params))
	if err := verr.Err(); err != nil {
		httpx.Fail(w, r, h.logger, "search laboratories", err)
		return
	}
	rows, err := h.service.SearchLaboratories(r.Context(), params.Query, params.Limit)
	if err != nil {
		httpx.Fail(w, r, h.logger, "search laboratories", err)
		return
	}
	respondList(w, rows, h.now().Sub(start))
}

func (h *Handler) handlePharmacies(w http.ResponseWriter, r *http.Request) {
	start := h.now()
	rows, err := h.service.Pharmacies(r.Context(), shared.PrincipalFromContext(r.Context()))
	if err != nil {
		httpx.Fail(w, r, h.logger, "list pharmacies", err)
		return
	}
	respondList(w, rows, h.now().Sub(start))
}

func respondList[T any](w http.ResponseWriter, rows []T, elapsed time.Duration) {
	httpx.OK(w, listResponse[T]{Success: true, Data: rows, Count: len(rows), ExecutionTime: elapsed.Milliseconds()})
}
