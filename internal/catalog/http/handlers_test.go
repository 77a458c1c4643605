package cataloghttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmalytics/pharmalytics/internal/catalog"
	"github.com/pharmalytics/pharmalytics/internal/platform/memcache"
	"github.com/pharmalytics/pharmalytics/internal/query"
	"github.com/pharmalytics/pharmalytics/internal/shared"
)

type stubRepo struct {
	like       string
	pharmacies []catalog.Pharmacy
	labsErr    error
}

func (r *stubRepo) SearchProducts(ctx context.Context, field query.SearchField, like string, limit int) ([]catalog.Product, error) {
	r.like = like
	return []catalog.Product{{Code: "3400930000001", Name: "DOLIPRANE 1000MG"}}, nil
}

func (r *stubRepo) SearchLaboratories(ctx context.Context, like string, limit int) ([]catalog.Laboratory, error) {
	r.like = like
	return nil, r.labsErr
}

func (r *stubRepo) Pharmacies(ctx context.Context) ([]catalog.Pharmacy, error) {
	return r.pharmacies, nil
}

func newRouter(repo *stubRepo) http.Handler {
	stores := catalog.NewStores(memcache.Options{}, 24*time.Hour)
	h := NewHandler(nil, catalog.NewService(repo, stores, nil, nil))
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func get(t *testing.T, h http.Handler, target string, p *shared.Principal) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if p != nil {
		req = req.WithContext(shared.ContextWithPrincipal(req.Context(), p))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return rr, body
}

var adminPrincipal = &shared.Principal{UserID: "admin", Role: shared.RoleAdmin}

func TestProductSearch(t *testing.T) {
	repo := &stubRepo{}
	rr, body := get(t, newRouter(repo), "/products?q=*0001&type=code&limit=5", adminPrincipal)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "%0001", repo.like)
	assert.Equal(t, float64(1), body["count"])
}

func TestProductSearchValidation(t *testing.T) {
	rr, body := get(t, newRouter(&stubRepo{}), "/products?q=do&type=brand&limit=x", adminPrincipal)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	var paths []string
	for _, d := range body["details"].([]any) {
		paths = append(paths, d.(map[string]any)["path"].(string))
	}
	assert.ElementsMatch(t, []string{"limit", "q", "type"}, paths)
}

func TestBareWildcardIsRejected(t *testing.T) {
	rr, body := get(t, newRouter(&stubRepo{}), "/products?q=***&type=code", adminPrincipal)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Invalid parameters", body["error"])
}

func TestLaboratorySearchReturnsEmptyList(t *testing.T) {
	rr, body := get(t, newRouter(&stubRepo{}), "/laboratories?q=zz", adminPrincipal)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []any{}, body["data"])
}

func TestPharmacyDirectoryScope(t *testing.T) {
	own := uuid.New()
	repo := &stubRepo{pharmacies: []catalog.Pharmacy{{ID: own, Name: "A"}, {ID: uuid.New(), Name: "B"}}}
	router := newRouter(repo)

	rr, body := get(t, router, "/pharmacies", &shared.Principal{UserID: "p", Role: shared.RolePharmacien, PharmacyID: &own})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(1), body["count"])

	rr, _ = get(t, router, "/pharmacies", &shared.Principal{UserID: "p", Role: shared.RolePharmacien})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr, _ = get(t, router, "/pharmacies", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLaboratorySearchTimeoutIsRetryable(t *testing.T) {
	repo := &stubRepo{labsErr: &pgconn.PgError{Code: "57014"}}
	rr, body := get(t, newRouter(repo), "/laboratories?q=sanofi", adminPrincipal)

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "Query timeout", body["error"])
	assert.Equal(t, true, body["retryable"])
}
