package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmalytics/pharmalytics/internal/analytics"
	analytichttp "github.com/pharmalytics/pharmalytics/internal/analytics/http"
	"github.com/pharmalytics/pharmalytics/internal/auth"
	"github.com/pharmalytics/pharmalytics/internal/kpi"
	"github.com/pharmalytics/pharmalytics/internal/observability"
	"github.com/pharmalytics/pharmalytics/internal/period"
	"github.com/pharmalytics/pharmalytics/internal/query"
	"github.com/pharmalytics/pharmalytics/internal/shared"
)

type emptyService struct{}

func (emptyService) KPIs(ctx context.Context, req analytics.Request) (analytics.KPIReport, error) {
	return analytics.KPIReport{KPIs: kpi.Build(kpi.Totals{}, kpi.Totals{})}, nil
}

func (emptyService) Evolution(ctx context.Context, req analytics.Request) (analytics.EvolutionReport, error) {
	return analytics.EvolutionReport{}, nil
}

func (emptyService) Top(ctx context.Context, req query.TopRequest) ([]analytics.TopRow, error) {
	return []analytics.TopRow{}, nil
}

func newTestRouter(t *testing.T) (http.Handler, *auth.Tokens) {
	t.Helper()
	tokens := auth.NewTokens("test-secret")
	cfg := &Config{AppEnv: "test", AppRequestTimeout: 30 * time.Second}
	router := NewRouter(RouterParams{
		Logger:           NewLogger(cfg),
		Config:           cfg,
		Authenticator:    auth.NewAuthenticator(nil, tokens, nil),
		AnalyticsHandler: analytichttp.NewHandler(nil, emptyService{}, period.NewResolver(2025)),
		Metrics:          observability.NewMetrics(),
	})
	return router, tokens
}

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(t)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}

func TestAPIRequiresPrincipal(t *testing.T) {
	router, tokens := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/kpis", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	token, err := tokens.Issue(shared.Principal{UserID: "u1", Role: shared.RoleAdmin}, time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/kpis", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "pharmalytics_http_requests_total")
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("SEARCH_CACHE_MAX", "50")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 2025, cfg.AnalyticsDefaultYear)
	assert.Equal(t, 10*time.Minute, cfg.AnalyticsCacheTTL)
	assert.Equal(t, 50, cfg.SearchCache().MaxEntries)
	assert.Equal(t, 24*time.Hour, cfg.DirectoryCacheTTL)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsShortRequestTimeout(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("APP_REQUEST_TIMEOUT", "10s")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestTestModeFlag(t *testing.T) {
	t.Setenv(testModeEnv, "1")
	assert.True(t, InTestMode())
	t.Setenv(testModeEnv, "")
	assert.False(t, InTestMode())
}
