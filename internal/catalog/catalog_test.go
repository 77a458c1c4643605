package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmalytics/pharmalytics/internal/platform/memcache"
	"github.com/pharmalytics/pharmalytics/internal/query"
	"github.com/pharmalytics/pharmalytics/internal/shared"
)

type stubRepo struct {
	mu         sync.Mutex
	calls      int
	lastField  query.SearchField
	lastLike   string
	lastLimit  int
	products   []Product
	pharmacies []Pharmacy
	err        error
	block      bool
}

func (r *stubRepo) SearchProducts(ctx context.Context, field query.SearchField, like string, limit int) ([]Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.lastField, r.lastLike, r.lastLimit = field, like, limit
	return r.products, r.err
}

func (r *stubRepo) SearchLaboratories(ctx context.Context, like string, limit int) ([]Laboratory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.lastLike, r.lastLimit = like, limit
	return []Laboratory{{Name: "SANOFI", ProductCount: 12}}, r.err
}

func (r *stubRepo) Pharmacies(ctx context.Context) ([]Pharmacy, error) {
	r.mu.Lock()
	r.calls++
	block := r.block
	r.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return r.pharmacies, r.err
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newService(repo *stubRepo, c *clock) *Service {
	stores := NewStores(memcache.Options{TTL: time.Hour, MaxEntries: 1000, EvictBatch: 200, Now: c.Now}, 24*time.Hour)
	return NewService(repo, stores, nil, nil)
}

func TestSearchProductsByNameIsCachedAcrossCase(t *testing.T) {
	repo := &stubRepo{products: []Product{{Code: "3400930000001", Name: "DOLIPRANE 1000MG"}}}
	c := &clock{now: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)}
	svc := newService(repo, c)

	got, err := svc.SearchProducts(context.Background(), ProductSearch{Query: "Doliprane"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, query.SearchByName, repo.lastField)
	assert.Equal(t, "%Doliprane%", repo.lastLike)
	assert.Equal(t, DefaultLimit, repo.lastLimit)

	_, err = svc.SearchProducts(context.Background(), ProductSearch{Query: "  DOLIPRANE "})
	require.NoError(t, err)
	assert.Equal(t, 1, repo.calls)

	c.now = c.now.Add(time.Hour + time.Second)
	_, err = svc.SearchProducts(context.Background(), ProductSearch{Query: "doliprane"})
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls)
}

func TestSearchProductsByCodeUsesWildcards(t *testing.T) {
	repo := &stubRepo{}
	svc := newService(repo, &clock{now: time.Now()})

	got, err := svc.SearchProducts(context.Background(), ProductSearch{Query: "*0001", Field: query.SearchByCode, Limit: 500})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Equal(t, "%0001", repo.lastLike)
	assert.Equal(t, MaxLimit, repo.lastLimit)
}

func TestSearchRejectsShortOrMalformedQueries(t *testing.T) {
	repo := &stubRepo{}
	svc := newService(repo, &clock{now: time.Now()})
	ctx := context.Background()

	_, err := svc.SearchProducts(ctx, ProductSearch{Query: "do"})
	assert.ErrorAs(t, err, new(*shared.ValidationError))
	_, err = svc.SearchProducts(ctx, ProductSearch{Query: "*", Field: query.SearchByCode})
	assert.ErrorAs(t, err, new(*shared.ValidationError))
	_, err = svc.SearchProducts(ctx, ProductSearch{Query: "doliprane", Field: "brand"})
	assert.ErrorAs(t, err, new(*shared.ValidationError))
	_, err = svc.SearchLaboratories(ctx, "s", 10)
	assert.ErrorAs(t, err, new(*shared.ValidationError))
	assert.Zero(t, repo.calls)

	labs, err := svc.SearchLaboratories(ctx, "sa", 10)
	require.NoError(t, err)
	assert.Equal(t, "SANOFI", labs[0].Name)
	assert.Equal(t, "%sa%", repo.lastLike)
}

func TestFailedSearchIsNotCached(t *testing.T) {
	repo := &stubRepo{err: errors.New("connection reset")}
	svc := newService(repo, &clock{now: time.Now()})

	_, err := svc.SearchLaboratories(context.Background(), "sanofi", 10)
	var upstream *shared.UpstreamError
	require.ErrorAs(t, err, &upstream)

	repo.err = nil
	_, err = svc.SearchLaboratories(context.Background(), "sanofi", 10)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls)
}

func TestStatementTimeoutIsReportedAsTimeout(t *testing.T) {
	repo := &stubRepo{err: &pgconn.PgError{Code: "57014", Message: "canceling statement due to statement timeout"}}
	svc := newService(repo, &clock{now: time.Now()})

	_, err := svc.SearchProducts(context.Background(), ProductSearch{Query: "doliprane"})
	require.Error(t, err)
	assert.True(t, shared.IsTimeout(err))

	_, err = svc.SearchLaboratories(context.Background(), "sanofi", 10)
	assert.True(t, shared.IsTimeout(err))

	repo.err = nil
	_, err = svc.SearchProducts(context.Background(), ProductSearch{Query: "doliprane"})
	require.NoError(t, err)
	assert.Equal(t, 3, repo.calls)
}

func TestSlowDirectoryLoadTimesOut(t *testing.T) {
	repo := &stubRepo{block: true}
	svc := newService(repo, &clock{now: time.Now()})
	svc.timeout = 20 * time.Millisecond

	started := time.Now()
	_, err := svc.Pharmacies(context.Background(), &shared.Principal{UserID: "a", Role: shared.RoleAdmin})
	require.Error(t, err)
	assert.Less(t, time.Since(started), 2*time.Second)

	var timeout *shared.TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, "catalog directory", timeout.Op)
	assert.Equal(t, 20*time.Millisecond, timeout.Limit)
}

func TestCancelledLookupIsNotATimeout(t *testing.T) {
	repo := &stubRepo{block: true}
	svc := newService(repo, &clock{now: time.Now()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Pharmacies(ctx, &shared.Principal{UserID: "a", Role: shared.RoleAdmin})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, shared.IsTimeout(err))
}

func TestPharmaciesAreScopedByRole(t *testing.T) {
	own := uuid.New()
	repo := &stubRepo{pharmacies: []Pharmacy{{ID: uuid.New(), Name: "Pharmacie du Centre"}, {ID: own, Name: "Pharmacie des Halles"}}}
	svc := newService(repo, &clock{now: time.Now()})
	ctx := context.Background()

	all, err := svc.Pharmacies(ctx, &shared.Principal{UserID: "a", Role: shared.RoleAdmin})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := svc.Pharmacies(ctx, &shared.Principal{UserID: "p", Role: shared.RolePharmacien, PharmacyID: &own})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, own, mine[0].ID)
	assert.Equal(t, 1, repo.calls)

	_, err = svc.Pharmacies(ctx, nil)
	assert.ErrorIs(t, err, shared.ErrUnauthenticated)

	require.NoError(t, svc.invalidateDirectory(ctx))
	_, err = svc.Pharmacies(ctx, &shared.Principal{UserID: "a", Role: shared.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls)
}

func TestSharedDirectoryIsVisibleToEveryReplica(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := &stubRepo{pharmacies: []Pharmacy{{ID: uuid.New(), Name: "Pharmacie de la Gare"}}}
	replica := func() *Service {
		stores := NewStores(memcache.Options{TTL: time.Hour}, time.Hour)
		stores.UseSharedDirectory(client, time.Hour)
		return NewService(repo, stores, nil, nil)
	}
	first, second := replica(), replica()
	admin := &shared.Principal{UserID: "a", Role: shared.RoleAdmin}
	ctx := context.Background()

	_, err := first.Pharmacies(ctx, admin)
	require.NoError(t, err)
	list, err := second.Pharmacies(ctx, admin)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Pharmacie de la Gare", list[0].Name)
	assert.Equal(t, 1, repo.calls)

	require.NoError(t, second.invalidateDirectory(ctx))
	_, err = first.Pharmacies(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls)
}
