// Package catalog serves the lookahead searches over products and
// laboratories and the pharmacy directory.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pharmalytics/pharmalytics/internal/platform/memcache"
	"github.com/pharmalytics/pharmalytics/internal/query"
	"github.com/pharmalytics/pharmalytics/internal/scope"
	"github.com/pharmalytics/pharmalytics/internal/shared"
)

// Search bounds.
const (
	MinProductQuery    = 3
	MinLaboratoryQuery = 2
	DefaultLimit       = 20
	MaxLimit           = 100
)

const directoryKey = "all"

// Product is one products_catalog entry.
type Product struct {
	Code     string  `db:"code_13_ref" json:"code"`
	Name     string  `db:"name" json:"name"`
	BrandLab *string `db:"brand_lab" json:"brandLab"`
	Category *string `db:"category" json:"category"`
}

// Laboratory is a brand_lab with the number of products it owns.
type Laboratory struct {
	Name         string `db:"brand_lab" json:"name"`
	ProductCount int64  `db:"product_count" json:"productCount"`
}

// Pharmacy is one directory entry.
type Pharmacy struct {
	ID             uuid.UUID `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	City           *string   `db:"city" json:"city"`
	Area           *string   `db:"area" json:"area"`
	CA             float64   `db:"ca" json:"ca"`
	EmployeesCount int       `db:"employees_count" json:"employeesCount"`
}

// Repository reads the catalog tables.
type Repository interface {
	SearchProducts(ctx context.Context, field query.SearchField, like string, limit int) ([]Product, error)
	SearchLaboratories(ctx context.Context, like string, limit int) ([]Laboratory, error)
	Pharmacies(ctx context.Context) ([]Pharmacy, error)
}

// Recorder receives cache lookups.
type Recorder interface {
	ObserveCache(cache, result string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveCache(string, string) {}

// Stores groups the caches used by the service.
type Stores struct {
	Products     memcache.Store[[]Product]
	Laboratories memcache.Store[[]Laboratory]
	Directory    memcache.Store[[]Pharmacy]
}

// NewStores builds in-process stores: search results share one bound and
// the directory keeps its single entry for directoryTTL.
func NewStores(search memcache.Options, directoryTTL time.Duration) Stores {
	return Stores{
		Products:     memcache.NewBounded[[]Product](search),
		Laboratories: memcache.NewBounded[[]Laboratory](search),
		Directory:    memcache.NewBounded[[]Pharmacy](memcache.Options{TTL: directoryTTL, MaxEntries: 1, EvictBatch: 1}),
	}
}

// UseSharedDirectory keeps the directory in redis so every replica serves the
// same list and one invalidation clears it everywhere.
func (s *Stores) UseSharedDirectory(client *redis.Client, ttl time.Duration) {
	s.Directory = memcache.NewRedisStore[[]Pharmacy](client, "pharmalytics:directory", ttl)
}

// ProductSearch is a validated product lookahead.
type ProductSearch struct {
	Query string
	Field query.SearchField
	Limit int
}

// Service answers catalog lookups through its caches.
type Service struct {
	repo    Repository
	stores  Stores
	metrics Recorder
	logger  *slog.Logger
	timeout time.Duration
}

// NewService wires the repository with its caches. metrics may be nil.
func NewService(repo Repository, stores Stores, metrics Recorder, logger *slog.Logger) *Service {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, stores: stores, metrics: metrics, logger: logger, timeout: query.BaseTimeout}
}

// SearchProducts matches products by name or by code. Code searches accept
// the wildcard syntax of ParseCodePattern.
func (s *Service) SearchProducts(ctx context.Context, req ProductSearch) ([]Product, error) {
	q := Normalize(req.Query)
	limit := clampLimit(req.Limit)
	var (
		like string
		key  string
	)
	switch req.Field {
	case query.SearchByCode:
		pattern, err := ParseCodePattern(q)
		if err != nil {
			return nil, err
		}
		like, key = pattern, cacheKey("code", strconv.Itoa(limit), q)
	case query.SearchByName, "":
		req.Field = query.SearchByName
		like, key = NamePattern(q), cacheKey("name", strconv.Itoa(limit), fold(q))
	default:
		return nil, shared.Invalid("type", "must be one of: name code")
	}
	if len([]rune(q)) < MinProductQuery {
		return nil, shared.Invalid("q", fmt.Sprintf("must be at least %d characters", MinProductQuery))
	}
	return cached(ctx, s, "products", s.stores.Products, key, func(ctx context.Context) ([]Product, error) {
		return s.repo.SearchProducts(ctx, req.Field, like, limit)
	})
}

// SearchLaboratories matches laboratory names containing q.
func (s *Service) SearchLaboratories(ctx context.Context, q string, limit int) ([]Laboratory, error) {
	q = Normalize(q)
	if len([]rune(q)) < MinLaboratoryQuery {
		return nil, shared.Invalid("q", fmt.Sprintf("must be at least %d characters", MinLaboratoryQuery))
	}
	limit = clampLimit(limit)
	key := cacheKey("labs", strconv.Itoa(limit), fold(q))
	return cached(ctx, s, "laboratories", s.stores.Laboratories, key, func(ctx context.Context) ([]Laboratory, error) {
		return s.repo.SearchLaboratories(ctx, NamePattern(q), limit)
	})
}

// Pharmacies lists the directory entries visible to p.
func (s *Service) Pharmacies(ctx context.Context, p *shared.Principal) ([]Pharmacy, error) {
	policy, err := scope.Resolve(p)
	if err != nil {
		return nil, err
	}
	all, err := cached(ctx, s, "directory", s.stores.Directory, directoryKey, s.repo.Pharmacies)
	if err != nil {
		return nil, err
	}
	if policy.Unrestricted() {
		return all, nil
	}
	visible := make([]Pharmacy, 0, 1)
	for _, ph := range all {
		if policy.Allows(ph.ID) {
			visible = append(visible, ph)
		}
	}
	return visible, nil
}

// invalidateDirectory drops the cached pharmacy list ahead of its TTL.
func (s *Service) invalidateDirectory(ctx context.Context) error {
	return s.stores.Directory.Evict(ctx, directoryKey)
}

// cached serves key from store, falling through to load on a miss or a store
// failure. Failed loads are not stored.
func cached[V any](ctx context.Context, s *Service, name string, store memcache.Store[[]V], key string, load func(context.Context) ([]V, error)) ([]V, error) {
	if store != nil {
		values, ok, err := store.Get(ctx, key)
		switch {
		case err != nil:
			s.metrics.ObserveCache(name, "error")
			s.logger.Warn("catalog cache read failed", slog.String("cache", name), slog.Any("error", err))
		case ok:
			s.metrics.ObserveCache(name, "hit")
			return values, nil
		default:
			s.metrics.ObserveCache(name, "miss")
		}
	}
	values, err := bounded(ctx, s, name, load)
	if err != nil {
		return nil, err
	}
	if values == nil {
		values = []V{}
	}
	if store != nil {
		if err := store.Set(ctx, key, values); err != nil {
			s.logger.Warn("catalog cache write failed", slog.String("cache", name), slog.Any("error", err))
		}
	}
	return values, nil
}

// bounded runs one lookup under the base query timeout and classifies its
// failure the way analytics queries are classified.
func bounded[V any](ctx context.Context, s *Service, name string, load func(context.Context) ([]V, error)) ([]V, error) {
	qctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	op := "catalog " + name
	values, err := load(qctx)
	switch {
	case err == nil:
		return values, nil
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return nil, fmt.Errorf("%s: %w", op, context.Canceled)
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(qctx.Err(), context.DeadlineExceeded) || query.IsStatementTimeout(err):
		return nil, &shared.TimeoutError{Op: op, Limit: s.timeout}
	default:
		return nil, &shared.UpstreamError{Op: op, Err: err}
	}
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}
