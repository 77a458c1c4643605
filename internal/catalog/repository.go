package catalog

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pharmalytics/pharmalytics/internal/query"
)

// PGRepository reads products_catalog and pharmacies.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs the repository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// SearchProducts implements Repository.
func (r *PGRepository) SearchProducts(ctx context.Context, field query.SearchField, like string, limit int) ([]Product, error) {
	stmt, err := query.ProductSearchQuery(field, like, limit)
	if err != nil {
		return nil, err
	}
	var rows []Product
	if err := pgxscan.Select(ctx, r.pool, &rows, stmt.SQL, stmt.Args...); err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	return rows, nil
}

// SearchLaboratories implements Repository.
func (r *PGRepository) SearchLaboratories(ctx context.Context, like string, limit int) ([]Laboratory, error) {
	stmt, err := query.LaboratorySearchQuery(like, limit)
	if err != nil {
		return nil, err
	}
	var rows []Laboratory
	if err := pgxscan.Select(ctx, r.pool, &rows, stmt.SQL, stmt.Args...); err != nil {
		return nil, fmt.Errorf("search laboratories: %w", err)
	}
	return rows, nil
}

// Pharmacies implements Repository.
func (r *PGRepository) Pharmacies(ctx context.Context) ([]Pharmacy, error) {
	stmt, err := query.PharmacyListQuery()
	if err != nil {
		return nil, err
	}
	var rows []Pharmacy
	if err := pgxscan.Select(ctx, r.pool, &rows, stmt.SQL, stmt.Args...); err != nil {
		return nil, fmt.Errorf("list pharmacies: %w", err)
	}
	return rows, nil
}
