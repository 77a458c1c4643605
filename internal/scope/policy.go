// Package scope decides which pharmacies a principal may aggregate over.
// Every analytics and catalog entry point resolves a Policy before building
// queries.
package scope

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/pharmalytics/pharmalytics/internal/query"
	"github.com/pharmalytics/pharmalytics/internal/shared"
)

// Policy is the data scope of one request.
type Policy struct {
	all      bool
	pharmacy uuid.UUID
}

// Resolve derives the policy of p.
func Resolve(p *shared.Principal) (Policy, error) {
	if p == nil {
		return Policy{}, shared.ErrUnauthenticated
	}
	switch p.Role {
	case shared.RoleAdmin:
		return Admin(), nil
	case shared.RolePharmacien:
		if p.PharmacyID == nil || *p.PharmacyID == uuid.Nil {
			return Policy{}, fmt.Errorf("pharmacien %s has no pharmacy: %w", p.UserID, shared.ErrForbidden)
		}
		return Pharmacy(*p.PharmacyID), nil
	default:
		return Policy{}, fmt.Errorf("role %q: %w", p.Role, shared.ErrForbidden)
	}
}

// Admin is the unrestricted policy.
func Admin() Policy {
	return Policy{all: true}
}

// Pharmacy pins every query to id.
func Pharmacy(id uuid.UUID) Policy {
	return Policy{pharmacy: id}
}

// Unrestricted reports whether the policy covers every pharmacy.
func (p Policy) Unrestricted() bool {
	return p.all
}

// Allows reports whether data of pharmacy id is visible.
func (p Policy) Allows(id uuid.UUID) bool {
	return p.all || p.pharmacy == id
}

// Apply intersects the requested filters with the policy. A restricted policy
// turns an empty pharmacy filter into its own pharmacy and rejects any other.
func (p Policy) Apply(requested query.Filters) (query.Filters, error) {
	if p.all {
		return requested, nil
	}
	for _, id := range requested.PharmacyIDs {
		if id != p.pharmacy {
			return query.Filters{}, fmt.Errorf("pharmacy %s is outside scope: %w", id, shared.ErrForbidden)
		}
	}
	return query.Filters{
		PharmacyIDs: []uuid.UUID{p.pharmacy},
		BrandLabs:   requested.BrandLabs,
	}, nil
}
