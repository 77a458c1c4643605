package shared

import (
	"strings"

	"github.com/google/uuid"
)

// Role identifies what a principal may see.
type Role string

// Roles known to the dashboard.
const (
	RoleAdmin      Role = "admin"
	RolePharmacien Role = "pharmacien"
)

// ParseRole normalises a role claim. Unknown roles are returned as-is so the
// scope policy can reject them.
func ParseRole(raw string) Role {
	return Role(strings.ToLower(strings.TrimSpace(raw)))
}

// Principal is the authenticated caller supplied by the auth layer.
type Principal struct {
	UserID     string
	Role       Role
	PharmacyID *uuid.UUID
}

// IsAdmin reports whether the principal sees every pharmacy.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}
