package role

import (
	"context"

	"github.com/meridianhq/aegis/audit"
	"github.com/meridianhq/aegis/id"
)

// Store defines persistence operations for role definitions.
//
// Mutating operations carry the audit entries documenting them; the backend
// must apply the mutation and the entries as one atomic unit, so that no
// successful mutation is ever missing its audit record.
type Store interface {
	// CreateRole persists a new role together with its audit entry.
	CreateRole(ctx context.Context, r *Role, entry *audit.Entry) error

	// GetRole retrieves a role by ID.
	GetRole(ctx context.Context, roleID id.RoleID) (*Role, error)

	// GetRoleByName retrieves a role by its unique name.
	GetRoleByName(ctx context.Context, name string) (*Role, error)

	// UpdateRole persists changes to a role together with its audit entry.
	UpdateRole(ctx context.Context, r *Role, entry *audit.Entry) error

	// DeleteRole removes a role, removes every assignment referencing it,
	// and appends the given audit entries (the delete itself plus one
	// revocation per affected principal), all atomically.
	DeleteRole(ctx context.Context, roleID id.RoleID, entries []*audit.Entry) error

	// ListRoles returns roles matching the filter.
	ListRoles(ctx context.Context, filter *ListFilter) ([]*Role, error)

	// CountRoles returns the number of roles matching the filter.
	CountRoles(ctx context.Context, filter *ListFilter) (int64, error)
}
