package assignment

import (
	"context"

	"github.com/meridianhq/aegis/audit"
	"github.com/meridianhq/aegis/id"
)

// Store defines persistence operations for role assignments.
//
// Mutating operations carry the audit entry documenting them; the backend
// must apply the mutation and the entry as one atomic unit.
type Store interface {
	// CreateAssignment persists a new assignment together with its audit
	// entry.
	CreateAssignment(ctx context.Context, a *Assignment, entry *audit.Entry) error

	// GetAssignment retrieves the assignment binding a principal to a role.
	GetAssignment(ctx context.Context, principalID string, roleID id.RoleID) (*Assignment, error)

	// DeleteAssignment removes the assignment binding a principal to a role
	// together with its audit entry.
	DeleteAssignment(ctx context.Context, principalID string, roleID id.RoleID, entry *audit.Entry) error

	// ListAssignments returns assignments matching the filter.
	ListAssignments(ctx context.Context, filter *ListFilter) ([]*Assignment, error)

	// CountAssignments returns the number of assignments matching the filter.
	CountAssignments(ctx context.Context, filter *ListFilter) (int64, error)

	// ListRolesForPrincipal returns the role IDs held by a principal.
	// This is the authorization hot-path read.
	ListRolesForPrincipal(ctx context.Context, principalID string) ([]id.RoleID, error)

	// ListAssignmentsByRole returns every assignment of the given role.
	ListAssignmentsByRole(ctx context.Context, roleID id.RoleID) ([]*Assignment, error)
}
