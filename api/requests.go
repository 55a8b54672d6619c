package api

// PermissionBody is the wire shape of one permission inside a role.
type PermissionBody struct {
	Resource   string            `json:"resource" description:"Resource type (e.g. orders)"`
	Action     string            `json:"action" description:"Action name (e.g. create)"`
	Conditions map[string]string `json:"conditions,omitempty" description:"Attribute equality conditions that must all hold"`
}

// ──────────────────────────────────────────────────
// Role requests
// ──────────────────────────────────────────────────

// CreateRoleRequest is the body for creating a custom role.
type CreateRoleRequest struct {
	Name        string           `json:"name" description:"Unique role name"`
	DisplayName string           `json:"display_name,omitempty" description:"Human-readable name"`
	Description string           `json:"description,omitempty" description:"Human-readable description"`
	Permissions []PermissionBody `json:"permissions" description:"Permissions granted by the role"`
}

// UpdateRoleRequest is the body for updating a custom role. Omitted fields
// are left unchanged; the role name is immutable.
type UpdateRoleRequest struct {
	DisplayName *string          `json:"display_name,omitempty" description:"Human-readable name"`
	Description *string          `json:"description,omitempty" description:"Human-readable description"`
	Permissions []PermissionBody `json:"permissions,omitempty" description:"Replacement permission set"`
}

// GetRoleRequest is the path parameter for getting a role.
type GetRoleRequest struct {
	RoleID string `path:"roleId" description:"Role ID"`
}

// ListRolesRequest holds query parameters for listing roles.
type ListRolesRequest struct {
	Origin string `query:"origin" description:"Filter by origin (system or custom)"`
	Search string `query:"search" description:"Search by name or display name"`
	Limit  int    `query:"limit" description:"Maximum results (default: 50)"`
	Offset int    `query:"offset" description:"Results to skip"`
}

// ──────────────────────────────────────────────────
// Assignment requests
// ──────────────────────────────────────────────────

// AssignRoleRequest is the body for granting a role to a principal.
type AssignRoleRequest struct {
	PrincipalID string `json:"principal_id" description:"Principal receiving the role"`
	RoleID      string `json:"role_id" description:"Role to grant"`
}

// RevokeRoleRequest holds path parameters for revoking a role.
type RevokeRoleRequest struct {
	PrincipalID string `path:"principalId" description:"Principal holding the role"`
	RoleID      string `path:"roleId" description:"Role to revoke"`
}

// ListAssignmentsRequest holds query parameters for listing assignments.
type ListAssignmentsRequest struct {
	PrincipalID string `query:"principal_id" description:"Filter by principal"`
	RoleID      string `query:"role_id" description:"Filter by role"`
	AssignedBy  string `query:"assigned_by" description:"Filter by granting actor"`
	Limit       int    `query:"limit" description:"Maximum results (default: 50)"`
	Offset      int    `query:"offset" description:"Results to skip"`
}

// PrincipalRequest is the path parameter identifying a principal.
type PrincipalRequest struct {
	PrincipalID string `path:"principalId" description:"Principal ID"`
}

// ──────────────────────────────────────────────────
// Audit requests
// ──────────────────────────────────────────────────

// ListAuditRequest holds query parameters for querying the audit trail.
type ListAuditRequest struct {
	ActorID     string `query:"actor_id" description:"Filter by acting identity"`
	Action      string `query:"action" description:"Filter by action (assign_role, revoke_role, create_role, update_role, delete_role)"`
	RoleID      string `query:"role_id" description:"Filter by role"`
	PrincipalID string `query:"principal_id" description:"Filter by affected principal"`
	After       string `query:"after" description:"Only entries after this RFC 3339 timestamp"`
	Before      string `query:"before" description:"Only entries before this RFC 3339 timestamp"`
	Limit       int    `query:"limit" description:"Maximum results (default: 50)"`
	Offset      int    `query:"offset" description:"Results to skip"`
}

// GetAuditEntryRequest is the path parameter for getting an audit entry.
type GetAuditEntryRequest struct {
	AuditID string `path:"auditId" description:"Audit entry ID"`
}
