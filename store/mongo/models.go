package mongo

import (
	"time"

	"github.com/xraph/grove"

	"github.com/meridianhq/aegis/assignment"
	"github.com/meridianhq/aegis/audit"
	"github.com/meridianhq/aegis/id"
	"github.com/meridianhq/aegis/permission"
	"github.com/meridianhq/aegis/role"
)

// permissionDoc is the embedded shape of one permission inside a role
// document.
type permissionDoc struct {
	Resource   string            `bson:"resource"`
	Action     string            `bson:"action"`
	Conditions map[string]string `bson:"conditions,omitempty"`
}

func permissionsToDocs(perms []permission.Permission) []permissionDoc {
	docs := make([]permissionDoc, len(perms))
	for i, p := range perms {
		docs[i] = permissionDoc{Resource: p.Resource, Action: p.Action, Conditions: p.Conditions}
	}
	return docs
}

func permissionsFromDocs(docs []permissionDoc) []permission.Permission {
	perms := make([]permission.Permission, len(docs))
	for i, d := range docs {
		perms[i] = permission.Permission{Resource: d.Resource, Action: d.Action, Conditions: d.Conditions}
	}
	return perms
}

// ──────────────────────────────────────────────────
// Role model
// ──────────────────────────────────────────────────

type roleModel struct {
	grove.BaseModel `grove:"table:aegis_roles"`
	ID              string          `grove:"id,pk"        bson:"_id"`
	Name            string          `grove:"name"         bson:"name"`
	DisplayName     string          `grove:"display_name" bson:"display_name"`
	Description     string          `grove:"description"  bson:"description"`
	Origin          string          `grove:"origin"       bson:"origin"`
	Permissions     []permissionDoc `grove:"permissions"  bson:"permissions"`
	CreatedAt       time.Time       `grove:"created_at"   bson:"created_at"`
	UpdatedAt       time.Time       `grove:"updated_at"   bson:"updated_at"`
}

func roleToModel(r *role.Role) *roleModel {
	return &roleModel{
		ID:          r.ID.String(),
		Name:        r.Name,
		DisplayName: r.DisplayName,
		Description: r.Description,
		Origin:      string(r.Origin),
		Permissions: permissionsToDocs(r.Permissions),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func roleFromModel(m *roleModel) *role.Role {
	rid, _ := id.ParseRoleID(m.ID) //nolint:errcheck // stored IDs are always valid
	return &role.Role{
		ID:          rid,
		Name:        m.Name,
		DisplayName: m.DisplayName,
		Description: m.Description,
		Origin:      role.Origin(m.Origin),
		Permissions: permissionsFromDocs(m.Permissions),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// ──────────────────────────────────────────────────
// Assignment model
// ──────────────────────────────────────────────────

type assignmentModel struct {
	grove.BaseModel `grove:"table:aegis_assignments"`
	ID              string    `grove:"id,pk"        bson:"_id"`
	RoleID          string    `grove:"role_id"      bson:"role_id"`
	PrincipalID     string    `grove:"principal_id" bson:"principal_id"`
	AssignedBy      string    `grove:"assigned_by"  bson:"assigned_by"`
	AssignedAt      time.Time `grove:"assigned_at"  bson:"assigned_at"`
}

func assignmentToModel(a *assignment.Assignment) *assignmentModel {
	return &assignmentModel{
		ID:          a.ID.String(),
		RoleID:      a.RoleID.String(),
		PrincipalID: a.PrincipalID,
		AssignedBy:  a.AssignedBy,
		AssignedAt:  a.AssignedAt,
	}
}

func assignmentFromModel(m *assignmentModel) *assignment.Assignment {
	aid, _ := id.ParseAssignmentID(m.ID) //nolint:errcheck // stored IDs are always valid
	rid, _ := id.ParseRoleID(m.RoleID)   //nolint:errcheck
	return &assignment.Assignment{
		ID:          aid,
		RoleID:      rid,
		PrincipalID: m.PrincipalID,
		AssignedBy:  m.AssignedBy,
		AssignedAt:  m.AssignedAt,
	}
}

// ──────────────────────────────────────────────────
// Audit model
// ──────────────────────────────────────────────────

type auditModel struct {
	grove.BaseModel `grove:"table:aegis_audit_entries"`
	ID              string         `grove:"id,pk"        bson:"_id"`
	ActorID         string         `grove:"actor_id"     bson:"actor_id"`
	Action          string         `grove:"action"       bson:"action"`
	RoleID          string         `grove:"role_id"      bson:"role_id"`
	PrincipalID     string         `grove:"principal_id" bson:"principal_id,omitempty"`
	Before          map[string]any `grove:"before_state" bson:"before_state,omitempty"`
	After           map[string]any `grove:"after_state"  bson:"after_state,omitempty"`
	CreatedAt       time.Time      `grove:"created_at"   bson:"created_at"`
}

func auditToModel(e *audit.Entry) *auditModel {
	return &auditModel{
		ID:          e.ID.String(),
		ActorID:     e.ActorID,
		Action:      string(e.Action),
		RoleID:      e.RoleID.String(),
		PrincipalID: e.PrincipalID,
		Before:      e.Before,
		After:       e.After,
		CreatedAt:   e.CreatedAt,
	}
}

func auditFromModel(m *auditModel) *audit.Entry {
	eid, _ := id.ParseAuditID(m.ID)    //nolint:errcheck // stored IDs are always valid
	rid, _ := id.ParseRoleID(m.RoleID) //nolint:errcheck
	return &audit.Entry{
		ID:          eid,
		ActorID:     m.ActorID,
		Action:      audit.Action(m.Action),
		RoleID:      rid,
		PrincipalID: m.PrincipalID,
		Before:      m.Before,
		After:       m.After,
		CreatedAt:   m.CreatedAt,
	}
}
