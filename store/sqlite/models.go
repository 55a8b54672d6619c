package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/meridianhq/aegis/assignment"
	"github.com/meridianhq/aegis/audit"
	"github.com/meridianhq/aegis/id"
	"github.com/meridianhq/aegis/permission"
	"github.com/meridianhq/aegis/role"
)

// SQLite has no native JSON column type; structured fields are stored as
// JSON text.

// ──────────────────────────────────────────────────
// Role model
// ──────────────────────────────────────────────────

type roleModel struct {
	grove.BaseModel `grove:"table:aegis_roles"`
	ID              string    `grove:"id,pk"`
	Name            string    `grove:"name,notnull"`
	DisplayName     string    `grove:"display_name,notnull"`
	Description     string    `grove:"description"`
	Origin          string    `grove:"origin,notnull"`
	Permissions     string    `grove:"permissions"` // JSON text
	CreatedAt       time.Time `grove:"created_at,notnull"`
	UpdatedAt       time.Time `grove:"updated_at,notnull"`
}

func roleToModel(r *role.Role) (*roleModel, error) {
	perms, err := json.Marshal(r.Permissions)
	if err != nil {
		return nil, fmt.Errorf("marshal role permissions: %w", err)
	}
	return &roleModel{
		ID:          r.ID.String(),
		Name:        r.Name,
		DisplayName: r.DisplayName,
		Description: r.Description,
		Origin:      string(r.Origin),
		Permissions: string(perms),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}, nil
}

func roleFromModel(m *roleModel) (*role.Role, error) {
	rid, _ := id.ParseRoleID(m.ID) //nolint:errcheck // stored IDs are always valid
	var perms []permission.Permission
	if m.Permissions != "" {
		if err := json.Unmarshal([]byte(m.Permissions), &perms); err != nil {
			return nil, fmt.Errorf("unmarshal role permissions: %w", err)
		}
	}
	return &role.Role{
		ID:          rid,
		Name:        m.Name,
		DisplayName: m.DisplayName,
		Description: m.Description,
		Origin:      role.Origin(m.Origin),
		Permissions: perms,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}, nil
}

// ──────────────────────────────────────────────────
// Assignment model
// ──────────────────────────────────────────────────

type assignmentModel struct {
	grove.BaseModel `grove:"table:aegis_assignments"`
	ID              string    `grove:"id,pk"`
	RoleID          string    `grove:"role_id,notnull"`
	PrincipalID     string    `grove:"principal_id,notnull"`
	AssignedBy      string    `grove:"assigned_by,notnull"`
	AssignedAt      time.Time `grove:"assigned_at,notnull"`
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
	ID              string    `grove:"id,pk"`
	ActorID         string    `grove:"actor_id,notnull"`
	Action          string    `grove:"action,notnull"`
	RoleID          string    `grove:"role_id,notnull"`
	PrincipalID     string    `grove:"principal_id"`
	Before          string    `grove:"before_state"` // JSON text
	After           string    `grove:"after_state"`  // JSON text
	CreatedAt       time.Time `grove:"created_at,notnull"`
}

func auditToModel(e *audit.Entry) (*auditModel, error) {
	m := &auditModel{
		ID:          e.ID.String(),
		ActorID:     e.ActorID,
		Action:      string(e.Action),
		RoleID:      e.RoleID.String(),
		PrincipalID: e.PrincipalID,
		CreatedAt:   e.CreatedAt,
	}
	if e.Before != nil {
		b, err := json.Marshal(e.Before)
		if err != nil {
			return nil, fmt.Errorf("marshal audit before state: %w", err)
		}
		m.Before = string(b)
	}
	if e.After != nil {
		a, err := json.Marshal(e.After)
		if err != nil {
			return nil, fmt.Errorf("marshal audit after state: %w", err)
		}
		m.After = string(a)
	}
	return m, nil
}

func auditFromModel(m *auditModel) (*audit.Entry, error) {
	eid, _ := id.ParseAuditID(m.ID)    //nolint:errcheck // stored IDs are always valid
	rid, _ := id.ParseRoleID(m.RoleID) //nolint:errcheck
	e := &audit.Entry{
		ID:          eid,
		ActorID:     m.ActorID,
		Action:      audit.Action(m.Action),
		RoleID:      rid,
		PrincipalID: m.PrincipalID,
		CreatedAt:   m.CreatedAt,
	}
	if m.Before != "" {
		if err := json.Unmarshal([]byte(m.Before), &e.Before); err != nil {
			return nil, fmt.Errorf("unmarshal audit before state: %w", err)
		}
	}
	if m.After != "" {
		if err := json.Unmarshal([]byte(m.After), &e.After); err != nil {
			return nil, fmt.Errorf("unmarshal audit after state: %w", err)
		}
	}
	return e, nil
}
