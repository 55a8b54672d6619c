// Package audit defines the append-only audit trail Entry entity.
//
// Only role-definition and role-assignment mutations are audited. Permission
// checks are not: they run on the hot path and at far too high a rate to log
// by default.
package audit

import (
	"time"

	"github.com/meridianhq/aegis/id"
)

// Action identifies the kind of mutation an entry records.
type Action string

const (
	// ActionAssignRole records a role being granted to a principal,
	// including idempotent re-affirmations of an existing grant.
	ActionAssignRole Action = "assign_role"

	// ActionRevokeRole records a role being removed from a principal,
	// whether by explicit revoke or by cascading role deletion.
	ActionRevokeRole Action = "revoke_role"

	// ActionCreateRole records a role definition being created.
	ActionCreateRole Action = "create_role"

	// ActionUpdateRole records a role's permission set being replaced.
	ActionUpdateRole Action = "update_role"

	// ActionDeleteRole records a role definition being deleted.
	ActionDeleteRole Action = "delete_role"
)

// Entry is a single audit trail record. Entries are immutable once written:
// the store exposes no update or delete for them.
//
// RoleID identifies the role the mutation targeted. PrincipalID is set only
// for assignment mutations. Before and After are snapshots of the mutated
// record around the change; either may be nil (a create has no before, a
// delete no after, a re-affirmation neither).
type Entry struct {
	ID          id.AuditID     `json:"id" db:"id"`
	ActorID     string         `json:"actor_id" db:"actor_id"`
	Action      Action         `json:"action" db:"action"`
	RoleID      id.RoleID      `json:"role_id" db:"role_id"`
	PrincipalID string         `json:"principal_id,omitempty" db:"principal_id"`
	Before      map[string]any `json:"before,omitempty" db:"before"`
	After       map[string]any `json:"after,omitempty" db:"after"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
}

// Clone returns a shallow copy of the entry with copied snapshot maps.
func (e *Entry) Clone() *Entry {
	c := *e
	c.Before = cloneSnapshot(e.Before)
	c.After = cloneSnapshot(e.After)
	return &c
}

func cloneSnapshot(s map[string]any) map[string]any {
	if s == nil {
		return nil
	}
	c := make(map[string]any, len(s))
	for k, v := range s {
		c[k] = v
	}
	return c
}

// QueryFilter contains filters for querying the audit trail.
type QueryFilter struct {
	ActorID     string     `json:"actor_id,omitempty"`
	Action      Action     `json:"action,omitempty"`
	RoleID      *id.RoleID `json:"role_id,omitempty"`
	PrincipalID string     `json:"principal_id,omitempty"`
	After       *time.Time `json:"after,omitempty"`
	Before      *time.Time `json:"before,omitempty"`
	Limit       int        `json:"limit,omitempty"`
	Offset      int        `json:"offset,omitempty"`
}
