// Package assignment defines the Assignment entity (role→principal binding).
package assignment

import (
	"time"

	"github.com/meridianhq/aegis/id"
)

// Assignment binds a role to a principal. The (PrincipalID, RoleID) pair is
// unique: re-assigning a held role never produces a second record.
type Assignment struct {
	ID          id.AssignmentID `json:"id" db:"id"`
	RoleID      id.RoleID       `json:"role_id" db:"role_id"`
	PrincipalID string          `json:"principal_id" db:"principal_id"`
	AssignedBy  string          `json:"assigned_by" db:"assigned_by"`
	AssignedAt  time.Time       `json:"assigned_at" db:"assigned_at"`
}

// Clone returns a copy of the assignment.
func (a *Assignment) Clone() *Assignment {
	c := *a
	return &c
}

// ListFilter contains filters for listing assignments.
type ListFilter struct {
	PrincipalID string     `json:"principal_id,omitempty"`
	RoleID      *id.RoleID `json:"role_id,omitempty"`
	AssignedBy  string     `json:"assigned_by,omitempty"`
	Limit       int        `json:"limit,omitempty"`
	Offset      int        `json:"offset,omitempty"`
}
