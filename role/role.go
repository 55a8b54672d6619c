// Package role defines the Role entity and its store interface.
package role

import (
	"time"

	"github.com/meridianhq/aegis/id"
	"github.com/meridianhq/aegis/permission"
)

// Origin distinguishes built-in roles from operator-defined ones.
type Origin string

const (
	// OriginSystem marks a role defined at boot. Its permission set is
	// immutable at runtime; it changes only by redeploying with a new
	// definition.
	OriginSystem Origin = "system"

	// OriginCustom marks an administrator-created role whose permission
	// set may be edited.
	OriginCustom Origin = "custom"
)

// Role is a named, reusable bundle of permissions assignable to principals.
type Role struct {
	ID          id.RoleID               `json:"id" db:"id"`
	Name        string                  `json:"name" db:"name"`
	DisplayName string                  `json:"display_name" db:"display_name"`
	Description string                  `json:"description,omitempty" db:"description"`
	Origin      Origin                  `json:"origin" db:"origin"`
	Permissions []permission.Permission `json:"permissions" db:"-"`
	CreatedAt   time.Time               `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at" db:"updated_at"`
}

// IsSystem reports whether the role is system-defined.
func (r *Role) IsSystem() bool { return r.Origin == OriginSystem }

// Clone returns a deep copy of the role.
func (r *Role) Clone() *Role {
	c := *r
	c.Permissions = permission.CloneSet(r.Permissions)
	return &c
}

// ListFilter contains filters for listing roles.
type ListFilter struct {
	Origin *Origin `json:"origin,omitempty"`
	Search string  `json:"search,omitempty"`
	Limit  int     `json:"limit,omitempty"`
	Offset int     `json:"offset,omitempty"`
}
