// Package plugin defines the plugin system for Aegis.
// Plugins are notified of lifecycle events (check performed, role created,
// role assigned, etc.) and can react — logging, metrics, tracing, etc.
//
// Each lifecycle hook is a separate interface so plugins opt in only
// to the events they care about.
package plugin

import (
	"context"

	"github.com/meridianhq/aegis/assignment"
	"github.com/meridianhq/aegis/audit"
	"github.com/meridianhq/aegis/id"
	"github.com/meridianhq/aegis/role"
)

// Plugin is the base interface all plugins must implement.
type Plugin interface {
	// Name returns a unique human-readable name for the plugin.
	Name() string
}

// ──────────────────────────────────────────────────
// Check lifecycle hooks
// ──────────────────────────────────────────────────

// AfterCheck is called after an authorization check completes.
// The decision parameter is *aegis.Decision (passed as any to avoid an
// import cycle).
type AfterCheck interface {
	OnAfterCheck(ctx context.Context, principalID string, decision any) error
}

// ──────────────────────────────────────────────────
// Role lifecycle hooks
// ──────────────────────────────────────────────────

// RoleCreated is called after a role is created.
type RoleCreated interface {
	OnRoleCreated(ctx context.Context, r *role.Role) error
}

// RoleUpdated is called after a role is updated.
type RoleUpdated interface {
	OnRoleUpdated(ctx context.Context, r *role.Role) error
}

// RoleDeleted is called after a role is deleted.
type RoleDeleted interface {
	OnRoleDeleted(ctx context.Context, roleID id.RoleID) error
}

// ──────────────────────────────────────────────────
// Assignment lifecycle hooks
// ──────────────────────────────────────────────────

// RoleAssigned is called after a role is assigned to a principal.
type RoleAssigned interface {
	OnRoleAssigned(ctx context.Context, a *assignment.Assignment) error
}

// RoleRevoked is called after a role is revoked from a principal.
type RoleRevoked interface {
	OnRoleRevoked(ctx context.Context, a *assignment.Assignment) error
}

// ──────────────────────────────────────────────────
// Audit hook
// ──────────────────────────────────────────────────

// AuditRecorded is called after an audit entry is persisted. It gives
// plugins a live feed of the trail for shipping to external sinks.
type AuditRecorded interface {
	OnAuditRecorded(ctx context.Context, entry *audit.Entry) error
}

// ──────────────────────────────────────────────────
// Shutdown hook
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
