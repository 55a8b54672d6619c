// Package store defines the aggregate persistence interface. Each subsystem
// (role, assignment, audit) defines its own store interface; the composite
// Store composes them all. A single backend (memory, postgres, sqlite,
// mongo) implements every one of them.
package store

import (
	"context"
	"errors"

	"github.com/meridianhq/aegis/assignment"
	"github.com/meridianhq/aegis/audit"
	"github.com/meridianhq/aegis/role"
)

// ErrNotFound is the shared sentinel every backend wraps when a requested
// entity does not exist. The engine distinguishes it from infrastructure
// failure: anything that is not ErrNotFound is treated as the store being
// unavailable, which on the check path resolves to a fail-closed deny.
var ErrNotFound = errors.New("store: not found")

// ErrConflict is wrapped by backends when an insert collides with an
// existing row on a unique key, such as a duplicate role name.
var ErrConflict = errors.New("store: conflict")

// Store is the aggregate persistence interface.
//
// The mutating operations of the role and assignment stores carry their
// audit entries; implementations must write mutation and entries as one
// atomic unit. The audit trail is append-only and is written only through
// those operations (plus AppendAuditEntry for re-affirmations).
type Store interface {
	role.Store
	assignment.Store
	audit.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
