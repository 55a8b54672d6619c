package audit

import (
	"context"

	"github.com/meridianhq/aegis/id"
)

// Store defines persistence operations for the audit trail. The trail is
// append-only: there is deliberately no update, delete, or purge operation.
//
// Most entries are written atomically with the mutation they document, via
// the role and assignment store operations. AppendAuditEntry exists for the
// one mutation with no accompanying record change: the idempotent
// re-affirmation of an already-held assignment.
type Store interface {
	// AppendAuditEntry persists a standalone audit entry.
	AppendAuditEntry(ctx context.Context, e *Entry) error

	// GetAuditEntry retrieves an audit entry by ID.
	GetAuditEntry(ctx context.Context, auditID id.AuditID) (*Entry, error)

	// ListAuditEntries returns entries matching the filter, oldest first.
	ListAuditEntries(ctx context.Context, filter *QueryFilter) ([]*Entry, error)

	// CountAuditEntries returns the number of entries matching the filter.
	CountAuditEntries(ctx context.Context, filter *QueryFilter) (int64, error)
}
