package aegis

import "context"

// Cache stores resolved permission sets keyed by principal. A hit serves
// the whole check path without touching the store; any mutation affecting
// a principal's set invalidates that principal's entry before the mutation
// returns.
type Cache interface {
	// Get returns the cached permission set for a principal, if present
	// and not expired.
	Get(ctx context.Context, principalID string) ([]Grant, bool)

	// Set stores a principal's resolved permission set.
	Set(ctx context.Context, principalID string, grants []Grant)

	// Invalidate removes the cached set for a principal. Unknown
	// principals are a no-op.
	Invalidate(ctx context.Context, principalID string)
}
