// Package aegis provides role-based authorization for Go.
//
// Aegis decides, for an already-authenticated principal and a requested
// (resource, action) pair, whether the request is allowed, attributing the
// decision to the role that granted it, and records every role and
// assignment mutation in an append-only audit trail. Principals may hold
// many roles; the effective permission set is the union of all held roles'
// permissions. There is no explicit deny and no role precedence: broader
// access from one role is never narrowed by another.
//
//	eng, err := aegis.NewEngine(
//	    aegis.WithStore(memStore),
//	    aegis.WithCatalog(cat),
//	)
//	decision, err := eng.Check(ctx, "user_123", "orders", "update",
//	    map[string]string{"branch": "cairo"})
//
// Denial is an expected outcome, not an error: a principal with no roles,
// an unrecognized (resource, action), or a non-matching condition all yield
// Decision.Allowed == false with a nil error. The check path returns an
// error only when the backing store fails, and then always alongside a
// denying decision: the engine never grants access because it could not
// determine denial.
package aegis

import (
	"time"

	"github.com/meridianhq/aegis/id"
	"github.com/meridianhq/aegis/permission"
)

// Decision is the outcome of a single authorization check. It is produced
// fresh per call and never persisted.
type Decision struct {
	Allowed  bool   `json:"allowed"`
	Resource string `json:"resource"`
	Action   string `json:"action"`

	// DecidingRole identifies a role whose permission satisfied the
	// request; the nil ID when denied. When several held roles would each
	// satisfy the request, which one is attributed is unspecified, so
	// callers must treat this as diagnostic information only.
	DecidingRole id.RoleID `json:"deciding_role,omitempty"`

	EvaluatedAt time.Time `json:"evaluated_at"`
}

// Requirement names one (resource, action) pair for CheckAny / CheckAll.
type Requirement struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

// Grant is one element of a principal's resolved permission set: a
// permission together with the role that contributed it. The role is kept
// for decision attribution.
type Grant struct {
	Role       id.RoleID             `json:"role"`
	Permission permission.Permission `json:"permission"`
}
