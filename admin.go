package aegis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridianhq/aegis/assignment"
	"github.com/meridianhq/aegis/audit"
	"github.com/meridianhq/aegis/id"
	"github.com/meridianhq/aegis/permission"
	"github.com/meridianhq/aegis/role"
	"github.com/meridianhq/aegis/store"
)

// systemActor is the reserved actor recorded on audit entries produced by
// the engine itself, such as system role seeding.
const systemActor = "system"

// CreateRoleInput describes a custom role to create.
type CreateRoleInput struct {
	Name        string
	DisplayName string
	Description string
	Permissions []permission.Permission
}

// UpdateRoleInput carries partial updates to a custom role. Nil fields are
// left unchanged. The role name is immutable.
type UpdateRoleInput struct {
	DisplayName *string
	Description *string
	Permissions []permission.Permission
}

// CreateCustomRole creates a custom role. Every permission must come from
// the catalog and the name must not be taken. The creation is recorded in
// the audit trail attributed to actorID.
func (e *Engine) CreateCustomRole(ctx context.Context, actorID string, in CreateRoleInput) (*role.Role, error) {
	if in.Name == "" {
		return nil, errors.New("aegis: role name is required")
	}
	if err := e.validatePermissions(in.Permissions); err != nil {
		return nil, err
	}

	unlock := e.locks.lock(roleNameKey(in.Name))
	defer unlock()

	if _, err := e.store.GetRoleByName(ctx, in.Name); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateRole, in.Name)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, storeErr(err)
	}

	now := time.Now().UTC()
	r := &role.Role{
		ID:          id.NewRoleID(),
		Name:        in.Name,
		DisplayName: in.DisplayName,
		Description: in.Description,
		Origin:      role.OriginCustom,
		Permissions: permission.Dedupe(in.Permissions),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if r.DisplayName == "" {
		r.DisplayName = r.Name
	}

	entry := newEntry(actorID, audit.ActionCreateRole, r.ID, "", nil, roleSnapshot(r))
	if err := e.store.CreateRole(ctx, r, entry); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRole, in.Name)
		}
		return nil, storeErr(err)
	}

	if e.plugins != nil {
		e.plugins.EmitRoleCreated(ctx, r)
		e.plugins.EmitAuditRecorded(ctx, entry)
	}
	return r.Clone(), nil
}

// UpdateCustomRole updates a custom role's display name, description, or
// permission set. System roles are immutable. Cached permission sets of
// every principal holding the role are invalidated before returning, so
// the change takes effect on the next check.
func (e *Engine) UpdateCustomRole(ctx context.Context, actorID string, roleID id.RoleID, in UpdateRoleInput) (*role.Role, error) {
	if in.Permissions != nil {
		if err := e.validatePermissions(in.Permissions); err != nil {
			return nil, err
		}
	}

	unlock := e.locks.lock(roleKey(roleID.String()))
	defer unlock()

	r, err := e.store.GetRole(ctx, roleID)
	if err != nil {
		return nil, mapRoleErr(err, roleID)
	}
	if r.IsSystem() {
		return nil, fmt.Errorf("%w: %s", ErrSystemRoleImmutable, r.Name)
	}

	before := roleSnapshot(r)
	if in.DisplayName != nil {
		r.DisplayName = *in.DisplayName
	}
	if in.Description != nil {
		r.Description = *in.Description
	}
	if in.Permissions != nil {
		r.Permissions = permission.Dedupe(in.Permissions)
	}
	r.UpdatedAt = time.Now().UTC()

	entry := newEntry(actorID, audit.ActionUpdateRole, r.ID, "", before, roleSnapshot(r))
	if err := e.store.UpdateRole(ctx, r, entry); err != nil {
		return nil, storeErr(err)
	}

	e.invalidateHolders(ctx, roleID)
	if e.plugins != nil {
		e.plugins.EmitRoleUpdated(ctx, r)
		e.plugins.EmitAuditRecorded(ctx, entry)
	}
	return r.Clone(), nil
}

// DeleteCustomRole deletes a custom role and every assignment referencing
// it, in one atomic unit. Each cascaded revocation produces its own audit
// entry alongside the deletion entry. System roles cannot be deleted.
func (e *Engine) DeleteCustomRole(ctx context.Context, actorID string, roleID id.RoleID) error {
	unlock := e.locks.lock(roleKey(roleID.String()))
	defer unlock()

	r, err := e.store.GetRole(ctx, roleID)
	if err != nil {
		return mapRoleErr(err, roleID)
	}
	if r.IsSystem() {
		return fmt.Errorf("%w: %s", ErrSystemRoleImmutable, r.Name)
	}

	asgs, err := e.store.ListAssignmentsByRole(ctx, roleID)
	if err != nil {
		return storeErr(err)
	}

	entries := make([]*audit.Entry, 0, len(asgs)+1)
	entries = append(entries, newEntry(actorID, audit.ActionDeleteRole, roleID, "", roleSnapshot(r), nil))
	for _, a := range asgs {
		entries = append(entries, newEntry(actorID, audit.ActionRevokeRole, roleID, a.PrincipalID, assignmentSnapshot(a), nil))
	}

	if err := e.store.DeleteRole(ctx, roleID, entries); err != nil {
		return storeErr(err)
	}

	for _, a := range asgs {
		e.invalidatePrincipal(ctx, a.PrincipalID)
	}
	if e.plugins != nil {
		e.plugins.EmitRoleDeleted(ctx, roleID)
		for _, a := range asgs {
			e.plugins.EmitRoleRevoked(ctx, a)
		}
		for _, en := range entries {
			e.plugins.EmitAuditRecorded(ctx, en)
		}
	}
	return nil
}

// AssignRole grants a role to a principal. Assigning an already held role
// is not an error: no second assignment is created, but the re-affirmation
// is still recorded in the audit trail.
func (e *Engine) AssignRole(ctx context.Context, actorID, principalID string, roleID id.RoleID) (*assignment.Assignment, error) {
	unlockRole := e.locks.lock(roleKey(roleID.String()))
	defer unlockRole()
	unlockPrincipal := e.locks.lock(principalKey(principalID))
	defer unlockPrincipal()

	if _, err := e.store.GetRole(ctx, roleID); err != nil {
		return nil, mapRoleErr(err, roleID)
	}

	existing, err := e.store.GetAssignment(ctx, principalID, roleID)
	switch {
	case err == nil:
		// Already held; record the re-affirmation only.
		entry := newEntry(actorID, audit.ActionAssignRole, roleID, principalID, nil, assignmentSnapshot(existing))
		if err := e.store.AppendAuditEntry(ctx, entry); err != nil {
			return nil, storeErr(err)
		}
		if e.plugins != nil {
			e.plugins.EmitAuditRecorded(ctx, entry)
		}
		return existing.Clone(), nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, storeErr(err)
	}

	a := &assignment.Assignment{
		ID:          id.NewAssignmentID(),
		RoleID:      roleID,
		PrincipalID: principalID,
		AssignedBy:  actorID,
		AssignedAt:  time.Now().UTC(),
	}
	entry := newEntry(actorID, audit.ActionAssignRole, roleID, principalID, nil, assignmentSnapshot(a))
	if err := e.store.CreateAssignment(ctx, a, entry); err != nil {
		return nil, storeErr(err)
	}

	e.invalidatePrincipal(ctx, principalID)
	if e.plugins != nil {
		e.plugins.EmitRoleAssigned(ctx, a)
		e.plugins.EmitAuditRecorded(ctx, entry)
	}
	return a.Clone(), nil
}

// RevokeRole removes a role from a principal. Revoking a role the
// principal does not hold returns ErrAssignmentNotFound.
func (e *Engine) RevokeRole(ctx context.Context, actorID, principalID string, roleID id.RoleID) error {
	unlockRole := e.locks.lock(roleKey(roleID.String()))
	defer unlockRole()
	unlockPrincipal := e.locks.lock(principalKey(principalID))
	defer unlockPrincipal()

	existing, err := e.store.GetAssignment(ctx, principalID, roleID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: principal %s role %s", ErrAssignmentNotFound, principalID, roleID)
		}
		return storeErr(err)
	}

	entry := newEntry(actorID, audit.ActionRevokeRole, roleID, principalID, assignmentSnapshot(existing), nil)
	if err := e.store.DeleteAssignment(ctx, principalID, roleID, entry); err != nil {
		return storeErr(err)
	}

	e.invalidatePrincipal(ctx, principalID)
	if e.plugins != nil {
		e.plugins.EmitRoleRevoked(ctx, existing)
		e.plugins.EmitAuditRecorded(ctx, entry)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Reads
// ──────────────────────────────────────────────────

// Role returns a role by ID.
func (e *Engine) Role(ctx context.Context, roleID id.RoleID) (*role.Role, error) {
	r, err := e.store.GetRole(ctx, roleID)
	if err != nil {
		return nil, mapRoleErr(err, roleID)
	}
	return r, nil
}

// RoleByName returns a role by its unique name.
func (e *Engine) RoleByName(ctx context.Context, name string) (*role.Role, error) {
	r, err := e.store.GetRoleByName(ctx, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRoleNotFound, name)
		}
		return nil, storeErr(err)
	}
	return r, nil
}

// Roles lists roles matching the filter. A nil filter lists everything.
func (e *Engine) Roles(ctx context.Context, filter *role.ListFilter) ([]*role.Role, error) {
	roles, err := e.store.ListRoles(ctx, filter)
	if err != nil {
		return nil, storeErr(err)
	}
	return roles, nil
}

// RolesOf returns the roles currently held by a principal.
func (e *Engine) RolesOf(ctx context.Context, principalID string) ([]*role.Role, error) {
	roleIDs, err := e.store.ListRolesForPrincipal(ctx, principalID)
	if err != nil {
		return nil, storeErr(err)
	}
	roles := make([]*role.Role, 0, len(roleIDs))
	for _, rid := range roleIDs {
		r, err := e.store.GetRole(ctx, rid)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, storeErr(err)
		}
		roles = append(roles, r)
	}
	return roles, nil
}

// Assignments lists role assignments matching the filter.
func (e *Engine) Assignments(ctx context.Context, filter *assignment.ListFilter) ([]*assignment.Assignment, error) {
	asgs, err := e.store.ListAssignments(ctx, filter)
	if err != nil {
		return nil, storeErr(err)
	}
	return asgs, nil
}

// AuditLog lists audit entries matching the filter, oldest first.
func (e *Engine) AuditLog(ctx context.Context, filter *audit.QueryFilter) ([]*audit.Entry, error) {
	entries, err := e.store.ListAuditEntries(ctx, filter)
	if err != nil {
		return nil, storeErr(err)
	}
	return entries, nil
}

// ──────────────────────────────────────────────────
// System role seeding
// ──────────────────────────────────────────────────

func (e *Engine) seedSystemRole(ctx context.Context, def SystemRole) error {
	if def.Name == "" {
		return errors.New("system role name is required")
	}
	if err := e.validatePermissions(def.Permissions); err != nil {
		return err
	}

	unlock := e.locks.lock(roleNameKey(def.Name))
	defer unlock()

	existing, err := e.store.GetRoleByName(ctx, def.Name)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return storeErr(err)
		}
		now := time.Now().UTC()
		r := &role.Role{
			ID:          id.NewRoleID(),
			Name:        def.Name,
			DisplayName: def.DisplayName,
			Description: def.Description,
			Origin:      role.OriginSystem,
			Permissions: permission.Dedupe(def.Permissions),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if r.DisplayName == "" {
			r.DisplayName = r.Name
		}
		entry := newEntry(systemActor, audit.ActionCreateRole, r.ID, "", nil, roleSnapshot(r))
		if err := e.store.CreateRole(ctx, r, entry); err != nil {
			return storeErr(err)
		}
		return nil
	}

	if !existing.IsSystem() {
		return fmt.Errorf("name %q is taken by a custom role", def.Name)
	}

	// Converge a drifted definition.
	desired := permission.Dedupe(def.Permissions)
	displayName := def.DisplayName
	if displayName == "" {
		displayName = def.Name
	}
	if existing.DisplayName == displayName &&
		existing.Description == def.Description &&
		samePermissions(existing.Permissions, desired) {
		return nil
	}

	before := roleSnapshot(existing)
	existing.DisplayName = displayName
	existing.Description = def.Description
	existing.Permissions = desired
	existing.UpdatedAt = time.Now().UTC()

	entry := newEntry(systemActor, audit.ActionUpdateRole, existing.ID, "", before, roleSnapshot(existing))
	if err := e.store.UpdateRole(ctx, existing, entry); err != nil {
		return storeErr(err)
	}
	e.invalidateHolders(ctx, existing.ID)
	return nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func (e *Engine) validatePermissions(perms []permission.Permission) error {
	for _, p := range perms {
		if !e.catalog.Known(p.Resource, p.Action) {
			return fmt.Errorf("%w: %s", ErrUnknownPermission, p.Key())
		}
	}
	return nil
}

// invalidateHolders drops the cached permission set of every principal
// holding the role. A listing failure leaves stale entries behind until
// the TTL; it is logged but does not fail the mutation, which is already
// persisted.
func (e *Engine) invalidateHolders(ctx context.Context, roleID id.RoleID) {
	if e.cache == nil {
		return
	}
	asgs, err := e.store.ListAssignmentsByRole(ctx, roleID)
	if err != nil {
		e.logger.Warn("could not list role holders for cache invalidation",
			slog.String("role_id", roleID.String()),
			slog.Any("error", err))
		return
	}
	for _, a := range asgs {
		e.invalidatePrincipal(ctx, a.PrincipalID)
	}
}

func newEntry(actorID string, action audit.Action, roleID id.RoleID, principalID string, before, after map[string]any) *audit.Entry {
	return &audit.Entry{
		ID:          id.NewAuditID(),
		ActorID:     actorID,
		Action:      action,
		RoleID:      roleID,
		PrincipalID: principalID,
		Before:      before,
		After:       after,
		CreatedAt:   time.Now().UTC(),
	}
}

func roleSnapshot(r *role.Role) map[string]any {
	perms := make([]any, len(r.Permissions))
	for i, p := range r.Permissions {
		m := map[string]any{"resource": p.Resource, "action": p.Action}
		if len(p.Conditions) > 0 {
			conds := make(map[string]any, len(p.Conditions))
			for k, v := range p.Conditions {
				conds[k] = v
			}
			m["conditions"] = conds
		}
		perms[i] = m
	}
	return map[string]any{
		"name":         r.Name,
		"display_name": r.DisplayName,
		"description":  r.Description,
		"origin":       string(r.Origin),
		"permissions":  perms,
	}
}

func assignmentSnapshot(a *assignment.Assignment) map[string]any {
	return map[string]any{
		"role_id":      a.RoleID.String(),
		"principal_id": a.PrincipalID,
		"assigned_by":  a.AssignedBy,
		"assigned_at":  a.AssignedAt.Format(time.RFC3339Nano),
	}
}

func samePermissions(a, b []permission.Permission) bool {
	if len(a) != len(b) {
		return false
	}
	keys := make(map[string]struct{}, len(a))
	for _, p := range a {
		keys[grantKey(p)] = struct{}{}
	}
	for _, p := range b {
		if _, ok := keys[grantKey(p)]; !ok {
			return false
		}
	}
	return true
}

func mapRoleErr(err error, roleID id.RoleID) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrRoleNotFound, roleID)
	}
	return storeErr(err)
}

func storeErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
