package api

import (
	"errors"

	"github.com/xraph/forge"

	"github.com/meridianhq/aegis"
	"github.com/meridianhq/aegis/permission"
	"github.com/meridianhq/aegis/store"
)

// mapError maps domain errors to Forge HTTP errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return forge.NotFound(err.Error())
	}
	if errors.Is(err, aegis.ErrDuplicateRole) || errors.Is(err, aegis.ErrUnknownPermission) {
		return forge.BadRequest(err.Error())
	}
	if errors.Is(err, aegis.ErrSystemRoleImmutable) {
		return forge.BadRequest(err.Error())
	}
	if errors.Is(err, aegis.ErrAccessDenied) {
		return forge.Forbidden(err.Error())
	}
	return err
}

func isNotFound(err error) bool {
	return errors.Is(err, aegis.ErrRoleNotFound) ||
		errors.Is(err, aegis.ErrAssignmentNotFound) ||
		errors.Is(err, store.ErrNotFound)
}

func defaultLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}

// actorFrom resolves the acting identity for audited mutations.
// Priority: Forge user ID (from Authsome) → anonymous.
func actorFrom(ctx forge.Context) string {
	if userID := forge.UserIDFromContext(ctx.Context()); userID != "" {
		return userID
	}
	return "anonymous"
}

func permissionsFromBody(body []PermissionBody) []permission.Permission {
	perms := make([]permission.Permission, len(body))
	for i, b := range body {
		perms[i] = permission.Permission{
			Resource:   b.Resource,
			Action:     b.Action,
			Conditions: b.Conditions,
		}
	}
	return perms
}
