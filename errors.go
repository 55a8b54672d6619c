package aegis

import "errors"

var (
	// ErrAccessDenied is returned by Enforce when an authorization check
	// denies. Check and its variants never return it; denial there is a
	// Decision, not an error.
	ErrAccessDenied = errors.New("aegis: access denied")

	// ErrRoleNotFound is returned when a role cannot be found.
	ErrRoleNotFound = errors.New("aegis: role not found")

	// ErrDuplicateRole is returned when creating a role whose name is
	// already taken.
	ErrDuplicateRole = errors.New("aegis: role name already in use")

	// ErrUnknownPermission is returned when a role definition references a
	// (resource, action) pair outside the catalog.
	ErrUnknownPermission = errors.New("aegis: permission not in catalog")

	// ErrSystemRoleImmutable is returned when trying to modify or delete a
	// system role.
	ErrSystemRoleImmutable = errors.New("aegis: system role cannot be modified")

	// ErrAssignmentNotFound is returned when revoking a role the principal
	// does not hold.
	ErrAssignmentNotFound = errors.New("aegis: assignment not found")

	// ErrStoreUnavailable is returned when the backing store cannot be
	// reached or fails mid-operation. On the check path it accompanies a
	// denying decision.
	ErrStoreUnavailable = errors.New("aegis: store unavailable")
)
