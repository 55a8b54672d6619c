package aegis

import (
	"context"
	"errors"
	"testing"

	"github.com/meridianhq/aegis/audit"
	"github.com/meridianhq/aegis/permission"
	"github.com/meridianhq/aegis/role"
)

func TestCreateCustomRoleValidation(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	// Unknown permission is rejected up front.
	_, err := eng.CreateCustomRole(ctx, "user_admin", CreateRoleInput{
		Name: "bad",
		Permissions: []permission.Permission{
			{Resource: "spaceships", Action: "launch"},
		},
	})
	if !errors.Is(err, ErrUnknownPermission) {
		t.Fatalf("expected ErrUnknownPermission, got %v", err)
	}

	// Missing name.
	if _, err := eng.CreateCustomRole(ctx, "user_admin", CreateRoleInput{}); err == nil {
		t.Fatal("expected error for empty name")
	}

	// Duplicate name.
	if _, err := eng.CreateCustomRole(ctx, "user_admin", CreateRoleInput{Name: "clerk"}); err != nil {
		t.Fatal(err)
	}
	_, err = eng.CreateCustomRole(ctx, "user_admin", CreateRoleInput{Name: "clerk"})
	if !errors.Is(err, ErrDuplicateRole) {
		t.Fatalf("expected ErrDuplicateRole, got %v", err)
	}
}

func TestCreateCustomRoleDedupesPermissions(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	r, err := eng.CreateCustomRole(ctx, "user_admin", CreateRoleInput{
		Name: "viewer",
		Permissions: []permission.Permission{
			{Resource: "orders", Action: "view"},
			{Resource: "orders", Action: "view"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Permissions) != 1 {
		t.Fatalf("expected 1 permission after dedupe, got %d", len(r.Permissions))
	}
}

func TestSystemRoleImmutable(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t, WithSystemRoles(SystemRole{
		Name: "superadmin",
		Permissions: []permission.Permission{
			{Resource: "orders", Action: "delete"},
		},
	}))
	if err := eng.Start(ctx); err != nil {
		t.Fatal(err)
	}

	r, err := eng.RoleByName(ctx, "superadmin")
	if err != nil {
		t.Fatal(err)
	}
	if !r.IsSystem() {
		t.Fatal("seeded role should be a system role")
	}

	desc := "nope"
	_, err = eng.UpdateCustomRole(ctx, "user_admin", r.ID, UpdateRoleInput{Description: &desc})
	if !errors.Is(err, ErrSystemRoleImmutable) {
		t.Fatalf("expected ErrSystemRoleImmutable on update, got %v", err)
	}

	err = eng.DeleteCustomRole(ctx, "user_admin", r.ID)
	if !errors.Is(err, ErrSystemRoleImmutable) {
		t.Fatalf("expected ErrSystemRoleImmutable on delete, got %v", err)
	}

	// But the role still participates in checks like any other.
	if _, err := eng.AssignRole(ctx, "user_admin", "user_1", r.ID); err != nil {
		t.Fatal(err)
	}
	if d, _ := eng.Check(ctx, "user_1", "orders", "delete", nil); !d.Allowed {
		t.Fatal("expected system role to grant access")
	}
}

func TestSystemRoleSeedingIsIdempotentAndConverges(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t, WithSystemRoles(SystemRole{
		Name: "auditor",
		Permissions: []permission.Permission{
			{Resource: "reports", Action: "view"},
		},
	}))
	if err := eng.Start(ctx); err != nil {
		t.Fatal(err)
	}
	first, err := eng.RoleByName(ctx, "auditor")
	if err != nil {
		t.Fatal(err)
	}

	// A second start with the same definition changes nothing.
	if err := eng.Start(ctx); err != nil {
		t.Fatal(err)
	}
	entries, err := eng.AuditLog(ctx, &audit.QueryFilter{Action: audit.ActionCreateRole})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected a single seed entry, got %d", len(entries))
	}
	if entries[0].ActorID != "system" {
		t.Fatalf("seed entry should be attributed to system, got %s", entries[0].ActorID)
	}

	// A drifted definition converges via an audited update.
	eng.systemRoles[0].Permissions = append(eng.systemRoles[0].Permissions,
		permission.Permission{Resource: "reports", Action: "export"})
	if err := eng.Start(ctx); err != nil {
		t.Fatal(err)
	}
	updated, err := eng.Role(ctx, first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(updated.Permissions) != 2 {
		t.Fatalf("expected converged role to have 2 permissions, got %d", len(updated.Permissions))
	}
}

func TestAssignRoleIdempotent(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	r, err := eng.CreateCustomRole(ctx, "user_admin", CreateRoleInput{Name: "clerk"})
	if err != nil {
		t.Fatal(err)
	}

	first, err := eng.AssignRole(ctx, "user_admin", "user_1", r.ID)
	if err != nil {
		t.Fatal(err)
	}
	second, err := eng.AssignRole(ctx, "user_other", "user_1", r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Fatal("re-assignment must return the existing assignment")
	}

	// One assignment record.
	asgs, err := eng.Assignments(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(asgs) != 1 {
		t.Fatalf("expected 1 assignment, got %d", len(asgs))
	}
	if asgs[0].AssignedBy != "user_admin" {
		t.Fatalf("original attribution must survive re-assignment, got %s", asgs[0].AssignedBy)
	}

	// Two audit entries: the grant and the re-affirmation.
	entries, err := eng.AuditLog(ctx, &audit.QueryFilter{Action: audit.ActionAssignRole})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 assign entries, got %d", len(entries))
	}
	if entries[1].ActorID != "user_other" {
		t.Fatalf("re-affirmation should carry its own actor, got %s", entries[1].ActorID)
	}
}

func TestAssignRoleUnknownRole(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	r, _ := eng.CreateCustomRole(ctx, "user_admin", CreateRoleInput{Name: "ghost"})
	if err := eng.DeleteCustomRole(ctx, "user_admin", r.ID); err != nil {
		t.Fatal(err)
	}

	_, err := eng.AssignRole(ctx, "user_admin", "user_1", r.ID)
	if !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}
}

func TestRevokeUnheldRole(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	r, err := eng.CreateCustomRole(ctx, "user_admin", CreateRoleInput{Name: "clerk"})
	if err != nil {
		t.Fatal(err)
	}

	err = eng.RevokeRole(ctx, "user_admin", "user_1", r.ID)
	if !errors.Is(err, ErrAssignmentNotFound) {
		t.Fatalf("expected ErrAssignmentNotFound, got %v", err)
	}
}

func TestDeleteRoleCascades(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	r, err := eng.CreateCustomRole(ctx, "user_admin", CreateRoleInput{
		Name: "temp",
		Permissions: []permission.Permission{
			{Resource: "orders", Action: "view"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{"user_1", "user_2"} {
		if _, err := eng.AssignRole(ctx, "user_admin", p, r.ID); err != nil {
			t.Fatal(err)
		}
	}

	// Warm both caches.
	for _, p := range []string{"user_1", "user_2"} {
		if d, _ := eng.Check(ctx, p, "orders", "view", nil); !d.Allowed {
			t.Fatalf("expected allow for %s before delete", p)
		}
	}

	if err := eng.DeleteCustomRole(ctx, "user_admin", r.ID); err != nil {
		t.Fatal(err)
	}

	// Access is gone immediately, for every holder.
	for _, p := range []string{"user_1", "user_2"} {
		d, err := eng.Check(ctx, p, "orders", "view", nil)
		if err != nil {
			t.Fatal(err)
		}
		if d.Allowed {
			t.Fatalf("expected deny for %s after role delete", p)
		}
	}

	// The role itself is gone.
	if _, err := eng.Role(ctx, r.ID); !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}

	// The cascade is fully audited: one delete plus one revoke per holder.
	if entries, _ := eng.AuditLog(ctx, &audit.QueryFilter{Action: audit.ActionDeleteRole}); len(entries) != 1 {
		t.Fatalf("expected 1 delete entry, got %d", len(entries))
	}
	revokes, _ := eng.AuditLog(ctx, &audit.QueryFilter{Action: audit.ActionRevokeRole})
	if len(revokes) != 2 {
		t.Fatalf("expected 2 cascade revoke entries, got %d", len(revokes))
	}
	for _, en := range revokes {
		if en.ActorID != "user_admin" {
			t.Fatalf("cascade revokes should carry the deleting actor, got %s", en.ActorID)
		}
		if en.PrincipalID == "" {
			t.Fatal("cascade revoke must name the affected principal")
		}
	}
}

func TestAuditTrailSnapshots(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	r, err := eng.CreateCustomRole(ctx, "user_admin", CreateRoleInput{
		Name: "clerk",
		Permissions: []permission.Permission{
			{Resource: "orders", Action: "view"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	desc := "order entry clerk"
	if _, err := eng.UpdateCustomRole(ctx, "user_admin", r.ID, UpdateRoleInput{Description: &desc}); err != nil {
		t.Fatal(err)
	}

	entries, err := eng.AuditLog(ctx, &audit.QueryFilter{RoleID: &r.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	created := entries[0]
	if created.Action != audit.ActionCreateRole {
		t.Fatalf("expected create first, got %s", created.Action)
	}
	if created.Before != nil {
		t.Fatal("create entry must have no before state")
	}
	if created.After["name"] != "clerk" {
		t.Fatalf("create entry after snapshot missing name: %v", created.After)
	}

	updated := entries[1]
	if updated.Action != audit.ActionUpdateRole {
		t.Fatalf("expected update second, got %s", updated.Action)
	}
	if updated.Before["description"] != "" || updated.After["description"] != desc {
		t.Fatalf("update entry snapshots wrong: before=%v after=%v", updated.Before, updated.After)
	}
}

func TestRolesOfAndListFilters(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t, WithSystemRoles(SystemRole{Name: "root"}))
	if err := eng.Start(ctx); err != nil {
		t.Fatal(err)
	}

	clerk, err := eng.CreateCustomRole(ctx, "user_admin", CreateRoleInput{Name: "clerk"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.AssignRole(ctx, "user_admin", "user_1", clerk.ID); err != nil {
		t.Fatal(err)
	}

	held, err := eng.RolesOf(ctx, "user_1")
	if err != nil {
		t.Fatal(err)
	}
	if len(held) != 1 || held[0].Name != "clerk" {
		t.Fatalf("unexpected held roles: %v", held)
	}

	custom := role.OriginCustom
	customRoles, err := eng.Roles(ctx, &role.ListFilter{Origin: &custom})
	if err != nil {
		t.Fatal(err)
	}
	if len(customRoles) != 1 {
		t.Fatalf("expected 1 custom role, got %d", len(customRoles))
	}

	system := role.OriginSystem
	systemRoles, err := eng.Roles(ctx, &role.ListFilter{Origin: &system})
	if err != nil {
		t.Fatal(err)
	}
	if len(systemRoles) != 1 || systemRoles[0].Name != "root" {
		t.Fatalf("unexpected system roles: %v", systemRoles)
	}
}
