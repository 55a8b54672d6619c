package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/meridianhq/aegis/assignment"
	"github.com/meridianhq/aegis/audit"
	"github.com/meridianhq/aegis/id"
	"github.com/meridianhq/aegis/permission"
	"github.com/meridianhq/aegis/role"
	"github.com/meridianhq/aegis/store"
)

func testEntry(action audit.Action, roleID id.RoleID, principalID string) *audit.Entry {
	return &audit.Entry{
		ID:          id.NewAuditID(),
		ActorID:     "user_admin",
		Action:      action,
		RoleID:      roleID,
		PrincipalID: principalID,
		CreatedAt:   time.Now().UTC(),
	}
}

func testRole(name string) *role.Role {
	now := time.Now().UTC()
	return &role.Role{
		ID:          id.NewRoleID(),
		Name:        name,
		DisplayName: name,
		Origin:      role.OriginCustom,
		Permissions: []permission.Permission{
			{Resource: "orders", Action: "view"},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestRoleCRUD(t *testing.T) {
	ctx := context.Background()
	s := New()

	r := testRole("support")

	// Create
	if err := s.CreateRole(ctx, r, testEntry(audit.ActionCreateRole, r.ID, "")); err != nil {
		t.Fatal(err)
	}

	// Get
	got, err := s.GetRole(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "support" {
		t.Fatalf("expected support, got %s", got.Name)
	}

	// GetByName
	got, err = s.GetRoleByName(ctx, "support")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != r.ID {
		t.Fatal("name lookup mismatch")
	}

	// Update
	r.Description = "front-line support staff"
	if err := s.UpdateRole(ctx, r, testEntry(audit.ActionUpdateRole, r.ID, "")); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetRole(ctx, r.ID)
	if got.Description != "front-line support staff" {
		t.Fatal("update failed")
	}

	// List
	origin := role.OriginCustom
	list, _ := s.ListRoles(ctx, &role.ListFilter{Origin: &origin})
	if len(list) != 1 {
		t.Fatalf("expected 1 role, got %d", len(list))
	}

	// Count
	count, _ := s.CountRoles(ctx, nil)
	if count != 1 {
		t.Fatalf("expected count 1, got %d", count)
	}

	// Delete
	entries := []*audit.Entry{testEntry(audit.ActionDeleteRole, r.ID, "")}
	if err := s.DeleteRole(ctx, r.ID, entries); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetRole(ctx, r.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	// The name is free again.
	if _, err := s.GetRoleByName(ctx, "support"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateRoleDuplicateName(t *testing.T) {
	ctx := context.Background()
	s := New()

	r1 := testRole("auditor")
	if err := s.CreateRole(ctx, r1, testEntry(audit.ActionCreateRole, r1.ID, "")); err != nil {
		t.Fatal(err)
	}

	r2 := testRole("auditor")
	err := s.CreateRole(ctx, r2, testEntry(audit.ActionCreateRole, r2.ID, ""))
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestRoleSearchFilter(t *testing.T) {
	ctx := context.Background()
	s := New()

	for _, name := range []string{"store-manager", "shift-manager", "cashier"} {
		r := testRole(name)
		if err := s.CreateRole(ctx, r, testEntry(audit.ActionCreateRole, r.ID, "")); err != nil {
			t.Fatal(err)
		}
	}

	list, err := s.ListRoles(ctx, &role.ListFilter{Search: "manager"})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 roles, got %d", len(list))
	}
	// Sorted by name.
	if list[0].Name != "shift-manager" || list[1].Name != "store-manager" {
		t.Fatalf("unexpected order: %s, %s", list[0].Name, list[1].Name)
	}
}

func TestAssignmentLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	r := testRole("cashier")
	if err := s.CreateRole(ctx, r, testEntry(audit.ActionCreateRole, r.ID, "")); err != nil {
		t.Fatal(err)
	}

	a := &assignment.Assignment{
		ID:          id.NewAssignmentID(),
		RoleID:      r.ID,
		PrincipalID: "user_1",
		AssignedBy:  "user_admin",
		AssignedAt:  time.Now().UTC(),
	}
	if err := s.CreateAssignment(ctx, a, testEntry(audit.ActionAssignRole, r.ID, "user_1")); err != nil {
		t.Fatal(err)
	}

	// Duplicate create is a conflict.
	dup := a.Clone()
	dup.ID = id.NewAssignmentID()
	err := s.CreateAssignment(ctx, dup, testEntry(audit.ActionAssignRole, r.ID, "user_1"))
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	// Get
	got, err := s.GetAssignment(ctx, "user_1", r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != a.ID {
		t.Fatal("assignment mismatch")
	}

	// Hot-path read
	roleIDs, err := s.ListRolesForPrincipal(ctx, "user_1")
	if err != nil {
		t.Fatal(err)
	}
	if len(roleIDs) != 1 || roleIDs[0] != r.ID {
		t.Fatalf("unexpected roles: %v", roleIDs)
	}

	// By role
	byRole, _ := s.ListAssignmentsByRole(ctx, r.ID)
	if len(byRole) != 1 {
		t.Fatalf("expected 1 assignment, got %d", len(byRole))
	}

	// Delete
	if err := s.DeleteAssignment(ctx, "user_1", r.ID, testEntry(audit.ActionRevokeRole, r.ID, "user_1")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetAssignment(ctx, "user_1", r.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	roleIDs, _ = s.ListRolesForPrincipal(ctx, "user_1")
	if len(roleIDs) != 0 {
		t.Fatalf("expected no roles, got %v", roleIDs)
	}
}

func TestDeleteRoleCascadesAssignments(t *testing.T) {
	ctx := context.Background()
	s := New()

	r := testRole("temp")
	if err := s.CreateRole(ctx, r, testEntry(audit.ActionCreateRole, r.ID, "")); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{"user_1", "user_2"} {
		a := &assignment.Assignment{
			ID:          id.NewAssignmentID(),
			RoleID:      r.ID,
			PrincipalID: p,
			AssignedBy:  "user_admin",
			AssignedAt:  time.Now().UTC(),
		}
		if err := s.CreateAssignment(ctx, a, testEntry(audit.ActionAssignRole, r.ID, p)); err != nil {
			t.Fatal(err)
		}
	}

	entries := []*audit.Entry{
		testEntry(audit.ActionDeleteRole, r.ID, ""),
		testEntry(audit.ActionRevokeRole, r.ID, "user_1"),
		testEntry(audit.ActionRevokeRole, r.ID, "user_2"),
	}
	if err := s.DeleteRole(ctx, r.ID, entries); err != nil {
		t.Fatal(err)
	}

	for _, p := range []string{"user_1", "user_2"} {
		roleIDs, _ := s.ListRolesForPrincipal(ctx, p)
		if len(roleIDs) != 0 {
			t.Fatalf("expected cascade to remove assignments of %s", p)
		}
	}

	// All three audit entries landed with the delete.
	count, _ := s.CountAuditEntries(ctx, nil)
	if count != 6 { // 1 create + 2 assigns + 3 delete entries
		t.Fatalf("expected 6 audit entries, got %d", count)
	}
}

func TestAuditAppendOnlyOrder(t *testing.T) {
	ctx := context.Background()
	s := New()

	roleID := id.NewRoleID()
	first := testEntry(audit.ActionCreateRole, roleID, "")
	second := testEntry(audit.ActionAssignRole, roleID, "user_1")
	third := testEntry(audit.ActionRevokeRole, roleID, "user_1")
	for _, e := range []*audit.Entry{first, second, third} {
		if err := s.AppendAuditEntry(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := s.ListAuditEntries(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].ID != first.ID || entries[2].ID != third.ID {
		t.Fatal("entries not in insertion order")
	}

	// Get by ID
	got, err := s.GetAuditEntry(ctx, second.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Action != audit.ActionAssignRole {
		t.Fatalf("unexpected action %s", got.Action)
	}

	// Filter by action
	revokes, _ := s.ListAuditEntries(ctx, &audit.QueryFilter{Action: audit.ActionRevokeRole})
	if len(revokes) != 1 {
		t.Fatalf("expected 1 revoke entry, got %d", len(revokes))
	}

	// Filter by principal
	byPrincipal, _ := s.ListAuditEntries(ctx, &audit.QueryFilter{PrincipalID: "user_1"})
	if len(byPrincipal) != 2 {
		t.Fatalf("expected 2 entries for principal, got %d", len(byPrincipal))
	}
}

func TestAuditPagination(t *testing.T) {
	ctx := context.Background()
	s := New()

	roleID := id.NewRoleID()
	for i := 0; i < 5; i++ {
		if err := s.AppendAuditEntry(ctx, testEntry(audit.ActionAssignRole, roleID, "user_1")); err != nil {
			t.Fatal(err)
		}
	}

	page, err := s.ListAuditEntries(ctx, &audit.QueryFilter{Limit: 2, Offset: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(page))
	}

	past, _ := s.ListAuditEntries(ctx, &audit.QueryFilter{Offset: 10})
	if len(past) != 0 {
		t.Fatalf("expected empty page, got %d", len(past))
	}
}

func TestStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := New()

	r := testRole("viewer")
	if err := s.CreateRole(ctx, r, testEntry(audit.ActionCreateRole, r.ID, "")); err != nil {
		t.Fatal(err)
	}

	got, _ := s.GetRole(ctx, r.ID)
	got.Permissions[0].Resource = "mutated"

	again, _ := s.GetRole(ctx, r.ID)
	if again.Permissions[0].Resource != "orders" {
		t.Fatal("store leaked internal state")
	}
}
