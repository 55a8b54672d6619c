package aegis

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/meridianhq/aegis/catalog"
	"github.com/meridianhq/aegis/id"
	"github.com/meridianhq/aegis/permission"
	"github.com/meridianhq/aegis/store/memory"
)

func newTestCatalog() *catalog.Catalog {
	return catalog.MustNew(
		catalog.Resource{Name: "orders", Actions: []string{"view", "create", "update", "delete"}},
		catalog.Resource{Name: "reports", Actions: []string{"view", "export"}},
		catalog.Resource{Name: "registers", Actions: []string{"open", "close"}},
	)
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *memory.Store) {
	t.Helper()
	s := memory.New()
	eng, err := NewEngine(append([]Option{
		WithStore(s),
		WithCatalog(newTestCatalog()),
	}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	return eng, s
}

func TestNewEngine_RequiresStore(t *testing.T) {
	_, err := NewEngine(WithCatalog(newTestCatalog()))
	if err == nil {
		t.Fatal("expected error when store is nil")
	}
}

func TestNewEngine_RequiresCatalog(t *testing.T) {
	_, err := NewEngine(WithStore(memory.New()))
	if err == nil {
		t.Fatal("expected error when catalog is nil")
	}
}

func TestCheckDeniesPrincipalWithNoRoles(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	d, err := eng.Check(ctx, "user_nobody", "orders", "view", nil)
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed {
		t.Fatal("expected deny for principal with no roles")
	}
	if !d.DecidingRole.IsNil() {
		t.Fatal("denied decision must not carry a deciding role")
	}
}

func TestCheckAllowsUnconditionedPermission(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	r, err := eng.CreateCustomRole(ctx, "user_admin", CreateRoleInput{
		Name: "order-viewer",
		Permissions: []permission.Permission{
			{Resource: "orders", Action: "view"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.AssignRole(ctx, "user_admin", "user_1", r.ID); err != nil {
		t.Fatal(err)
	}

	// Matches with no request context.
	d, err := eng.Check(ctx, "user_1", "orders", "view", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed {
		t.Fatal("expected allow")
	}
	if d.DecidingRole != r.ID {
		t.Fatalf("expected deciding role %s, got %s", r.ID, d.DecidingRole)
	}

	// And with an arbitrary context: an unconditioned permission ignores it.
	d, err = eng.Check(ctx, "user_1", "orders", "view", map[string]string{"branch": "giza"})
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed {
		t.Fatal("expected allow regardless of context")
	}
}

func TestCheckDeniesUnknownCatalogPair(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	d, err := eng.Check(ctx, "user_1", "orders", "fly", nil)
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed {
		t.Fatal("expected deny for action outside catalog")
	}
}

func TestCheckConditionMatching(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	r, err := eng.CreateCustomRole(ctx, "user_admin", CreateRoleInput{
		Name: "cairo-updater",
		Permissions: []permission.Permission{
			{Resource: "orders", Action: "update", Conditions: map[string]string{"branch": "cairo"}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.AssignRole(ctx, "user_admin", "user_1", r.ID); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name    string
		reqCtx  map[string]string
		allowed bool
	}{
		{"matching branch", map[string]string{"branch": "cairo"}, true},
		{"wrong branch", map[string]string{"branch": "giza"}, false},
		{"missing attribute", map[string]string{"region": "north"}, false},
		{"no context", nil, false},
		{"extra attributes ignored", map[string]string{"branch": "cairo", "shift": "night"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := eng.Check(ctx, "user_1", "orders", "update", tc.reqCtx)
			if err != nil {
				t.Fatal(err)
			}
			if d.Allowed != tc.allowed {
				t.Fatalf("expected allowed=%v, got %v", tc.allowed, d.Allowed)
			}
		})
	}
}

func TestUnionAcrossRoles(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	viewer, err := eng.CreateCustomRole(ctx, "user_admin", CreateRoleInput{
		Name: "viewer",
		Permissions: []permission.Permission{
			{Resource: "orders", Action: "view"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	exporter, err := eng.CreateCustomRole(ctx, "user_admin", CreateRoleInput{
		Name: "exporter",
		Permissions: []permission.Permission{
			{Resource: "reports", Action: "export"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.AssignRole(ctx, "user_admin", "user_1", viewer.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.AssignRole(ctx, "user_admin", "user_1", exporter.ID); err != nil {
		t.Fatal(err)
	}

	// Both roles contribute; neither narrows the other.
	for _, pair := range [][2]string{{"orders", "view"}, {"reports", "export"}} {
		d, err := eng.Check(ctx, "user_1", pair[0], pair[1], nil)
		if err != nil {
			t.Fatal(err)
		}
		if !d.Allowed {
			t.Fatalf("expected allow for %s:%s", pair[0], pair[1])
		}
	}

	grants, err := eng.EffectivePermissions(ctx, "user_1")
	if err != nil {
		t.Fatal(err)
	}
	if len(grants) != 2 {
		t.Fatalf("expected 2 grants, got %d", len(grants))
	}
}

func TestBroaderGrantWinsOverConditioned(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	conditioned, err := eng.CreateCustomRole(ctx, "user_admin", CreateRoleInput{
		Name: "cairo-only",
		Permissions: []permission.Permission{
			{Resource: "orders", Action: "update", Conditions: map[string]string{"branch": "cairo"}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	broad, err := eng.CreateCustomRole(ctx, "user_admin", CreateRoleInput{
		Name: "all-branches",
		Permissions: []permission.Permission{
			{Resource: "orders", Action: "update"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.AssignRole(ctx, "user_admin", "user_1", conditioned.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.AssignRole(ctx, "user_admin", "user_1", broad.ID); err != nil {
		t.Fatal(err)
	}

	// The unconditioned grant satisfies any branch.
	d, err := eng.Check(ctx, "user_1", "orders", "update", map[string]string{"branch": "giza"})
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed {
		t.Fatal("expected broader role to grant access")
	}
}

func TestCheckAny(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	r, err := eng.CreateCustomRole(ctx, "user_admin", CreateRoleInput{
		Name: "report-viewer",
		Permissions: []permission.Permission{
			{Resource: "reports", Action: "view"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.AssignRole(ctx, "user_admin", "user_1", r.ID); err != nil {
		t.Fatal(err)
	}

	d, err := eng.CheckAny(ctx, "user_1", []Requirement{
		{Resource: "orders", Action: "delete"},
		{Resource: "reports", Action: "view"},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed {
		t.Fatal("expected allow when one requirement is held")
	}
	if d.Resource != "reports" || d.Action != "view" {
		t.Fatalf("decision should name the satisfied requirement, got %s:%s", d.Resource, d.Action)
	}

	// Empty requirement list denies.
	d, err = eng.CheckAny(ctx, "user_1", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed {
		t.Fatal("expected deny for empty requirements")
	}
}

func TestCheckAll(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	r, err := eng.CreateCustomRole(ctx, "user_admin", CreateRoleInput{
		Name: "till-operator",
		Permissions: []permission.Permission{
			{Resource: "registers", Action: "open"},
			{Resource: "registers", Action: "close"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.AssignRole(ctx, "user_admin", "user_1", r.ID); err != nil {
		t.Fatal(err)
	}

	d, err := eng.CheckAll(ctx, "user_1", []Requirement{
		{Resource: "registers", Action: "open"},
		{Resource: "registers", Action: "close"},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed {
		t.Fatal("expected allow when all requirements held")
	}

	d, err = eng.CheckAll(ctx, "user_1", []Requirement{
		{Resource: "registers", Action: "open"},
		{Resource: "orders", Action: "delete"},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed {
		t.Fatal("expected deny when one requirement is missing")
	}
	if d.Resource != "orders" || d.Action != "delete" {
		t.Fatalf("decision should name the unsatisfied requirement, got %s:%s", d.Resource, d.Action)
	}

	// Vacuously true.
	d, err = eng.CheckAll(ctx, "user_1", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed {
		t.Fatal("expected allow for empty requirements")
	}
}

func TestEnforce(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	err := eng.Enforce(ctx, "user_nobody", "orders", "view", nil)
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
}

func TestRevocationTakesEffectImmediately(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	r, err := eng.CreateCustomRole(ctx, "user_admin", CreateRoleInput{
		Name: "order-viewer",
		Permissions: []permission.Permission{
			{Resource: "orders", Action: "view"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.AssignRole(ctx, "user_admin", "user_1", r.ID); err != nil {
		t.Fatal(err)
	}

	// Warm the cache.
	d, _ := eng.Check(ctx, "user_1", "orders", "view", nil)
	if !d.Allowed {
		t.Fatal("expected allow before revocation")
	}

	if err := eng.RevokeRole(ctx, "user_admin", "user_1", r.ID); err != nil {
		t.Fatal(err)
	}

	d, err = eng.Check(ctx, "user_1", "orders", "view", nil)
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed {
		t.Fatal("expected deny immediately after revocation")
	}
}

func TestRoleUpdateTakesEffectImmediately(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	r, err := eng.CreateCustomRole(ctx, "user_admin", CreateRoleInput{
		Name: "order-viewer",
		Permissions: []permission.Permission{
			{Resource: "orders", Action: "view"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.AssignRole(ctx, "user_admin", "user_1", r.ID); err != nil {
		t.Fatal(err)
	}

	// Warm the cache.
	if d, _ := eng.Check(ctx, "user_1", "orders", "view", nil); !d.Allowed {
		t.Fatal("expected allow")
	}

	_, err = eng.UpdateCustomRole(ctx, "user_admin", r.ID, UpdateRoleInput{
		Permissions: []permission.Permission{
			{Resource: "reports", Action: "view"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if d, _ := eng.Check(ctx, "user_1", "orders", "view", nil); d.Allowed {
		t.Fatal("expected deny after permission was removed from role")
	}
	if d, _ := eng.Check(ctx, "user_1", "reports", "view", nil); !d.Allowed {
		t.Fatal("expected allow for newly granted permission")
	}
}

// failingStore wraps the memory store and fails the hot-path read on
// demand.
type failingStore struct {
	*memory.Store
	fail bool
}

func (f *failingStore) ListRolesForPrincipal(ctx context.Context, principalID string) ([]id.RoleID, error) {
	if f.fail {
		return nil, errors.New("connection refused")
	}
	return f.Store.ListRolesForPrincipal(ctx, principalID)
}

func TestCheckFailsClosedOnStoreError(t *testing.T) {
	ctx := context.Background()
	s := &failingStore{Store: memory.New()}
	eng, err := NewEngine(WithStore(s), WithCatalog(newTestCatalog()))
	if err != nil {
		t.Fatal(err)
	}

	s.fail = true
	d, err := eng.Check(ctx, "user_1", "orders", "view", nil)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if d == nil || d.Allowed {
		t.Fatal("store failure must yield a denying decision")
	}
}

func TestCashierManagerScenario(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	cashier, err := eng.CreateCustomRole(ctx, "user_admin", CreateRoleInput{
		Name: "cashier",
		Permissions: []permission.Permission{
			{Resource: "orders", Action: "view"},
			{Resource: "orders", Action: "create"},
			{Resource: "registers", Action: "open"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	manager, err := eng.CreateCustomRole(ctx, "user_admin", CreateRoleInput{
		Name: "manager",
		Permissions: []permission.Permission{
			{Resource: "orders", Action: "update"},
			{Resource: "orders", Action: "delete"},
			{Resource: "reports", Action: "view"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := eng.AssignRole(ctx, "user_admin", "user_amira", cashier.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.AssignRole(ctx, "user_admin", "user_amira", manager.ID); err != nil {
		t.Fatal(err)
	}

	// A permission from each role, each attributed correctly.
	d, err := eng.Check(ctx, "user_amira", "orders", "create", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed || d.DecidingRole != cashier.ID {
		t.Fatalf("expected cashier to decide, got allowed=%v role=%s", d.Allowed, d.DecidingRole)
	}

	d, err = eng.Check(ctx, "user_amira", "orders", "delete", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed || d.DecidingRole != manager.ID {
		t.Fatalf("expected manager to decide, got allowed=%v role=%s", d.Allowed, d.DecidingRole)
	}

	// Nothing grants reports:export.
	d, _ = eng.Check(ctx, "user_amira", "reports", "export", nil)
	if d.Allowed {
		t.Fatal("expected deny for unheld permission")
	}
}

// pausingStore wraps the memory store and, once, blocks the hot-path
// read after it returns its data until released. This holds a cache
// fill open across a concurrent mutation.
type pausingStore struct {
	*memory.Store
	pauseOnce sync.Once
	readDone  chan struct{}
	resume    chan struct{}
}

func (s *pausingStore) ListRolesForPrincipal(ctx context.Context, principalID string) ([]id.RoleID, error) {
	ids, err := s.Store.ListRolesForPrincipal(ctx, principalID)
	s.pauseOnce.Do(func() {
		close(s.readDone)
		<-s.resume
	})
	return ids, err
}

func TestRevokeDuringCacheFillDoesNotRestoreAccess(t *testing.T) {
	ctx := context.Background()
	s := &pausingStore{
		Store:    memory.New(),
		readDone: make(chan struct{}),
		resume:   make(chan struct{}),
	}
	eng, err := NewEngine(WithStore(s), WithCatalog(newTestCatalog()))
	if err != nil {
		t.Fatal(err)
	}

	role, err := eng.CreateCustomRole(ctx, "user_admin", CreateRoleInput{
		Name:        "clerk",
		Permissions: []permission.Permission{{Resource: "orders", Action: "view"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.AssignRole(ctx, "user_admin", "user_1", role.ID); err != nil {
		t.Fatal(err)
	}

	// Start a check whose cache fill reads the pre-revoke assignment and
	// then stalls before it can write to the cache.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := eng.Check(ctx, "user_1", "orders", "view", nil); err != nil {
			t.Error(err)
		}
	}()

	<-s.readDone
	if err := eng.RevokeRole(ctx, "user_admin", "user_1", role.ID); err != nil {
		t.Fatal(err)
	}
	close(s.resume)
	<-done

	// The stalled fill must not have re-installed the pre-revoke grants.
	d, err := eng.Check(ctx, "user_1", "orders", "view", nil)
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed {
		t.Fatal("revoked principal allowed from a stale cache fill")
	}
}

func TestGrantKeyDistinguishesEmbeddedDelimiters(t *testing.T) {
	// Delimiter characters inside condition values must not let two
	// distinct permissions share a key.
	twoConds := permission.Permission{
		Resource:   "orders",
		Action:     "view",
		Conditions: map[string]string{"x": "1", "y": "2"},
	}
	oneCond := permission.Permission{
		Resource:   "orders",
		Action:     "view",
		Conditions: map[string]string{"x": "1|y=2"},
	}

	if grantKey(twoConds) == grantKey(oneCond) {
		t.Fatalf("distinct permissions collide on key %q", grantKey(twoConds))
	}
	if samePermissions([]permission.Permission{twoConds}, []permission.Permission{oneCond}) {
		t.Fatal("permission sets with different conditions reported equal")
	}
}
