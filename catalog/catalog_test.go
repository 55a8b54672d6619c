package catalog

import "testing"

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := New(
		Resource{Name: "orders", Actions: []string{"view", "create", "update", "delete"}},
		Resource{Name: "pos", Actions: []string{"use"}},
	)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestKnown(t *testing.T) {
	c := newTestCatalog(t)

	if !c.Known("orders", "view") {
		t.Fatal("expected orders:view to be known")
	}
	if c.Known("orders", "approve") {
		t.Fatal("expected orders:approve to be unknown")
	}
	if c.Known("reports", "view") {
		t.Fatal("expected unknown resource to be unknown")
	}
}

func TestAllSortedAndCopied(t *testing.T) {
	c := newTestCatalog(t)

	all := c.All()
	if len(all) != c.Len() {
		t.Fatalf("expected %d refs, got %d", c.Len(), len(all))
	}
	for i := 1; i < len(all); i++ {
		prev, cur := all[i-1], all[i]
		if prev.Resource > cur.Resource || (prev.Resource == cur.Resource && prev.Action > cur.Action) {
			t.Fatalf("refs not sorted at %d: %v before %v", i, prev, cur)
		}
	}

	// Mutating the returned slice must not affect the catalog.
	all[0] = Ref{Resource: "hacked", Action: "hacked"}
	if c.All()[0].Resource == "hacked" {
		t.Fatal("All must return a copy")
	}
}

func TestNewRejectsDuplicates(t *testing.T) {
	_, err := New(
		Resource{Name: "orders", Actions: []string{"view", "view"}},
	)
	if err == nil {
		t.Fatal("expected error for duplicate action")
	}
}

func TestNewRejectsEmptyNames(t *testing.T) {
	if _, err := New(Resource{Name: "", Actions: []string{"view"}}); err == nil {
		t.Fatal("expected error for empty resource name")
	}
	if _, err := New(Resource{Name: "orders", Actions: []string{""}}); err == nil {
		t.Fatal("expected error for empty action")
	}
}

func TestMergedResourceDeclarations(t *testing.T) {
	c, err := New(
		Resource{Name: "orders", Actions: []string{"view"}},
		Resource{Name: "orders", Actions: []string{"create"}},
	)
	if err != nil {
		t.Fatal(err)
	}
	if !c.Known("orders", "view") || !c.Known("orders", "create") {
		t.Fatal("expected declarations for the same resource to merge")
	}
}
