// Package catalog defines the static permission catalog: the enumeration of
// every (resource, action) pair the system recognizes. Role definitions are
// validated against it so that a typo in a role's permission list surfaces
// as a configuration error instead of evaluating as a silent always-deny.
package catalog

import (
	"fmt"
	"sort"
)

// Resource declares a resource and the actions the system recognizes on it.
type Resource struct {
	Name    string   `json:"name"`
	Actions []string `json:"actions"`
}

// Ref identifies one (resource, action) pair from the catalog.
type Ref struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

// Catalog is a read-only index of recognized (resource, action) pairs.
// It is fully built by New and never mutated afterwards, so it is safe for
// unsynchronized concurrent reads.
type Catalog struct {
	actions map[string]map[string]struct{} // resource -> set of actions
	all     []Ref
}

// New builds a catalog from resource declarations. Duplicate declarations of
// the same (resource, action) pair are an error: they are always a sign of a
// copy-paste mistake in the catalog definition.
func New(resources ...Resource) (*Catalog, error) {
	c := &Catalog{actions: make(map[string]map[string]struct{}, len(resources))}
	for _, r := range resources {
		if r.Name == "" {
			return nil, fmt.Errorf("catalog: resource with empty name")
		}
		if c.actions[r.Name] == nil {
			c.actions[r.Name] = make(map[string]struct{}, len(r.Actions))
		}
		for _, a := range r.Actions {
			if a == "" {
				return nil, fmt.Errorf("catalog: resource %q: empty action", r.Name)
			}
			if _, dup := c.actions[r.Name][a]; dup {
				return nil, fmt.Errorf("catalog: duplicate declaration of %s:%s", r.Name, a)
			}
			c.actions[r.Name][a] = struct{}{}
			c.all = append(c.all, Ref{Resource: r.Name, Action: a})
		}
	}
	sort.Slice(c.all, func(i, j int) bool {
		if c.all[i].Resource != c.all[j].Resource {
			return c.all[i].Resource < c.all[j].Resource
		}
		return c.all[i].Action < c.all[j].Action
	})
	return c, nil
}

// MustNew is like New but panics on error. Use for hardcoded catalogs.
func MustNew(resources ...Resource) *Catalog {
	c, err := New(resources...)
	if err != nil {
		panic(err)
	}
	return c
}

// Known reports whether the catalog recognizes the (resource, action) pair.
func (c *Catalog) Known(resource, action string) bool {
	actions, ok := c.actions[resource]
	if !ok {
		return false
	}
	_, ok = actions[action]
	return ok
}

// All returns every recognized (resource, action) pair in lexical order.
// The returned slice is a copy; callers may mutate it freely.
func (c *Catalog) All() []Ref {
	out := make([]Ref, len(c.all))
	copy(out, c.all)
	return out
}

// Len returns the number of recognized (resource, action) pairs.
func (c *Catalog) Len() int { return len(c.all) }
