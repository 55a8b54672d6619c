// Package permission defines the Permission value type granted by roles.
package permission

// Permission is an atomic (resource, action) grant, optionally qualified by
// runtime conditions. A permission with no conditions matches any invocation
// of its (resource, action); one with conditions matches only when every
// condition key is present in the caller-supplied condition map with an
// equal value.
//
// Resource and action are opaque identifiers drawn from the catalog; the
// engine does not interpret their meaning.
type Permission struct {
	Resource   string            `json:"resource" db:"resource"`
	Action     string            `json:"action" db:"action"`
	Conditions map[string]string `json:"conditions,omitempty" db:"conditions"`
}

// Key returns the canonical "resource:action" form of the permission.
func (p Permission) Key() string {
	return p.Resource + ":" + p.Action
}

// Equal reports whether two permissions are identical, conditions included.
func (p Permission) Equal(other Permission) bool {
	if p.Resource != other.Resource || p.Action != other.Action {
		return false
	}
	if len(p.Conditions) != len(other.Conditions) {
		return false
	}
	for k, v := range p.Conditions {
		if ov, ok := other.Conditions[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the permission.
func (p Permission) Clone() Permission {
	c := p
	if p.Conditions != nil {
		c.Conditions = make(map[string]string, len(p.Conditions))
		for k, v := range p.Conditions {
			c.Conditions[k] = v
		}
	}
	return c
}

// CloneSet returns a deep copy of a permission slice.
func CloneSet(perms []Permission) []Permission {
	if perms == nil {
		return nil
	}
	out := make([]Permission, len(perms))
	for i, p := range perms {
		out[i] = p.Clone()
	}
	return out
}

// Dedupe returns the set with exact duplicates removed, preserving order of
// first occurrence.
func Dedupe(perms []Permission) []Permission {
	out := make([]Permission, 0, len(perms))
	for _, p := range perms {
		dup := false
		for _, q := range out {
			if p.Equal(q) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, p)
		}
	}
	return out
}
