package aegis

import "github.com/meridianhq/aegis/permission"

// permissionMatches reports whether a held permission satisfies a request
// for (resource, action) under the given request context. Resource and
// action must match exactly; wildcards are not part of the model.
func permissionMatches(p permission.Permission, resource, action string, reqCtx map[string]string) bool {
	if p.Resource != resource || p.Action != action {
		return false
	}
	return conditionsSatisfied(p.Conditions, reqCtx)
}

// conditionsSatisfied reports whether every condition on a permission is
// met by the request context. Matching is exact string equality on each
// key; a condition keyed on an attribute absent from the context fails.
// An unconditioned permission matches any context, including none.
func conditionsSatisfied(conds, reqCtx map[string]string) bool {
	for k, want := range conds {
		got, ok := reqCtx[k]
		if !ok || got != want {
			return false
		}
	}
	return true
}
