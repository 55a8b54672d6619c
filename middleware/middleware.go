// Package middleware provides HTTP authorization middleware for Aegis.
package middleware

import (
	"encoding/json"

	"github.com/xraph/forge"

	"github.com/meridianhq/aegis"
)

// Require enforces authorization. It resolves the principal from the
// request context (Authsome user > anonymous) and checks whether the
// principal may perform the given action on the resource. Request context
// attributes for condition matching come from attrs, which may be nil.
func Require(eng *aegis.Engine, resource, action string, attrs func(forge.Context) map[string]string) forge.Middleware {
	return func(next forge.Handler) forge.Handler {
		return func(ctx forge.Context) error {
			principal := resolvePrincipal(ctx)

			var reqCtx map[string]string
			if attrs != nil {
				reqCtx = attrs(ctx)
			}

			if err := eng.Enforce(ctx.Context(), principal, resource, action, reqCtx); err != nil {
				return denyResponse(ctx)
			}
			return next(ctx)
		}
	}
}

// RequireAny allows the request if the principal satisfies ANY of the
// requirements.
func RequireAny(eng *aegis.Engine, reqs ...aegis.Requirement) forge.Middleware {
	return func(next forge.Handler) forge.Handler {
		return func(ctx forge.Context) error {
			principal := resolvePrincipal(ctx)
			decision, err := eng.CheckAny(ctx.Context(), principal, reqs, nil)
			if err != nil || !decision.Allowed {
				return denyResponse(ctx)
			}
			return next(ctx)
		}
	}
}

// RequireAll allows the request only if the principal satisfies ALL of the
// requirements.
func RequireAll(eng *aegis.Engine, reqs ...aegis.Requirement) forge.Middleware {
	return func(next forge.Handler) forge.Handler {
		return func(ctx forge.Context) error {
			principal := resolvePrincipal(ctx)
			decision, err := eng.CheckAll(ctx.Context(), principal, reqs, nil)
			if err != nil || !decision.Allowed {
				return denyResponse(ctx)
			}
			return next(ctx)
		}
	}
}

// resolvePrincipal extracts the principal from context.
// Priority: Forge user ID (from Authsome) → anonymous.
func resolvePrincipal(ctx forge.Context) string {
	if userID := forge.UserIDFromContext(ctx.Context()); userID != "" {
		return userID
	}
	return "anonymous"
}

func denyResponse(ctx forge.Context) error {
	ctx.SetHeader("Content-Type", "application/json")
	ctx.Response().WriteHeader(403)
	return json.NewEncoder(ctx.Response()).Encode(map[string]string{"error": "access denied"})
}
