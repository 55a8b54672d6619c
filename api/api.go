// Package api provides HTTP handlers for administering the Aegis
// authorization engine: role management, assignment management, the audit
// trail, and the permission catalog. Authorization checks themselves are
// in-process calls on the Engine and have no endpoint here.
package api

import (
	"net/http"

	"github.com/xraph/forge"

	"github.com/meridianhq/aegis"
)

// API wires all Aegis HTTP handlers together.
type API struct {
	eng    *aegis.Engine
	router forge.Router
}

// New creates an API from an Engine and a Forge router.
func New(eng *aegis.Engine, router forge.Router) *API {
	return &API{eng: eng, router: router}
}

// Handler returns the fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	if a.router == nil {
		a.router = forge.NewRouter()
	}
	if err := a.RegisterRoutes(a.router); err != nil {
		panic("aegis: register routes: " + err.Error())
	}
	return a.router.Handler()
}

// RegisterRoutes registers all API routes into the given Forge router.
func (a *API) RegisterRoutes(router forge.Router) error {
	registerers := []func(forge.Router) error{
		a.registerRoleRoutes,
		a.registerAssignmentRoutes,
		a.registerAuditRoutes,
		a.registerCatalogRoutes,
	}
	for _, fn := range registerers {
		if err := fn(router); err != nil {
			return err
		}
	}
	return nil
}
