package api

import (
	"net/http"

	"github.com/xraph/forge"
)

func (a *API) registerCatalogRoutes(router forge.Router) error {
	g := router.Group("/v1", forge.WithGroupTags("catalog"))

	return g.GET("/catalog", a.listCatalog,
		forge.WithSummary("List permission catalog"),
		forge.WithDescription("Returns every recognized resource/action pair."),
		forge.WithOperationID("listCatalog"),
		forge.WithResponseSchema(http.StatusOK, "Catalog entries", []CatalogEntryResponse{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) listCatalog(ctx forge.Context, _ *struct{}) ([]CatalogEntryResponse, error) {
	refs := a.eng.Catalog().All()
	resp := make([]CatalogEntryResponse, len(refs))
	for i, ref := range refs {
		resp[i] = CatalogEntryResponse{Resource: ref.Resource, Action: ref.Action}
	}
	return resp, ctx.JSON(http.StatusOK, resp)
}
