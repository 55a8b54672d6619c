package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/xraph/forge"

	"github.com/meridianhq/aegis/audit"
	"github.com/meridianhq/aegis/id"
)

func (a *API) registerAuditRoutes(router forge.Router) error {
	g := router.Group("/v1", forge.WithGroupTags("audit"))

	if err := g.GET("/audit", a.listAuditEntries,
		forge.WithSummary("Query audit trail"),
		forge.WithDescription("Returns audit trail entries with optional filters, oldest first."),
		forge.WithOperationID("listAuditEntries"),
		forge.WithRequestSchema(ListAuditRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Audit entry list", ListResponse[*audit.Entry]{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.GET("/audit/:auditId", a.getAuditEntry,
		forge.WithSummary("Get audit entry"),
		forge.WithDescription("Returns a single audit trail entry."),
		forge.WithOperationID("getAuditEntry"),
		forge.WithResponseSchema(http.StatusOK, "Audit entry", &audit.Entry{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) listAuditEntries(ctx forge.Context, req *ListAuditRequest) (*ListResponse[*audit.Entry], error) {
	filter := &audit.QueryFilter{
		ActorID:     req.ActorID,
		Action:      audit.Action(req.Action),
		PrincipalID: req.PrincipalID,
		Limit:       defaultLimit(req.Limit),
		Offset:      req.Offset,
	}

	if req.RoleID != "" {
		rid, err := id.ParseRoleID(req.RoleID)
		if err != nil {
			return nil, forge.BadRequest(fmt.Sprintf("invalid role_id: %v", err))
		}
		filter.RoleID = &rid
	}
	if req.After != "" {
		t, err := time.Parse(time.RFC3339, req.After)
		if err != nil {
			return nil, forge.BadRequest("invalid after timestamp")
		}
		filter.After = &t
	}
	if req.Before != "" {
		t, err := time.Parse(time.RFC3339, req.Before)
		if err != nil {
			return nil, forge.BadRequest("invalid before timestamp")
		}
		filter.Before = &t
	}

	entries, err := a.eng.AuditLog(ctx.Context(), filter)
	if err != nil {
		return nil, mapError(err)
	}

	total, err := a.eng.Store().CountAuditEntries(ctx.Context(), filter)
	if err != nil {
		return nil, mapError(err)
	}

	resp := &ListResponse[*audit.Entry]{
		Items:  entries,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) getAuditEntry(ctx forge.Context, _ *GetAuditEntryRequest) (*audit.Entry, error) {
	auditID, err := id.ParseAuditID(ctx.Param("auditId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid audit entry ID: %v", err))
	}

	entry, err := a.eng.Store().GetAuditEntry(ctx.Context(), auditID)
	if err != nil {
		return nil, mapError(err)
	}

	return entry, ctx.JSON(http.StatusOK, entry)
}
