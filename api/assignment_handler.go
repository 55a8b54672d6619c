package api

import (
	"fmt"
	"net/http"

	"github.com/xraph/forge"

	"github.com/meridianhq/aegis/assignment"
	"github.com/meridianhq/aegis/id"
	"github.com/meridianhq/aegis/role"
)

func (a *API) registerAssignmentRoutes(router forge.Router) error {
	g := router.Group("/v1", forge.WithGroupTags("assignments"))

	if err := g.POST("/assignments", a.assignRole,
		forge.WithSummary("Assign role"),
		forge.WithDescription("Grants a role to a principal. Re-assigning an already-held role is idempotent."),
		forge.WithOperationID("assignRole"),
		forge.WithRequestSchema(AssignRoleRequest{}),
		forge.WithCreatedResponse(&assignment.Assignment{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.DELETE("/principals/:principalId/roles/:roleId", a.revokeRole,
		forge.WithSummary("Revoke role"),
		forge.WithDescription("Removes a role from a principal."),
		forge.WithOperationID("revokeRole"),
		forge.WithNoContentResponse(),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET("/assignments", a.listAssignments,
		forge.WithSummary("List assignments"),
		forge.WithDescription("Lists role assignments with optional filters."),
		forge.WithOperationID("listAssignments"),
		forge.WithRequestSchema(ListAssignmentsRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Assignment list", ListResponse[*assignment.Assignment]{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET("/principals/:principalId/roles", a.listPrincipalRoles,
		forge.WithSummary("List principal roles"),
		forge.WithDescription("Returns the roles held by a principal."),
		forge.WithOperationID("listPrincipalRoles"),
		forge.WithResponseSchema(http.StatusOK, "Role list", []*role.Role{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.GET("/principals/:principalId/permissions", a.listEffectivePermissions,
		forge.WithSummary("List effective permissions"),
		forge.WithDescription("Returns the union of permissions a principal holds across all roles."),
		forge.WithOperationID("listEffectivePermissions"),
		forge.WithResponseSchema(http.StatusOK, "Effective permissions", []GrantResponse{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) assignRole(ctx forge.Context, req *AssignRoleRequest) (*assignment.Assignment, error) {
	if req.PrincipalID == "" {
		return nil, forge.BadRequest("principal_id is required")
	}

	roleID, err := id.ParseRoleID(req.RoleID)
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid role_id: %v", err))
	}

	asg, err := a.eng.AssignRole(ctx.Context(), actorFrom(ctx), req.PrincipalID, roleID)
	if err != nil {
		return nil, mapError(err)
	}

	return asg, ctx.JSON(http.StatusCreated, asg)
}

func (a *API) revokeRole(ctx forge.Context, _ *RevokeRoleRequest) (*struct{}, error) {
	principalID := ctx.Param("principalId")
	roleID, err := id.ParseRoleID(ctx.Param("roleId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid role ID: %v", err))
	}

	if err := a.eng.RevokeRole(ctx.Context(), actorFrom(ctx), principalID, roleID); err != nil {
		return nil, mapError(err)
	}

	return nil, ctx.NoContent(http.StatusNoContent)
}

func (a *API) listAssignments(ctx forge.Context, req *ListAssignmentsRequest) (*ListResponse[*assignment.Assignment], error) {
	filter := &assignment.ListFilter{
		PrincipalID: req.PrincipalID,
		AssignedBy:  req.AssignedBy,
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

	assignments, err := a.eng.Assignments(ctx.Context(), filter)
	if err != nil {
		return nil, mapError(err)
	}

	total, err := a.eng.Store().CountAssignments(ctx.Context(), filter)
	if err != nil {
		return nil, mapError(err)
	}

	resp := &ListResponse[*assignment.Assignment]{
		Items:  assignments,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) listPrincipalRoles(ctx forge.Context, _ *PrincipalRequest) ([]*role.Role, error) {
	roles, err := a.eng.RolesOf(ctx.Context(), ctx.Param("principalId"))
	if err != nil {
		return nil, mapError(err)
	}

	return roles, ctx.JSON(http.StatusOK, roles)
}

func (a *API) listEffectivePermissions(ctx forge.Context, _ *PrincipalRequest) ([]GrantResponse, error) {
	grants, err := a.eng.EffectivePermissions(ctx.Context(), ctx.Param("principalId"))
	if err != nil {
		return nil, mapError(err)
	}

	resp := make([]GrantResponse, len(grants))
	for i, g := range grants {
		resp[i] = GrantResponse{
			RoleID:     g.Role.String(),
			Resource:   g.Permission.Resource,
			Action:     g.Permission.Action,
			Conditions: g.Permission.Conditions,
		}
	}
	return resp, ctx.JSON(http.StatusOK, resp)
}
