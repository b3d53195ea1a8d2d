package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/zenspa/identity-service/internal/api/middleware"
	"github.com/zenspa/identity-service/internal/core/domain"
	"github.com/zenspa/identity-service/internal/core/ports"
)

// AuthHandler serves the caller's identity and the admin role and audit routes.
type AuthHandler struct {
	identity ports.IdentityService
	roles    ports.RoleService
	audit    ports.AuditService
}

func NewAuthHandler(identity ports.IdentityService, roles ports.RoleService, audit ports.AuditService) *AuthHandler {
	return &AuthHandler{identity: identity, roles: roles, audit: audit}
}

// Me returns the authenticated caller.
//
// @Summary      Current identity
// @Description  Roles are ordered primary first, then by assignment time.
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  meResponse
// @Failure      401  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Failure      503  {object}  errorResponse
// @Router       /auth/me [get]
func (h *AuthHandler) Me(c echo.Context) error {
	id, err := currentIdentity(c)
	if err != nil {
		return err
	}

	view, err := h.identity.Me(c.Request().Context(), id)
	if err != nil {
		return err
	}

	resp := meResponse{
		UserID:  view.UserID,
		Email:   view.Email,
		Roles:   view.Roles,
		Profile: view.Profile,
	}
	if len(view.Roles) > 0 {
		resp.PrimaryRole = string(view.Roles[0].Role)
	}
	return c.JSON(http.StatusOK, resp)
}

// AssignRole grants a role to a user. Repeating a call is harmless.
//
// @Summary      Assign a role
// @Tags         roles
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      assignRoleRequest  true  "Role assignment"
// @Success      201   {object}  assignRoleResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      503   {object}  errorResponse
// @Router       /auth/roles [post]
func (h *AuthHandler) AssignRole(c echo.Context) error {
	actor, err := currentIdentity(c)
	if err != nil {
		return err
	}

	var req assignRoleRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	res, err := h.roles.AssignRole(c.Request().Context(), ports.AssignRoleInput{
		UserID:    req.UserID,
		Role:      req.Role,
		IsPrimary: req.IsPrimary,
		Reason:    req.Reason,
		ActorID:   actor.UserID,
		Meta:      middleware.RequestMeta(c),
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, assignRoleResponse{
		Message:    assignMessage(res.Outcome),
		Outcome:    res.Outcome,
		Assignment: res.Assignment,
	})
}

func assignMessage(o domain.AssignOutcome) string {
	switch o {
	case domain.AssignCreated:
		return "role assigned"
	case domain.AssignPromoted:
		return "role set as primary"
	default:
		return "role already assigned"
	}
}

// RevokeRole removes a role from a user. It succeeds whether or not the user
// held the role; the message tells the two cases apart.
//
// @Summary      Revoke a role
// @Tags         roles
// @Produce      json
// @Security     BearerAuth
// @Param        user_id  path      string  true   "Target user id"
// @Param        role     path      string  true   "Role name"
// @Param        reason   query     string  false  "Reason recorded in the audit log"
// @Success      200      {object}  revokeRoleResponse
// @Failure      400      {object}  errorResponse
// @Failure      401      {object}  errorResponse
// @Failure      403      {object}  errorResponse
// @Failure      503      {object}  errorResponse
// @Router       /auth/roles/{user_id}/{role} [delete]
func (h *AuthHandler) RevokeRole(c echo.Context) error {
	actor, err := currentIdentity(c)
	if err != nil {
		return err
	}

	userID, role := c.Param("user_id"), c.Param("role")
	removed, err := h.roles.RevokeRole(c.Request().Context(), ports.RevokeRoleInput{
		UserID:  userID,
		Role:    role,
		Reason:  c.QueryParam("reason"),
		ActorID: actor.UserID,
		Meta:    middleware.RequestMeta(c),
	})
	if err != nil {
		return err
	}

	msg := "role revoked"
	if !removed {
		msg = "role already removed"
	}
	return c.JSON(http.StatusOK, revokeRoleResponse{Message: msg, Removed: removed, UserID: userID, Role: role})
}

// ListUserRoles returns a user's role assignments.
//
// @Summary      List a user's roles
// @Tags         roles
// @Produce      json
// @Security     BearerAuth
// @Param        user_id  path      string  true  "Target user id"
// @Success      200      {object}  userRolesResponse
// @Failure      401      {object}  errorResponse
// @Failure      403      {object}  errorResponse
// @Failure      503      {object}  errorResponse
// @Router       /auth/roles/{user_id} [get]
func (h *AuthHandler) ListUserRoles(c echo.Context) error {
	userID := c.Param("user_id")
	roles, err := h.roles.ListRoles(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, userRolesResponse{UserID: userID, Roles: roles})
}

// ListAuditLogs pages through the audit log, newest first.
//
// @Summary      Query audit logs
// @Tags         audit
// @Produce      json
// @Security     BearerAuth
// @Param        user_id     query     string  false  "Acting user id"
// @Param        event_type  query     string  false  "Event type, e.g. role.assigned"
// @Param        start_date  query     string  false  "RFC 3339 lower bound (inclusive)"
// @Param        end_date    query     string  false  "RFC 3339 upper bound (inclusive)"
// @Param        limit       query     int     false  "Page size (default 100, max 1000)"
// @Param        offset      query     int     false  "Rows to skip"
// @Success      200         {object}  auditLogsResponse
// @Failure      400         {object}  errorResponse
// @Failure      401         {object}  errorResponse
// @Failure      403         {object}  errorResponse
// @Router       /auth/audit-logs [get]
func (h *AuthHandler) ListAuditLogs(c echo.Context) error {
	var (
		filter     domain.AuditFilter
		start, end time.Time
	)
	err := echo.QueryParamsBinder(c).
		String("user_id", &filter.UserID).
		String("event_type", &filter.EventType).
		Time("start_date", &start, time.RFC3339).
		Time("end_date", &end, time.RFC3339).
		Int("limit", &filter.Limit).
		Int("offset", &filter.Offset).
		BindError()
	if err != nil {
		return fmt.Errorf("%w: invalid query parameters", domain.ErrInvalidInput)
	}
	if !start.IsZero() {
		filter.Start = &start
	}
	if !end.IsZero() {
		filter.End = &end
	}

	page, err := h.audit.Query(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, auditLogsResponse{
		Total:  page.Total,
		Limit:  page.Limit,
		Offset: page.Offset,
		Logs:   page.Events,
	})
}
