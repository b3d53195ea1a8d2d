package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/zenspa/identity-service/internal/api/middleware"
	"github.com/zenspa/identity-service/internal/core/ports"
)

type ProfileHandler struct {
	profiles ports.ProfileService
}

func NewProfileHandler(profiles ports.ProfileService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

// Get returns the caller's profile, creating it on first access.
//
// @Summary      Get my profile
// @Tags         profile
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  domain.Profile
// @Failure      401  {object}  errorResponse
// @Failure      503  {object}  errorResponse
// @Router       /users/me/profile [get]
func (h *ProfileHandler) Get(c echo.Context) error {
	id, err := currentIdentity(c)
	if err != nil {
		return err
	}
	p, err := h.profiles.GetProfile(c.Request().Context(), id.UserID, id.Email)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

// Update applies a partial update; omitted fields are kept and explicit
// nulls clear the optional ones.
//
// @Summary      Update my profile
// @Tags         profile
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      updateProfileRequest  true  "Fields to change"
// @Success      200   {object}  domain.Profile
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      503   {object}  errorResponse
// @Router       /users/me/profile [patch]
func (h *ProfileHandler) Update(c echo.Context) error {
	id, err := currentIdentity(c)
	if err != nil {
		return err
	}

	var req updateProfileRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	upd, err := req.toUpdate()
	if err != nil {
		return err
	}

	p, err := h.profiles.UpdateProfile(c.Request().Context(), id.UserID, upd, middleware.RequestMeta(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}
