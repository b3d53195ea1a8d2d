package handler

import (
	"fmt"

	"github.com/labstack/echo/v4"

	"github.com/zenspa/identity-service/internal/api/middleware"
	"github.com/zenspa/identity-service/internal/core/domain"
)

// currentIdentity returns the caller resolved by the Authenticate middleware.
// Its absence means the route was registered without it, so reject with 401.
func currentIdentity(c echo.Context) (*domain.Identity, error) {
	id := middleware.IdentityFrom(c)
	if id == nil {
		return nil, domain.NewAuthError(domain.AuthNoToken, nil)
	}
	return id, nil
}

// bindAndValidate decodes the body into req and runs struct validation.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return fmt.Errorf("%w: invalid payload", domain.ErrInvalidInput)
	}
	if err := c.Validate(req); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrInvalidInput, err.Error())
	}
	return nil
}
