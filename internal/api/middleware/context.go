package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/zenspa/identity-service/internal/core/domain"
)

const identityKey = "identity"

// SetIdentity stores the resolved caller on the request context.
func SetIdentity(c echo.Context, id *domain.Identity) {
	c.Set(identityKey, id)
}

// IdentityFrom returns the caller stored by Authenticate, or nil.
func IdentityFrom(c echo.Context) *domain.Identity {
	id, _ := c.Get(identityKey).(*domain.Identity)
	return id
}

// RequestMeta captures the client address and user agent for audit events.
func RequestMeta(c echo.Context) domain.RequestMeta {
	return domain.RequestMeta{
		IP:        c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}
}
