package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/zenspa/identity-service/internal/core/domain"
	"github.com/zenspa/identity-service/internal/core/ports"
)

// RequireRole enforces that the caller holds role.
func RequireRole(sink ports.SecurityEventSink, role domain.Role) echo.MiddlewareFunc {
	return RequireAnyRole(sink, role)
}

// RequireAnyRole enforces that the caller holds at least one of roles. It must
// run after Authenticate.
func RequireAnyRole(sink ports.SecurityEventSink, roles ...domain.Role) echo.MiddlewareFunc {
	required := make([]string, 0, len(roles))
	for _, r := range roles {
		required = append(required, string(r))
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := IdentityFrom(c)
			if id == nil {
				return domain.NewAuthError(domain.AuthNoToken, nil)
			}
			if err := id.RequireAnyRole(roles...); err != nil {
				uid := id.UserID
				sink.Enqueue(domain.NewAuditEvent(domain.EventForbidden, &uid, map[string]any{
					"required_roles": required,
					"path":           c.Path(),
					"method":         c.Request().Method,
				}, RequestMeta(c)))
				return err
			}
			return next(c)
		}
	}
}
