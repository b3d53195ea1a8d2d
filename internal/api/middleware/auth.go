package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/zenspa/identity-service/internal/core/domain"
	"github.com/zenspa/identity-service/internal/core/ports"
)

// Authenticate resolves the bearer token into an Identity and stores it on the
// context. The Authorization header wins; the cookie named cookieName is the
// fallback. Rejected tokens are reported to sink without blocking.
func Authenticate(resolver ports.IdentityService, sink ports.SecurityEventSink, cookieName string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := bearerToken(c.Request(), cookieName)

			id, err := resolver.Resolve(c.Request().Context(), token)
			if err != nil {
				if kind, ok := domain.AuthErrorKindOf(err); ok && kind != domain.AuthNoToken {
					sink.Enqueue(domain.NewAuditEvent(domain.EventTokenRejected, nil, map[string]any{
						"reason": string(kind),
						"path":   c.Path(),
					}, RequestMeta(c)))
				}
				return err
			}

			SetIdentity(c, id)
			return next(c)
		}
	}
}

// bearerToken reads "Authorization: Bearer <token>", then the cookie.
func bearerToken(r *http.Request, cookieName string) string {
	if h := r.Header.Get(echo.HeaderAuthorization); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "bearer") && strings.TrimSpace(token) != "" {
			return strings.TrimSpace(token)
		}
	}
	if cookieName == "" {
		return ""
	}
	if ck, err := r.Cookie(cookieName); err == nil {
		return ck.Value
	}
	return ""
}
