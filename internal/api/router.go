package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/zenspa/identity-service/internal/api/handler"
	"github.com/zenspa/identity-service/internal/api/middleware"
	"github.com/zenspa/identity-service/internal/core/domain"
	"github.com/zenspa/identity-service/internal/core/ports"
	"github.com/zenspa/identity-service/internal/infrastructure/http/handlers"
	"github.com/zenspa/identity-service/internal/pkg/metrics"
)

// Deps is everything the router needs. Registerer defaults to the
// Prometheus default registry.
type Deps struct {
	Identity ports.IdentityService
	Roles    ports.RoleService
	Audit    ports.AuditService
	Profiles ports.ProfileService
	Webhooks ports.WebhookService
	Events   ports.SecurityEventSink
	Ready    *handlers.HealthDependenciesHandler

	Log         zerolog.Logger
	Debug       bool
	CookieName  string
	CORSOrigins []string
	Registerer  prometheus.Registerer
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Log, d.Debug)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(d.Log))
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins:     d.CORSOrigins,
		AllowCredentials: true,
		AllowHeaders: []string{
			echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept,
			echo.HeaderAuthorization, echo.HeaderXRequestID,
		},
	}))
	e.Use(echomiddleware.Secure())
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace:  metrics.Namespace,
		Registerer: d.Registerer,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics" || strings.HasPrefix(c.Path(), "/health")
		},
	}))

	// --- Operational endpoints (no auth required) ---
	e.GET("/health", handlers.NewHealthHandler().Liveness)
	if d.Ready != nil {
		e.GET("/health/ready", d.Ready.Readiness)
	}
	e.GET("/metrics", echoprometheus.NewHandler())
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// --- Handlers ---
	authHandler := handler.NewAuthHandler(d.Identity, d.Roles, d.Audit)
	profileHandler := handler.NewProfileHandler(d.Profiles)
	webhookHandler := handler.NewWebhookHandler(d.Webhooks)

	authn := middleware.Authenticate(d.Identity, d.Events, d.CookieName)
	adminOnly := middleware.RequireRole(d.Events, domain.RoleAdmin)

	// --- Auth routes ---
	e.GET("/auth/me", authHandler.Me, authn)
	e.POST("/auth/roles", authHandler.AssignRole, authn, adminOnly)
	e.GET("/auth/roles/:user_id", authHandler.ListUserRoles, authn, adminOnly)
	e.DELETE("/auth/roles/:user_id/:role", authHandler.RevokeRole, authn, adminOnly)
	e.GET("/auth/audit-logs", authHandler.ListAuditLogs, authn, adminOnly)

	// Signed by the auth provider instead of a user token.
	e.POST("/auth/webhooks/user-created", webhookHandler.UserCreated)

	// --- Profile routes ---
	e.GET("/users/me/profile", profileHandler.Get, authn)
	e.PATCH("/users/me/profile", profileHandler.Update, authn)

	return e
}

// requestLogger writes one zerolog line per request.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			switch {
			case v.Status >= http.StatusInternalServerError:
				ev = log.Error()
			case v.Status >= http.StatusBadRequest:
				ev = log.Warn()
			}
			if v.Error != nil {
				ev = ev.Str("error", v.Error.Error())
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Str("remote_ip", v.RemoteIP).
				Msg("request")
			return nil
		},
	})
}
