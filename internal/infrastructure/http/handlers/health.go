package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const readinessTimeout = 3 * time.Second

// HealthHandler handles GET /health, the liveness probe.
// Returns 200 immediately; confirms the process is alive.
type HealthHandler struct{}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// Liveness godoc
// @Summary      Liveness probe
// @Tags         health
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *HealthHandler) Liveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Pinger checks one dependency.
type Pinger func(ctx context.Context) error

// Dependency is a named readiness check.
type Dependency struct {
	Name string
	Ping Pinger
}

// HealthDependenciesHandler handles GET /health/ready, the readiness probe.
// The role store is required; the cache is reported but only degrades the
// service, since every cache failure falls through to the store.
type HealthDependenciesHandler struct {
	required []Dependency
	optional []Dependency
	log      zerolog.Logger
}

func NewHealthDependenciesHandler(required, optional []Dependency, log zerolog.Logger) *HealthDependenciesHandler {
	return &HealthDependenciesHandler{required: required, optional: optional, log: log}
}

type dependencyStatus struct {
	Status   string `json:"status"`
	Required bool   `json:"required"`
}

type readinessResponse struct {
	Status       string                      `json:"status"`
	Dependencies map[string]dependencyStatus `json:"dependencies"`
}

// Readiness godoc
// @Summary      Readiness probe
// @Description  Pings the role store and the authorization cache.
// @Tags         health
// @Produce      json
// @Success      200  {object}  readinessResponse
// @Failure      503  {object}  readinessResponse
// @Router       /health/ready [get]
func (h *HealthDependenciesHandler) Readiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessTimeout)
	defer cancel()

	deps := make(map[string]dependencyStatus)
	ready, degraded := true, false

	for _, d := range h.required {
		if !h.check(ctx, d, true, deps) {
			ready = false
		}
	}
	for _, d := range h.optional {
		if !h.check(ctx, d, false, deps) {
			degraded = true
		}
	}

	status := "ok"
	httpStatus := http.StatusOK
	switch {
	case !ready:
		status = "unavailable"
		httpStatus = http.StatusServiceUnavailable
	case degraded:
		status = "degraded"
	}

	return c.JSON(httpStatus, readinessResponse{
		Status:       status,
		Dependencies: deps,
	})
}

func (h *HealthDependenciesHandler) check(ctx context.Context, d Dependency, required bool, out map[string]dependencyStatus) bool {
	if err := d.Ping(ctx); err != nil {
		h.log.Warn().Err(err).Str("dependency", d.Name).Msg("readiness check failed")
		out[d.Name] = dependencyStatus{Status: "unhealthy", Required: required}
		return false
	}
	out[d.Name] = dependencyStatus{Status: "ok", Required: required}
	return true
}
