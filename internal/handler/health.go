package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"library-gateway/internal/config"
	"library-gateway/internal/route"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	version Version
	routes  int
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version, table *route.Table) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v, routes: table.Len()}
}

// Health answers the plain-text liveness probe.
func (h *HealthHandler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "API Gateway OK")
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status returns gateway status information.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":   "ok",
		"version":  string(h.version),
		"services": h.cfg.Services,
		"routes":   h.routes,
	})
}
