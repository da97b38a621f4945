package handler

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"library-gateway/internal/auth"
	"library-gateway/internal/config"
	"library-gateway/internal/metrics"
	"library-gateway/internal/route"
)

// RegisterRoutes wires all route handlers onto the Echo instance.
// Protected routes validate the token first, then check the role.
func RegisterRoutes(
	e *echo.Echo,
	cfg *config.Config,
	table *route.Table,
	gate *auth.Gate,
	proxy *ProxyHandler,
	health *HealthHandler,
	m *metrics.Metrics,
	logger *slog.Logger,
) {
	e.GET("/health", health.Health)
	e.GET("/healthz", health.Healthz)
	e.GET("/gateway/status", health.Status)

	if cfg.Metrics.Enabled {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	for _, r := range table.Routes() {
		var mws []echo.MiddlewareFunc
		if r.RequiresToken() {
			mws = append(mws, gate.RequireToken)
		}
		if role, ok := r.RequiredRole(); ok {
			mws = append(mws, gate.RequireRole(role))
		}
		e.Add(r.Method, r.Path, proxy.For(r), mws...)
	}

	logger.Info("routes registered", "count", table.Len(), "metrics", cfg.Metrics.Enabled)
}
