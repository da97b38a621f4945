package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"library-gateway/internal/config"
)

// CORS allows the configured browser origins to call the gateway with
// credentials. With no origins configured it is a no-op.
func CORS(cfg config.CORSConfig, auth config.AuthConfig) echo.MiddlewareFunc {
	if len(cfg.AllowedOrigins) == 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.AllowedOrigins,
		AllowMethods: []string{
			http.MethodGet, http.MethodHead, http.MethodPost,
			http.MethodPut, http.MethodPatch, http.MethodDelete,
		},
		AllowHeaders: []string{
			echo.HeaderContentType,
			echo.HeaderAuthorization,
			"If-None-Match",
			auth.UserIDHeader,
			auth.RoleHeader,
		},
		AllowCredentials: true,
	})
}
