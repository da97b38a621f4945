package middleware

import (
	"github.com/labstack/echo/v4"
)

// securityHeaders are added to every response unless the handler sets them.
var securityHeaders = map[string]string{
	"X-Content-Type-Options": "nosniff",
	"X-Frame-Options":        "DENY",
}

// SecurityHeaders returns an Echo middleware that adds security headers.
// They are set before the handler runs so relayed downstream values win.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			for k, v := range securityHeaders {
				if h.Get(k) == "" {
					h.Set(k, v)
				}
			}
			return next(c)
		}
	}
}
