package auth

import (
	"log/slog"

	"github.com/labstack/echo/v4"

	"library-gateway/internal/httperr"
	"library-gateway/internal/model"
)

// Gate short-circuits requests that lack a valid identity.
type Gate struct {
	validator TokenValidator
	logger    *slog.Logger
}

// NewGate creates a Gate backed by v.
func NewGate(v TokenValidator, logger *slog.Logger) *Gate {
	return &Gate{
		validator: v,
		logger:    logger.With("component", "auth_gate"),
	}
}

// RequireToken validates the Authorization header and attaches the identity to
// the request context before calling next. On failure next is never called.
func (g *Gate) RequireToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		id, err := g.validator.Validate(req.Context(), req.Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return httperr.Write(c, g.logger, err)
		}
		c.SetRequest(req.WithContext(WithIdentity(req.Context(), id)))
		return next(c)
	}
}

// RequireRole returns middleware that admits only identities holding role.
// It must run after RequireToken; a missing identity is rejected with 403.
func (g *Gate) RequireRole(role model.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := IdentityFrom(c.Request().Context())
			if !ok {
				return httperr.Write(c, g.logger, model.Forbidden("authentication required"))
			}
			if id.Role != role {
				return httperr.Write(c, g.logger, model.Forbidden(string(role)+" role required"))
			}
			return next(c)
		}
	}
}
