// Package httperr renders gateway errors as JSON responses.
package httperr

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"library-gateway/internal/model"
)

// Write renders err on c and returns nil so the echo chain stops cleanly.
// Only 401 and 403 carry their reason to the caller; every other kind gets a
// fixed message so internal details never leak.
func Write(c echo.Context, logger *slog.Logger, err error) error {
	var gerr *model.GatewayError
	if !errors.As(err, &gerr) {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return c.JSON(he.Code, map[string]any{"error": he.Message})
		}
		gerr = model.Internal("unclassified", err)
	}

	attrs := []any{
		"kind", gerr.Kind.String(),
		"reason", gerr.Reason,
		"method", c.Request().Method,
		"path", c.Request().URL.Path,
	}
	if gerr.Err != nil {
		attrs = append(attrs, "err", gerr.Err)
	}

	status := gerr.Kind.HTTPStatus()
	switch gerr.Kind {
	case model.KindUnauthorized, model.KindForbidden:
		logger.Debug("request rejected", attrs...)
		return c.JSON(status, map[string]string{"error": gerr.Reason})
	case model.KindUnavailable:
		logger.Warn("downstream unavailable", attrs...)
		return c.JSON(status, map[string]string{"error": "service unavailable"})
	case model.KindTimeout:
		logger.Warn("downstream timeout", attrs...)
		return c.JSON(status, map[string]string{"error": "gateway timeout"})
	default:
		logger.Error("gateway error", attrs...)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal gateway error"})
	}
}
