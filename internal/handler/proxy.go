package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"library-gateway/internal/auth"
	"library-gateway/internal/httperr"
	"library-gateway/internal/model"
	"library-gateway/internal/route"
	"library-gateway/internal/service"
)

// Forwarder sends a prepared request to a downstream service.
type Forwarder interface {
	Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error)
}

var _ Forwarder = (*service.Forwarder)(nil)

// errBodyNotObject is returned when a body-injecting route receives anything but a JSON object.
var errBodyNotObject = echo.NewHTTPError(http.StatusBadRequest, "request body must be a JSON object")

// errInvalidPath is returned when a path parameter cannot be forwarded as a single segment.
var errInvalidPath = echo.NewHTTPError(http.StatusBadRequest, "invalid path parameter")

// ProxyHandler forwards matched routes to their downstream service.
type ProxyHandler struct {
	forwarder Forwarder
	logger    *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(f Forwarder, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		forwarder: f,
		logger:    logger.With("component", "proxy_handler"),
	}
}

// For returns the echo handler serving r.
func (h *ProxyHandler) For(r *route.Route) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		id, _ := auth.IdentityFrom(req.Context())

		target, version, err := r.Resolve(c.Param, req.URL.RawQuery, req.Header.Get(echo.HeaderAccept), id)
		if errors.Is(err, route.ErrInvalidParam) {
			return httperr.Write(c, h.logger, errInvalidPath)
		}
		if err != nil {
			return httperr.Write(c, h.logger, model.Internal("resolve target", err))
		}

		pr := &model.ProxyRequest{
			Ctx:           req.Context(),
			Method:        req.Method,
			Target:        target,
			RawQuery:      req.URL.RawQuery,
			Header:        req.Header,
			Body:          req.Body,
			ContentLength: req.ContentLength,
			Identity:      id,
			RequestID:     c.Response().Header().Get(echo.HeaderXRequestID),
		}

		if r.InjectUserField != "" {
			body, err := injectField(req.Body, r.InjectUserField, id)
			if err != nil {
				return httperr.Write(c, h.logger, err)
			}
			pr.OverrideBody = body
		}

		if version != "" {
			h.logger.Debug("negotiated variant", "path", req.URL.Path, "version", version)
		}

		resp, err := h.forwarder.Forward(pr)
		if err != nil {
			return httperr.Write(c, h.logger, err)
		}
		defer func() { _ = resp.Body.Close() }()

		// Downstream values replace anything the gateway set earlier in the chain.
		dst := c.Response().Header()
		for key, vals := range resp.Header {
			dst[key] = append([]string(nil), vals...)
		}

		c.Response().WriteHeader(resp.StatusCode)

		// The status is already sent; a failed copy leaves the caller with a
		// truncated body under the downstream status.
		if _, err := io.Copy(c.Response(), resp.Body); err != nil {
			h.logger.Error("streaming response body",
				"err", err,
				"service", target.Service,
				"path", req.URL.Path,
			)
		}

		return nil
	}
}

// injectField decodes a JSON object from body, sets field to the caller's
// subject id, and re-encodes it.
func injectField(body io.Reader, field string, id *model.Identity) ([]byte, error) {
	if id == nil {
		return nil, model.Internal("inject "+field, errors.New("no identity attached"))
	}

	data, err := io.ReadAll(body)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return nil, he
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, echo.ErrStatusRequestEntityTooLarge
		}
		return nil, model.Internal("read request body", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || obj == nil || dec.More() {
		return nil, errBodyNotObject
	}

	obj[field] = id.SubjectID
	out, err := json.Marshal(obj)
	if err != nil {
		return nil, model.Internal("encode request body", err)
	}
	return out, nil
}
