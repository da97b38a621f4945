// Package service implements the reverse proxy forwarding logic.
package service

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"library-gateway/internal/client"
	"library-gateway/internal/config"
	"library-gateway/internal/model"
)

// hopByHopRequestHeaders are never forwarded downstream.
var hopByHopRequestHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
	"Host",
	// Bodies are relayed decoded, so the client transport negotiates encoding itself.
	"Accept-Encoding",
}

// excludedResponseHeaders no longer describe the relayed body.
var excludedResponseHeaders = []string{
	"Content-Encoding",
	"Content-Length",
	"Transfer-Encoding",
	"Connection",
}

// Forwarder relays requests to downstream services. It is stateless per request.
type Forwarder struct {
	client   *client.Client
	injector *HeaderInjector
	logger   *slog.Logger
}

// NewForwarder creates a Forwarder.
func NewForwarder(c *client.Client, cfg *config.Config, logger *slog.Logger) *Forwarder {
	return &Forwarder{
		client:   c,
		injector: NewHeaderInjector(cfg.Auth.UserIDHeader, cfg.Auth.RoleHeader),
		logger:   logger.With("component", "forwarder"),
	}
}

// Forward sends pr to its target and returns the downstream response with
// hop-by-hop headers removed. Redirects are returned, never followed.
// The caller is responsible for closing the response body.
func (f *Forwarder) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	header := outboundHeader(pr.Header)
	f.injector.Inject(header, pr.Identity)
	if pr.RequestID != "" && header.Get(echo.HeaderXRequestID) == "" {
		header.Set(echo.HeaderXRequestID, pr.RequestID)
	}

	var body io.Reader
	length := pr.ContentLength
	switch {
	case pr.OverrideBody != nil:
		body = bytes.NewReader(pr.OverrideBody)
		length = int64(len(pr.OverrideBody))
		header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	case pr.Body != nil && pr.Body != http.NoBody && length != 0:
		body = pr.Body
	default:
		length = 0
	}

	req, err := http.NewRequestWithContext(pr.Ctx, pr.Method, pr.Target.URL(pr.RawQuery), body)
	if err != nil {
		return nil, model.Internal("build downstream request", err)
	}
	req.Header = header
	req.ContentLength = length

	f.logger.Debug("forwarding request",
		"service", pr.Target.Service,
		"method", pr.Method,
		"path", pr.Target.Path,
		"identity", pr.Identity != nil,
	)

	resp, err := f.client.Do(pr.Target.Service, req)
	if err != nil {
		return nil, err
	}

	resp.Header = relayHeader(resp.Header)
	return resp, nil
}

// outboundHeader copies src minus Host, hop-by-hop headers, and any header
// named in Connection.
func outboundHeader(src http.Header) http.Header {
	dst := src.Clone()
	if dst == nil {
		dst = make(http.Header)
	}
	for _, v := range src.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				delFold(dst, name)
			}
		}
	}
	for _, h := range hopByHopRequestHeaders {
		delFold(dst, h)
	}
	return dst
}

// relayHeader copies src minus the headers invalidated by relaying. Every
// other header keeps all of its values, including repeated Set-Cookie.
func relayHeader(src http.Header) http.Header {
	dst := src.Clone()
	if dst == nil {
		dst = make(http.Header)
	}
	for _, h := range excludedResponseHeaders {
		delFold(dst, h)
	}
	return dst
}
