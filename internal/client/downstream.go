// Package client provides the pooled outbound HTTP client used for every downstream call.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"library-gateway/internal/config"
	"library-gateway/internal/metrics"
	"library-gateway/internal/model"
)

// Client sends requests to downstream services. It is safe for concurrent use;
// connections are pooled per host by the shared transport.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// New creates a Client with connection pooling and a fixed timeout.
// Redirects are never followed so the caller sees the downstream 3xx as-is.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func New(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *Client {
	timeout := cfg.Upstream.UpstreamTimeout()
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger:  logger.With("component", "downstream_client"),
		metrics: m,
	}
}

// Do executes req against the named service and returns the raw response.
// The caller is responsible for closing the response body.
// Transport failures come back as *model.GatewayError of kind Timeout or Unavailable.
func (c *Client) Do(service string, req *http.Request) (*model.ProxyResponse, error) {
	c.logger.Debug("downstream request",
		"service", service,
		"method", req.Method,
		"path", req.URL.Path,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via ProxyResponse
	duration := time.Since(start).Seconds()

	method := metrics.NormalizeMethod(req.Method)
	if c.metrics != nil {
		c.metrics.UpstreamDuration.WithLabelValues(service, method).Observe(duration)
	}

	if err != nil {
		gerr := Classify(err)
		if c.metrics != nil {
			c.metrics.UpstreamFailures.WithLabelValues(service, gerr.Kind.String()).Inc()
		}
		return nil, gerr
	}

	if c.metrics != nil {
		c.metrics.UpstreamResponses.WithLabelValues(service, method, strconv.Itoa(resp.StatusCode)).Inc()
	}

	return &model.ProxyResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}

// Classify turns a transport error into the gateway taxonomy.
// Deadlines map to Timeout; refused connections, DNS failures, resets and
// caller cancellation map to Unavailable.
func Classify(err error) *model.GatewayError {
	if errors.Is(err, context.DeadlineExceeded) {
		return model.Timeout(model.ReasonTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.Timeout(model.ReasonTimeout, err)
	}
	return model.Unavailable(model.ReasonServiceUnavailable, fmt.Errorf("downstream call: %w", err))
}
