// Package auth validates bearer tokens against the auth service and gates
// routes on the resulting identity.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"library-gateway/internal/client"
	"library-gateway/internal/config"
	"library-gateway/internal/metrics"
	"library-gateway/internal/model"
)

const bearerPrefix = "Bearer "

// maxValidateBody bounds how much of the auth service's reply is read.
const maxValidateBody = 64 << 10

// TokenValidator turns an Authorization header into an Identity.
type TokenValidator interface {
	Validate(ctx context.Context, authorization string) (*model.Identity, error)
}

// Validator calls the auth service's internal validation endpoint.
// It makes exactly one attempt per call.
type Validator struct {
	client  *client.Client
	target  model.ProxyTarget
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewValidator creates a Validator for the configured auth service.
// The metrics parameter is optional.
func NewValidator(cfg *config.Config, c *client.Client, logger *slog.Logger, m *metrics.Metrics) (*Validator, error) {
	raw, ok := cfg.Services[cfg.Auth.Service]
	if !ok {
		return nil, fmt.Errorf("auth service %q is not configured", cfg.Auth.Service)
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse auth service url: %w", err)
	}

	return &Validator{
		client:  c,
		target:  model.ProxyTarget{Service: cfg.Auth.Service, BaseURL: base, Path: cfg.Auth.ValidatePath},
		timeout: cfg.Auth.ValidateTimeout(),
		logger:  logger.With("component", "token_validator"),
		metrics: m,
	}, nil
}

type validateResponse struct {
	Valid *bool `json:"valid"`
	User  *struct {
		UserID subjectID `json:"user_id"`
		Role   string    `json:"role"`
	} `json:"user"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// subjectID accepts both JSON strings and numbers.
type subjectID string

func (s *subjectID) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		*s = subjectID(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("user_id must be a string or number: %w", err)
	}
	*s = subjectID(n.String())
	return nil
}

// Validate checks authorization with the auth service. Malformed headers are
// rejected without a network call. Every failure is a *model.GatewayError.
func (v *Validator) Validate(ctx context.Context, authorization string) (*model.Identity, error) {
	id, err := v.validate(ctx, authorization)
	v.record(err)
	return id, err
}

func (v *Validator) validate(ctx context.Context, authorization string) (*model.Identity, error) {
	if !wellFormed(authorization) {
		return nil, model.Unauthorized(model.ReasonMissingOrMalformed, 0)
	}

	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.target.URL(""), http.NoBody)
	if err != nil {
		return nil, model.Internal("build validate request", err)
	}
	req.Header.Set("Authorization", authorization)
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(v.target.Service, req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxValidateBody))
	if err != nil {
		return nil, client.Classify(err)
	}

	if resp.StatusCode != http.StatusOK {
		var er errorResponse
		_ = json.Unmarshal(body, &er)
		reason := er.Error
		if reason == "" {
			reason = "Invalid token"
		}
		return nil, model.Unauthorized(reason, resp.StatusCode)
	}

	var vr validateResponse
	if err := json.Unmarshal(body, &vr); err != nil {
		return nil, model.Internal("decode validate response", err)
	}
	if vr.Valid != nil && !*vr.Valid {
		return nil, model.Unauthorized("Invalid token", resp.StatusCode)
	}
	if vr.User == nil || vr.User.UserID == "" || vr.User.Role == "" {
		return nil, model.Internal("validate response missing user_id or role", errors.New(string(body)))
	}

	return &model.Identity{
		SubjectID: string(vr.User.UserID),
		Role:      model.Role(vr.User.Role),
	}, nil
}

func (v *Validator) record(err error) {
	outcome := "ok"
	if err != nil {
		outcome = model.KindInternal.String()
		var gerr *model.GatewayError
		if errors.As(err, &gerr) {
			outcome = gerr.Kind.String()
		}
		v.logger.Debug("token validation failed", "outcome", outcome, "err", err)
	}
	if v.metrics != nil {
		v.metrics.AuthValidations.WithLabelValues(outcome).Inc()
	}
}

// wellFormed reports whether h has the shape "Bearer <token>".
func wellFormed(h string) bool {
	if !strings.HasPrefix(h, bearerPrefix) {
		return false
	}
	token := h[len(bearerPrefix):]
	return token != "" && !strings.ContainsAny(token, " \t\r\n")
}
