package auth

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-gateway/internal/client"
	"library-gateway/internal/config"
	"library-gateway/internal/metrics"
	"library-gateway/internal/model"
)

var signingKey = []byte("test-signing-key")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// signToken issues an HS256 token the fake auth service accepts.
func signToken(t *testing.T, userID, role string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString(signingKey)
	require.NoError(t, err)
	return s
}

// fakeAuthService mimics the auth service's validate endpoint.
type fakeAuthService struct {
	*httptest.Server
	calls    atomic.Int32
	lastAuth atomic.Value
}

func newFakeAuthService(t *testing.T) *fakeAuthService {
	t.Helper()
	f := &fakeAuthService{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		f.lastAuth.Store(r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")

		if r.Method != http.MethodPost || r.URL.Path != "/auth/validate" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
			return signingKey, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Token is invalid"})
			return
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"valid": true,
			"user": map[string]any{
				"user_id": claims["sub"],
				"role":    claims["role"],
			},
		})
	}))
	t.Cleanup(f.Close)
	return f
}

func newTestValidator(t *testing.T, authURL string, m *metrics.Metrics) *Validator {
	t.Helper()
	cfg := &config.Config{
		Services: map[string]string{"auth": authURL},
		Upstream: config.UpstreamConfig{TimeoutSeconds: 10, IdleConnections: 10},
		Auth: config.AuthConfig{
			Service:        "auth",
			ValidatePath:   "/auth/validate",
			TimeoutSeconds: 1,
		},
	}
	v, err := NewValidator(cfg, client.New(cfg, discardLogger(), m), discardLogger(), m)
	require.NoError(t, err)
	return v
}

func requireKind(t *testing.T, err error, kind model.ErrorKind) *model.GatewayError {
	t.Helper()
	var gerr *model.GatewayError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, kind, gerr.Kind, "kind mismatch: %v", err)
	return gerr
}

func TestValidator_Valid(t *testing.T) {
	auth := newFakeAuthService(t)
	v := newTestValidator(t, auth.URL, nil)

	header := "Bearer " + signToken(t, "42", "ADMIN")
	id, err := v.Validate(context.Background(), header)
	require.NoError(t, err)
	assert.Equal(t, &model.Identity{SubjectID: "42", Role: model.RoleAdmin}, id)
	assert.Equal(t, int32(1), auth.calls.Load())
	assert.Equal(t, header, auth.lastAuth.Load(), "header must be passed through unchanged")
}

func TestValidator_Malformed_NoNetworkCall(t *testing.T) {
	auth := newFakeAuthService(t)
	v := newTestValidator(t, auth.URL, nil)

	tests := []struct {
		name   string
		header string
	}{
		{"empty", ""},
		{"no scheme", "abc.def.ghi"},
		{"basic scheme", "Basic dXNlcjpwYXNz"},
		{"lowercase bearer", "bearer abc"},
		{"bearer only", "Bearer "},
		{"bearer no space", "Bearer"},
		{"extra token", "Bearer abc def"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate(context.Background(), tt.header)
			gerr := requireKind(t, err, model.KindUnauthorized)
			assert.Equal(t, model.ReasonMissingOrMalformed, gerr.Reason)
		})
	}
	assert.Zero(t, auth.calls.Load(), "malformed headers must not reach the auth service")
}

func TestValidator_Rejected(t *testing.T) {
	auth := newFakeAuthService(t)
	v := newTestValidator(t, auth.URL, nil)

	_, err := v.Validate(context.Background(), "Bearer not-a-jwt")
	gerr := requireKind(t, err, model.KindUnauthorized)
	assert.Equal(t, "Token is invalid", gerr.Reason)
	assert.Equal(t, http.StatusUnauthorized, gerr.Status)
}

func TestValidator_ResponseShapes(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind model.ErrorKind
		wantID   *model.Identity
		wantMsg  string
	}{
		{
			name:   "numeric user id",
			status: http.StatusOK,
			body:   `{"valid":true,"user":{"user_id":7,"role":"USER"}}`,
			wantID: &model.Identity{SubjectID: "7", Role: model.RoleUser},
		},
		{
			name:     "valid false",
			status:   http.StatusOK,
			body:     `{"valid":false,"user":{"user_id":"1","role":"USER"}}`,
			wantKind: model.KindUnauthorized,
		},
		{
			name:     "missing role",
			status:   http.StatusOK,
			body:     `{"valid":true,"user":{"user_id":"1"}}`,
			wantKind: model.KindInternal,
		},
		{
			name:     "missing user",
			status:   http.StatusOK,
			body:     `{"valid":true}`,
			wantKind: model.KindInternal,
		},
		{
			name:     "not json",
			status:   http.StatusOK,
			body:     `<html>`,
			wantKind: model.KindInternal,
		},
		{
			name:     "non-200 without error body",
			status:   http.StatusForbidden,
			body:     ``,
			wantKind: model.KindUnauthorized,
			wantMsg:  "Invalid token",
		},
		{
			name:     "non-200 with error body",
			status:   http.StatusUnauthorized,
			body:     `{"error":"Token has expired"}`,
			wantKind: model.KindUnauthorized,
			wantMsg:  "Token has expired",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			v := newTestValidator(t, srv.URL, nil)
			id, err := v.Validate(context.Background(), "Bearer tok")
			if tt.wantID != nil {
				require.NoError(t, err)
				assert.Equal(t, tt.wantID, id)
				return
			}
			gerr := requireKind(t, err, tt.wantKind)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, gerr.Reason)
			}
		})
	}
}

func TestValidator_AuthServiceDown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	v := newTestValidator(t, "http://"+addr, nil)
	_, err = v.Validate(context.Background(), "Bearer tok")
	requireKind(t, err, model.KindUnavailable)
}

func TestValidator_AuthServiceTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	v := newTestValidator(t, srv.URL, nil)
	start := time.Now()
	_, err := v.Validate(context.Background(), "Bearer tok")
	elapsed := time.Since(start)

	requireKind(t, err, model.KindTimeout)
	assert.GreaterOrEqual(t, elapsed, 900*time.Millisecond)
	assert.Less(t, elapsed, 5*time.Second)
}

func TestValidator_RecordsOutcome(t *testing.T) {
	auth := newFakeAuthService(t)
	m := metrics.New()
	v := newTestValidator(t, auth.URL, m)

	_, err := v.Validate(context.Background(), "Bearer "+signToken(t, "1", "USER"))
	require.NoError(t, err)
	_, err = v.Validate(context.Background(), "")
	require.Error(t, err)

	families, err := m.Registry.Gather()
	require.NoError(t, err)
	got := map[string]float64{}
	for _, f := range families {
		if f.GetName() != "library_gateway_auth_validations_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == "outcome" {
					got[lp.GetValue()] = metric.GetCounter().GetValue()
				}
			}
		}
	}
	assert.Equal(t, map[string]float64{"ok": 1, "unauthorized": 1}, got)
}

func TestNewValidator_UnknownService(t *testing.T) {
	cfg := &config.Config{
		Services: map[string]string{"book": "http://book"},
		Auth:     config.AuthConfig{Service: "auth"},
	}
	_, err := NewValidator(cfg, client.New(cfg, discardLogger(), nil), discardLogger(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `auth service "auth" is not configured`)
}
