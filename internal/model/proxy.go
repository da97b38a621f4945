// Package model defines the transient per-request types shared by the gateway.
package model

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ProxyTarget is a downstream service base URL plus the path to call on it.
type ProxyTarget struct {
	Service string
	BaseURL *url.URL
	Path    string
}

// URL joins the base URL and the relative path and attaches rawQuery verbatim.
func (t ProxyTarget) URL(rawQuery string) string {
	u := *t.BaseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(t.Path, "/")
	u.RawPath = ""
	u.RawQuery = rawQuery
	u.Fragment = ""
	return u.String()
}

// ProxyRequest represents an inbound request to be forwarded downstream.
type ProxyRequest struct {
	Ctx      context.Context
	Method   string
	Target   ProxyTarget
	RawQuery string
	Header   http.Header
	Body     io.Reader

	// ContentLength of Body, or -1 when unknown.
	ContentLength int64

	// OverrideBody replaces Body when non-nil.
	OverrideBody []byte

	// Identity is set only when token validation succeeded for this request.
	Identity  *Identity
	RequestID string
}

// ProxyResponse represents the downstream response to be relayed back.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}
