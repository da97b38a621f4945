package model

import (
	"fmt"
	"net/http"
)

// ErrorKind is the closed set of failures the gateway distinguishes.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindUnauthorized
	KindForbidden
	KindUnavailable
	KindTimeout
)

// Validation failure reasons.
const (
	ReasonMissingOrMalformed = "missing_or_malformed"
	ReasonServiceUnavailable = "service_unavailable"
	ReasonTimeout            = "timeout"
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindUnavailable:
		return "unavailable"
	case KindTimeout:
		return "timeout"
	default:
		return "internal"
	}
}

// HTTPStatus returns the status code the gateway answers with for k.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// GatewayError is the single error type crossing component boundaries.
// Status holds the auth service's status code when it answered with a non-200.
type GatewayError struct {
	Kind   ErrorKind
	Reason string
	Status int
	Err    error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Unauthorized builds a KindUnauthorized error.
func Unauthorized(reason string, status int) *GatewayError {
	return &GatewayError{Kind: KindUnauthorized, Reason: reason, Status: status}
}

// Forbidden builds a KindForbidden error.
func Forbidden(reason string) *GatewayError {
	return &GatewayError{Kind: KindForbidden, Reason: reason}
}

// Unavailable builds a KindUnavailable error.
func Unavailable(reason string, err error) *GatewayError {
	return &GatewayError{Kind: KindUnavailable, Reason: reason, Err: err}
}

// Timeout builds a KindTimeout error.
func Timeout(reason string, err error) *GatewayError {
	return &GatewayError{Kind: KindTimeout, Reason: reason, Err: err}
}

// Internal builds a KindInternal error.
func Internal(reason string, err error) *GatewayError {
	return &GatewayError{Kind: KindInternal, Reason: reason, Err: err}
}
