package service

import (
	"net/http"
	"strings"

	"library-gateway/internal/model"
)

// HeaderInjector writes the trust headers that carry a validated identity downstream.
type HeaderInjector struct {
	userIDHeader string
	roleHeader   string
}

// NewHeaderInjector creates a HeaderInjector for the given header names.
func NewHeaderInjector(userIDHeader, roleHeader string) *HeaderInjector {
	return &HeaderInjector{userIDHeader: userIDHeader, roleHeader: roleHeader}
}

// Inject removes any caller-supplied trust headers from h, then sets them from
// id when one is present. Callers can never assert an identity themselves.
func (i *HeaderInjector) Inject(h http.Header, id *model.Identity) {
	delFold(h, i.userIDHeader)
	delFold(h, i.roleHeader)
	if id == nil {
		return
	}
	h.Set(i.userIDHeader, id.SubjectID)
	h.Set(i.roleHeader, string(id.Role))
}

// delFold deletes name from h regardless of key casing.
func delFold(h http.Header, name string) {
	for key := range h {
		if strings.EqualFold(key, name) {
			delete(h, key)
		}
	}
}
