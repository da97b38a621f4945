package model

// Role is the flat role carried by an Identity. Comparison is exact and case-sensitive.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Known reports whether r is one of the roles the gateway gates on.
func (r Role) Known() bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	}
	return false
}

// Identity is the caller identity produced by token validation.
// It lives in the request context for a single request only.
type Identity struct {
	SubjectID string
	Role      Role
}
