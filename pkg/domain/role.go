package domain

import (
	dErrors "landregistry/pkg/domain-errors"
)

// Role is the opaque actor role supplied by the actor directory. The core
// never re-derives it; every guard treats it as an enum of exactly three
// values.
//
// Usage: construct via ParseRole at trust boundaries; direct casting bypasses
// validation.
type Role string

const (
	RoleCitizen     Role = "citizen"
	RoleLandOfficer Role = "land_officer"
	RoleAdmin       Role = "admin"
)

var validRoles = map[Role]bool{
	RoleCitizen:     true,
	RoleLandOfficer: true,
	RoleAdmin:       true,
}

// ParseRole constructs a Role from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseRole(s string) (Role, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "role cannot be empty")
	}
	r := Role(s)
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown role")
	}
	return r, nil
}

// IsValid checks if the role is one of the supported enum values.
func (r Role) IsValid() bool {
	return validRoles[r]
}

// IsOfficerOrAdmin reports whether the role carries review authority.
// Land officers and admins share most transition rights; the few admin-only
// operations (transfer completion, dispute assignment) check RoleAdmin
// explicitly.
func (r Role) IsOfficerOrAdmin() bool {
	return r == RoleLandOfficer || r == RoleAdmin
}

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}
