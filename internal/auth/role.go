// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

package auth

import (
	"strings"

	"github.com/samber/oops"
)

// Role is the coarse-grained identity class of a user.
type Role string

// Known roles.
const (
	RoleStudent  Role = "student"
	RoleLecturer Role = "lecturer"
	RoleAdmin    Role = "admin"
	RoleGuest    Role = "guest"
)

// AllRoles lists every known role in a stable order.
var AllRoles = []Role{RoleStudent, RoleLecturer, RoleAdmin, RoleGuest}

// ParseRole converts s into a Role. Matching is case-insensitive.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", oops.Code("AUTH_INVALID_ROLE").With("role", s).Errorf("unknown role %q", s)
	}
	return r, nil
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleLecturer, RoleAdmin, RoleGuest:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

// In reports whether r is contained in roles.
func (r Role) In(roles ...Role) bool {
	for _, candidate := range roles {
		if r == candidate {
			return true
		}
	}
	return false
}
