package models

import (
	"fmt"
	"sort"
)

// Role is a closed set of authorization roles.
type Role string

const (
	RoleUser  Role = "USER"
	RoleGroup Role = "GROUP"
	RoleAdmin Role = "ADMIN"
)

// ParseRole maps a stored role name to a Role. Unknown names are rejected.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleUser, RoleGroup, RoleAdmin:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// RoleSet is the set of roles held by one user.
type RoleSet map[Role]struct{}

func NewRoleSet(roles ...Role) RoleSet {
	s := make(RoleSet, len(roles))
	for _, r := range roles {
		s[r] = struct{}{}
	}
	return s
}

func (s RoleSet) Has(r Role) bool {
	_, ok := s[r]
	return ok
}

// Sorted returns the roles in a stable order, for responses.
func (s RoleSet) Sorted() []Role {
	out := make([]Role, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
