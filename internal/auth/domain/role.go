package domain

import (
	"fmt"
	"slices"
	"strings"
)

// Role is a coarse user classification carried in access tokens.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleStaff   Role = "staff"
	RoleStudent Role = "student"
)

// Permission names a capability checked by route guards and downstream
// services.
type Permission string

const (
	PermUsersRead         Permission = "users:read"
	PermUsersWrite        Permission = "users:write"
	PermKeysManage        Permission = "keys:manage"
	PermResidencesRead    Permission = "residences:read"
	PermResidencesWrite   Permission = "residences:write"
	PermApplicationsRead  Permission = "applications:read"
	PermApplicationsWrite Permission = "applications:write"
	PermReportsRead       Permission = "reports:read"
)

var allPermissions = []Permission{
	PermUsersRead, PermUsersWrite, PermKeysManage,
	PermResidencesRead, PermResidencesWrite,
	PermApplicationsRead, PermApplicationsWrite,
	PermReportsRead,
}

var rolePermissions = map[Role][]Permission{
	RoleAdmin: allPermissions,
	RoleStaff: {
		PermUsersRead,
		PermResidencesRead, PermResidencesWrite,
		PermApplicationsRead, PermApplicationsWrite,
		PermReportsRead,
	},
	RoleStudent: {
		PermResidencesRead,
		PermApplicationsRead, PermApplicationsWrite,
	},
}

// Legacy Portuguese role names still sent by older clients.
var roleAliases = map[string]Role{
	"administrador": RoleAdmin,
	"funcionario":   RoleStaff,
	"estudante":     RoleStudent,
}

// ParseRole accepts canonical names and legacy aliases, case-insensitively.
func ParseRole(s string) (Role, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if alias, ok := roleAliases[s]; ok {
		return alias, nil
	}
	r := Role(s)
	if _, ok := rolePermissions[r]; !ok {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// ParseRoles parses and de-duplicates, preserving first-seen order.
func ParseRoles(in []string) ([]Role, error) {
	out := make([]Role, 0, len(in))
	for _, s := range in {
		r, err := ParseRole(s)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(out, r) {
			out = append(out, r)
		}
	}
	return out, nil
}

// RoleStrings converts roles to claim values.
func RoleStrings(roles []Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}

// HasPermission reports whether any of the named roles grants perm.
// Unknown role names grant nothing.
func HasPermission(roles []string, perm string) bool {
	for _, name := range roles {
		if slices.Contains(rolePermissions[Role(name)], Permission(perm)) {
			return true
		}
	}
	return false
}

// PermissionsFor returns the union of permissions granted by roles, in a
// stable order.
func PermissionsFor(roles []string) []string {
	out := make([]string, 0, len(allPermissions))
	for _, p := range allPermissions {
		if HasPermission(roles, string(p)) {
			out = append(out, string(p))
		}
	}
	return out
}
