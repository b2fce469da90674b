// Package access implements role-based permissions for firm members.
package access

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrForbidden is returned when a principal lacks a permission.
var ErrForbidden = errors.New("forbidden")

// ErrUnauthenticated is returned when a principal carries no identity.
var ErrUnauthenticated = errors.New("unauthenticated")

// Permission names an action on a resource family.
type Permission string

const (
	ClientsRead   Permission = "clients:read"
	ClientsWrite  Permission = "clients:write"
	CasesRead     Permission = "cases:read"
	CasesWrite    Permission = "cases:write"
	TasksRead     Permission = "tasks:read"
	TasksWrite    Permission = "tasks:write"
	HRRead        Permission = "hr:read"
	HRWrite       Permission = "hr:write"
	BillingRead   Permission = "billing:read"
	BillingWrite  Permission = "billing:write"
	AnalyticsRead Permission = "analytics:read"
	Admin         Permission = "admin"
)

// Role is a named set of permissions.
type Role string

const (
	RoleAdmin     Role = "admin"
	RolePartner   Role = "partner"
	RoleAssociate Role = "associate"
	RoleHR        Role = "hr"
	RoleAssistant Role = "assistant"
)

var rolePermissions = map[Role][]Permission{
	RoleAdmin: {Admin},
	RolePartner: {
		ClientsRead, ClientsWrite, CasesRead, CasesWrite, TasksRead, TasksWrite,
		HRRead, HRWrite, BillingRead, BillingWrite, AnalyticsRead,
	},
	RoleAssociate: {
		ClientsRead, ClientsWrite, CasesRead, CasesWrite, TasksRead, TasksWrite,
		BillingRead, AnalyticsRead,
	},
	RoleHR:        {HRRead, HRWrite, ClientsRead},
	RoleAssistant: {ClientsRead, CasesRead, TasksRead},
}

// Permissions returns the permissions granted by r. Unknown roles grant none.
func (r Role) Permissions() []Permission {
	return append([]Permission(nil), rolePermissions[r]...)
}

// Known reports whether r is a built-in role.
func (r Role) Known() bool {
	_, ok := rolePermissions[r]
	return ok
}

// Principal is the authenticated actor of a request.
type Principal struct {
	OrgID  string
	UserID string
	Roles  []Role
}

// Can reports whether any of the principal's roles grants p.
// The admin permission implies every other permission.
func (p Principal) Can(perm Permission) bool {
	for _, r := range p.Roles {
		for _, granted := range rolePermissions[r] {
			if granted == Admin || granted == perm {
				return true
			}
		}
	}
	return false
}

// Check returns nil when p may perform perm.
func Check(p Principal, perm Permission) error {
	if p.OrgID == "" || p.UserID == "" {
		return ErrUnauthenticated
	}
	if !p.Can(perm) {
		return fmt.Errorf("%w: missing %s", ErrForbidden, perm)
	}
	return nil
}

// Effective lists every permission the principal holds, sorted.
func (p Principal) Effective() []Permission {
	seen := map[Permission]bool{}
	for _, r := range p.Roles {
		for _, perm := range rolePermissions[r] {
			seen[perm] = true
		}
	}
	out := make([]Permission, 0, len(seen))
	for perm := range seen {
		out = append(out, perm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseRoles parses a comma-separated role list. Blank items are skipped,
// names are lower-cased and duplicates dropped.
func ParseRoles(s string) []Role {
	var roles []Role
	seen := map[Role]bool{}
	for _, part := range strings.Split(s, ",") {
		r := Role(strings.ToLower(strings.TrimSpace(part)))
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		roles = append(roles, r)
	}
	return roles
}
