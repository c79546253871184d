// Package permission maps roles to static permission sets.
//
// Role resolution is a pure table lookup, built once at startup and
// immutable afterward, so snapshot rebuilds can derive permissions with
// no I/O and no locking.
package permission

import (
	"fmt"
	"sort"
)

// Policy is an immutable role-to-permissions table.
type Policy struct {
	roles map[string][]string
}

// NewPolicy copies the given table into an immutable policy. Role names
// must be non-empty and permission lists are deduplicated and sorted.
func NewPolicy(roles map[string][]string) (*Policy, error) {
	if len(roles) == 0 {
		return nil, fmt.Errorf("permission: at least one role is required")
	}

	table := make(map[string][]string, len(roles))
	for role, perms := range roles {
		if role == "" {
			return nil, fmt.Errorf("permission: empty role name")
		}
		seen := make(map[string]struct{}, len(perms))
		list := make([]string, 0, len(perms))
		for _, p := range perms {
			if p == "" {
				return nil, fmt.Errorf("permission: empty permission in role %q", role)
			}
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			list = append(list, p)
		}
		sort.Strings(list)
		table[role] = list
	}
	return &Policy{roles: table}, nil
}

// ForRole returns a copy of the role's permission set. Unknown roles get
// an empty set, never an error: an unrecognized role simply authorizes
// nothing.
func (p *Policy) ForRole(role string) []string {
	perms, ok := p.roles[role]
	if !ok {
		return []string{}
	}
	return append([]string(nil), perms...)
}

// Knows reports whether the role exists in the table.
func (p *Policy) Knows(role string) bool {
	_, ok := p.roles[role]
	return ok
}

// Roles lists the known role names in sorted order.
func (p *Policy) Roles() []string {
	out := make([]string, 0, len(p.roles))
	for role := range p.roles {
		out = append(out, role)
	}
	sort.Strings(out)
	return out
}

// DefaultRoles is the booking-platform table used when no custom table
// is configured.
func DefaultRoles() map[string][]string {
	return map[string][]string{
		"guest": {
			"booking:create", "booking:read", "booking:cancel",
			"listing:read", "review:create", "profile:manage",
		},
		"host": {
			"booking:read", "booking:respond",
			"listing:create", "listing:read", "listing:manage",
			"review:create", "review:respond", "profile:manage",
		},
		"admin": {
			"booking:read", "booking:manage",
			"listing:read", "listing:manage",
			"review:moderate", "principal:manage", "session:revoke-any",
		},
	}
}
