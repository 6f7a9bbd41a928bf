// Package permissions decides whether a user may perform an action.
//
// A Table is built once from role definitions and never changes afterwards.
// Every check is a pure function of (table, role, permission); a nil user or
// a role missing from the table is always denied.
package permissions

import (
	"fmt"
	"sort"
	"strings"

	"socsync/pkg/models"
)

// RoleDefinition binds a role to its permission set. Definitions passed to
// NewTable are ordered from lowest to highest rank.
type RoleDefinition struct {
	Role        models.Role  `yaml:"role" json:"role"`
	Permissions []Permission `yaml:"permissions" json:"permissions"`
}

// Decision is the detailed result of CheckPermissions.
type Decision struct {
	Allowed bool
	Reason  string
	Missing []Permission
}

// Table is the immutable role to permission mapping.
type Table struct {
	grants map[models.Role]map[Permission]struct{}
	rank   map[models.Role]int
	order  []models.Role
}

// NewTable builds a table from role definitions, lowest rank first.
func NewTable(defs []RoleDefinition) (*Table, error) {
	t := &Table{
		grants: make(map[models.Role]map[Permission]struct{}, len(defs)),
		rank:   make(map[models.Role]int, len(defs)),
	}
	for i, def := range defs {
		role := models.Role(strings.TrimSpace(string(def.Role)))
		if role == "" {
			return nil, fmt.Errorf("role definition %d has no role", i)
		}
		if _, dup := t.grants[role]; dup {
			return nil, fmt.Errorf("duplicate role %s", role)
		}
		set := make(map[Permission]struct{}, len(def.Permissions))
		for _, p := range def.Permissions {
			set[p] = struct{}{}
		}
		t.grants[role] = set
		t.rank[role] = i
		t.order = append(t.order, role)
	}
	return t, nil
}

// DefaultTable returns the built-in table.
func DefaultTable() *Table {
	t, err := NewTable(DefaultRoles())
	if err != nil {
		panic(err)
	}
	return t
}

// Roles returns the roles known to the table, lowest rank first.
func (t *Table) Roles() []models.Role {
	return append([]models.Role(nil), t.order...)
}

// PermissionsFor resolves the permission set of a role, sorted by name.
func (t *Table) PermissionsFor(role models.Role) []Permission {
	set := t.grants[role]
	out := make([]Permission, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RoleHas reports whether role holds perm.
func (t *Table) RoleHas(role models.Role, perm Permission) bool {
	if t == nil {
		return false
	}
	set, ok := t.grants[role]
	if !ok {
		return false
	}
	_, ok = set[perm]
	return ok
}

// HasPermission reports whether user holds perm.
func (t *Table) HasPermission(user *models.User, perm Permission) bool {
	if user == nil {
		return false
	}
	return t.RoleHas(user.Role, perm)
}

// HasAllPermissions reports whether user holds every perm. An empty list
// still requires a known user.
func (t *Table) HasAllPermissions(user *models.User, perms ...Permission) bool {
	if user == nil || !t.known(user.Role) {
		return false
	}
	for _, p := range perms {
		if !t.RoleHas(user.Role, p) {
			return false
		}
	}
	return true
}

// HasAnyPermission reports whether user holds at least one perm.
func (t *Table) HasAnyPermission(user *models.User, perms ...Permission) bool {
	for _, p := range perms {
		if t.HasPermission(user, p) {
			return true
		}
	}
	return false
}

// CheckPermissions explains why user may or may not act.
func (t *Table) CheckPermissions(user *models.User, required ...Permission) Decision {
	if user == nil {
		return Decision{Allowed: false, Reason: "not authenticated", Missing: append([]Permission(nil), required...)}
	}
	if !t.known(user.Role) {
		return Decision{
			Allowed: false,
			Reason:  fmt.Sprintf("unknown role %q", user.Role),
			Missing: append([]Permission(nil), required...),
		}
	}
	var missing []Permission
	for _, p := range required {
		if !t.RoleHas(user.Role, p) {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		names := make([]string, len(missing))
		for i, p := range missing {
			names[i] = string(p)
		}
		return Decision{
			Allowed: false,
			Reason:  fmt.Sprintf("role %s lacks %s", user.Role, strings.Join(names, ", ")),
			Missing: missing,
		}
	}
	return Decision{Allowed: true}
}

// CheckAction checks the explicit permissions of a mutation action.
func (t *Table) CheckAction(user *models.User, action models.Action) Decision {
	return t.CheckPermissions(user, Required(action)...)
}

// CheckTransition checks an action that moves an alert from one status to
// another. It adds the status gates of RequiredForTransition to the
// action's own permissions.
func (t *Table) CheckTransition(user *models.User, action models.Action, from, to models.AlertStatus) Decision {
	required := Required(action)
	for _, p := range RequiredForTransition(from, to) {
		if !containsPermission(required, p) {
			required = append(required, p)
		}
	}
	return t.CheckPermissions(user, required...)
}

func containsPermission(list []Permission, p Permission) bool {
	for _, have := range list {
		if have == p {
			return true
		}
	}
	return false
}

// HasRoleHierarchy reports whether user ranks at least minimum. It is a
// coarse gate only; destructive actions go through CheckAction.
func (t *Table) HasRoleHierarchy(user *models.User, minimum models.Role) bool {
	if user == nil {
		return false
	}
	have, ok := t.rank[user.Role]
	if !ok {
		return false
	}
	need, ok := t.rank[minimum]
	if !ok {
		return false
	}
	return have >= need
}

func (t *Table) known(role models.Role) bool {
	if t == nil {
		return false
	}
	_, ok := t.grants[role]
	return ok
}
