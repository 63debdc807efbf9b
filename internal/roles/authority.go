// Package roles implements multi-role authorization: independent per-principal
// role flags, admin-gated grant/revoke, and per-role admin links.
package roles

import (
	"github.com/gatekit/gatekit/internal/roleset"
	"github.com/gatekit/gatekit/internal/shared"
)

// DefaultAdmin is the role whose holders administer every role without an
// explicit admin link.
const DefaultAdmin roleset.Role = 0

// Authority tracks role assignments and admin links for one object.
type Authority struct {
	assignments map[shared.Principal]roleset.Set
	admins      map[roleset.Role]roleset.Role
}

// NewAuthority returns an empty Authority: no principal holds any role.
func NewAuthority() *Authority {
	return &Authority{
		assignments: make(map[shared.Principal]roleset.Set),
		admins:      make(map[roleset.Role]roleset.Role),
	}
}

// InitializeRoles seeds a principal's role set without an admin gate. It is
// meant to run inside the initialization guard's Initializing phase only.
func (a *Authority) InitializeRoles(p shared.Principal, set roleset.Set) error {
	if p.IsNil() {
		return shared.ErrUnauthorized
	}
	a.set(p, a.RolesOf(p).Union(set))
	return nil
}

// HasRole reports whether p holds role r. Absent principals hold nothing.
func (a *Authority) HasRole(p shared.Principal, r roleset.Role) bool {
	if a == nil {
		return false
	}
	return a.assignments[p].Has(r)
}

// HasAnyRole reports whether p holds at least one role from the given set.
func (a *Authority) HasAnyRole(p shared.Principal, set roleset.Set) bool {
	if a == nil {
		return false
	}
	return a.assignments[p].Intersects(set)
}

// RolesOf returns p's current role set.
func (a *Authority) RolesOf(p shared.Principal) roleset.Set {
	if a == nil {
		return roleset.Set{}
	}
	return a.assignments[p]
}

// RoleAdmin returns the admin role linked to r, falling back to DefaultAdmin
// for unlinked roles.
func (a *Authority) RoleAdmin(r roleset.Role) roleset.Role {
	if a != nil {
		if admin, ok := a.admins[r]; ok {
			return admin
		}
	}
	return DefaultAdmin
}

// RequireRoleAdmin gates administrative changes to role r.
func (a *Authority) RequireRoleAdmin(caller shared.Principal, r roleset.Role) error {
	if a == nil || caller.IsNil() || !a.HasRole(caller, a.RoleAdmin(r)) {
		return shared.ErrUnauthorized
	}
	return nil
}

// Grant sets role r on p. Granting an already-held role is a no-op success.
func (a *Authority) Grant(caller, p shared.Principal, r roleset.Role) error {
	if err := a.RequireRoleAdmin(caller, r); err != nil {
		return err
	}
	if p.IsNil() {
		return shared.ErrUnauthorized
	}
	a.set(p, a.RolesOf(p).With(r))
	return nil
}

// Revoke clears role r on p. Revoking an unheld role is a no-op success.
func (a *Authority) Revoke(caller, p shared.Principal, r roleset.Role) error {
	if err := a.RequireRoleAdmin(caller, r); err != nil {
		return err
	}
	if p.IsNil() {
		return shared.ErrUnauthorized
	}
	a.set(p, a.RolesOf(p).Without(r))
	return nil
}

// Renounce lets a caller drop their own role without holding the admin role.
// It cannot touch another principal's roles.
func (a *Authority) Renounce(caller shared.Principal, r roleset.Role) error {
	if a == nil || caller.IsNil() {
		return shared.ErrUnauthorized
	}
	a.set(caller, a.RolesOf(caller).Without(r))
	return nil
}

// SetRoleAdmin relinks role r to a new admin role. Only a holder of the
// current admin role may do this.
func (a *Authority) SetRoleAdmin(caller shared.Principal, r, newAdmin roleset.Role) error {
	if err := a.RequireRoleAdmin(caller, r); err != nil {
		return err
	}
	a.admins[r] = newAdmin
	return nil
}

// Assignments returns a copy of all non-empty role assignments.
func (a *Authority) Assignments() map[shared.Principal]roleset.Set {
	out := make(map[shared.Principal]roleset.Set, len(a.assignments))
	for p, set := range a.assignments {
		out[p] = set
	}
	return out
}

// AdminLinks returns a copy of the explicit admin overrides.
func (a *Authority) AdminLinks() map[roleset.Role]roleset.Role {
	out := make(map[roleset.Role]roleset.Role, len(a.admins))
	for r, admin := range a.admins {
		out[r] = admin
	}
	return out
}

// Restore rehydrates the authority from persisted state.
func Restore(assignments map[shared.Principal]roleset.Set, admins map[roleset.Role]roleset.Role) *Authority {
	a := NewAuthority()
	for p, set := range assignments {
		if !set.IsZero() {
			a.assignments[p] = set
		}
	}
	for r, admin := range admins {
		a.admins[r] = admin
	}
	return a
}

// set stores a role set, dropping empty entries so that absence stays
// equivalent to the all-zero set.
func (a *Authority) set(p shared.Principal, set roleset.Set) {
	if set.IsZero() {
		delete(a.assignments, p)
		return
	}
	a.assignments[p] = set
}
