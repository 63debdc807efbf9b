// Package acl composes the initialization guard with the single-owner and
// multi-role authorization strategies into one guarded object. Strategies are
// held as explicit fields rather than inherited, so there is never ambiguity
// about which state a gate consults.
package acl

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/gatekit/gatekit/internal/capability"
	"github.com/gatekit/gatekit/internal/guard"
	"github.com/gatekit/gatekit/internal/ownable"
	"github.com/gatekit/gatekit/internal/roles"
	"github.com/gatekit/gatekit/internal/roleset"
	"github.com/gatekit/gatekit/internal/shared"
)

var (
	// ErrNoStrategy indicates an initialize request enabling neither
	// authorization strategy.
	ErrNoStrategy = errors.New("acl: initialize requires an owner or roles")
	// ErrUnknownRole indicates a role token that is neither a bit index nor
	// a name registered in the object's role book.
	ErrUnknownRole = errors.New("acl: unknown role")
	// ErrEmptyRequirement indicates an authorize call with no gates at all.
	ErrEmptyRequirement = errors.New("acl: empty authorization requirement")
)

// Object is one guarded instance: allocated inert, configured exactly once,
// then mutated only through its gated operations.
type Object struct {
	id        uuid.UUID
	guard     guard.Guard
	owner     *ownable.Ownable
	authority *roles.Authority
	caps      *capability.Set
	book      *roleset.Book

	pending []Event
}

// InitParams configures the one-shot initializer.
type InitParams struct {
	// Owner enables single-owner authorization when non-nil.
	Owner shared.Principal
	// EnableRoles enables multi-role authorization even without seeds.
	EnableRoles bool
	// Grants seeds initial role sets.
	Grants map[shared.Principal]roleset.Set
	// RoleNames defines the object's named role table.
	RoleNames map[string]roleset.Role
}

func (p InitParams) rolesEnabled() bool {
	return p.EnableRoles || len(p.Grants) > 0 || len(p.RoleNames) > 0
}

// New allocates an uninitialized object.
func New(id uuid.UUID) *Object {
	return &Object{id: id, caps: capability.NewSet()}
}

// ID returns the object identity.
func (o *Object) ID() uuid.UUID {
	return o.id
}

// Initialized reports whether the initializer has completed.
func (o *Object) Initialized() bool {
	return o.guard.Initialized()
}

// State returns the lifecycle state name.
func (o *Object) State() guard.State {
	return o.guard.State()
}

// Initialize runs the one-shot setup: it seeds the chosen authorization
// strategies and registers their capability IDs. On any failure the object
// rolls back whole, as if the call never happened.
func (o *Object) Initialize(caller shared.Principal, params InitParams) error {
	if params.Owner.IsNil() && !params.rolesEnabled() {
		return ErrNoStrategy
	}
	err := o.guard.Initialize(func() error {
		if !params.Owner.IsNil() {
			if err := o.guard.Layer("owner", func() error {
				own := &ownable.Ownable{}
				if err := own.InitializeOwner(params.Owner); err != nil {
					return err
				}
				o.owner = own
				o.caps.Register(capability.OwnerGated)
				return nil
			}); err != nil {
				return err
			}
		}
		if params.rolesEnabled() {
			if err := o.guard.Layer("roles", func() error {
				book, err := roleset.NewBook(params.RoleNames)
				if err != nil {
					return err
				}
				auth := roles.NewAuthority()
				// The owner (or, for ownerless objects, the initializing
				// caller) bootstraps role administration.
				bootstrap := params.Owner
				if bootstrap.IsNil() {
					bootstrap = caller
				}
				if !bootstrap.IsNil() {
					if err := auth.InitializeRoles(bootstrap, roleset.Of(roles.DefaultAdmin)); err != nil {
						return err
					}
				}
				for p, set := range params.Grants {
					if err := auth.InitializeRoles(p, set); err != nil {
						return fmt.Errorf("acl: seed roles for %q: %w", p, err)
					}
				}
				o.book = book
				o.authority = auth
				o.caps.Register(capability.RoleGated)
				return nil
			}); err != nil {
				return err
			}
		}
		o.caps.Register(capability.Introspection)
		return nil
	})
	if err != nil {
		o.owner = nil
		o.authority = nil
		o.book = nil
		o.caps = capability.NewSet()
		return err
	}
	o.emit(EventInitialized, caller, map[string]any{
		"owner":         params.Owner.String(),
		"roles_enabled": params.rolesEnabled(),
	})
	return nil
}

// Owner returns the current owner, or the null sentinel when the object has
// no owner strategy or was never initialized.
func (o *Object) Owner() shared.Principal {
	return o.owner.Owner()
}

// TransferOwnership replaces the owner, gated to the current owner.
func (o *Object) TransferOwnership(caller, newOwner shared.Principal) error {
	if o.owner == nil {
		return shared.ErrUnauthorized
	}
	old, err := o.owner.TransferOwnership(caller, newOwner)
	if err != nil {
		return err
	}
	o.emit(EventOwnershipChanged, caller, map[string]any{
		"old_owner": old.String(),
		"new_owner": newOwner.String(),
	})
	return nil
}

// RenounceOwnership irreversibly clears the owner.
func (o *Object) RenounceOwnership(caller shared.Principal) error {
	if o.owner == nil {
		return shared.ErrUnauthorized
	}
	old, err := o.owner.RenounceOwnership(caller)
	if err != nil {
		return err
	}
	o.emit(EventOwnershipChanged, caller, map[string]any{
		"old_owner": old.String(),
		"new_owner": "",
	})
	return nil
}

// HasRole reports whether p holds role r.
func (o *Object) HasRole(p shared.Principal, r roleset.Role) bool {
	return o.authority.HasRole(p, r)
}

// HasAnyRole reports whether p holds at least one role from set.
func (o *Object) HasAnyRole(p shared.Principal, set roleset.Set) bool {
	return o.authority.HasAnyRole(p, set)
}

// RolesOf returns p's role set.
func (o *Object) RolesOf(p shared.Principal) roleset.Set {
	return o.authority.RolesOf(p)
}

// RoleAdmin returns the admin role currently linked to r.
func (o *Object) RoleAdmin(r roleset.Role) roleset.Role {
	return o.authority.RoleAdmin(r)
}

// GrantRole sets role r on p, gated to r's admin role.
func (o *Object) GrantRole(caller, p shared.Principal, r roleset.Role) error {
	if o.authority == nil {
		return shared.ErrUnauthorized
	}
	if err := o.authority.Grant(caller, p, r); err != nil {
		return err
	}
	o.emit(EventRoleGranted, caller, map[string]any{
		"principal":  p.String(),
		"role":       int(r),
		"granted_by": caller.String(),
	})
	return nil
}

// RevokeRole clears role r on p, gated to r's admin role.
func (o *Object) RevokeRole(caller, p shared.Principal, r roleset.Role) error {
	if o.authority == nil {
		return shared.ErrUnauthorized
	}
	if err := o.authority.Revoke(caller, p, r); err != nil {
		return err
	}
	o.emit(EventRoleRevoked, caller, map[string]any{
		"principal":  p.String(),
		"role":       int(r),
		"revoked_by": caller.String(),
	})
	return nil
}

// RenounceRole lets the caller drop their own role.
func (o *Object) RenounceRole(caller shared.Principal, r roleset.Role) error {
	if o.authority == nil {
		return shared.ErrUnauthorized
	}
	if err := o.authority.Renounce(caller, r); err != nil {
		return err
	}
	o.emit(EventRoleRevoked, caller, map[string]any{
		"principal":  caller.String(),
		"role":       int(r),
		"revoked_by": caller.String(),
	})
	return nil
}

// SetRoleAdmin relinks r's admin role, gated to the current admin.
func (o *Object) SetRoleAdmin(caller shared.Principal, r, newAdmin roleset.Role) error {
	if o.authority == nil {
		return shared.ErrUnauthorized
	}
	if err := o.authority.SetRoleAdmin(caller, r, newAdmin); err != nil {
		return err
	}
	o.emit(EventRoleAdminChanged, caller, map[string]any{
		"role":       int(r),
		"admin_role": int(newAdmin),
	})
	return nil
}

// Supports reports whether the object registered the given capability.
func (o *Object) Supports(id capability.ID) bool {
	return o.caps.Supports(id)
}

// Capabilities lists all registered capability IDs.
func (o *Object) Capabilities() []capability.ID {
	return o.caps.List()
}

// ResolveRole maps a role token to a bit position. Tokens are either a
// decimal bit index or a name from the object's role book.
func (o *Object) ResolveRole(token string) (roleset.Role, error) {
	return ResolveRoleToken(o.book, token)
}

// ResolveRoleToken maps a role token to a bit position against the given
// role book. Tokens are either a decimal bit index or a registered name.
func ResolveRoleToken(book *roleset.Book, token string) (roleset.Role, error) {
	if idx, err := strconv.Atoi(token); err == nil {
		if idx < 0 || idx > 255 {
			return 0, ErrUnknownRole
		}
		return roleset.Role(idx), nil
	}
	if r, ok := book.Resolve(token); ok {
		return r, nil
	}
	return 0, ErrUnknownRole
}

// Requirement describes one authorize call: the caller passes if any of the
// requested gates allows them.
type Requirement struct {
	Owner    bool
	AnyRoles roleset.Set
}

// Authorize runs the OR-composed gate for a business operation.
func (o *Object) Authorize(caller shared.Principal, req Requirement) error {
	var gates []capability.Gate
	if req.Owner {
		gates = append(gates, capability.GateFunc(func(p shared.Principal) error {
			if o.owner == nil {
				return shared.ErrUnauthorized
			}
			return o.owner.RequireOwner(p)
		}))
	}
	if !req.AnyRoles.IsZero() {
		set := req.AnyRoles
		gates = append(gates, capability.GateFunc(func(p shared.Principal) error {
			if !o.authority.HasAnyRole(p, set) {
				return shared.ErrUnauthorized
			}
			return nil
		}))
	}
	if len(gates) == 0 {
		return ErrEmptyRequirement
	}
	return capability.AnyOf(gates...).Allow(caller)
}
