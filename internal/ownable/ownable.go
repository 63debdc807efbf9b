// Package ownable tracks one privileged principal per object and gates
// operations to it, with transfer and irreversible renouncement.
package ownable

import (
	"errors"

	"github.com/gatekit/gatekit/internal/shared"
)

// ErrInvalidOwner indicates the null sentinel was supplied where a real
// owner is required.
var ErrInvalidOwner = errors.New("ownable: invalid owner")

// Ownable holds the ownership record. The zero value is unowned.
type Ownable struct {
	owner shared.Principal
}

// InitializeOwner seeds the record. It is meant to run inside the
// initialization guard's Initializing phase, before any gated operation.
func (o *Ownable) InitializeOwner(p shared.Principal) error {
	if p.IsNil() {
		return ErrInvalidOwner
	}
	o.owner = p
	return nil
}

// Owner returns the current owner, or the null sentinel when unowned.
func (o *Ownable) Owner() shared.Principal {
	if o == nil {
		return shared.NilPrincipal
	}
	return o.owner
}

// RequireOwner is the gate behind every owner-only operation. In a renounced
// or uninitialized state nothing is owner-authorized, including a caller
// appearing to be the sentinel itself.
func (o *Ownable) RequireOwner(caller shared.Principal) error {
	if o == nil || caller.IsNil() || o.owner.IsNil() || caller != o.owner {
		return shared.ErrUnauthorized
	}
	return nil
}

// TransferOwnership replaces the owner. Only the current owner may call it.
// The previous owner is returned for event emission.
func (o *Ownable) TransferOwnership(caller, newOwner shared.Principal) (shared.Principal, error) {
	if err := o.RequireOwner(caller); err != nil {
		return shared.NilPrincipal, err
	}
	if newOwner.IsNil() {
		return shared.NilPrincipal, ErrInvalidOwner
	}
	old := o.owner
	o.owner = newOwner
	return old, nil
}

// RenounceOwnership sets the owner to the null sentinel, permanently
// disabling owner-gated operations. There is no re-initialization path.
func (o *Ownable) RenounceOwnership(caller shared.Principal) (shared.Principal, error) {
	if err := o.RequireOwner(caller); err != nil {
		return shared.NilPrincipal, err
	}
	old := o.owner
	o.owner = shared.NilPrincipal
	return old, nil
}

// Restore rehydrates the record from persisted state.
func (o *Ownable) Restore(owner shared.Principal) {
	o.owner = owner
}
