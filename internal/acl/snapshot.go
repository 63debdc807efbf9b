package acl

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/gatekit/gatekit/internal/capability"
	"github.com/gatekit/gatekit/internal/guard"
	"github.com/gatekit/gatekit/internal/ownable"
	"github.com/gatekit/gatekit/internal/roles"
	"github.com/gatekit/gatekit/internal/roleset"
	"github.com/gatekit/gatekit/internal/shared"
)

// Snapshot is the persisted form of an Object. The store treats it as an
// opaque region keyed by object identity.
type Snapshot struct {
	ID           uuid.UUID                        `json:"id"`
	State        string                           `json:"state"`
	OwnerEnabled bool                             `json:"owner_enabled"`
	Owner        shared.Principal                 `json:"owner,omitempty"`
	RolesEnabled bool                             `json:"roles_enabled"`
	Assignments  map[shared.Principal]roleset.Set `json:"assignments,omitempty"`
	AdminLinks   map[roleset.Role]roleset.Role    `json:"admin_links,omitempty"`
	RoleNames    map[string]roleset.Role          `json:"role_names,omitempty"`
	Capabilities []capability.ID                  `json:"capabilities,omitempty"`
}

// Snapshot captures the object's persistent state. Pending events are not
// part of the snapshot; they travel alongside it.
func (o *Object) Snapshot() Snapshot {
	s := Snapshot{
		ID:           o.id,
		State:        o.guard.State().String(),
		Capabilities: o.caps.List(),
	}
	if o.owner != nil {
		s.OwnerEnabled = true
		s.Owner = o.owner.Owner()
	}
	if o.authority != nil {
		s.RolesEnabled = true
		s.Assignments = o.authority.Assignments()
		s.AdminLinks = o.authority.AdminLinks()
		s.RoleNames = o.book.Definitions()
	}
	return s
}

// FromSnapshot rehydrates an Object.
func FromSnapshot(s Snapshot) (*Object, error) {
	state, err := guard.ParseState(s.State)
	if err != nil {
		return nil, fmt.Errorf("acl: snapshot %s: %w", s.ID, err)
	}
	o := New(s.ID)
	if err := o.guard.Restore(state); err != nil {
		return nil, fmt.Errorf("acl: snapshot %s: %w", s.ID, err)
	}
	if s.OwnerEnabled {
		own := &ownable.Ownable{}
		own.Restore(s.Owner)
		o.owner = own
	}
	if s.RolesEnabled {
		book, err := roleset.NewBook(s.RoleNames)
		if err != nil {
			return nil, fmt.Errorf("acl: snapshot %s: %w", s.ID, err)
		}
		o.book = book
		o.authority = roles.Restore(s.Assignments, s.AdminLinks)
	}
	for _, id := range s.Capabilities {
		o.caps.Register(id)
	}
	return o, nil
}
