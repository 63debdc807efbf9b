package acl

import (
	"time"

	"github.com/google/uuid"

	"github.com/gatekit/gatekit/internal/shared"
)

// EventKind names one observable event category.
type EventKind string

const (
	// EventInitialized records completion of the one-shot initializer.
	EventInitialized EventKind = "object_initialized"
	// EventOwnershipChanged records transfer or renouncement.
	EventOwnershipChanged EventKind = "ownership_changed"
	// EventRoleGranted records a grant, including idempotent re-grants.
	EventRoleGranted EventKind = "role_granted"
	// EventRoleRevoked records a revoke or self-service renounce.
	EventRoleRevoked EventKind = "role_revoked"
	// EventRoleAdminChanged records a role-admin relink.
	EventRoleAdminChanged EventKind = "role_admin_changed"
)

// Event is one observable record, emitted exactly once per successful
// state-changing call and never on a failed one.
type Event struct {
	ID         uuid.UUID        `json:"id"`
	ObjectID   uuid.UUID        `json:"object_id"`
	Kind       EventKind        `json:"kind"`
	Actor      shared.Principal `json:"actor"`
	Payload    map[string]any   `json:"payload,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

func (o *Object) emit(kind EventKind, actor shared.Principal, payload map[string]any) {
	o.pending = append(o.pending, Event{
		ID:         uuid.New(),
		ObjectID:   o.id,
		Kind:       kind,
		Actor:      actor,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	})
}

// DrainEvents returns and clears the events accumulated since the last
// drain. The caller persists them atomically with the state change that
// produced them.
func (o *Object) DrainEvents() []Event {
	events := o.pending
	o.pending = nil
	return events
}
