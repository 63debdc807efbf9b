// Package registry manages guarded objects: allocation, one-shot
// initialization, and every gated operation, persisted through a Store and
// exposed over HTTP.
package registry

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/gatekit/gatekit/internal/acl"
)

// Store is the stable storage region keyed by object identity. The registry
// never sees how storage is provided, only reads and versioned writes.
type Store interface {
	// Create persists a freshly allocated object. It fails with
	// shared.ErrConflict when the identity already exists.
	Create(ctx context.Context, snap acl.Snapshot) error
	// Get loads a snapshot and its version. It fails with shared.ErrNotFound
	// for unknown identities.
	Get(ctx context.Context, id uuid.UUID) (acl.Snapshot, uint64, error)
	// Update writes a snapshot and appends its events in one atomic unit,
	// guarded by the expected version. A version mismatch fails with
	// shared.ErrConflict and writes nothing, events included.
	Update(ctx context.Context, snap acl.Snapshot, expected uint64, events []acl.Event) error
}

// EventLog exposes the persisted observable events for auditing collaborators.
type EventLog interface {
	ListEvents(ctx context.Context, objectID uuid.UUID, limit int) ([]acl.Event, error)
}

// EventPruner removes aged events. Implemented by stores that retain an
// event history; consumed by the background prune job.
type EventPruner interface {
	PruneEvents(ctx context.Context, before time.Time) (int64, error)
}
