package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gatekit/gatekit/internal/acl"
	"github.com/gatekit/gatekit/internal/shared"
)

// MemoryStore is the in-memory Store used by tests and development mode.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[uuid.UUID]memoryRecord
	events  []acl.Event
}

type memoryRecord struct {
	snap    acl.Snapshot
	version uint64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[uuid.UUID]memoryRecord)}
}

// Create implements Store.
func (s *MemoryStore) Create(ctx context.Context, snap acl.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[snap.ID]; ok {
		return shared.ErrConflict
	}
	s.objects[snap.ID] = memoryRecord{snap: snap, version: 1}
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (acl.Snapshot, uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.objects[id]
	if !ok {
		return acl.Snapshot{}, 0, shared.ErrNotFound
	}
	return rec.snap, rec.version, nil
}

// Update implements Store.
func (s *MemoryStore) Update(ctx context.Context, snap acl.Snapshot, expected uint64, events []acl.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.objects[snap.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if rec.version != expected {
		return shared.ErrConflict
	}
	s.objects[snap.ID] = memoryRecord{snap: snap, version: expected + 1}
	s.events = append(s.events, events...)
	return nil
}

// ListEvents implements EventLog, newest first.
func (s *MemoryStore) ListEvents(ctx context.Context, objectID uuid.UUID, limit int) ([]acl.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []acl.Event
	for _, ev := range s.events {
		if ev.ObjectID == objectID {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PruneEvents implements EventPruner.
func (s *MemoryStore) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.events[:0]
	var pruned int64
	for _, ev := range s.events {
		if ev.OccurredAt.Before(before) {
			pruned++
			continue
		}
		kept = append(kept, ev)
	}
	s.events = kept
	return pruned, nil
}
