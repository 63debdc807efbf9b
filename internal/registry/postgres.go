package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatekit/gatekit/internal/acl"
	"github.com/gatekit/gatekit/internal/platform/db"
	"github.com/gatekit/gatekit/internal/shared"
)

// PostgresStore persists snapshots and events in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a store backed by the provided pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the backing tables when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS acl_objects (
    id         UUID PRIMARY KEY,
    snapshot   JSONB NOT NULL,
    version    BIGINT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS acl_events (
    id          UUID PRIMARY KEY,
    object_id   UUID NOT NULL REFERENCES acl_objects (id),
    kind        TEXT NOT NULL,
    actor       TEXT NOT NULL,
    payload     JSONB,
    occurred_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_acl_events_object ON acl_events (object_id, occurred_at DESC);
CREATE INDEX IF NOT EXISTS idx_acl_events_occurred ON acl_events (occurred_at);`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("registry: ensure schema: %w", err)
	}
	return nil
}

// Create implements Store.
func (s *PostgresStore) Create(ctx context.Context, snap acl.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("registry: marshal snapshot: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO acl_objects (id, snapshot, version) VALUES ($1, $2, 1)`,
		snap.ID, data)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return shared.ErrConflict
		}
		return fmt.Errorf("registry: create object: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (acl.Snapshot, uint64, error) {
	var (
		data    []byte
		version uint64
	)
	err := s.pool.QueryRow(ctx,
		`SELECT snapshot, version FROM acl_objects WHERE id = $1`, id).
		Scan(&data, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return acl.Snapshot{}, 0, shared.ErrNotFound
		}
		return acl.Snapshot{}, 0, fmt.Errorf("registry: get object: %w", err)
	}
	var snap acl.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return acl.Snapshot{}, 0, fmt.Errorf("registry: unmarshal snapshot: %w", err)
	}
	return snap, version, nil
}

// Update implements Store. The snapshot write and its event records commit
// as one transaction so a failed call leaves no trace.
func (s *PostgresStore) Update(ctx context.Context, snap acl.Snapshot, expected uint64, events []acl.Event) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("registry: marshal snapshot: %w", err)
	}
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE acl_objects SET snapshot = $1, version = version + 1, updated_at = NOW()
			 WHERE id = $2 AND version = $3`,
			data, snap.ID, expected)
		if err != nil {
			return fmt.Errorf("registry: update object: %w", err)
		}
		if tag.RowsAffected() == 0 {
			// Either the object vanished or the version moved on.
			var exists bool
			if err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM acl_objects WHERE id = $1)`, snap.ID).
				Scan(&exists); err != nil {
				return fmt.Errorf("registry: update object: %w", err)
			}
			if !exists {
				return shared.ErrNotFound
			}
			return shared.ErrConflict
		}
		for _, ev := range events {
			payload, err := json.Marshal(ev.Payload)
			if err != nil {
				return fmt.Errorf("registry: marshal event payload: %w", err)
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO acl_events (id, object_id, kind, actor, payload, occurred_at)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				ev.ID, ev.ObjectID, string(ev.Kind), ev.Actor.String(), payload, ev.OccurredAt); err != nil {
				return fmt.Errorf("registry: insert event: %w", err)
			}
		}
		return nil
	})
}

// ListEvents implements EventLog, newest first.
func (s *PostgresStore) ListEvents(ctx context.Context, objectID uuid.UUID, limit int) ([]acl.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, object_id, kind, actor, payload, occurred_at
		 FROM acl_events WHERE object_id = $1
		 ORDER BY occurred_at DESC LIMIT $2`, objectID, limit)
	if err != nil {
		return nil, fmt.Errorf("registry: list events: %w", err)
	}
	defer rows.Close()
	var out []acl.Event
	for rows.Next() {
		var (
			ev      acl.Event
			kind    string
			actor   string
			payload []byte
		)
		if err := rows.Scan(&ev.ID, &ev.ObjectID, &kind, &actor, &payload, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("registry: scan event: %w", err)
		}
		ev.Kind = acl.EventKind(kind)
		ev.Actor = shared.Principal(actor)
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &ev.Payload); err != nil {
				return nil, fmt.Errorf("registry: unmarshal event payload: %w", err)
			}
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("registry: list events: %w", err)
	}
	return out, nil
}

// PruneEvents implements EventPruner.
func (s *PostgresStore) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM acl_events WHERE occurred_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("registry: prune events: %w", err)
	}
	return tag.RowsAffected(), nil
}
