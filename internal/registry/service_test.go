package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/gatekit/gatekit/internal/acl"
	"github.com/gatekit/gatekit/internal/capability"
	"github.com/gatekit/gatekit/internal/guard"
	"github.com/gatekit/gatekit/internal/roleset"
	"github.com/gatekit/gatekit/internal/shared"
	_ "github.com/gatekit/gatekit/internal/testing/guard"
)

func newTestService(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewMemoryStore()
	cache := NewDecisionCache(client, time.Minute, nil)
	return NewService(store, cache, nil, nil), store
}

func mustAllocate(t *testing.T, svc *Service) uuid.UUID {
	t.Helper()
	id, err := svc.Allocate(context.Background())
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	return id
}

func TestInitializeOnce(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	id := mustAllocate(t, svc)

	params := acl.InitParams{Owner: "alice"}
	if err := svc.Initialize(ctx, id, "alice", params); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := svc.Initialize(ctx, id, "alice", params); !errors.Is(err, guard.ErrAlreadyInitialized) {
		t.Fatalf("expected already-initialized, got %v", err)
	}

	info, err := svc.Describe(ctx, id)
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if info.State != "initialized" || !info.OwnerEnabled || info.Owner != "alice" {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestInitializeUnknownObject(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.Initialize(context.Background(), uuid.New(), "alice", acl.InitParams{Owner: "alice"})
	if !errors.Is(err, shared.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOwnershipLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	id := mustAllocate(t, svc)
	if err := svc.Initialize(ctx, id, "alice", acl.InitParams{Owner: "alice"}); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	if err := svc.TransferOwnership(ctx, id, "mallory", "mallory"); !errors.Is(err, shared.ErrUnauthorized) {
		t.Fatalf("expected unauthorized transfer, got %v", err)
	}
	if err := svc.TransferOwnership(ctx, id, "alice", "bob"); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	owner, err := svc.Owner(ctx, id)
	if err != nil {
		t.Fatalf("owner: %v", err)
	}
	if owner != "bob" {
		t.Fatalf("expected bob, got %q", owner)
	}

	if err := svc.RenounceOwnership(ctx, id, "bob"); err != nil {
		t.Fatalf("renounce: %v", err)
	}
	owner, err = svc.Owner(ctx, id)
	if err != nil {
		t.Fatalf("owner after renounce: %v", err)
	}
	if !owner.IsNil() {
		t.Fatalf("expected nil owner, got %q", owner)
	}
	// Nobody passes the owner gate anymore, the previous owner included.
	if err := svc.TransferOwnership(ctx, id, "bob", "alice"); !errors.Is(err, shared.ErrUnauthorized) {
		t.Fatalf("expected unauthorized after renounce, got %v", err)
	}
}

func TestRoleGrantRevokeInvalidatesCache(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	id := mustAllocate(t, svc)
	err := svc.Initialize(ctx, id, "alice", acl.InitParams{
		Owner:     "alice",
		RoleNames: map[string]roleset.Role{"minter": 1},
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}

	has, err := svc.HasRole(ctx, id, "bob", "minter")
	if err != nil {
		t.Fatalf("has role: %v", err)
	}
	if has {
		t.Fatalf("bob should not hold minter yet")
	}

	// The decision above is now cached; the grant must retire it.
	if err := svc.GrantRole(ctx, id, "alice", "bob", "minter"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	has, err = svc.HasRole(ctx, id, "bob", "minter")
	if err != nil {
		t.Fatalf("has role after grant: %v", err)
	}
	if !has {
		t.Fatalf("grant not visible, stale cached decision")
	}

	if err := svc.RevokeRole(ctx, id, "alice", "bob", "minter"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	has, err = svc.HasRole(ctx, id, "bob", "minter")
	if err != nil {
		t.Fatalf("has role after revoke: %v", err)
	}
	if has {
		t.Fatalf("revoke not visible, stale cached decision")
	}
}

func TestGrantRequiresAdminRole(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	id := mustAllocate(t, svc)
	err := svc.Initialize(ctx, id, "alice", acl.InitParams{
		Owner:     "alice",
		RoleNames: map[string]roleset.Role{"minter": 1},
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := svc.GrantRole(ctx, id, "bob", "bob", "minter"); !errors.Is(err, shared.ErrUnauthorized) {
		t.Fatalf("expected unauthorized grant, got %v", err)
	}
}

func TestHasAnyRoleOrderInsensitive(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	id := mustAllocate(t, svc)
	err := svc.Initialize(ctx, id, "alice", acl.InitParams{
		Owner:     "alice",
		RoleNames: map[string]roleset.Role{"minter": 1, "burner": 2},
		Grants:    map[shared.Principal]roleset.Set{"bob": roleset.Of(2)},
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}

	for _, tokens := range [][]string{{"minter", "burner"}, {"burner", "minter"}} {
		has, err := svc.HasAnyRole(ctx, id, "bob", tokens)
		if err != nil {
			t.Fatalf("has any role %v: %v", tokens, err)
		}
		if !has {
			t.Fatalf("expected bob to match %v", tokens)
		}
	}
	has, err := svc.HasAnyRole(ctx, id, "bob", []string{"minter"})
	if err != nil {
		t.Fatalf("has any role: %v", err)
	}
	if has {
		t.Fatalf("bob does not hold minter")
	}
}

func TestAuthorizeOrComposition(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	id := mustAllocate(t, svc)
	err := svc.Initialize(ctx, id, "alice", acl.InitParams{
		Owner:     "alice",
		RoleNames: map[string]roleset.Role{"operator": 3},
		Grants:    map[shared.Principal]roleset.Set{"carol": roleset.Of(3)},
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}

	req := AuthorizeRequest{Owner: true, AnyRoles: []string{"operator"}}
	if err := svc.Authorize(ctx, id, "alice", req); err != nil {
		t.Fatalf("owner should pass: %v", err)
	}
	if err := svc.Authorize(ctx, id, "carol", req); err != nil {
		t.Fatalf("role holder should pass: %v", err)
	}
	if err := svc.Authorize(ctx, id, "mallory", req); !errors.Is(err, shared.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := svc.Authorize(ctx, id, "alice", AuthorizeRequest{}); !errors.Is(err, acl.ErrEmptyRequirement) {
		t.Fatalf("expected empty requirement, got %v", err)
	}
}

func TestEventsRecordedOncePerMutation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	id := mustAllocate(t, svc)
	err := svc.Initialize(ctx, id, "alice", acl.InitParams{
		Owner:     "alice",
		RoleNames: map[string]roleset.Role{"minter": 1},
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := svc.GrantRole(ctx, id, "alice", "bob", "minter"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	// An idempotent re-grant is still an observable action.
	if err := svc.GrantRole(ctx, id, "alice", "bob", "minter"); err != nil {
		t.Fatalf("re-grant: %v", err)
	}
	// A denied mutation leaves no event behind.
	if err := svc.GrantRole(ctx, id, "mallory", "eve", "minter"); !errors.Is(err, shared.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	events, err := svc.Events(ctx, id, 0)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	var granted, initialized int
	for _, ev := range events {
		switch ev.Kind {
		case acl.EventRoleGranted:
			granted++
		case acl.EventInitialized:
			initialized++
		}
	}
	if initialized != 1 || granted != 2 {
		t.Fatalf("expected 1 init and 2 grant events, got %d/%d", initialized, granted)
	}
}

// snapshotOnlyStore delegates without embedding so the event log methods do
// not get promoted.
type snapshotOnlyStore struct{ inner *MemoryStore }

func (s snapshotOnlyStore) Create(ctx context.Context, snap acl.Snapshot) error {
	return s.inner.Create(ctx, snap)
}

func (s snapshotOnlyStore) Get(ctx context.Context, id uuid.UUID) (acl.Snapshot, uint64, error) {
	return s.inner.Get(ctx, id)
}

func (s snapshotOnlyStore) Update(ctx context.Context, snap acl.Snapshot, expected uint64, events []acl.Event) error {
	return s.inner.Update(ctx, snap, expected, events)
}

func TestEventsUnavailableWithoutLog(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	svc := NewService(snapshotOnlyStore{NewMemoryStore()}, NewDecisionCache(client, time.Minute, nil), nil, nil)

	id := mustAllocate(t, svc)
	if _, err := svc.Events(context.Background(), id, 0); !errors.Is(err, ErrEventLogUnavailable) {
		t.Fatalf("expected event log unavailable, got %v", err)
	}
}

func TestCapabilitySurface(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	id := mustAllocate(t, svc)
	err := svc.Initialize(ctx, id, "alice", acl.InitParams{
		Owner:       "alice",
		EnableRoles: true,
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}

	for _, capID := range []capability.ID{capability.Introspection, capability.OwnerGated, capability.RoleGated} {
		supported, err := svc.Supports(ctx, id, capID)
		if err != nil {
			t.Fatalf("supports %s: %v", capID, err)
		}
		if !supported {
			t.Fatalf("expected %s supported", capID)
		}
	}
	supported, err := svc.Supports(ctx, id, capability.ID(0xdeadbeef))
	if err != nil {
		t.Fatalf("supports: %v", err)
	}
	if supported {
		t.Fatalf("unknown capability must not be supported")
	}
}

func TestServiceWithoutCache(t *testing.T) {
	svc := NewService(NewMemoryStore(), nil, nil, nil)
	ctx := context.Background()
	id := mustAllocate(t, svc)
	err := svc.Initialize(ctx, id, "alice", acl.InitParams{
		Owner:     "alice",
		RoleNames: map[string]roleset.Role{"minter": 1},
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := svc.GrantRole(ctx, id, "alice", "bob", "minter"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	has, err := svc.HasRole(ctx, id, "bob", "minter")
	if err != nil {
		t.Fatalf("has role: %v", err)
	}
	if !has {
		t.Fatalf("expected role held")
	}
}
