package acl_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/gatekit/gatekit/internal/acl"
	"github.com/gatekit/gatekit/internal/capability"
	"github.com/gatekit/gatekit/internal/guard"
	"github.com/gatekit/gatekit/internal/roles"
	"github.com/gatekit/gatekit/internal/roleset"
	"github.com/gatekit/gatekit/internal/shared"
)

const (
	ownerA = shared.Principal("owner-a")
	ownerB = shared.Principal("owner-b")
	alice  = shared.Principal("alice")
	bob    = shared.Principal("bob")
)

const (
	roleMinter roleset.Role = 1
	roleBurner roleset.Role = 2
)

func newInitialized(t *testing.T) *acl.Object {
	t.Helper()
	o := acl.New(uuid.New())
	err := o.Initialize(ownerA, acl.InitParams{
		Owner:       ownerA,
		EnableRoles: true,
		RoleNames:   map[string]roleset.Role{"minter": 1, "burner": 2},
	})
	require.NoError(t, err)
	o.DrainEvents()
	return o
}

func TestInitializeExactlyOnce(t *testing.T) {
	o := newInitialized(t)
	err := o.Initialize(ownerA, acl.InitParams{Owner: ownerA})
	require.ErrorIs(t, err, guard.ErrAlreadyInitialized)
}

func TestInitializeRequiresStrategy(t *testing.T) {
	o := acl.New(uuid.New())
	require.ErrorIs(t, o.Initialize(alice, acl.InitParams{}), acl.ErrNoStrategy)
	require.False(t, o.Initialized())
}

func TestInitializeRollsBackWhole(t *testing.T) {
	o := acl.New(uuid.New())
	err := o.Initialize(ownerA, acl.InitParams{
		Owner:     ownerA,
		RoleNames: map[string]roleset.Role{"a": 1, "b": 1}, // duplicate bit
	})
	require.Error(t, err)
	require.Equal(t, guard.Uninitialized, o.State())
	require.True(t, o.Owner().IsNil(), "owner layer must be rolled back too")
	require.False(t, o.Supports(capability.OwnerGated))
	require.Empty(t, o.DrainEvents(), "failed initialization must not emit")

	// The failed attempt does not burn the one shot.
	require.NoError(t, o.Initialize(ownerA, acl.InitParams{Owner: ownerA}))
}

func TestGatedOperationBeforeInitialize(t *testing.T) {
	o := acl.New(uuid.New())
	require.ErrorIs(t, o.Authorize(ownerA, acl.Requirement{Owner: true}), shared.ErrUnauthorized)
	require.ErrorIs(t, o.TransferOwnership(ownerA, ownerB), shared.ErrUnauthorized)
	require.ErrorIs(t, o.GrantRole(ownerA, alice, roleMinter), shared.ErrUnauthorized)
}

func TestOwnerGatedOperation(t *testing.T) {
	o := newInitialized(t)

	require.NoError(t, o.Authorize(ownerA, acl.Requirement{Owner: true}))
	require.ErrorIs(t, o.Authorize(ownerB, acl.Requirement{Owner: true}), shared.ErrUnauthorized)
}

func TestTransferAndRenounce(t *testing.T) {
	o := newInitialized(t)

	require.ErrorIs(t, o.TransferOwnership(ownerB, alice), shared.ErrUnauthorized)
	require.Equal(t, ownerA, o.Owner())

	require.NoError(t, o.TransferOwnership(ownerA, ownerB))
	require.Equal(t, ownerB, o.Owner())

	require.NoError(t, o.RenounceOwnership(ownerB))
	require.True(t, o.Owner().IsNil())
	for _, caller := range []shared.Principal{ownerA, ownerB, shared.NilPrincipal} {
		require.ErrorIs(t, o.Authorize(caller, acl.Requirement{Owner: true}), shared.ErrUnauthorized)
	}
}

func TestRoleAdminScenario(t *testing.T) {
	// ROLE_1 granted to alice by the default admin, then ROLE_1's admin
	// relinked to ROLE_2: afterwards only ROLE_2 holders administer ROLE_1.
	o := newInitialized(t)

	require.NoError(t, o.GrantRole(ownerA, alice, roleBurner))
	require.NoError(t, o.SetRoleAdmin(ownerA, roleMinter, roleBurner))

	require.ErrorIs(t, o.GrantRole(ownerA, bob, roleMinter), shared.ErrUnauthorized)
	require.NoError(t, o.GrantRole(alice, bob, roleMinter))
	require.True(t, o.HasRole(bob, roleMinter))
}

func TestAuthorizeOrComposition(t *testing.T) {
	o := newInitialized(t)
	require.NoError(t, o.GrantRole(ownerA, alice, roleMinter))

	req := acl.Requirement{Owner: true, AnyRoles: roleset.Of(roleMinter)}
	require.NoError(t, o.Authorize(ownerA, req), "owner passes")
	require.NoError(t, o.Authorize(alice, req), "role holder passes")
	require.ErrorIs(t, o.Authorize(bob, req), shared.ErrUnauthorized)

	require.ErrorIs(t, o.Authorize(ownerA, acl.Requirement{}), acl.ErrEmptyRequirement)
}

func TestSupportsCapabilityAggregation(t *testing.T) {
	mixed := newInitialized(t)
	require.True(t, mixed.Supports(capability.OwnerGated))
	require.True(t, mixed.Supports(capability.RoleGated))
	require.True(t, mixed.Supports(capability.Introspection))
	require.False(t, mixed.Supports(capability.DeriveID("gatekit.capability.unrelated")))

	ownerOnly := acl.New(uuid.New())
	require.NoError(t, ownerOnly.Initialize(ownerA, acl.InitParams{Owner: ownerA}))
	require.True(t, ownerOnly.Supports(capability.OwnerGated))
	require.False(t, ownerOnly.Supports(capability.RoleGated))

	uninitialized := acl.New(uuid.New())
	require.False(t, uninitialized.Supports(capability.Introspection))
}

func TestResolveRole(t *testing.T) {
	o := newInitialized(t)

	r, err := o.ResolveRole("minter")
	require.NoError(t, err)
	require.Equal(t, roleMinter, r)

	r, err = o.ResolveRole("42")
	require.NoError(t, err)
	require.Equal(t, roleset.Role(42), r)

	_, err = o.ResolveRole("300")
	require.ErrorIs(t, err, acl.ErrUnknownRole)
	_, err = o.ResolveRole("auditor")
	require.ErrorIs(t, err, acl.ErrUnknownRole)
}

func TestEventsEmittedOncePerSuccess(t *testing.T) {
	o := acl.New(uuid.New())
	require.NoError(t, o.Initialize(ownerA, acl.InitParams{Owner: ownerA, EnableRoles: true}))

	events := o.DrainEvents()
	require.Len(t, events, 1)
	require.Equal(t, acl.EventInitialized, events[0].Kind)

	require.NoError(t, o.GrantRole(ownerA, alice, roleMinter))
	// Idempotent re-grant is still a successful call and still emits.
	require.NoError(t, o.GrantRole(ownerA, alice, roleMinter))
	events = o.DrainEvents()
	require.Len(t, events, 2)
	for _, ev := range events {
		require.Equal(t, acl.EventRoleGranted, ev.Kind)
		require.Equal(t, ownerA, ev.Actor)
	}

	require.ErrorIs(t, o.GrantRole(bob, alice, roleBurner), shared.ErrUnauthorized)
	require.Empty(t, o.DrainEvents(), "failed calls must not emit")

	require.NoError(t, o.RenounceRole(alice, roleMinter))
	events = o.DrainEvents()
	require.Len(t, events, 1)
	require.Equal(t, acl.EventRoleRevoked, events[0].Kind)
}

func TestDefaultAdminBootstrap(t *testing.T) {
	// With an owner, the owner bootstraps role administration.
	o := newInitialized(t)
	require.True(t, o.HasRole(ownerA, roles.DefaultAdmin))

	// Without an owner, the initializing caller does.
	rolesOnly := acl.New(uuid.New())
	require.NoError(t, rolesOnly.Initialize(alice, acl.InitParams{EnableRoles: true}))
	require.True(t, rolesOnly.HasRole(alice, roles.DefaultAdmin))
	require.True(t, rolesOnly.Owner().IsNil())
}

func TestSnapshotRoundTrip(t *testing.T) {
	o := newInitialized(t)
	require.NoError(t, o.GrantRole(ownerA, alice, roleMinter))
	require.NoError(t, o.SetRoleAdmin(ownerA, roleMinter, roleBurner))
	o.DrainEvents()

	restored, err := acl.FromSnapshot(o.Snapshot())
	require.NoError(t, err)

	require.True(t, restored.Initialized())
	require.Equal(t, o.Owner(), restored.Owner())
	require.True(t, restored.HasRole(alice, roleMinter))
	require.Equal(t, roleBurner, restored.RoleAdmin(roleMinter))
	require.Equal(t, o.Capabilities(), restored.Capabilities())

	r, err := restored.ResolveRole("minter")
	require.NoError(t, err)
	require.Equal(t, roleMinter, r)

	// Restored objects keep the one-shot burned.
	require.ErrorIs(t, restored.Initialize(ownerA, acl.InitParams{Owner: ownerA}), guard.ErrAlreadyInitialized)
}
