package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/gatekit/gatekit/internal/acl"
	"github.com/gatekit/gatekit/internal/capability"
	"github.com/gatekit/gatekit/internal/observability"
	"github.com/gatekit/gatekit/internal/roleset"
	"github.com/gatekit/gatekit/internal/shared"
)

// ErrEventLogUnavailable indicates the configured store keeps no event
// history.
var ErrEventLogUnavailable = errors.New("registry: event log unavailable")

// Service orchestrates guarded-object operations. Operations against one
// object are serialized here; the environment is free to race callers.
type Service struct {
	store   Store
	cache   *DecisionCache
	metrics *observability.Metrics
	logger  *slog.Logger
	locks   [64]sync.Mutex
}

// NewService constructs a Service. Cache and metrics may be nil.
func NewService(store Store, cache *DecisionCache, metrics *observability.Metrics, logger *slog.Logger) *Service {
	return &Service{store: store, cache: cache, metrics: metrics, logger: logger}
}

func (s *Service) lockFor(id uuid.UUID) *sync.Mutex {
	return &s.locks[id[0]&63]
}

// Allocate creates a fresh uninitialized object and returns its identity.
func (s *Service) Allocate(ctx context.Context) (uuid.UUID, error) {
	obj := acl.New(uuid.New())
	if err := s.store.Create(ctx, obj.Snapshot()); err != nil {
		return uuid.Nil, err
	}
	return obj.ID(), nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*acl.Object, uint64, error) {
	snap, version, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	obj, err := acl.FromSnapshot(snap)
	if err != nil {
		return nil, 0, err
	}
	return obj, version, nil
}

// mutate loads an object, applies fn, and persists the new snapshot with its
// events as one atomic unit. A failing fn writes nothing.
func (s *Service) mutate(ctx context.Context, id uuid.UUID, fn func(*acl.Object) error) error {
	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	obj, version, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := fn(obj); err != nil {
		return err
	}
	if err := s.store.Update(ctx, obj.Snapshot(), version, obj.DrainEvents()); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, id)
	return nil
}

// Initialize runs the one-shot initializer for an allocated object.
func (s *Service) Initialize(ctx context.Context, id uuid.UUID, caller shared.Principal, params acl.InitParams) error {
	err := s.mutate(ctx, id, func(obj *acl.Object) error {
		return obj.Initialize(caller, params)
	})
	if err == nil {
		s.metrics.ObserveInitialization()
	}
	return err
}

// ObjectInfo summarizes one object for discovery callers.
type ObjectInfo struct {
	ID           uuid.UUID               `json:"id"`
	State        string                  `json:"state"`
	OwnerEnabled bool                    `json:"owner_enabled"`
	Owner        shared.Principal        `json:"owner,omitempty"`
	RolesEnabled bool                    `json:"roles_enabled"`
	RoleNames    map[string]roleset.Role `json:"role_names,omitempty"`
	Capabilities []capability.ID         `json:"capabilities"`
}

// Describe returns the object summary.
func (s *Service) Describe(ctx context.Context, id uuid.UUID) (ObjectInfo, error) {
	snap, _, err := s.store.Get(ctx, id)
	if err != nil {
		return ObjectInfo{}, err
	}
	caps := snap.Capabilities
	if caps == nil {
		caps = []capability.ID{}
	}
	return ObjectInfo{
		ID:           snap.ID,
		State:        snap.State,
		OwnerEnabled: snap.OwnerEnabled,
		Owner:        snap.Owner,
		RolesEnabled: snap.RolesEnabled,
		RoleNames:    snap.RoleNames,
		Capabilities: caps,
	}, nil
}

// Owner returns the object's current owner.
func (s *Service) Owner(ctx context.Context, id uuid.UUID) (shared.Principal, error) {
	obj, _, err := s.load(ctx, id)
	if err != nil {
		return shared.NilPrincipal, err
	}
	return obj.Owner(), nil
}

// TransferOwnership replaces the owner, gated to the current owner.
func (s *Service) TransferOwnership(ctx context.Context, id uuid.UUID, caller, newOwner shared.Principal) error {
	err := s.mutate(ctx, id, func(obj *acl.Object) error {
		return obj.TransferOwnership(caller, newOwner)
	})
	s.observeGate("owner", err)
	return err
}

// RenounceOwnership irreversibly clears the owner.
func (s *Service) RenounceOwnership(ctx context.Context, id uuid.UUID, caller shared.Principal) error {
	err := s.mutate(ctx, id, func(obj *acl.Object) error {
		return obj.RenounceOwnership(caller)
	})
	s.observeGate("owner", err)
	return err
}

// GrantRole sets a role on a principal, gated to the role's admin.
func (s *Service) GrantRole(ctx context.Context, id uuid.UUID, caller, principal shared.Principal, roleToken string) error {
	err := s.mutate(ctx, id, func(obj *acl.Object) error {
		role, err := obj.ResolveRole(roleToken)
		if err != nil {
			return err
		}
		return obj.GrantRole(caller, principal, role)
	})
	s.observeGate("role-admin", err)
	return err
}

// RevokeRole clears a role on a principal, gated to the role's admin.
func (s *Service) RevokeRole(ctx context.Context, id uuid.UUID, caller, principal shared.Principal, roleToken string) error {
	err := s.mutate(ctx, id, func(obj *acl.Object) error {
		role, err := obj.ResolveRole(roleToken)
		if err != nil {
			return err
		}
		return obj.RevokeRole(caller, principal, role)
	})
	s.observeGate("role-admin", err)
	return err
}

// RenounceRole drops the caller's own role.
func (s *Service) RenounceRole(ctx context.Context, id uuid.UUID, caller shared.Principal, roleToken string) error {
	return s.mutate(ctx, id, func(obj *acl.Object) error {
		role, err := obj.ResolveRole(roleToken)
		if err != nil {
			return err
		}
		return obj.RenounceRole(caller, role)
	})
}

// SetRoleAdmin relinks a role's admin role.
func (s *Service) SetRoleAdmin(ctx context.Context, id uuid.UUID, caller shared.Principal, roleToken, adminToken string) error {
	err := s.mutate(ctx, id, func(obj *acl.Object) error {
		role, err := obj.ResolveRole(roleToken)
		if err != nil {
			return err
		}
		admin, err := obj.ResolveRole(adminToken)
		if err != nil {
			return err
		}
		return obj.SetRoleAdmin(caller, role, admin)
	})
	s.observeGate("role-admin", err)
	return err
}

// RolesOf returns a principal's role set.
func (s *Service) RolesOf(ctx context.Context, id uuid.UUID, principal shared.Principal) (roleset.Set, error) {
	obj, _, err := s.load(ctx, id)
	if err != nil {
		return roleset.Set{}, err
	}
	return obj.RolesOf(principal), nil
}

// HasRole reports whether a principal holds a role. Decisions are memoized
// in the decision cache.
func (s *Service) HasRole(ctx context.Context, id uuid.UUID, principal shared.Principal, roleToken string) (bool, error) {
	query := fmt.Sprintf("role:%s:%s", principal, roleToken)
	return s.cachedDecision(ctx, id, query, func(obj *acl.Object) (bool, error) {
		role, err := obj.ResolveRole(roleToken)
		if err != nil {
			return false, err
		}
		return obj.HasRole(principal, role), nil
	})
}

// HasAnyRole reports whether a principal holds at least one of the roles.
func (s *Service) HasAnyRole(ctx context.Context, id uuid.UUID, principal shared.Principal, roleTokens []string) (bool, error) {
	tokens := append([]string(nil), roleTokens...)
	sort.Strings(tokens)
	query := fmt.Sprintf("any:%s:%s", principal, strings.Join(tokens, ","))
	return s.cachedDecision(ctx, id, query, func(obj *acl.Object) (bool, error) {
		set, err := resolveRoleSet(obj, tokens)
		if err != nil {
			return false, err
		}
		return obj.HasAnyRole(principal, set), nil
	})
}

func (s *Service) cachedDecision(ctx context.Context, id uuid.UUID, query string, decide func(*acl.Object) (bool, error)) (bool, error) {
	return s.cache.Lookup(ctx, id, query, func() (bool, error) {
		obj, _, err := s.load(ctx, id)
		if err != nil {
			return false, err
		}
		return decide(obj)
	})
}

// Supports reports whether the object registered the capability.
func (s *Service) Supports(ctx context.Context, id uuid.UUID, capID capability.ID) (bool, error) {
	obj, _, err := s.load(ctx, id)
	if err != nil {
		return false, err
	}
	return obj.Supports(capID), nil
}

// Capabilities lists the object's registered capability IDs.
func (s *Service) Capabilities(ctx context.Context, id uuid.UUID) ([]capability.ID, error) {
	obj, _, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return obj.Capabilities(), nil
}

// AuthorizeRequest names the gates a business operation composes with OR.
type AuthorizeRequest struct {
	Owner    bool
	AnyRoles []string
}

// Authorize runs the OR-composed gate for a business operation.
func (s *Service) Authorize(ctx context.Context, id uuid.UUID, caller shared.Principal, req AuthorizeRequest) error {
	obj, _, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	requirement := acl.Requirement{Owner: req.Owner}
	if len(req.AnyRoles) > 0 {
		set, err := resolveRoleSet(obj, req.AnyRoles)
		if err != nil {
			return err
		}
		requirement.AnyRoles = set
	}
	err = obj.Authorize(caller, requirement)
	s.observeGate(gateLabel(req), err)
	return err
}

// Events lists the object's persisted observable events, newest first.
func (s *Service) Events(ctx context.Context, id uuid.UUID, limit int) ([]acl.Event, error) {
	log, ok := s.store.(EventLog)
	if !ok {
		return nil, ErrEventLogUnavailable
	}
	if _, _, err := s.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return log.ListEvents(ctx, id, limit)
}

func resolveRoleSet(obj *acl.Object, tokens []string) (roleset.Set, error) {
	var set roleset.Set
	for _, token := range tokens {
		role, err := obj.ResolveRole(token)
		if err != nil {
			return roleset.Set{}, err
		}
		set = set.With(role)
	}
	return set, nil
}

func gateLabel(req AuthorizeRequest) string {
	switch {
	case req.Owner && len(req.AnyRoles) > 0:
		return "owner|roles"
	case req.Owner:
		return "owner"
	default:
		return "roles"
	}
}

// observeGate records gate outcomes; errors other than a denial are not
// decisions and stay out of the counter.
func (s *Service) observeGate(gate string, err error) {
	switch {
	case err == nil:
		s.metrics.ObserveGate(gate, true)
	case errors.Is(err, shared.ErrUnauthorized):
		s.metrics.ObserveGate(gate, false)
	}
}
