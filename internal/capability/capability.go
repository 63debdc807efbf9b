// Package capability provides the discovery surface for gated operation
// categories and OR-composition of authorization gates.
package capability

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/gatekit/gatekit/internal/shared"
)

// ID identifies one capability group. IDs are the first four bytes of the
// BLAKE2b-256 digest of the capability name, so they stay stable across
// releases without a central registry.
type ID uint32

// DeriveID computes the ID for a capability name.
func DeriveID(name string) ID {
	sum := blake2b.Sum256([]byte(name))
	return ID(binary.BigEndian.Uint32(sum[:4]))
}

// Well-known capability groups.
var (
	// Introspection is supported by every initialized object.
	Introspection = DeriveID("gatekit.capability.introspection")
	// OwnerGated marks objects composing single-owner authorization.
	OwnerGated = DeriveID("gatekit.capability.owner-gated")
	// RoleGated marks objects composing multi-role authorization.
	RoleGated = DeriveID("gatekit.capability.role-gated")
)

// String formats the ID as 0x-prefixed hex.
func (id ID) String() string {
	return fmt.Sprintf("0x%08x", uint32(id))
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseID parses an ID from 0x-prefixed or bare hex.
func ParseID(s string) (ID, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("capability: parse id %q: %w", s, err)
	}
	return ID(v), nil
}

// Set aggregates the capability IDs an object registered at initialization.
// Discovery is a set-membership test, not a dispatch-chain walk, so mixing
// orthogonal capability groups composes correctly.
type Set struct {
	ids map[ID]struct{}
}

// NewSet returns an empty capability set.
func NewSet() *Set {
	return &Set{ids: make(map[ID]struct{})}
}

// Register adds an ID to the set.
func (s *Set) Register(id ID) {
	s.ids[id] = struct{}{}
}

// Supports reports whether the object registered the given capability. The
// answer is independent of whether any particular caller is authorized to
// invoke the operations behind it.
func (s *Set) Supports(id ID) bool {
	if s == nil {
		return false
	}
	_, ok := s.ids[id]
	return ok
}

// List returns the registered IDs in ascending order.
func (s *Set) List() []ID {
	if s == nil {
		return nil
	}
	out := make([]ID, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Gate authorizes a caller for one category of operations.
type Gate interface {
	Allow(caller shared.Principal) error
}

// GateFunc adapts a function to the Gate interface.
type GateFunc func(caller shared.Principal) error

// Allow implements Gate.
func (f GateFunc) Allow(caller shared.Principal) error {
	return f(caller)
}

// AnyOf composes gates with OR semantics: the caller passes if any gate
// allows. An empty composition denies everything.
func AnyOf(gates ...Gate) Gate {
	return GateFunc(func(caller shared.Principal) error {
		for _, g := range gates {
			if g == nil {
				continue
			}
			if err := g.Allow(caller); err == nil {
				return nil
			}
		}
		return shared.ErrUnauthorized
	})
}
