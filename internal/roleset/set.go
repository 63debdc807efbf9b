// Package roleset implements the fixed-width role bitmask: 256 independent
// role flags per principal, checked with one AND plus a nonzero test.
package roleset

import (
	"encoding/hex"
	"fmt"
)

// Role is a bit position in a Set. The full uint8 range is valid, so the
// cap on distinct roles is 256 by construction.
type Role uint8

// Set is a 256-bit role bitmask. The zero value holds no roles.
type Set [4]uint64

// Of builds a set from individual roles.
func Of(roles ...Role) Set {
	var s Set
	for _, r := range roles {
		s = s.With(r)
	}
	return s
}

// Has reports whether role r is set.
func (s Set) Has(r Role) bool {
	return s[r>>6]&(1<<(r&63)) != 0
}

// With returns a copy of s with r set.
func (s Set) With(r Role) Set {
	s[r>>6] |= 1 << (r & 63)
	return s
}

// Without returns a copy of s with r cleared.
func (s Set) Without(r Role) Set {
	s[r>>6] &^= 1 << (r & 63)
	return s
}

// Union returns the bitwise union of s and o.
func (s Set) Union(o Set) Set {
	for i := range s {
		s[i] |= o[i]
	}
	return s
}

// Intersects reports whether s and o share at least one role.
func (s Set) Intersects(o Set) bool {
	for i := range s {
		if s[i]&o[i] != 0 {
			return true
		}
	}
	return false
}

// IsZero reports whether no role is set.
func (s Set) IsZero() bool {
	return s == Set{}
}

// Roles lists the set bits in ascending order.
func (s Set) Roles() []Role {
	var roles []Role
	for i := 0; i < 256; i++ {
		if s.Has(Role(i)) {
			roles = append(roles, Role(i))
		}
	}
	return roles
}

// MarshalText encodes the set as 64 lowercase hex characters, most
// significant word first.
func (s Set) MarshalText() ([]byte, error) {
	var buf [32]byte
	for i := 0; i < 4; i++ {
		w := s[3-i]
		for j := 0; j < 8; j++ {
			buf[i*8+j] = byte(w >> (56 - 8*j))
		}
	}
	out := make([]byte, 64)
	hex.Encode(out, buf[:])
	return out, nil
}

// UnmarshalText decodes the representation produced by MarshalText.
func (s *Set) UnmarshalText(text []byte) error {
	if len(text) != 64 {
		return fmt.Errorf("roleset: want 64 hex chars, got %d", len(text))
	}
	var buf [32]byte
	if _, err := hex.Decode(buf[:], text); err != nil {
		return fmt.Errorf("roleset: decode: %w", err)
	}
	var out Set
	for i := 0; i < 4; i++ {
		var w uint64
		for j := 0; j < 8; j++ {
			w = w<<8 | uint64(buf[i*8+j])
		}
		out[3-i] = w
	}
	*s = out
	return nil
}
