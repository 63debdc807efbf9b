package roleset

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// Book maps human-readable role names to bit positions. Names are matched
// case-insensitively under Unicode case folding. A Book is validated once at
// definition time and read-only afterwards.
type Book struct {
	byName map[string]Role
	byRole map[Role]string
}

// NewBook validates definitions for name uniqueness (after folding) and bit
// uniqueness and returns the resulting table.
func NewBook(defs map[string]Role) (*Book, error) {
	b := &Book{
		byName: make(map[string]Role, len(defs)),
		byRole: make(map[Role]string, len(defs)),
	}
	folder := cases.Fold()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			return nil, fmt.Errorf("roleset: empty role name")
		}
		folded := folder.String(trimmed)
		role := defs[name]
		if prev, ok := b.byName[folded]; ok && prev != role {
			return nil, fmt.Errorf("roleset: duplicate role name %q", trimmed)
		}
		if prev, ok := b.byRole[role]; ok && folder.String(prev) != folded {
			return nil, fmt.Errorf("roleset: bit %d bound to both %q and %q", role, prev, trimmed)
		}
		b.byName[folded] = role
		b.byRole[role] = trimmed
	}
	return b, nil
}

// Resolve looks a role up by name.
func (b *Book) Resolve(name string) (Role, bool) {
	if b == nil {
		return 0, false
	}
	r, ok := b.byName[cases.Fold().String(strings.TrimSpace(name))]
	return r, ok
}

// Name returns the registered name for a role bit, if any.
func (b *Book) Name(r Role) (string, bool) {
	if b == nil {
		return "", false
	}
	name, ok := b.byRole[r]
	return name, ok
}

// Definitions returns a copy of the name-to-bit table using the original
// (unfolded) names.
func (b *Book) Definitions() map[string]Role {
	if b == nil {
		return nil
	}
	out := make(map[string]Role, len(b.byRole))
	for r, name := range b.byRole {
		out[name] = r
	}
	return out
}
