package roleset_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gatekit/gatekit/internal/roleset"
)

func TestSetOperations(t *testing.T) {
	s := roleset.Of(0, 63, 64, 255)

	for _, r := range []roleset.Role{0, 63, 64, 255} {
		if !s.Has(r) {
			t.Fatalf("expected role %d set", r)
		}
	}
	if s.Has(1) || s.Has(128) {
		t.Fatalf("unexpected roles set")
	}

	s = s.Without(64)
	if s.Has(64) {
		t.Fatalf("role 64 still set after Without")
	}

	// Idempotence at the bit level.
	if s.With(0) != s {
		t.Fatalf("setting an already-set bit changed the set")
	}
}

func TestIntersects(t *testing.T) {
	a := roleset.Of(3, 200)
	b := roleset.Of(200)
	c := roleset.Of(4)

	if !a.Intersects(b) {
		t.Fatalf("expected intersection on role 200")
	}
	if a.Intersects(c) {
		t.Fatalf("unexpected intersection")
	}
	if !(roleset.Set{}).IsZero() {
		t.Fatalf("zero value should be empty")
	}
}

func TestSetTextRoundTrip(t *testing.T) {
	in := roleset.Of(0, 7, 100, 254)
	text, err := in.MarshalText()
	require.NoError(t, err)
	require.Len(t, text, 64)

	var out roleset.Set
	require.NoError(t, out.UnmarshalText(text))
	require.Equal(t, in, out)

	require.Error(t, out.UnmarshalText([]byte("abc")))
}

func TestBookValidation(t *testing.T) {
	book, err := roleset.NewBook(map[string]roleset.Role{
		"admin":  0,
		"minter": 1,
		"burner": 2,
	})
	require.NoError(t, err)

	r, ok := book.Resolve("MINTER")
	require.True(t, ok, "lookup should fold case")
	require.Equal(t, roleset.Role(1), r)

	name, ok := book.Name(2)
	require.True(t, ok)
	require.Equal(t, "burner", name)

	_, ok = book.Resolve("auditor")
	require.False(t, ok)

	_, err = roleset.NewBook(map[string]roleset.Role{"Admin": 0, "admin": 1})
	require.Error(t, err, "folded duplicate names must be rejected")

	_, err = roleset.NewBook(map[string]roleset.Role{"a": 5, "b": 5})
	require.Error(t, err, "duplicate bits must be rejected")
}
