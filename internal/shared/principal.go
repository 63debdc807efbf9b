package shared

import "strings"

// Principal identifies an authenticated actor. Identity is established by the
// surrounding environment; gatekit only authorizes principals it is handed.
type Principal string

// NilPrincipal is the null sentinel. It never passes any gate.
const NilPrincipal Principal = ""

// IsNil reports whether the principal is the null sentinel.
func (p Principal) IsNil() bool {
	return strings.TrimSpace(string(p)) == ""
}

// String returns the raw identifier.
func (p Principal) String() string {
	return string(p)
}
