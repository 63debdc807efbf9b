package shared

import "errors"

var (
	// ErrUnauthorized indicates the caller fails the relevant gate.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound indicates the requested object does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a concurrent update won against this one.
	ErrConflict = errors.New("version conflict")
)
