// Package guard enforces the two-phase allocate/initialize lifecycle: an
// object is constructed inert and configured by a one-shot initializer.
package guard

import "errors"

var (
	// ErrAlreadyInitialized indicates the initializer ran before.
	ErrAlreadyInitialized = errors.New("guard: already initialized")
	// ErrInvalidInitializationOrder indicates a nested initializer layer was
	// invoked outside an active top-level initialization.
	ErrInvalidInitializationOrder = errors.New("guard: invalid initialization order")
	// ErrBadState indicates a snapshot carried a state the guard cannot
	// restore, such as a half-finished initialization.
	ErrBadState = errors.New("guard: unrestorable state")
)

// State tracks where an object is in its initialization lifecycle.
type State uint8

const (
	// Uninitialized is the state of a freshly allocated object.
	Uninitialized State = iota
	// Initializing is held only for the duration of the top-level
	// initializer call tree.
	Initializing
	// Initialized is terminal.
	Initialized
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Initialized:
		return "initialized"
	default:
		return "unknown"
	}
}

// ParseState maps a state name produced by String back to a State.
func ParseState(s string) (State, error) {
	switch s {
	case "uninitialized":
		return Uninitialized, nil
	case "initializing":
		return Initializing, nil
	case "initialized":
		return Initialized, nil
	default:
		return Uninitialized, ErrBadState
	}
}

// Guard serializes initialization for one object instance. The zero value is
// an uninitialized guard ready for use.
type Guard struct {
	state State
	ran   map[string]bool
}

// State returns the current lifecycle state.
func (g *Guard) State() State {
	return g.state
}

// Initialized reports whether the one-shot initializer has completed.
func (g *Guard) Initialized() bool {
	return g.state == Initialized
}

// Initialize runs setup exactly once. A second call fails with
// ErrAlreadyInitialized regardless of how the first one ended up interleaved
// with it. If setup fails the guard rolls back to Uninitialized so no
// partially-initialized object is ever observable.
func (g *Guard) Initialize(setup func() error) error {
	if g.state != Uninitialized {
		return ErrAlreadyInitialized
	}
	g.state = Initializing
	g.ran = make(map[string]bool)
	if setup != nil {
		if err := setup(); err != nil {
			g.state = Uninitialized
			g.ran = nil
			return err
		}
	}
	g.state = Initialized
	return nil
}

// Layer runs one named initializer layer inside an active Initialize call.
// A layer runs at most once per call tree; re-entrant invocations of an
// already-run layer are no-ops. Outside an active initialization the call
// fails with ErrInvalidInitializationOrder.
func (g *Guard) Layer(name string, setup func() error) error {
	if g.state != Initializing {
		return ErrInvalidInitializationOrder
	}
	if g.ran[name] {
		return nil
	}
	if setup != nil {
		if err := setup(); err != nil {
			return err
		}
	}
	g.ran[name] = true
	return nil
}

// Restore rehydrates the guard from persisted state. Initializing is not
// restorable: it exists only inside a live initializer call.
func (g *Guard) Restore(state State) error {
	if state != Uninitialized && state != Initialized {
		return ErrBadState
	}
	g.state = state
	g.ran = nil
	return nil
}
