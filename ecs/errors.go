package ecs

import "errors"

var (
	// ErrStaleEntity marks an operation against a handle whose index has been
	// recycled or retired. Callers treat it as "not found", never as fatal.
	ErrStaleEntity = errors.New("stale entity handle")

	// ErrKindNotRegistered marks a lookup for a component or resource kind the
	// world has never seen.
	ErrKindNotRegistered = errors.New("kind not registered")

	// ErrKindRegistered marks a second registration of the same component type.
	ErrKindRegistered = errors.New("kind already registered")

	// ErrKindMismatch marks a typed access whose Go type does not match the
	// storage registered under the kind.
	ErrKindMismatch = errors.New("kind type mismatch")

	// ErrNilBackend marks a component registration without a backend.
	ErrNilBackend = errors.New("nil storage backend")

	// ErrDispatchInFlight marks a structural mutation attempted while a
	// dispatch holds the world.
	ErrDispatchInFlight = errors.New("dispatch in flight")

	// ErrReadOnly marks a write through a view handed out for reading.
	ErrReadOnly = errors.New("view is read-only")

	// ErrGuardContention marks a storage guard that could not be taken without
	// blocking. Stages are planned conflict-free, so contention means the plan
	// and the running units disagree.
	ErrGuardContention = errors.New("storage guard contention")
)
