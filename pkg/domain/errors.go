package domain

import "errors"

// ErrMissingArgument is the kind of an ArgumentError for an absent key.
var ErrMissingArgument = errors.New("missing argument")

// ErrArgumentType is the kind of an ArgumentError for a wrong type.
var ErrArgumentType = errors.New("argument type mismatch")

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrFlowNotFound is returned when a flow id is absent from the registry.
var ErrFlowNotFound = errors.New("flow not found")

// ErrNoQuiescence is returned when processing a single external event
// does not reach a fixed point within the configured cycle budget.
// It indicates cyclic flow logic, a configuration defect.
var ErrNoQuiescence = errors.New("event processing did not quiesce")

// ErrUndeclaredVariable is the kind carried by internal error events
// raised when a statement references a variable that was never bound.
var ErrUndeclaredVariable = errors.New("undeclared variable")
