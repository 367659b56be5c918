package engine

import "errors"

var (
	// ErrAlreadyRunning indicates Run was called twice; an engine executes
	// exactly once.
	ErrAlreadyRunning = errors.New("engine is already running or finished")

	// ErrUnknownItem indicates the graph references an item that was not
	// provided.
	ErrUnknownItem = errors.New("unknown item")

	// ErrInvalidLoop indicates a loop references unknown nodes or carries no
	// condition.
	ErrInvalidLoop = errors.New("invalid loop")
)
