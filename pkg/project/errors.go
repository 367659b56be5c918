// Package project owns the workflow graph: nodes, connections, jumps and
// specifications, together with the validation rules that keep it executable.
package project

import "errors"

// Standard topology errors. They are raised synchronously by graph mutations
// and always leave the project in its pre-call state.
var (
	// ErrDuplicateName indicates a node or specification name is already taken.
	ErrDuplicateName = errors.New("duplicate name")

	// ErrDuplicateShortName indicates a name's shortened form collides with an
	// existing node's.
	ErrDuplicateShortName = errors.New("duplicate short name")

	// ErrInvalidName indicates a name contains characters that are not allowed
	// in data directory names.
	ErrInvalidName = errors.New("name contains invalid characters")

	// ErrComponentNotFound indicates a node, connection, jump or specification
	// was not found.
	ErrComponentNotFound = errors.New("project component not found")

	// ErrInvalidConnection indicates an edge cannot be added, e.g. because it
	// would make the graph cyclic.
	ErrInvalidConnection = errors.New("invalid connection")

	// ErrInvalidJump indicates a jump violates the loop topology rules, or an
	// edge removal would invalidate an existing jump.
	ErrInvalidJump = errors.New("invalid jump")

	// ErrVersionTooHigh indicates a project file was written by a newer
	// release than this one supports. Raised before any execution begins.
	ErrVersionTooHigh = errors.New("project version is too high")

	// ErrMemoryOnlyProject indicates an operation that needs a project
	// directory was attempted on a memory-only project.
	ErrMemoryOnlyProject = errors.New("project is memory-only")
)
