package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrRunNotFound indicates a run record was not found by the given identifier.
	ErrRunNotFound = errors.New("run not found")

	// ErrInvalidRunRecord indicates a run record is missing required fields.
	ErrInvalidRunRecord = errors.New("invalid run record")
)

// RunError wraps run-record errors with the operation and run ID involved.
type RunError struct {
	Op    string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	RunID string // Run ID if applicable
	Err   error  // Underlying error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s operation failed for run %s: %v", e.Op, e.RunID, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

func (e *RunError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRunError creates a new run error with context.
func NewRunError(op, runID string, err error) *RunError {
	return &RunError{
		Op:    op,
		RunID: runID,
		Err:   err,
	}
}

// IsRunNotFound checks if an error indicates a run record was not found.
func IsRunNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}
