// Package persistence defines the storage contract for execution run history.
package persistence

import (
	"context"
	"time"
)

// RunRecord captures the outcome of one engine run: the terminal engine state
// plus the finish state of every node that took part in the forward pass.
type RunRecord struct {
	ID         string            `json:"id"`
	Project    string            `json:"project"`
	State      string            `json:"state"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	NodeStates map[string]string `json:"node_states,omitempty"`
}

// Duration returns the wall-clock duration of the run.
func (r *RunRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// RunRepository stores and retrieves run records.
type RunRepository interface {
	// Save persists a run record, overwriting any record with the same ID.
	Save(ctx context.Context, record *RunRecord) error

	// GetByID returns the record for one run, or ErrRunNotFound.
	GetByID(ctx context.Context, id string) (*RunRecord, error)

	// List returns all stored records, newest first.
	List(ctx context.Context) ([]*RunRecord, error)

	// Delete removes a run record. Deleting an unknown ID returns
	// ErrRunNotFound.
	Delete(ctx context.Context, id string) error
}

// Persistence is the top-level storage handle.
type Persistence interface {
	RunRepository() RunRepository
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
