// Package engine executes a workflow graph in two passes: a backward pass
// where items advertise resources to their predecessors, and a forward pass
// where the actual work happens.
package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/weaveflow/weft/pkg/models"
)

// Direction tells an item which pass it is participating in.
type Direction string

const (
	Forward  Direction = "FORWARD"
	Backward Direction = "BACKWARD"
)

// FinishState is the terminal state of one item execution.
type FinishState string

const (
	// StateSuccess means the item executed and succeeded.
	StateSuccess FinishState = "SUCCESS"
	// StateFailure means the item executed and failed.
	StateFailure FinishState = "FAILURE"
	// StateSkipped means the item decided it had nothing to do. Dependents
	// still run.
	StateSkipped FinishState = "SKIPPED"
	// StateStopped means the user stopped the engine before or during the
	// item's execution.
	StateStopped FinishState = "STOPPED"
	// StateExcluded means the item's execution permit was withheld; its
	// resources were still collected and propagated.
	StateExcluded FinishState = "EXCLUDED"
	// StateNeverFinished means an upstream failure blocked the item from
	// ever starting.
	StateNeverFinished FinishState = "NEVER_FINISHED"
)

// Blocks reports whether dependents of an item in this state must not run.
func (s FinishState) Blocks() bool {
	return s == StateFailure || s == StateStopped || s == StateNeverFinished
}

// Item is the execution-time face of a workflow node. The engine drives the
// graph; items only ever see their own resources.
//
// Execute runs the item's work with the resources gathered from its
// predecessors (forward) and successors (backward). lock is shared by every
// item in the run and serializes access to stores that cannot take
// concurrent writers.
type Item interface {
	Name() string
	GroupID() string

	// ReadyToExecute is consulted once before the run starts; a false from
	// any item fails the whole run without executing anything.
	ReadyToExecute(settings map[string]string) bool

	// Update refreshes the item from new resources before a loop iteration
	// re-executes it. Returning false fails the item.
	Update(forwardResources, backwardResources []*models.Resource) bool

	Execute(ctx context.Context, forwardResources, backwardResources []*models.Resource, lock *sync.Mutex) FinishState

	// ExcludeExecution is called instead of Execute when the item's
	// execution permit is withheld.
	ExcludeExecution(forwardResources, backwardResources []*models.Resource)

	// OutputResources advertises the item's resources in the given
	// direction. It must be side-effect free; the engine calls it freely.
	OutputResources(direction Direction) []*models.Resource

	// StopExecution interrupts an ongoing Execute. Called from another
	// goroutine.
	StopExecution()

	// IsFilterTerminus reports whether fan-out filter branches must rejoin
	// before this item.
	IsFilterTerminus() bool
}

// BaseItem carries the identity bookkeeping and default behavior shared by
// item implementations. Embedders must provide Execute.
type BaseItem struct {
	name    string
	groupID string
	logger  *slog.Logger
}

func NewBaseItem(name string, logger *slog.Logger) BaseItem {
	if logger == nil {
		logger = slog.Default()
	}

	return BaseItem{
		name:    name,
		groupID: name,
		logger:  logger.With("node", name),
	}
}

func (b *BaseItem) Name() string {
	return b.name
}

func (b *BaseItem) GroupID() string {
	return b.groupID
}

func (b *BaseItem) SetGroupID(groupID string) {
	if groupID == "" {
		groupID = b.name
	}

	b.groupID = groupID
}

func (b *BaseItem) Logger() *slog.Logger {
	return b.logger
}

func (b *BaseItem) ReadyToExecute(_ map[string]string) bool {
	return true
}

func (b *BaseItem) Update(_, _ []*models.Resource) bool {
	return true
}

func (b *BaseItem) ExcludeExecution(_, _ []*models.Resource) {}

func (b *BaseItem) OutputResources(_ Direction) []*models.Resource {
	return nil
}

func (b *BaseItem) StopExecution() {}

func (b *BaseItem) IsFilterTerminus() bool {
	return false
}
