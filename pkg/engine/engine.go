package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/weaveflow/weft/pkg/eventbus"
	"github.com/weaveflow/weft/pkg/events"
	"github.com/weaveflow/weft/pkg/models"
	"github.com/weaveflow/weft/pkg/otelhelper"
)

// State is the engine's run state. An engine starts SLEEPING, moves to
// RUNNING when Run is called, and ends in exactly one terminal state.
type State string

const (
	StateSleeping    State = "SLEEPING"
	StateRunning     State = "RUNNING"
	StateCompleted   State = "COMPLETED"
	StateFailed      State = "FAILED"
	StateUserStopped State = "USER_STOPPED"
)

// Loop re-executes the nodes between Destination and Source while Condition
// holds. Condition is evaluated with an iteration counter that starts at 1
// after the body's first run; the engine imposes no iteration cap.
type Loop struct {
	Source      string
	Destination string
	Nodes       map[string]struct{}
	Condition   func(iteration int) bool
}

// LoopFromJump adapts a project jump and its loop body into an engine loop.
func LoopFromJump(jump *models.Jump, body map[string]struct{}) Loop {
	return Loop{
		Source:      jump.Source,
		Destination: jump.Destination,
		Nodes:       body,
		Condition:   jump.Condition.Evaluate,
	}
}

// Config assembles everything an engine needs. Items and Successors are
// mandatory; the rest have working defaults.
type Config struct {
	ProjectName string
	Items       map[string]Item

	// Successors maps each node to its direct downstream dependents. Every
	// name it mentions must have an item.
	Successors map[string][]string

	// Connections carries the per-edge conversion policies. Edges without an
	// entry get a default connection.
	Connections map[models.EdgePair]*models.Connection

	Loops []Loop

	// ExecutionPermits maps node names to execution permission. A missing
	// entry permits execution; false means the node's execution is skipped
	// while its resources are still collected and propagated.
	ExecutionPermits map[string]bool

	// Workers caps how many items execute concurrently. Defaults to the
	// number of CPUs.
	Workers int

	// Settings is passed verbatim to every item's ReadyToExecute check.
	Settings map[string]string

	Debug bool

	Publisher eventbus.EventPublisher
	Tracer    trace.Tracer
	Logger    *slog.Logger
}

// Engine executes one workflow graph exactly once.
type Engine struct {
	projectName  string
	items        map[string]Item
	successors   map[string][]string
	predecessors map[string][]string
	connections  map[models.EdgePair]*models.Connection
	siblings     map[string]map[models.EdgePair]*models.Connection
	loops        []Loop
	permits      map[string]bool
	workers      int
	settings     map[string]string
	debug        bool

	publisher eventbus.EventPublisher
	tracer    trace.Tracer
	logger    *slog.Logger

	// sharedLock is handed to every Execute call so items can serialize
	// access to stores that cannot take concurrent writers.
	sharedLock sync.Mutex

	stopRequested atomic.Bool

	mu         sync.Mutex
	state      State
	itemStates map[string]FinishState
	forwardOut map[string][]*models.Resource
	backwardIn map[string][]*models.Resource
	running    map[string]Item
	anyFailed  bool
}

// New validates the configuration and returns a sleeping engine.
func New(config Config) (*Engine, error) {
	if config.Items == nil {
		config.Items = make(map[string]Item)
	}

	successors := make(map[string][]string, len(config.Items))
	for name := range config.Items {
		successors[name] = nil
	}

	for source, targets := range config.Successors {
		if _, ok := config.Items[source]; !ok {
			return nil, fmt.Errorf("node %q: %w", source, ErrUnknownItem)
		}

		for _, target := range targets {
			if _, ok := config.Items[target]; !ok {
				return nil, fmt.Errorf("node %q: %w", target, ErrUnknownItem)
			}
		}

		successors[source] = append([]string(nil), targets...)
	}

	connections := make(map[models.EdgePair]*models.Connection, len(config.Connections))
	siblings := make(map[string]map[models.EdgePair]*models.Connection)

	for source, targets := range successors {
		for _, target := range targets {
			edge := models.EdgePair{Source: source, Destination: target}

			connection := config.Connections[edge]
			if connection == nil {
				connection = models.NewConnection(nil)
			}

			connections[edge] = connection

			if siblings[target] == nil {
				siblings[target] = make(map[models.EdgePair]*models.Connection)
			}

			siblings[target][edge] = connection
		}
	}

	for _, loop := range config.Loops {
		if loop.Condition == nil {
			return nil, fmt.Errorf("loop %s -> %s has no condition: %w", loop.Source, loop.Destination, ErrInvalidLoop)
		}

		if len(loop.Nodes) == 0 {
			return nil, fmt.Errorf("loop %s -> %s has an empty body: %w", loop.Source, loop.Destination, ErrInvalidLoop)
		}

		for _, endpoint := range []string{loop.Source, loop.Destination} {
			if _, ok := config.Items[endpoint]; !ok {
				return nil, fmt.Errorf("loop endpoint %q: %w", endpoint, ErrUnknownItem)
			}
		}

		for name := range loop.Nodes {
			if _, ok := config.Items[name]; !ok {
				return nil, fmt.Errorf("loop body node %q: %w", name, ErrUnknownItem)
			}
		}
	}

	workers := config.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.With("module", "engine")
	}

	permits := config.ExecutionPermits
	if permits == nil {
		permits = make(map[string]bool)
	}

	return &Engine{
		projectName:  config.ProjectName,
		items:        config.Items,
		successors:   successors,
		predecessors: invert(successors),
		connections:  connections,
		siblings:     siblings,
		loops:        append([]Loop(nil), config.Loops...),
		permits:      permits,
		workers:      workers,
		settings:     config.Settings,
		debug:        config.Debug,
		publisher:    config.Publisher,
		tracer:       config.Tracer,
		logger:       logger,
		state:        StateSleeping,
		itemStates:   make(map[string]FinishState),
		forwardOut:   make(map[string][]*models.Resource),
		backwardIn:   make(map[string][]*models.Resource),
		running:      make(map[string]Item),
	}, nil
}

// invert turns a successor mapping into a predecessor mapping.
func invert(successors map[string][]string) map[string][]string {
	predecessors := make(map[string][]string, len(successors))
	for name := range successors {
		predecessors[name] = nil
	}

	for source, targets := range successors {
		for _, target := range targets {
			predecessors[target] = append(predecessors[target], source)
		}
	}

	return predecessors
}

// State returns the engine's current run state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state
}

// ItemState returns the finish state of one item, or an empty state if the
// item has not finished in any pass yet.
func (e *Engine) ItemState(name string) FinishState {
	return e.itemState(name)
}

// ItemStates returns a snapshot of the finish state of every item that has
// finished a forward pass so far.
func (e *Engine) ItemStates() map[string]FinishState {
	e.mu.Lock()
	defer e.mu.Unlock()

	states := make(map[string]FinishState, len(e.itemStates))
	for name, state := range e.itemStates {
		states[name] = state
	}

	return states
}

// Run executes the graph and blocks until every reachable item has finished.
// It returns the terminal state; ErrAlreadyRunning is the only error. A
// cancelled context is treated like a user stop.
func (e *Engine) Run(ctx context.Context) (State, error) {
	e.mu.Lock()
	if e.state != StateSleeping {
		state := e.state
		e.mu.Unlock()

		return state, ErrAlreadyRunning
	}
	e.state = StateRunning
	e.mu.Unlock()

	start := time.Now()

	var span trace.Span
	if e.tracer != nil {
		ctx, span = otelhelper.StartSpan(ctx, e.tracer, "engine.run",
			attribute.String(otelhelper.ProjectNameKey, e.projectName),
		)
		defer span.End()
	}

	e.logger.Info("Execution started", "project", e.projectName, "nodes", len(e.items))
	e.publish(ctx, events.EngineStarted{
		BaseEvent: events.NewBaseEvent(events.EngineStartedEvent, e.projectName),
		NodeCount: len(e.items),
	})

	final := e.execute(ctx)

	e.mu.Lock()
	e.state = final
	e.mu.Unlock()

	duration := time.Since(start)

	if span != nil {
		span.SetAttributes(attribute.String(otelhelper.EngineStateKey, string(final)))
		if final == StateFailed {
			otelhelper.SetError(span, errors.New("execution failed"))
		}
	}

	e.logger.Info("Execution finished", "project", e.projectName, "state", final, "duration", duration)
	e.publish(ctx, events.EngineFinished{
		BaseEvent:  events.NewBaseEvent(events.EngineFinishedEvent, e.projectName),
		State:      string(final),
		DurationMs: duration.Milliseconds(),
	})

	return final, nil
}

// Stop requests the engine to stop. Items currently executing are
// interrupted; items not yet started will not start. The final state is
// USER_STOPPED regardless of any failures that happen while winding down.
func (e *Engine) Stop() {
	e.stopRequested.Store(true)

	e.mu.Lock()
	running := make([]Item, 0, len(e.running))
	for _, item := range e.running {
		running = append(running, item)
	}
	e.mu.Unlock()

	for _, item := range running {
		item.StopExecution()
	}

	e.logger.Info("Stop requested", "project", e.projectName)
}

func (e *Engine) execute(ctx context.Context) State {
	for name, item := range e.items {
		if !item.ReadyToExecute(e.settings) {
			e.logger.Error("Node is not ready to execute", "node", name)

			return StateFailed
		}
	}

	all := make(map[string]struct{}, len(e.items))
	for name := range e.items {
		all[name] = struct{}{}
	}

	e.executeSubgraph(ctx, all, nil, false)

	if e.stopRequested.Load() || ctx.Err() != nil {
		return StateUserStopped
	}

	e.mu.Lock()
	failed := e.anyFailed
	e.mu.Unlock()

	if failed {
		return StateFailed
	}

	return StateCompleted
}

// executeSubgraph runs a backward pass and then a forward pass over the given
// node set. suppress is the loop currently being repeated, so its own source
// does not re-trigger it; refresh makes items refresh themselves from new
// forward resources before executing.
func (e *Engine) executeSubgraph(ctx context.Context, subset map[string]struct{}, suppress *Loop, refresh bool) {
	e.collectBackward(ctx, subset)
	e.runForwardPass(ctx, subset, suppress, refresh)
}

// collectBackward gathers, for every node in the subset, the resources its
// successors advertise backward, converted edge by edge. Items are not
// executed in this pass.
func (e *Engine) collectBackward(ctx context.Context, subset map[string]struct{}) {
	for _, name := range e.reverseTopological(subset) {
		e.publish(ctx, events.NodeExecutionStarted{
			BaseEvent: events.NewBaseEvent(events.NodeExecutionStartedEvent, e.projectName),
			NodeName:  name,
			Direction: string(Backward),
		})

		start := time.Now()

		var gathered []*models.Resource

		for _, successor := range e.successors[name] {
			edge := models.EdgePair{Source: name, Destination: successor}
			advertised := e.items[successor].OutputResources(Backward)
			gathered = append(gathered, e.connections[edge].ConvertBackward(advertised, edge, e.siblings[successor])...)
		}

		e.mu.Lock()
		e.backwardIn[name] = gathered
		e.mu.Unlock()

		e.publish(ctx, events.NodeExecutionFinished{
			BaseEvent:  events.NewBaseEvent(events.NodeExecutionFinishedEvent, e.projectName),
			NodeName:   name,
			Direction:  string(Backward),
			State:      string(StateSuccess),
			DurationMs: time.Since(start).Milliseconds(),
		})
	}
}

// runForwardPass executes the subset in dependency order with a bounded
// worker pool. Each node waits for all its in-subset predecessors before it
// is considered ready.
func (e *Engine) runForwardPass(ctx context.Context, subset map[string]struct{}, suppress *Loop, refresh bool) {
	done := make(map[string]chan struct{}, len(subset))
	for name := range subset {
		done[name] = make(chan struct{})
	}

	sem := make(chan struct{}, e.workers)

	var wg sync.WaitGroup

	for name := range subset {
		wg.Add(1)

		go func(name string) {
			defer wg.Done()
			defer close(done[name])

			for _, predecessor := range e.predecessors[name] {
				if ch, ok := done[predecessor]; ok {
					<-ch
				}
			}

			sem <- struct{}{}
			defer func() { <-sem }()

			e.executeForward(ctx, name, suppress, refresh)
		}(name)
	}

	wg.Wait()
}

func (e *Engine) executeForward(ctx context.Context, name string, suppress *Loop, refresh bool) {
	item := e.items[name]

	if e.stopRequested.Load() || ctx.Err() != nil {
		e.setItemState(name, StateStopped)

		return
	}

	for _, predecessor := range e.predecessors[name] {
		if e.itemState(predecessor).Blocks() {
			e.logger.Info("Node blocked by upstream failure", "node", name, "upstream", predecessor)
			e.setItemState(name, StateNeverFinished)

			return
		}
	}

	forwardResources := e.gatherForward(name)

	e.mu.Lock()
	backwardResources := e.backwardIn[name]
	e.mu.Unlock()

	if e.debug {
		e.logger.Debug("Node resources gathered",
			"node", name, "forward", len(forwardResources), "backward", len(backwardResources))
	}

	var span trace.Span
	if e.tracer != nil {
		var spanCtx context.Context
		spanCtx, span = otelhelper.StartSpan(ctx, e.tracer, "engine.node.execute",
			attribute.String(otelhelper.ProjectNameKey, e.projectName),
			attribute.String(otelhelper.NodeNameKey, name),
			attribute.String(otelhelper.DirectionKey, string(Forward)),
		)
		defer span.End()

		ctx = spanCtx
	}

	e.publish(ctx, events.NodeExecutionStarted{
		BaseEvent: events.NewBaseEvent(events.NodeExecutionStartedEvent, e.projectName),
		NodeName:  name,
		Direction: string(Forward),
	})

	start := time.Now()

	var state FinishState

	permitted, known := e.permits[name]
	switch {
	case known && !permitted:
		item.ExcludeExecution(forwardResources, backwardResources)

		state = StateExcluded
	case refresh && !item.Update(forwardResources, backwardResources):
		e.logger.Error("Node refused to refresh for a new loop iteration", "node", name)

		state = StateFailure
	default:
		e.markRunning(name, item)
		state = item.Execute(ctx, forwardResources, backwardResources, &e.sharedLock)
		e.unmarkRunning(name)
	}

	e.mu.Lock()
	e.forwardOut[name] = item.OutputResources(Forward)
	if state == StateFailure {
		e.anyFailed = true
	}
	e.mu.Unlock()

	e.setItemState(name, state)

	duration := time.Since(start)

	switch state {
	case StateSuccess:
		e.logger.Info("Node execution succeeded", "node", name, "duration", duration)
	case StateSkipped:
		e.logger.Info("Node execution skipped", "node", name, "duration", duration)
	case StateExcluded:
		e.logger.Info("Node execution excluded", "node", name, "duration", duration)
	case StateStopped:
		e.logger.Warn("Node execution stopped", "node", name, "duration", duration)
	case StateFailure:
		e.logger.Error("Node execution failed", "node", name, "duration", duration)

		if span != nil {
			otelhelper.SetError(span, fmt.Errorf("node %s failed", name),
				attribute.String(otelhelper.NodeNameKey, name),
			)
		}
	default:
		e.logger.Error("Node finished with unknown outcome", "node", name, "state", state)
	}

	if span != nil {
		span.SetAttributes(attribute.String(otelhelper.FinishStateKey, string(state)))
	}

	e.publish(ctx, events.NodeExecutionFinished{
		BaseEvent:  events.NewBaseEvent(events.NodeExecutionFinishedEvent, e.projectName),
		NodeName:   name,
		Direction:  string(Forward),
		State:      string(state),
		DurationMs: duration.Milliseconds(),
	})

	if state.Blocks() {
		return
	}

	for i := range e.loops {
		loop := &e.loops[i]
		if loop != suppress && loop.Source == name {
			e.runLoop(ctx, loop)
		}
	}
}

// runLoop repeats the loop body while the loop condition holds. The counter
// starts at 1 after the body's first, regular run; a condition that is true
// once and then false makes the body run exactly twice.
func (e *Engine) runLoop(ctx context.Context, loop *Loop) {
	for iteration := 1; ; iteration++ {
		if e.stopRequested.Load() || ctx.Err() != nil {
			return
		}

		if !loop.Condition(iteration) {
			return
		}

		e.logger.Info("Loop iteration started",
			"from", loop.Source, "to", loop.Destination, "iteration", iteration+1)
		e.publish(ctx, events.LoopIterationStarted{
			BaseEvent:   events.NewBaseEvent(events.LoopIterationStartedEvent, e.projectName),
			Source:      loop.Source,
			Destination: loop.Destination,
			Iteration:   iteration + 1,
		})

		e.executeSubgraph(ctx, loop.Nodes, loop, true)

		if e.itemState(loop.Source).Blocks() {
			return
		}
	}
}

// gatherForward collects the forward resources a node receives from its
// predecessors, each list converted by the policy of the edge it crosses.
func (e *Engine) gatherForward(name string) []*models.Resource {
	var gathered []*models.Resource

	for _, predecessor := range e.predecessors[name] {
		edge := models.EdgePair{Source: predecessor, Destination: name}

		e.mu.Lock()
		advertised := append([]*models.Resource(nil), e.forwardOut[predecessor]...)
		e.mu.Unlock()

		gathered = append(gathered, e.connections[edge].ConvertForward(advertised)...)
	}

	return gathered
}

func (e *Engine) itemState(name string) FinishState {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.itemStates[name]
}

func (e *Engine) setItemState(name string, state FinishState) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.itemStates[name] = state
}

func (e *Engine) markRunning(name string, item Item) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.running[name] = item
}

func (e *Engine) unmarkRunning(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.running, name)
}

func (e *Engine) publish(ctx context.Context, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(ctx, e.projectName, event); err != nil {
		e.logger.Warn("Failed to publish engine event", "event", event.GetType(), "error", err)
	}
}

// reverseTopological orders the subset so every node comes after all of its
// successors inside the subset. Ties break alphabetically.
func (e *Engine) reverseTopological(subset map[string]struct{}) []string {
	pending := make(map[string]int, len(subset))
	for name := range subset {
		count := 0

		for _, successor := range e.successors[name] {
			if _, ok := subset[successor]; ok {
				count++
			}
		}

		pending[name] = count
	}

	ready := make([]string, 0, len(subset))
	for name, count := range pending {
		if count == 0 {
			ready = append(ready, name)
		}
	}

	sort.Strings(ready)

	order := make([]string, 0, len(subset))

	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		order = append(order, name)

		var unblocked []string

		for _, predecessor := range e.predecessors[name] {
			if _, ok := subset[predecessor]; !ok {
				continue
			}

			pending[predecessor]--
			if pending[predecessor] == 0 {
				unblocked = append(unblocked, predecessor)
			}
		}

		sort.Strings(unblocked)
		ready = append(ready, unblocked...)
	}

	return order
}
