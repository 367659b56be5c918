package models

// Jump condition types.
const (
	// ConditionTypeNever never repeats the loop; the body runs once.
	ConditionTypeNever = "never"
	// ConditionTypeIterations repeats the loop while the iteration counter is
	// below MaxIterations.
	ConditionTypeIterations = "iterations"
)

// JumpCondition decides after each forward pass whether the loop body should
// run again. There is no iteration cap at the engine level; a safety limit
// must be encoded in the condition itself.
type JumpCondition struct {
	Type          string `json:"type"`
	MaxIterations int    `json:"max_iterations,omitempty"`
}

// DefaultJumpCondition returns the condition a fresh jump carries: never
// repeat.
func DefaultJumpCondition() JumpCondition {
	return JumpCondition{Type: ConditionTypeNever}
}

// Evaluate answers whether the loop body should run again. iteration is a
// counter that starts at 1 on the first evaluation and grows monotonically.
func (c JumpCondition) Evaluate(iteration int) bool {
	switch c.Type {
	case ConditionTypeIterations:
		return iteration < c.MaxIterations
	default:
		return false
	}
}

// Jump is a conditional back-edge: after a forward pass over the nodes between
// Destination and Source completes, Condition is consulted and, when it holds,
// that sub-graph is executed again.
type Jump struct {
	Source      string        `json:"from"`
	Destination string        `json:"to"`
	Condition   JumpCondition `json:"condition"`
	CmdLineArgs []string      `json:"cmd_line_args,omitempty"`
}

// NewJump returns a jump with the default never-repeat condition.
func NewJump(source, destination string) *Jump {
	return &Jump{
		Source:      source,
		Destination: destination,
		Condition:   DefaultJumpCondition(),
	}
}

// IsSelfJump reports whether the jump loops over a single node.
func (j *Jump) IsSelfJump() bool {
	return j.Source == j.Destination
}

// Touches reports whether the jump starts or ends at the named node.
func (j *Jump) Touches(name string) bool {
	return j.Source == name || j.Destination == name
}
