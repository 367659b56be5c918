package project

// Specification is a reusable, named template a node can reference. The
// project owns the specification list; nodes hold references into it.
type Specification struct {
	Name        string         `json:"name"`
	ItemType    string         `json:"item_type"`
	Description string         `json:"description,omitempty"`
	Definition  map[string]any `json:"definition,omitempty"`
}
