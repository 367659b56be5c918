package cmd

import (
	"fmt"

	"github.com/weaveflow/weft/pkg/engine"
	"github.com/weaveflow/weft/pkg/project"
	"github.com/weaveflow/weft/pkg/registry"
)

// BuildEngine assembles an engine for one project: items are built from the
// project's nodes through the registry, loops from its jumps, and the edge
// policies are carried over as-is. base supplies everything else (publisher,
// tracer, permits, worker count).
func BuildEngine(p *project.Project, reg *registry.Registry, base engine.Config) (*engine.Engine, error) {
	for edge, connection := range p.Connections() {
		for _, notification := range connection.Notifications() {
			return nil, fmt.Errorf("connection %s -> %s blocks execution: %s",
				edge.Source, edge.Destination, notification)
		}
	}

	items := make(map[string]engine.Item, len(p.Nodes()))

	for _, node := range p.Nodes() {
		config := node.Config()

		// A specification provides defaults; the node's own config wins.
		if specification := node.Specification(); specification != nil {
			merged := make(map[string]any, len(specification.Definition)+len(config))
			for key, value := range specification.Definition {
				merged[key] = value
			}

			for key, value := range config {
				merged[key] = value
			}

			config = merged
		}

		item, err := reg.CreateItem(node.Type(), node.Name(), config)
		if err != nil {
			return nil, fmt.Errorf("failed to build item for node %s: %w", node.Name(), err)
		}

		if setter, ok := item.(interface{ SetGroupID(string) }); ok {
			setter.SetGroupID(node.GroupID())
		}

		items[node.Name()] = item
	}

	loops := make([]engine.Loop, 0, len(p.Jumps()))
	for _, jump := range p.Jumps() {
		loops = append(loops, engine.LoopFromJump(jump, p.JumpNodes(jump)))
	}

	base.ProjectName = p.Name()
	base.Items = items
	base.Successors = p.Successors()
	base.Connections = p.Connections()
	base.Loops = loops

	return engine.New(base)
}
