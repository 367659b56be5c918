package cmd

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaveflow/weft/pkg/engine"
	"github.com/weaveflow/weft/pkg/models"
	"github.com/weaveflow/weft/pkg/project"
)

func TestBuildEngineRunsProject(t *testing.T) {
	p := project.New("Build test", "")

	require.NoError(t, p.AddNode(project.NewNode("Hello", "tool", map[string]any{
		"command": "echo",
		"args":    []any{"hello"},
	})))
	require.NoError(t, p.AddNode(project.NewNode("World", "tool", map[string]any{
		"command": "echo",
		"args":    []any{"world"},
	})))
	require.NoError(t, p.AddConnection("Hello", "World", nil))

	reg := NewRegistry(slog.Default(), "")

	e, err := BuildEngine(p, reg, engine.Config{})
	require.NoError(t, err)

	state, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, engine.StateCompleted, state)
	assert.Equal(t, engine.StateSuccess, e.ItemState("Hello"))
	assert.Equal(t, engine.StateSuccess, e.ItemState("World"))
}

func TestBuildEngineMergesSpecificationDefaults(t *testing.T) {
	p := project.New("Spec test", "")

	specification := &project.Specification{
		Name:       "echo spec",
		ItemType:   "tool",
		Definition: map[string]any{"command": "echo", "args": []any{"from-spec"}},
	}
	require.NoError(t, p.AddSpecification(specification))

	node := project.NewNode("Echo", "tool", map[string]any{"args": []any{"from-node"}})
	node.SetSpecification(specification)
	require.NoError(t, p.AddNode(node))

	reg := NewRegistry(slog.Default(), "")

	e, err := BuildEngine(p, reg, engine.Config{})
	require.NoError(t, err)

	state, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, engine.StateCompleted, state)
}

func TestBuildEngineRejectsUnknownItemType(t *testing.T) {
	p := project.New("Unknown type", "")
	require.NoError(t, p.AddNode(project.NewNode("Mystery", "teleporter", nil)))

	reg := NewRegistry(slog.Default(), "")

	_, err := BuildEngine(p, reg, engine.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Mystery")
}

func TestBuildEngineBlocksOnConnectionNotifications(t *testing.T) {
	p := project.New("Blocked", "")
	require.NoError(t, p.AddNode(project.NewNode("Store", "data_store", map[string]any{"url": "sqlite:///db.sqlite"})))
	require.NoError(t, p.AddNode(project.NewNode("Tool", "tool", map[string]any{"command": "echo"})))

	connection := models.NewConnection(nil)
	connection.SetRequireFilterOnline(models.ScenarioFilterType)
	connection.FilterSettings.AutoOnline = false
	require.NoError(t, p.AddConnection("Store", "Tool", connection))

	reg := NewRegistry(slog.Default(), "")

	_, err := BuildEngine(p, reg, engine.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenario filter")
}

func TestBuildEngineWiresLoops(t *testing.T) {
	p := project.New("Looped", "")
	require.NoError(t, p.AddNode(project.NewNode("Once", "tool", map[string]any{"command": "echo"})))
	require.NoError(t, p.AddNode(project.NewNode("Twice", "tool", map[string]any{"command": "echo"})))
	require.NoError(t, p.AddConnection("Once", "Twice", nil))

	jump, err := p.MakeJump("Twice", "Twice")
	require.NoError(t, err)
	jump.Condition = models.JumpCondition{Type: models.ConditionTypeIterations, MaxIterations: 2}

	reg := NewRegistry(slog.Default(), "")

	e, err := BuildEngine(p, reg, engine.Config{})
	require.NoError(t, err)

	state, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, engine.StateCompleted, state)
}
