package tool

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaveflow/weft/pkg/engine"
	"github.com/weaveflow/weft/pkg/models"
)

func TestToolFactory(t *testing.T) {
	factory := NewToolFactory()
	assert.Equal(t, "tool", factory.ID())

	item, err := factory.Create("My Tool", map[string]any{"command": "echo"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "My Tool", item.Name())

	_, err = factory.Create("My Tool", map[string]any{}, nil)
	require.Error(t, err)

	_, err = factory.Create("My Tool", map[string]any{"command": ""}, nil)
	require.Error(t, err)
}

func TestToolExecute(t *testing.T) {
	tool := NewTool("echoer", "echo", []string{"hello"}, "", nil, nil)

	state := tool.Execute(context.Background(), nil, nil, &sync.Mutex{})
	assert.Equal(t, engine.StateSuccess, state)
}

func TestToolExecuteFailure(t *testing.T) {
	tool := NewTool("failer", "false", nil, "", nil, nil)

	state := tool.Execute(context.Background(), nil, nil, &sync.Mutex{})
	assert.Equal(t, engine.StateFailure, state)
}

func TestToolStopExecution(t *testing.T) {
	tool := NewTool("sleeper", "sleep", []string{"30"}, "", nil, nil)

	finished := make(chan engine.FinishState, 1)

	go func() {
		finished <- tool.Execute(context.Background(), nil, nil, &sync.Mutex{})
	}()

	// Give the process a moment to start, then interrupt it.
	time.Sleep(100 * time.Millisecond)
	tool.StopExecution()

	select {
	case state := <-finished:
		assert.Equal(t, engine.StateStopped, state)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for command to stop")
	}
}

func TestToolReadyToExecute(t *testing.T) {
	assert.False(t, NewTool("t", "", nil, "", nil, nil).ReadyToExecute(nil))
	assert.True(t, NewTool("t", "echo", nil, "", nil, nil).ReadyToExecute(nil))
}

func TestExpandArgs(t *testing.T) {
	forward := []*models.Resource{models.NewFileResource("a", "/data/in.csv")}
	backward := []*models.Resource{models.NewDatabaseResource("store", "sqlite:///db.sqlite")}

	args := expandArgs([]string{"-i", InputsPlaceholder, "-o", OutputsPlaceholder}, forward, backward)
	assert.Equal(t, []string{"-i", filepath.FromSlash("/data/in.csv"), "-o", "sqlite:///db.sqlite"}, args)
}

func TestToolOutputResources(t *testing.T) {
	existing := filepath.Join(t.TempDir(), "out.dat")
	require.NoError(t, os.WriteFile(existing, []byte("data"), 0o644))

	tool := NewTool("t", "echo", nil, "", []string{existing, "/nonexistent/out.dat"}, nil)

	assert.Empty(t, tool.OutputResources(engine.Backward))

	resources := tool.OutputResources(engine.Forward)
	require.Len(t, resources, 2)
	assert.Equal(t, models.ResourceTypeFile, resources[0].Type)
	assert.Equal(t, models.ResourceTypeTransientFile, resources[1].Type)
}
