// Package tool implements the tool item: it runs an external command with
// the resources of its neighbors on the command line.
package tool

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/weaveflow/weft/pkg/engine"
	"github.com/weaveflow/weft/pkg/models"
)

// Argument placeholders expanded at execution time.
const (
	// InputsPlaceholder expands to the command line forms of all forward
	// resources.
	InputsPlaceholder = "@inputs"
	// OutputsPlaceholder expands to the command line forms of all backward
	// resources.
	OutputsPlaceholder = "@outputs"
)

// Tool runs one external command per execution. Stopping the engine kills
// the running process.
type Tool struct {
	engine.BaseItem

	command     string
	args        []string
	workDir     string
	outputFiles []string

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewTool(name, command string, args []string, workDir string, outputFiles []string, logger *slog.Logger) *Tool {
	return &Tool{
		BaseItem:    engine.NewBaseItem(name, logger),
		command:     command,
		args:        args,
		workDir:     workDir,
		outputFiles: outputFiles,
	}
}

func (t *Tool) ReadyToExecute(_ map[string]string) bool {
	if t.command == "" {
		t.Logger().Error("Tool has no command set")

		return false
	}

	return true
}

func (t *Tool) Execute(ctx context.Context, forwardResources, backwardResources []*models.Resource, _ *sync.Mutex) engine.FinishState {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.cancel = nil
		t.mu.Unlock()
	}()

	args := expandArgs(t.args, forwardResources, backwardResources)

	cmd := exec.CommandContext(ctx, t.command, args...)
	cmd.Dir = t.workDir

	t.Logger().Info("Running command", "command", t.command, "args", args)

	output, err := cmd.CombinedOutput()
	for _, line := range strings.Split(strings.TrimRight(string(output), "\n"), "\n") {
		if line != "" {
			t.Logger().Info(line)
		}
	}

	if ctx.Err() != nil {
		t.Logger().Info("Command interrupted")

		return engine.StateStopped
	}

	if err != nil {
		t.Logger().Error("Command failed", "error", err)

		return engine.StateFailure
	}

	return engine.StateSuccess
}

func (t *Tool) StopExecution() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}
}

func (t *Tool) OutputResources(direction engine.Direction) []*models.Resource {
	if direction != engine.Forward {
		return nil
	}

	resources := make([]*models.Resource, 0, len(t.outputFiles))

	for _, path := range t.outputFiles {
		if _, err := os.Stat(path); err != nil {
			resources = append(resources, models.NewTransientFileResource(t.Name(), path, ""))

			continue
		}

		resources = append(resources, models.NewFileResource(t.Name(), path))
	}

	return resources
}

// expandArgs substitutes resource placeholders in the configured argument
// list. Non-placeholder arguments pass through untouched.
func expandArgs(args []string, forwardResources, backwardResources []*models.Resource) []string {
	expanded := make([]string, 0, len(args))

	for _, arg := range args {
		switch arg {
		case InputsPlaceholder:
			for _, resource := range forwardResources {
				expanded = append(expanded, resource.Arg())
			}
		case OutputsPlaceholder:
			for _, resource := range backwardResources {
				expanded = append(expanded, resource.Arg())
			}
		default:
			expanded = append(expanded, arg)
		}
	}

	return expanded
}
