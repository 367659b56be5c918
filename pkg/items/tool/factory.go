package tool

import (
	"fmt"
	"log/slog"

	"github.com/xeipuuv/gojsonschema"

	"github.com/weaveflow/weft/pkg/engine"
)

const configSchema = `{
	"type": "object",
	"required": ["command"],
	"properties": {
		"command": {"type": "string", "minLength": 1},
		"args": {"type": "array", "items": {"type": "string"}},
		"work_dir": {"type": "string"},
		"output_files": {"type": "array", "items": {"type": "string", "minLength": 1}}
	}
}`

func NewToolFactory() *ToolFactory {
	return &ToolFactory{}
}

type ToolFactory struct{}

func (f *ToolFactory) ID() string {
	return "tool"
}

func (f *ToolFactory) Create(name string, config map[string]any, logger *slog.Logger) (engine.Item, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(configSchema),
		gojsonschema.NewGoLoader(config),
	)
	if err != nil {
		return nil, err
	}

	if !result.Valid() {
		return nil, fmt.Errorf("invalid tool configuration for %s: %v", name, result.Errors())
	}

	command, _ := config["command"].(string)
	workDir, _ := config["work_dir"].(string)

	return NewTool(name, command, stringList(config["args"]), workDir, stringList(config["output_files"]), logger), nil
}

func stringList(value any) []string {
	raw, _ := value.([]any)

	list := make([]string, 0, len(raw))
	for _, entry := range raw {
		if s, ok := entry.(string); ok {
			list = append(list, s)
		}
	}

	return list
}
