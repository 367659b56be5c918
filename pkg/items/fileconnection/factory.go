package fileconnection

import (
	"fmt"
	"log/slog"

	"github.com/xeipuuv/gojsonschema"

	"github.com/weaveflow/weft/pkg/engine"
)

const configSchema = `{
	"type": "object",
	"required": ["files"],
	"properties": {
		"files": {"type": "array", "items": {"type": "string", "minLength": 1}}
	}
}`

func NewFileConnectionFactory() *FileConnectionFactory {
	return &FileConnectionFactory{}
}

type FileConnectionFactory struct{}

func (f *FileConnectionFactory) ID() string {
	return "file_connection"
}

func (f *FileConnectionFactory) Create(name string, config map[string]any, logger *slog.Logger) (engine.Item, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(configSchema),
		gojsonschema.NewGoLoader(config),
	)
	if err != nil {
		return nil, err
	}

	if !result.Valid() {
		return nil, fmt.Errorf("invalid file connection configuration for %s: %v", name, result.Errors())
	}

	raw, _ := config["files"].([]any)

	paths := make([]string, 0, len(raw))
	for _, entry := range raw {
		if path, ok := entry.(string); ok {
			paths = append(paths, path)
		}
	}

	return NewFileConnection(name, paths, logger), nil
}
