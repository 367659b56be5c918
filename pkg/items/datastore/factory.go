package datastore

import (
	"fmt"
	"log/slog"

	"github.com/xeipuuv/gojsonschema"

	"github.com/weaveflow/weft/pkg/engine"
)

const configSchema = `{
	"type": "object",
	"required": ["url"],
	"properties": {
		"url": {"type": "string", "minLength": 1}
	}
}`

func NewDataStoreFactory() *DataStoreFactory {
	return &DataStoreFactory{}
}

type DataStoreFactory struct{}

func (f *DataStoreFactory) ID() string {
	return "data_store"
}

func (f *DataStoreFactory) Create(name string, config map[string]any, logger *slog.Logger) (engine.Item, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(configSchema),
		gojsonschema.NewGoLoader(config),
	)
	if err != nil {
		return nil, err
	}

	if !result.Valid() {
		return nil, fmt.Errorf("invalid data store configuration for %s: %v", name, result.Errors())
	}

	url, _ := config["url"].(string)

	return NewDataStore(name, url, logger), nil
}
