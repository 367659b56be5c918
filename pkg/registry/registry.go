// Package registry maps node type tags to the item factories that build
// their executable items.
package registry

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"plugin"
	"strings"

	"github.com/weaveflow/weft/pkg/engine"
	"github.com/weaveflow/weft/pkg/protocol"
)

type Registry struct {
	logger        *slog.Logger
	itemFactories map[string]protocol.ItemFactory
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:        log,
		itemFactories: make(map[string]protocol.ItemFactory),
	}
}

func (r *Registry) LoadItemPlugins(pluginsPath string) ([]protocol.ItemFactory, error) {
	return loadPlugin[protocol.ItemFactory](r.logger, pluginsPath, "Item")
}

func (r *Registry) RegisterItem(itemFactory protocol.ItemFactory) {
	r.itemFactories[itemFactory.ID()] = itemFactory
}

func (r *Registry) CreateItem(itemType, name string, config map[string]any) (engine.Item, error) {
	factory, ok := r.itemFactories[itemType]
	if !ok {
		return nil, fmt.Errorf("item type '%s' not registered", itemType)
	}

	return factory.Create(name, config, r.logger)
}

// AvailableItemTypes returns every registered type tag.
func (r *Registry) AvailableItemTypes() []string {
	types := make([]string, 0, len(r.itemFactories))
	for itemType := range r.itemFactories {
		types = append(types, itemType)
	}

	return types
}

func loadPlugin[T interface{}](logger *slog.Logger, pluginsPath string, symbolName string) ([]T, error) {
	rootPath := pluginsPath + "/" + strings.ToLower(symbolName) + "s"
	root := os.DirFS(rootPath)
	pluginPathList, err := fs.Glob(root, "**/*.so")

	if err != nil {
		return nil, err
	}

	l := logger.With(slog.String("path", pluginsPath), slog.String("type", symbolName))
	l.Info("Loading plugins")

	pluginList := make([]T, 0, len(pluginPathList))
	for _, p := range pluginPathList {
		plg, err := plugin.Open(rootPath + "/" + p)
		if err != nil {
			panic(err)
		}

		v, err := plg.Lookup(symbolName)
		if err != nil {
			panic(err)
		}

		castV, ok := v.(T)
		if !ok {
			panic("Could not cast plugin")
		}

		pluginList = append(pluginList, castV)

		l.Info("Loaded item plugin", slog.String("plugin", p))
	}

	return pluginList, nil
}
