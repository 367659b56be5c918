// Package cmd provides common initialization functions for command-line
// applications.
package cmd

import (
	"log/slog"

	"github.com/weaveflow/weft/pkg/items/datastore"
	"github.com/weaveflow/weft/pkg/items/fileconnection"
	"github.com/weaveflow/weft/pkg/items/tool"
	"github.com/weaveflow/weft/pkg/registry"
)

func registerItemPlugins(reg *registry.Registry, pluginsPath string) {
	itemPlugins, err := reg.LoadItemPlugins(pluginsPath)
	if err != nil {
		panic(err)
	}

	for _, plugin := range itemPlugins {
		reg.RegisterItem(plugin)
	}
}

func registerNativeItems(reg *registry.Registry) {
	reg.RegisterItem(datastore.NewDataStoreFactory())
	reg.RegisterItem(fileconnection.NewFileConnectionFactory())
	reg.RegisterItem(tool.NewToolFactory())
}

func NewRegistry(log *slog.Logger, pluginsPath string) *registry.Registry {
	reg := registry.NewRegistry(log)

	if pluginsPath != "" {
		registerItemPlugins(reg, pluginsPath)
	}

	registerNativeItems(reg)

	return reg
}
