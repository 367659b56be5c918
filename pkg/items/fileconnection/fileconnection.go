// Package fileconnection implements the file connection item: it hands a
// fixed set of files to its dependents.
package fileconnection

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/weaveflow/weft/pkg/engine"
	"github.com/weaveflow/weft/pkg/models"
)

// FileConnection advertises its configured files forward. Files that do not
// exist yet are advertised as transient, so dependents can still refer to
// them by label.
type FileConnection struct {
	engine.BaseItem

	paths []string
}

func NewFileConnection(name string, paths []string, logger *slog.Logger) *FileConnection {
	return &FileConnection{
		BaseItem: engine.NewBaseItem(name, logger),
		paths:    paths,
	}
}

func (f *FileConnection) Execute(_ context.Context, _, _ []*models.Resource, _ *sync.Mutex) engine.FinishState {
	for _, path := range f.paths {
		if _, err := os.Stat(path); err != nil {
			f.Logger().Warn("File is not available", "path", path)
		}
	}

	return engine.StateSuccess
}

func (f *FileConnection) OutputResources(direction engine.Direction) []*models.Resource {
	if direction != engine.Forward {
		return nil
	}

	resources := make([]*models.Resource, 0, len(f.paths))

	for _, path := range f.paths {
		if _, err := os.Stat(path); err != nil {
			resources = append(resources, models.NewTransientFileResource(f.Name(), path, ""))

			continue
		}

		resources = append(resources, models.NewFileResource(f.Name(), path))
	}

	return resources
}
