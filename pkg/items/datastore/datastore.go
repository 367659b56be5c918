// Package datastore implements the data store item: a named database other
// items read from and write into.
package datastore

import (
	"context"
	"log/slog"
	"sync"

	"github.com/weaveflow/weft/pkg/engine"
	"github.com/weaveflow/weft/pkg/models"
)

// DataStore advertises its database URL in both directions: forward so
// dependents can read it, backward so precursors know where to write.
// Executing it does no work of its own.
type DataStore struct {
	engine.BaseItem

	url string
}

func NewDataStore(name, databaseURL string, logger *slog.Logger) *DataStore {
	return &DataStore{
		BaseItem: engine.NewBaseItem(name, logger),
		url:      databaseURL,
	}
}

func (d *DataStore) ReadyToExecute(_ map[string]string) bool {
	if d.url == "" {
		d.Logger().Error("Data store has no database URL set")

		return false
	}

	return true
}

func (d *DataStore) Execute(_ context.Context, _, _ []*models.Resource, _ *sync.Mutex) engine.FinishState {
	d.Logger().Info("Data store up to date", "url", d.url)

	return engine.StateSuccess
}

func (d *DataStore) OutputResources(_ engine.Direction) []*models.Resource {
	return []*models.Resource{models.NewDatabaseResource(d.Name(), d.url)}
}
