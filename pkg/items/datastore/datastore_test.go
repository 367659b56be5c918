package datastore

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaveflow/weft/pkg/engine"
	"github.com/weaveflow/weft/pkg/models"
)

func TestDataStoreFactory(t *testing.T) {
	factory := NewDataStoreFactory()
	assert.Equal(t, "data_store", factory.ID())

	item, err := factory.Create("Store", map[string]any{"url": "sqlite:///data/db.sqlite"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Store", item.Name())

	_, err = factory.Create("Store", map[string]any{}, nil)
	require.Error(t, err)

	_, err = factory.Create("Store", map[string]any{"url": ""}, nil)
	require.Error(t, err)
}

func TestDataStoreAdvertisesBothDirections(t *testing.T) {
	store := NewDataStore("Store", "sqlite:///data/db.sqlite", nil)

	for _, direction := range []engine.Direction{engine.Forward, engine.Backward} {
		resources := store.OutputResources(direction)
		require.Len(t, resources, 1)
		assert.Equal(t, models.ResourceTypeDatabase, resources[0].Type)
		assert.Equal(t, "sqlite:///data/db.sqlite", resources[0].URL)
		assert.Equal(t, "Store", resources[0].Provider)
	}
}

func TestDataStoreExecute(t *testing.T) {
	store := NewDataStore("Store", "sqlite:///data/db.sqlite", nil)
	assert.Equal(t, engine.StateSuccess, store.Execute(context.Background(), nil, nil, &sync.Mutex{}))
}

func TestDataStoreReadyToExecute(t *testing.T) {
	assert.False(t, NewDataStore("Store", "", nil).ReadyToExecute(nil))
	assert.True(t, NewDataStore("Store", "sqlite:///db.sqlite", nil).ReadyToExecute(nil))
}
